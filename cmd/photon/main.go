package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tinytelemetry/photon/internal/registry"
	"github.com/tinytelemetry/photon/internal/settings"
	"go.uber.org/zap"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        appConfig
	logger     *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "photon",
		Short: "Metric registry for array performance reports",
		Long: `photon loads the field index, metric index and table index, validates
them, and answers which sources can satisfy a field, how a metric or report
table is defined, and which fields and metrics it transitively needs.

Without --field-index and --metric-index the bundled tables are used.
--table-index is optional alongside them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := loadConfig(a.configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			a.cfg = cfg

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default is $HOME/.config/photon/config.yml)")
	flags.String("field-index", "", "field index file (default: bundled)")
	flags.String("metric-index", "", "metric index file (default: bundled)")
	flags.String("table-index", "", "report table index file (default: bundled, none with --field-index)")
	flags.String("settings", "", "settings file (default: bundled)")
	flags.String("log-level", defaultLogLevel, "log level: debug, info, warn, error")

	root.AddCommand(
		newValidateCmd(a),
		newFieldCmd(a),
		newMetricCmd(a),
		newClosureCmd(a),
		newTableCmd(a),
		newRenderCmd(a),
		newExportCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// loadRegistry builds the registry from the configured tables, or the
// bundled ones when none are configured.
func (a *app) loadRegistry(ctx context.Context) (*registry.Registry, error) {
	conf := registry.Config{Logger: a.logger}
	if a.cfg.FieldIndex == "" {
		return registry.Default(conf)
	}
	return registry.Load(ctx, a.paths(), conf)
}

func (a *app) paths() registry.Paths {
	return registry.Paths{
		FieldIndex:  a.cfg.FieldIndex,
		MetricIndex: a.cfg.MetricIndex,
		TableIndex:  a.cfg.TableIndex,
	}
}

func (a *app) loadSettings() (settings.Settings, error) {
	return settings.Load(a.cfg.Settings, a.cfg.SettingsOverride, settings.Config{Logger: a.logger})
}
