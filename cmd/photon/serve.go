package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tinytelemetry/photon/internal/duckdb"
	"github.com/tinytelemetry/photon/internal/httpserver"
	"github.com/tinytelemetry/photon/internal/registry"
	"github.com/tinytelemetry/photon/internal/reload"
	"github.com/tinytelemetry/photon/internal/settings"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over HTTP and reload it when the tables change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServer(cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.Int("api-port", defaultAPIPort, "HTTP API port")
	flags.String("db-path", "", "DuckDB catalog file (default: in-memory)")
	flags.Bool("reload", true, "reload the tables when they change on disk")
	return cmd
}

// runServer serves the registry until SIGINT or SIGTERM.
func (a *app) runServer(out io.Writer) error {
	cfg := a.cfg
	logger := a.logger

	s, err := a.loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := a.loadRegistry(ctx)
	if err != nil {
		return err
	}
	holder := reload.NewHolder(reg)

	store, err := duckdb.NewStore(cfg.DBPath, duckdb.StoreConfig{
		QueryTimeout: cfg.QueryTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()
	if err := store.ReplaceRegistry(ctx, reg); err != nil {
		return fmt.Errorf("failed to populate catalog: %w", err)
	}

	var watcher *reload.Watcher
	if cfg.Reload && cfg.FieldIndex != "" {
		paths := a.paths()
		load := func(ctx context.Context) (*registry.Registry, error) {
			return registry.Load(ctx, paths, registry.Config{Logger: logger})
		}
		watched := []string{paths.FieldIndex, paths.MetricIndex}
		if paths.TableIndex != "" {
			watched = append(watched, paths.TableIndex)
		}
		watcher, err = reload.NewWatcher(holder, watched, load, reload.WatcherConfig{
			Debounce: cfg.ReloadDebounce,
			Logger:   logger,
			Catalog:  store,
		})
		if err != nil {
			return fmt.Errorf("failed to watch tables: %w", err)
		}
	}

	apiServer := httpserver.NewServer(cfg.APIAddr, holder, store, httpserver.Config{
		Logger:   logger,
		Settings: &s,
	})
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	defer apiServer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(out, "\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nForce shutdown.")
		case <-deadline.C:
			fmt.Fprintln(out, "Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(out, cfg, reg, s, watcher != nil)

	g, gctx := errgroup.WithContext(ctx)
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	return nil
}

func printStartupBanner(out io.Writer, cfg appConfig, reg *registry.Registry, s settings.Settings, watching bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦ ╦╔═╗╔╦╗╔═╗╔╗╔
    ╠═╝╠═╣║ ║ ║ ║ ║║║║
    ╩  ╩ ╩╚═╝ ╩ ╚═╝╝╚╝`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Registry"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Field Index    %s", check, dim.Render(tableLabel(cfg.FieldIndex))))
	lines = append(lines, fmt.Sprintf("    %s  Metric Index   %s", check, dim.Render(tableLabel(cfg.MetricIndex))))
	if len(reg.Tables()) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Table Index    %s", check, dim.Render(tableLabel(cfg.TableIndex))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Table Index    %s", dot, dim.Render("none")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Loaded         %s", check,
		cyan.Render(fmt.Sprintf("%d fields, %d metrics, %d tables", len(reg.Fields()), len(reg.Metrics()), len(reg.Tables())))))
	if watching {
		lines = append(lines, fmt.Sprintf("    %s  Hot Reload     %s", check, dim.Render(cfg.ReloadDebounce.String()+" debounce")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Hot Reload     %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	if cfg.DBPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Catalog        %s", check, dim.Render(shortenPath(cfg.DBPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Catalog        %s", check, dim.Render("in-memory")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Runtime"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Parallelism    %s", check,
		dim.Render(fmt.Sprintf("%d workers on %d CPUs", s.Parallelism(runtime.NumCPU()), runtime.NumCPU()))))
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func tableLabel(path string) string {
	if path == "" {
		return "bundled"
	}
	return shortenPath(path)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func shortenPath(path string) string {
	home := homeDir()
	if home != "" && strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
