package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tinytelemetry/photon/internal/duckdb"
	"github.com/tinytelemetry/photon/internal/model"
	"github.com/tinytelemetry/photon/internal/registry"
	"github.com/tinytelemetry/photon/internal/render"
	"gopkg.in/yaml.v3"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the tables and report every configuration error",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			reg, err := a.loadRegistry(cmd.Context())
			if err != nil {
				problems := flattenErrors(err)
				for _, p := range problems {
					fmt.Fprintf(out, "%s %s\n", failStyle.Render("✗"), p)
				}
				return fmt.Errorf("%d configuration errors", len(problems))
			}
			if _, err := a.loadSettings(); err != nil {
				fmt.Fprintf(out, "%s %s\n", failStyle.Render("✗"), err)
				return errors.New("invalid settings")
			}

			fmt.Fprintf(out, "%s %d fields, %d metrics, %d tables %s\n",
				okStyle.Render("✓"), len(reg.Fields()), len(reg.Metrics()), len(reg.Tables()),
				dimStyle.Render(reg.Fingerprint()[:12]))
			return nil
		},
	}
}

// flattenErrors unwraps joined errors into one message per problem.
func flattenErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	for e := err; e != nil; e = errors.Unwrap(e) {
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			joined = j
			break
		}
	}
	if joined == nil {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		out = append(out, e.Error())
	}
	return out
}

type fieldReport struct {
	Field      model.FieldIndexEntry `json:"field" yaml:"field"`
	Candidates []model.Source        `json:"candidates" yaml:"candidates"`
	Priority   []model.Source        `json:"priority" yaml:"priority"`
}

func newFieldCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "field NAME",
		Short: "Show which sources can satisfy a field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			entry, err := reg.ResolveField(args[0])
			if err != nil {
				return err
			}
			candidates, err := reg.Candidates(args[0])
			if err != nil {
				return err
			}
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), fieldReport{
				Field:      entry,
				Candidates: candidates,
				Priority:   s.Priority,
			})
		},
	}
}

func newMetricCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metric NAME",
		Short: "Show a metric definition with defaults applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			def, err := reg.ResolveMetric(args[0])
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), def)
		},
	}
}

func newClosureCmd(a *app) *cobra.Command {
	var namesOnly bool
	cmd := &cobra.Command{
		Use:   "closure NAME",
		Short: "List every metric and field a metric transitively requires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			closure, err := reg.DependencyClosure(args[0])
			if err != nil {
				return err
			}
			if namesOnly {
				for _, n := range closure.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}
			return writeYAML(cmd.OutOrStdout(), closure)
		},
	}
	cmd.Flags().BoolVar(&namesOnly, "names", false, "print the flat set of names, one per line")
	return cmd
}

type tableReport struct {
	Table   model.TableTemplate `json:"table" yaml:"table"`
	Closure model.TableClosure  `json:"closure" yaml:"closure"`
}

func newTableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "table [NAME]",
		Short: "List report tables, or show one with everything it needs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range reg.Tables() {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			tbl, err := reg.ResolveTable(args[0])
			if err != nil {
				return err
			}
			closure, err := reg.TableClosure(args[0])
			if err != nil {
				return err
			}
			return writeYAML(out, tableReport{Table: tbl, Closure: closure})
		},
	}
}

func newRenderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "render NAME [KEY=VALUE...]",
		Short: "Render a metric from raw field values",
		Example: `  photon render ssd_capacity ssd_capacity=1099511627776
  photon render pct_used ssd_mapped=512 ssd_capacity=1024`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			def, err := reg.ResolveMetric(args[0])
			if err != nil {
				return err
			}
			row, err := parseRow(args[1:])
			if err != nil {
				return err
			}
			text, err := render.Render(def, row)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", def.NiceName, text)
			return nil
		},
	}
}

// parseRow turns KEY=VALUE pairs into a render row. Values that parse as
// numbers are stored as float64, everything else as text.
func parseRow(pairs []string) (render.Row, error) {
	row := render.Row{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid value %q, expected KEY=VALUE", p)
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			row[key] = f
		} else {
			row[key] = value
		}
	}
	return row, nil
}

type exportDoc struct {
	Fingerprint string                   `json:"fingerprint" yaml:"fingerprint"`
	Fields      []model.FieldIndexEntry  `json:"fields" yaml:"fields"`
	Metrics     []model.MetricDefinition `json:"metrics" yaml:"metrics"`
	Tables      []model.TableTemplate    `json:"tables,omitempty" yaml:"tables,omitempty"`
	Order       []string                 `json:"order" yaml:"order"`
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the resolved registry, or write it to a DuckDB catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry(cmd.Context())
			if err != nil {
				return err
			}

			if dbPath != "" {
				store, err := duckdb.NewStore(expandHome(dbPath, homeDir()), duckdb.StoreConfig{
					QueryTimeout: a.cfg.QueryTimeout,
					Logger:       a.logger,
				})
				if err != nil {
					return fmt.Errorf("failed to open catalog: %w", err)
				}
				defer store.Close()
				if err := store.ReplaceRegistry(cmd.Context(), reg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s catalog written to %s\n", okStyle.Render("✓"), shortenPath(store.DBPath()))
				return nil
			}

			doc, err := buildExport(reg)
			if err != nil {
				return err
			}
			switch format {
			case "yaml":
				return writeYAML(cmd.OutOrStdout(), doc)
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			default:
				return fmt.Errorf("unknown format %q, expected yaml or json", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	cmd.Flags().StringVar(&dbPath, "duckdb", "", "write the catalog to this DuckDB file instead of stdout")
	return cmd
}

func buildExport(reg *registry.Registry) (exportDoc, error) {
	doc := exportDoc{Fingerprint: reg.Fingerprint(), Order: reg.Order()}
	for _, name := range reg.Fields() {
		entry, err := reg.ResolveField(name)
		if err != nil {
			return doc, err
		}
		doc.Fields = append(doc.Fields, entry)
	}
	for _, name := range reg.Metrics() {
		def, err := reg.ResolveMetric(name)
		if err != nil {
			return doc, err
		}
		doc.Metrics = append(doc.Metrics, def)
	}
	for _, name := range reg.Tables() {
		tbl, err := reg.ResolveTable(name)
		if err != nil {
			return doc, err
		}
		doc.Tables = append(doc.Tables, tbl)
	}
	return doc, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Photon - Metric Registry\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
			fmt.Fprintf(out, "  Go version: %s\n", goVersion)
			fmt.Fprintf(out, "  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
