// Package registry loads the field index, metric index and optional table
// index into an immutable, validated registry.
//
// Every problem in the tables (unknown metric types, dangling references,
// cycles in required_metrics, fields without sources) is detected while the
// registry is built. Build either returns a fully valid registry or none at
// all, so lookups never run against a partially valid table. A Registry is
// never mutated after Build and is safe for concurrent use.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tinytelemetry/photon/configs"
	"github.com/tinytelemetry/photon/internal/iniconf"
	"github.com/tinytelemetry/photon/internal/model"
	"github.com/tinytelemetry/photon/internal/render"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds optional build settings.
type Config struct {
	Logger *zap.Logger
}

// Documents are the parsed tables a registry is built from. Tables may be
// nil, in which case the registry has no report templates.
type Documents struct {
	Fields  *iniconf.Document
	Metrics *iniconf.Document
	Tables  *iniconf.Document
}

// Paths locate the table files on disk. TableIndex is optional.
type Paths struct {
	FieldIndex  string
	MetricIndex string
	TableIndex  string
}

// Registry is the validated, read-only view of the tables.
type Registry struct {
	fields        map[string]model.FieldIndexEntry
	metrics       map[string]model.MetricDefinition
	closures      map[string]model.Closure
	tables        map[string]model.TableTemplate
	tableClosures map[string]model.TableClosure
	fieldNames    []string
	metricNames   []string
	tableNames    []string
	order         []string
	fingerprint   string
}

var _ model.RegistryReader = (*Registry)(nil)

// Build validates the documents and returns the registry. On failure the
// returned error joins every problem found, each naming the offending key.
func Build(docs Documents, conf ...Config) (*Registry, error) {
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fields, errs := parseFieldIndex(docs.Fields)
	metrics, metricErrs := parseMetricIndex(docs.Metrics)
	errs = append(errs, metricErrs...)

	tables := map[string]model.TableTemplate{}
	if docs.Tables != nil {
		var tableErrs []error
		tables, tableErrs = parseTableIndex(docs.Tables)
		errs = append(errs, tableErrs...)
	}

	metricNames := sortedNames(metrics)
	for _, name := range metricNames {
		errs = append(errs, validateMetric(metrics[name], fields, metrics)...)
	}

	tableNames := sortedNames(tables)
	for _, name := range tableNames {
		errs = append(errs, validateTable(tables[name], metrics)...)
	}

	order, cycleErrs := dependencyOrder(metrics)
	errs = append(errs, cycleErrs...)

	if len(errs) > 0 {
		logger.Error("registry validation failed",
			zap.String("field_index", docs.Fields.Name),
			zap.String("metric_index", docs.Metrics.Name),
			zap.Int("errors", len(errs)))
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	for name, def := range metrics {
		if def.NiceName == "" {
			def.NiceName = render.MakeTitle(def.Field)
		}
		if def.Controller != "" {
			def.NiceName = def.Controller + " " + def.NiceName
		}
		metrics[name] = def
	}

	closures := computeClosures(order, metrics)
	tableClosures := make(map[string]model.TableClosure, len(tables))
	for name, t := range tables {
		if t.Title == "" {
			t.Title = render.MakeTitle(name)
			tables[name] = t
		}
		tableClosures[name] = tableClosure(t, closures)
	}

	r := &Registry{
		fields:        fields,
		metrics:       metrics,
		closures:      closures,
		tables:        tables,
		tableClosures: tableClosures,
		fieldNames:    sortedNames(fields),
		metricNames:   metricNames,
		tableNames:    tableNames,
		order:         order,
	}
	r.fingerprint = r.computeFingerprint()

	logger.Info("registry loaded",
		zap.Int("fields", len(r.fieldNames)),
		zap.Int("metrics", len(r.metricNames)),
		zap.Int("tables", len(r.tableNames)),
		zap.String("fingerprint", r.fingerprint))
	return r, nil
}

// Load parses the table files concurrently and builds the registry.
func Load(ctx context.Context, paths Paths, conf ...Config) (*Registry, error) {
	var docs Documents

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := iniconf.Load(paths.FieldIndex)
		if err != nil {
			return fmt.Errorf("field index: %w", err)
		}
		docs.Fields = doc
		return nil
	})
	g.Go(func() error {
		doc, err := iniconf.Load(paths.MetricIndex)
		if err != nil {
			return fmt.Errorf("metric index: %w", err)
		}
		docs.Metrics = doc
		return nil
	})
	if paths.TableIndex != "" {
		g.Go(func() error {
			doc, err := iniconf.Load(paths.TableIndex)
			if err != nil {
				return fmt.Errorf("table index: %w", err)
			}
			docs.Tables = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Build(docs, conf...)
}

// Parse builds a registry without report templates from in-memory field
// and metric index contents.
func Parse(fieldName string, fieldData []byte, metricName string, metricData []byte, conf ...Config) (*Registry, error) {
	docs, err := parseDocuments(fieldName, fieldData, metricName, metricData)
	if err != nil {
		return nil, err
	}
	return Build(docs, conf...)
}

// Default builds a registry from the bundled tables, report templates
// included.
func Default(conf ...Config) (*Registry, error) {
	docs, err := parseDocuments(configs.FieldIndexName, configs.FieldIndex, configs.MetricIndexName, configs.MetricIndex)
	if err != nil {
		return nil, err
	}
	docs.Tables, err = iniconf.Parse(configs.TableIndexName, configs.TableIndex)
	if err != nil {
		return nil, fmt.Errorf("table index: %w", err)
	}
	return Build(docs, conf...)
}

func parseDocuments(fieldName string, fieldData []byte, metricName string, metricData []byte) (Documents, error) {
	fieldDoc, err := iniconf.Parse(fieldName, fieldData)
	if err != nil {
		return Documents{}, fmt.Errorf("field index: %w", err)
	}
	metricDoc, err := iniconf.Parse(metricName, metricData)
	if err != nil {
		return Documents{}, fmt.Errorf("metric index: %w", err)
	}
	return Documents{Fields: fieldDoc, Metrics: metricDoc}, nil
}

// ResolveField returns the entry for a field.
func (r *Registry) ResolveField(name string) (model.FieldIndexEntry, error) {
	entry, ok := r.fields[name]
	if !ok {
		return model.FieldIndexEntry{}, &UnknownFieldError{Name: name}
	}
	return entry.Clone(), nil
}

// ResolveMetric returns a metric definition with defaults merged in.
func (r *Registry) ResolveMetric(name string) (model.MetricDefinition, error) {
	def, ok := r.metrics[name]
	if !ok {
		return model.MetricDefinition{}, &UnknownMetricError{Name: name}
	}
	return def.Clone(), nil
}

// DependencyClosure returns every metric and field name transitively
// required by a metric.
func (r *Registry) DependencyClosure(name string) (model.Closure, error) {
	c, ok := r.closures[name]
	if !ok {
		return model.Closure{}, &UnknownMetricError{Name: name}
	}
	return c.Clone(), nil
}

// Candidates returns the sources that can satisfy a field, in canonical
// order. No source is preferred over another here.
func (r *Registry) Candidates(name string) ([]model.Source, error) {
	entry, ok := r.fields[name]
	if !ok {
		return nil, &UnknownFieldError{Name: name}
	}
	return entry.Sources(), nil
}

// Fields returns all field names, sorted.
func (r *Registry) Fields() []string {
	return append([]string(nil), r.fieldNames...)
}

// Metrics returns all metric names, sorted.
func (r *Registry) Metrics() []string {
	return append([]string(nil), r.metricNames...)
}

// ResolveTable returns a report template with its title filled in.
func (r *Registry) ResolveTable(name string) (model.TableTemplate, error) {
	t, ok := r.tables[name]
	if !ok {
		return model.TableTemplate{}, &UnknownTableError{Name: name}
	}
	return t.Clone(), nil
}

// TableClosure returns every metric and field a report template needs.
func (r *Registry) TableClosure(name string) (model.TableClosure, error) {
	c, ok := r.tableClosures[name]
	if !ok {
		return model.TableClosure{}, &UnknownTableError{Name: name}
	}
	return c.Clone(), nil
}

// Tables returns all report template names, sorted.
func (r *Registry) Tables() []string {
	return append([]string(nil), r.tableNames...)
}

// Order returns metric names with every metric after its dependencies.
func (r *Registry) Order() []string {
	return append([]string(nil), r.order...)
}

// Fingerprint identifies the registry contents. Registries built from the
// same tables have the same fingerprint.
func (r *Registry) Fingerprint() string {
	return r.fingerprint
}

func (r *Registry) computeFingerprint() string {
	snapshot := struct {
		Fields  []model.FieldIndexEntry  `json:"fields"`
		Metrics []model.MetricDefinition `json:"metrics"`
		Tables  []model.TableTemplate    `json:"tables,omitempty"`
	}{}
	for _, name := range r.fieldNames {
		snapshot.Fields = append(snapshot.Fields, r.fields[name])
	}
	for _, name := range r.metricNames {
		snapshot.Metrics = append(snapshot.Metrics, r.metrics[name])
	}
	for _, name := range r.tableNames {
		snapshot.Tables = append(snapshot.Tables, r.tables[name])
	}
	// Only plain strings, ints and bools are encoded; Marshal cannot fail.
	data, _ := json.Marshal(snapshot)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
