package model

import (
	"slices"
	"sort"
)

// Source is an origin category for field data.
type Source string

const (
	SourceInsights   Source = "insights"
	SourceIris       Source = "iris"
	SourceLogs       Source = "logs"
	SourceMiddleware Source = "middleware"
	SourceMRTunable  Source = "mr_tunable"
	SourcePure1      Source = "pure1"
	SourceWarehouse  Source = "warehouse"
)

// Sources lists every source in canonical order.
var Sources = []Source{
	SourceInsights,
	SourceIris,
	SourceLogs,
	SourceMiddleware,
	SourceMRTunable,
	SourcePure1,
	SourceWarehouse,
}

// ParseSource reports whether s names a known source.
func ParseSource(s string) (Source, bool) {
	for _, src := range Sources {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// FieldIndexEntry maps one logical field to the physical sources that can satisfy it.
type FieldIndexEntry struct {
	Name       string   `json:"name" yaml:"name"`
	Insights   []string `json:"insights,omitempty" yaml:"insights,omitempty"`
	Iris       []string `json:"iris,omitempty" yaml:"iris,omitempty"`
	Logs       []string `json:"logs,omitempty" yaml:"logs,omitempty"`
	Middleware []string `json:"middleware,omitempty" yaml:"middleware,omitempty"`
	MRTunable  []string `json:"mr_tunable,omitempty" yaml:"mr_tunable,omitempty"`
	Pure1      []string `json:"pure1,omitempty" yaml:"pure1,omitempty"`
	Warehouse  []string `json:"warehouse,omitempty" yaml:"warehouse,omitempty"`
}

// List returns the identifiers listed for src, or nil.
func (e FieldIndexEntry) List(src Source) []string {
	switch src {
	case SourceInsights:
		return e.Insights
	case SourceIris:
		return e.Iris
	case SourceLogs:
		return e.Logs
	case SourceMiddleware:
		return e.Middleware
	case SourceMRTunable:
		return e.MRTunable
	case SourcePure1:
		return e.Pure1
	case SourceWarehouse:
		return e.Warehouse
	}
	return nil
}

// SetList assigns the identifiers for src.
func (e *FieldIndexEntry) SetList(src Source, ids []string) {
	switch src {
	case SourceInsights:
		e.Insights = ids
	case SourceIris:
		e.Iris = ids
	case SourceLogs:
		e.Logs = ids
	case SourceMiddleware:
		e.Middleware = ids
	case SourceMRTunable:
		e.MRTunable = ids
	case SourcePure1:
		e.Pure1 = ids
	case SourceWarehouse:
		e.Warehouse = ids
	}
}

// Sources returns the sources with a non-empty list, in canonical order.
func (e FieldIndexEntry) Sources() []Source {
	var out []Source
	for _, src := range Sources {
		if len(e.List(src)) > 0 {
			out = append(out, src)
		}
	}
	return out
}

// Clone returns a deep copy.
func (e FieldIndexEntry) Clone() FieldIndexEntry {
	out := FieldIndexEntry{Name: e.Name}
	for _, src := range Sources {
		if l := e.List(src); l != nil {
			out.SetList(src, slices.Clone(l))
		}
	}
	return out
}

// MetricKind selects how a metric is computed and rendered.
type MetricKind string

const (
	KindMetric      MetricKind = "Metric"
	KindText        MetricKind = "TextMetric"
	KindScaledUnits MetricKind = "ScaledUnitsMetric"
	KindPercentage  MetricKind = "PercentageMetric"
	KindLatency     MetricKind = "LatencyMetric"
	KindEvent       MetricKind = "EventMetric"
)

// MetricKinds is the closed set of metric kinds.
var MetricKinds = []MetricKind{KindMetric, KindText, KindScaledUnits, KindPercentage, KindLatency, KindEvent}

// Valid reports whether k is one of MetricKinds.
func (k MetricKind) Valid() bool {
	return slices.Contains(MetricKinds, k)
}

// Operation is the aggregation applied when values are resampled.
type Operation string

const (
	OpLast        Operation = "last"
	OpSum         Operation = "sum"
	OpAvg         Operation = "avg"
	OpMean        Operation = "mean"
	OpEvent       Operation = "event"
	OpValueCounts Operation = "value_counts"
	OpStd         Operation = "std"
	OpMin         Operation = "min"
	OpMax         Operation = "max"
)

// Operations is the closed set of aggregation operations.
var Operations = []Operation{OpLast, OpSum, OpAvg, OpMean, OpEvent, OpValueCounts, OpStd, OpMin, OpMax}

// Valid reports whether o is one of Operations.
func (o Operation) Valid() bool {
	return slices.Contains(Operations, o)
}

// Alignment is the column alignment used by report tables.
type Alignment string

const (
	AlignAuto  Alignment = "auto"
	AlignLeft  Alignment = "left"
	AlignRight Alignment = "right"
)

// Valid reports whether a is a known alignment.
func (a Alignment) Valid() bool {
	return a == AlignAuto || a == AlignLeft || a == AlignRight
}

// MetricDefinition is one metric with all defaults merged in.
type MetricDefinition struct {
	Name            string     `json:"name" yaml:"name"`
	Kind            MetricKind `json:"metric_type" yaml:"metric_type"`
	Field           string     `json:"field" yaml:"field"`
	NiceName        string     `json:"nice_name" yaml:"nice_name"`
	Operation       Operation  `json:"operation" yaml:"operation"`
	RequiredFields  []string   `json:"required_fields,omitempty" yaml:"required_fields,omitempty"`
	RequiredMetrics []string   `json:"required_metrics,omitempty" yaml:"required_metrics,omitempty"`
	Numerator       string     `json:"numerator,omitempty" yaml:"numerator,omitempty"`
	Denominator     string     `json:"denominator,omitempty" yaml:"denominator,omitempty"`
	Scale           string     `json:"scale,omitempty" yaml:"scale,omitempty"`
	Precision       int        `json:"precision" yaml:"precision"`
	Placeholder     string     `json:"placeholder" yaml:"placeholder"`
	Fill            bool       `json:"fill" yaml:"fill"`
	Alignment       Alignment  `json:"alignment" yaml:"alignment"`
	BaseUnit        string     `json:"base_unit,omitempty" yaml:"base_unit,omitempty"`
	DisplayUnit     string     `json:"display_unit,omitempty" yaml:"display_unit,omitempty"`
	Controller      string     `json:"controller,omitempty" yaml:"controller,omitempty"`
	Action          string     `json:"action,omitempty" yaml:"action,omitempty"`
	DType           string     `json:"dtype,omitempty" yaml:"dtype,omitempty"`
	NestedFields    []string   `json:"nested_fields,omitempty" yaml:"nested_fields,omitempty"`
	SubTables       []string   `json:"sub_tables,omitempty" yaml:"sub_tables,omitempty"`

	// ExplicitField is true when the section set "field" itself.
	ExplicitField bool `json:"-" yaml:"-"`
}

// DataFields returns the fields this metric reads directly: its required
// fields, plus its own field when it is a single-field metric or the field
// was set explicitly and does not name a required metric.
func (d MetricDefinition) DataFields() []string {
	out := slices.Clone(d.RequiredFields)
	single := len(d.RequiredFields) == 0 && len(d.RequiredMetrics) == 0
	own := single || (d.ExplicitField && !slices.Contains(d.RequiredMetrics, d.Field))
	if own && !slices.Contains(out, d.Field) {
		out = append(out, d.Field)
	}
	return out
}

// Clone returns a deep copy.
func (d MetricDefinition) Clone() MetricDefinition {
	d.RequiredFields = slices.Clone(d.RequiredFields)
	d.RequiredMetrics = slices.Clone(d.RequiredMetrics)
	d.NestedFields = slices.Clone(d.NestedFields)
	d.SubTables = slices.Clone(d.SubTables)
	return d
}

// Closure is the transitive set of metrics and fields a metric requires.
// Both lists are sorted and exclude the metric itself.
type Closure struct {
	Metric  string   `json:"metric" yaml:"metric"`
	Metrics []string `json:"metrics" yaml:"metrics"`
	Fields  []string `json:"fields" yaml:"fields"`
}

// Names returns the sorted union of Metrics and Fields.
func (c Closure) Names() []string {
	seen := make(map[string]struct{}, len(c.Metrics)+len(c.Fields))
	for _, n := range c.Metrics {
		seen[n] = struct{}{}
	}
	for _, n := range c.Fields {
		seen[n] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (c Closure) Clone() Closure {
	c.Metrics = slices.Clone(c.Metrics)
	c.Fields = slices.Clone(c.Fields)
	return c
}

// TableType selects how a report table is rendered.
type TableType string

const (
	TableText TableType = "table"
	TableCSV  TableType = "csv"
	TableJSON TableType = "json"
	TableHTML TableType = "html"
)

// TableTypes is the closed set of report table renderers.
var TableTypes = []TableType{TableText, TableCSV, TableJSON, TableHTML}

// Valid reports whether t is one of TableTypes.
func (t TableType) Valid() bool {
	return slices.Contains(TableTypes, t)
}

// Pipe is the column entry that draws a visual separator in a report table.
const Pipe = "|"

// TableTemplate is one report table layout from the table index.
type TableTemplate struct {
	Name      string    `json:"name" yaml:"name"`
	Title     string    `json:"title" yaml:"title"`
	Type      TableType `json:"table_type" yaml:"table_type"`
	Columns   []string  `json:"columns" yaml:"columns"`
	Timestamp bool      `json:"timestamp" yaml:"timestamp"`
	Box       bool      `json:"box" yaml:"box"`
	Grid      bool      `json:"grid" yaml:"grid"`
	Headers   bool      `json:"headers" yaml:"headers"`
	UseTitles bool      `json:"use_titles" yaml:"use_titles"`
}

// Metrics returns the metric columns in order, without pipes or repeats.
func (t TableTemplate) Metrics() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c == Pipe || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Clone returns a deep copy.
func (t TableTemplate) Clone() TableTemplate {
	t.Columns = slices.Clone(t.Columns)
	return t
}

// TableClosure is everything a report table needs: its column metrics plus
// their dependencies, and the union of the fields they read. Both lists are
// sorted.
type TableClosure struct {
	Table   string   `json:"table" yaml:"table"`
	Metrics []string `json:"metrics" yaml:"metrics"`
	Fields  []string `json:"fields" yaml:"fields"`
}

// Clone returns a deep copy.
func (c TableClosure) Clone() TableClosure {
	c.Metrics = slices.Clone(c.Metrics)
	c.Fields = slices.Clone(c.Fields)
	return c
}
