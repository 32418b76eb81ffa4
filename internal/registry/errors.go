package registry

import (
	"fmt"
	"strings"
)

// UnknownFieldError is returned when a field name is not in the field index.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Name)
}

// UnknownMetricError is returned when a metric name is not in the metric index.
type UnknownMetricError struct {
	Name string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric %q", e.Name)
}

// UnknownTableError is returned when a name is not in the table index.
type UnknownTableError struct {
	Name string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.Name)
}

// DanglingReferenceError is a metric or table option that names a field or
// metric which does not resolve. Table is set only for table columns.
type DanglingReferenceError struct {
	Metric string
	Table  string
	Option string // required_fields, required_metrics, field, columns, ...
	Target string
	Reason string // optional detail
}

func (e *DanglingReferenceError) Error() string {
	owner := fmt.Sprintf("metric %q", e.Metric)
	if e.Table != "" {
		owner = fmt.Sprintf("table %q", e.Table)
	}
	msg := fmt.Sprintf("%s: %s references %q", owner, e.Option, e.Target)
	if e.Reason != "" {
		return msg + ": " + e.Reason
	}
	return msg + " which does not exist"
}

// CyclicDependencyError is a required_metrics chain that revisits a metric
// already on the current resolution path. Path starts and ends with the
// same metric.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("metric %q: cyclic required_metrics: %s", e.Path[0], strings.Join(e.Path, " -> "))
}

// InvalidDefinitionError is a malformed option value in either table.
type InvalidDefinitionError struct {
	Table   string // "field", "metric" or "table"
	Section string
	Option  string
	Reason  string
}

func (e *InvalidDefinitionError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("%s %q: %s", e.Table, e.Section, e.Reason)
	}
	return fmt.Sprintf("%s %q: option %s: %s", e.Table, e.Section, e.Option, e.Reason)
}

// UnresolvableFieldError is a field section that lists no sources at all.
type UnresolvableFieldError struct {
	Name string
}

func (e *UnresolvableFieldError) Error() string {
	return fmt.Sprintf("field %q lists no sources and cannot be resolved", e.Name)
}
