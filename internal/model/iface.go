package model

// FieldResolver looks up field index entries.
type FieldResolver interface {
	ResolveField(name string) (FieldIndexEntry, error)
	Fields() []string
}

// MetricResolver looks up merged metric definitions and their dependencies.
type MetricResolver interface {
	ResolveMetric(name string) (MetricDefinition, error)
	DependencyClosure(name string) (Closure, error)
	Metrics() []string
}

// TableResolver looks up report table templates.
type TableResolver interface {
	ResolveTable(name string) (TableTemplate, error)
	TableClosure(name string) (TableClosure, error)
	Tables() []string
}

// RegistryReader is the unified read contract for read surfaces (CLI, HTTP).
type RegistryReader interface {
	FieldResolver
	MetricResolver
	TableResolver
	Fingerprint() string
}

// CatalogQuerier provides read-only SQL over a registry snapshot.
type CatalogQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}
