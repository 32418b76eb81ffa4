package duckdb

import "time"

// Dependency kinds stored in metric_dependencies.kind.
const (
	DependencyMetric = "metric"
	DependencyField  = "field"
)

// Dependent is a metric that needs a given field or metric.
type Dependent struct {
	Metric string `json:"metric"`
	Direct bool   `json:"direct"`
}

// CatalogInfo describes the registry currently loaded into the catalog.
type CatalogInfo struct {
	Fingerprint string    `json:"fingerprint"`
	Fields      int       `json:"fields"`
	Metrics     int       `json:"metrics"`
	Tables      int       `json:"tables"`
	LoadedAt    time.Time `json:"loaded_at"`
}
