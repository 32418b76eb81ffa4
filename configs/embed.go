// Package configs bundles the default field index, metric index, table index
// and settings tables.
package configs

import _ "embed"

// FieldIndex is the bundled field_index.ini.
//
//go:embed field_index.ini
var FieldIndex []byte

// MetricIndex is the bundled metric_index.ini.
//
//go:embed metric_index.ini
var MetricIndex []byte

// TableIndex is the bundled table_index.ini.
//
//go:embed table_index.ini
var TableIndex []byte

// Settings is the bundled settings.ini.
//
//go:embed settings.ini
var Settings []byte

// File names used when the bundled tables are reported in errors and logs.
const (
	FieldIndexName  = "field_index.ini"
	MetricIndexName = "metric_index.ini"
	TableIndexName  = "table_index.ini"
	SettingsName    = "settings.ini"
)
