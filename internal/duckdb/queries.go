package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// maxQueryRows bounds ExecuteQuery results.
const maxQueryRows = 1000

// catalogTables is the allowlist used by TableRowCounts.
var catalogTables = []string{"fields", "field_sources", "metrics", "metric_dependencies", "report_tables", "report_columns"}

// dangerousKeywordPattern matches dangerous SQL keywords at word boundaries,
// so "RESET" does not match "SET". Checked after comment stripping and
// semicolon rejection.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET|CHECKPOINT)\b`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// checkReadOnly rejects anything but a single SELECT/WITH statement.
func checkReadOnly(query string) error {
	if strings.Contains(query, ";") {
		return fmt.Errorf("query must not contain semicolons")
	}

	stripped := strings.TrimSpace(stripSQLComments(query))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("only SELECT/WITH queries are allowed")
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}
	return nil
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// ExecuteQuery runs a read-only SQL query against the catalog and returns at
// most 1000 rows as maps.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)
	if err := checkReadOnly(trimmed); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() && len(results) < maxQueryRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			s.logger.Warn("duckdb scan error", zap.String("op", "ExecuteQuery"), zap.Error(err))
			continue
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable description of the catalog tables.
func (s *Store) GetSchemaDescription() string {
	return `Table 'fields': name (VARCHAR). ` +
		`Table 'field_sources': field (VARCHAR), source (VARCHAR: insights/iris/logs/middleware/mr_tunable/pure1/warehouse), ` +
		`position (INTEGER, order within the source list), value (VARCHAR, source-specific identifier). ` +
		`Table 'metrics': name (VARCHAR), metric_type (VARCHAR: Metric/TextMetric/ScaledUnitsMetric/PercentageMetric/LatencyMetric/EventMetric), ` +
		`field (VARCHAR), nice_name (VARCHAR), operation (VARCHAR), scale (VARCHAR), precision (INTEGER), ` +
		`placeholder (VARCHAR), fill (BOOLEAN), numerator (VARCHAR), denominator (VARCHAR), action (VARCHAR). ` +
		`Table 'metric_dependencies': metric (VARCHAR), dependency (VARCHAR), kind (VARCHAR: metric/field), ` +
		`direct (BOOLEAN, false when only reached transitively). ` +
		`Table 'report_tables': name (VARCHAR), title (VARCHAR), table_type (VARCHAR: table/csv/json/html), ` +
		`show_timestamp (BOOLEAN), box (BOOLEAN), grid (BOOLEAN), headers (BOOLEAN), use_titles (BOOLEAN). ` +
		`Table 'report_columns': table_name (VARCHAR), position (INTEGER), metric (VARCHAR, NULL for separators), ` +
		`is_pipe (BOOLEAN).`
}

// TableRowCounts returns the row count for each catalog table.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	counts := make(map[string]int64, len(catalogTables))
	for _, table := range catalogTables {
		var count int64
		// Table names are constants, not user input.
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}

// Dependents returns the metrics that need name, directly or transitively.
// kind is DependencyField or DependencyMetric.
func (s *Store) Dependents(kind, name string) ([]Dependent, error) {
	if kind != DependencyField && kind != DependencyMetric {
		return nil, fmt.Errorf("unknown dependency kind %q", kind)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, direct
		FROM metric_dependencies
		WHERE kind = ? AND dependency = ?
		ORDER BY metric`, kind, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]Dependent, 0)
	for rows.Next() {
		var d Dependent
		if err := rows.Scan(&d.Metric, &d.Direct); err != nil {
			s.logger.Warn("duckdb scan error", zap.String("op", "Dependents"), zap.Error(err))
			continue
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// Info returns the fingerprint and counts of the loaded registry. ok is false
// while no registry has been loaded.
func (s *Store) Info() (info CatalogInfo, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	err = s.db.QueryRowContext(ctx,
		`SELECT fingerprint, fields, metrics, tables, loaded_at FROM catalog_info LIMIT 1`,
	).Scan(&info.Fingerprint, &info.Fields, &info.Metrics, &info.Tables, &info.LoadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogInfo{}, false, nil
	}
	if err != nil {
		return CatalogInfo{}, false, err
	}
	return info, true, nil
}
