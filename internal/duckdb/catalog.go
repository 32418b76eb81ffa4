package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/tinytelemetry/photon/internal/model"
	"go.uber.org/zap"
)

// ReplaceRegistry swaps the catalog contents for reg in a single
// transaction. Readers see either the old rows or the new ones.
func (s *Store) ReplaceRegistry(ctx context.Context, reg model.RegistryReader) error {
	ctx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.replaceTx(ctx, reg); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	s.logger.Info("catalog replaced",
		zap.String("fingerprint", reg.Fingerprint()),
		zap.Int("fields", len(reg.Fields())),
		zap.Int("metrics", len(reg.Metrics())),
		zap.Int("tables", len(reg.Tables())),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Store) replaceTx(ctx context.Context, reg model.RegistryReader) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"fields", "field_sources", "metrics", "metric_dependencies", "report_tables", "report_columns", "catalog_info"} {
		// Table names are constants, not user input.
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := insertFields(ctx, tx, reg); err != nil {
		return err
	}
	if err := insertMetrics(ctx, tx, reg); err != nil {
		return err
	}
	if err := insertTables(ctx, tx, reg); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO catalog_info (fingerprint, fields, metrics, tables, loaded_at) VALUES (?, ?, ?, ?, ?)`,
		reg.Fingerprint(), len(reg.Fields()), len(reg.Metrics()), len(reg.Tables()), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("catalog_info insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func insertFields(ctx context.Context, tx *sql.Tx, reg model.RegistryReader) error {
	fieldStmt, err := tx.PrepareContext(ctx, `INSERT INTO fields (name) VALUES (?)`)
	if err != nil {
		return err
	}
	defer fieldStmt.Close()

	sourceStmt, err := tx.PrepareContext(ctx, `INSERT INTO field_sources (field, source, position, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer sourceStmt.Close()

	for _, name := range reg.Fields() {
		entry, err := reg.ResolveField(name)
		if err != nil {
			return err
		}
		if _, err := fieldStmt.ExecContext(ctx, name); err != nil {
			return fmt.Errorf("field insert %s: %w", name, err)
		}
		for _, src := range entry.Sources() {
			for i, value := range entry.List(src) {
				if _, err := sourceStmt.ExecContext(ctx, name, string(src), i, value); err != nil {
					return fmt.Errorf("field source insert %s.%s: %w", name, src, err)
				}
			}
		}
	}
	return nil
}

func insertMetrics(ctx context.Context, tx *sql.Tx, reg model.RegistryReader) error {
	metricStmt, err := tx.PrepareContext(ctx, `INSERT INTO metrics (name, metric_type, field, nice_name, operation, scale, precision, placeholder, fill, numerator, denominator, action) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer metricStmt.Close()

	depStmt, err := tx.PrepareContext(ctx, `INSERT INTO metric_dependencies (metric, dependency, kind, direct) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer depStmt.Close()

	for _, name := range reg.Metrics() {
		def, err := reg.ResolveMetric(name)
		if err != nil {
			return err
		}
		closure, err := reg.DependencyClosure(name)
		if err != nil {
			return err
		}

		if _, err := metricStmt.ExecContext(ctx,
			def.Name, string(def.Kind), def.Field, def.NiceName, string(def.Operation),
			nullable(def.Scale), def.Precision, nullable(def.Placeholder), def.Fill,
			nullable(def.Numerator), nullable(def.Denominator), nullable(def.Action),
		); err != nil {
			return fmt.Errorf("metric insert %s: %w", name, err)
		}

		directFields := def.DataFields()
		for _, dep := range closure.Metrics {
			if _, err := depStmt.ExecContext(ctx, name, dep, DependencyMetric, slices.Contains(def.RequiredMetrics, dep)); err != nil {
				return fmt.Errorf("dependency insert %s -> %s: %w", name, dep, err)
			}
		}
		for _, dep := range closure.Fields {
			if _, err := depStmt.ExecContext(ctx, name, dep, DependencyField, slices.Contains(directFields, dep)); err != nil {
				return fmt.Errorf("dependency insert %s -> %s: %w", name, dep, err)
			}
		}
	}
	return nil
}

func insertTables(ctx context.Context, tx *sql.Tx, reg model.RegistryReader) error {
	tableStmt, err := tx.PrepareContext(ctx, `INSERT INTO report_tables (name, title, table_type, show_timestamp, box, grid, headers, use_titles) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tableStmt.Close()

	columnStmt, err := tx.PrepareContext(ctx, `INSERT INTO report_columns (table_name, position, metric, is_pipe) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer columnStmt.Close()

	for _, name := range reg.Tables() {
		t, err := reg.ResolveTable(name)
		if err != nil {
			return err
		}
		if _, err := tableStmt.ExecContext(ctx,
			t.Name, t.Title, string(t.Type), t.Timestamp, t.Box, t.Grid, t.Headers, t.UseTitles,
		); err != nil {
			return fmt.Errorf("table insert %s: %w", name, err)
		}
		for i, col := range t.Columns {
			metric := nullable(col)
			if col == model.Pipe {
				metric = nil
			}
			if _, err := columnStmt.ExecContext(ctx, name, i, metric, col == model.Pipe); err != nil {
				return fmt.Errorf("column insert %s[%d]: %w", name, i, err)
			}
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
