// Package migrate applies the embedded catalog schema to a DuckDB database.
//
// Each migration is recorded with a checksum of its SQL. A catalog file whose
// recorded checksums no longer match the embedded migrations was built by a
// different schema and is rejected rather than patched.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migration is one versioned schema step.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// DriftError reports an applied migration whose SQL has since changed.
type DriftError struct {
	Version  int
	Name     string
	Recorded string
	Embedded string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("migration %d (%s) changed since it was applied: recorded %s, embedded %s",
		e.Version, e.Name, short(e.Recorded), short(e.Embedded))
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

// Status describes the schema state of a database.
type Status struct {
	Current int
	Pending []string
}

// Runner applies versioned SQL migrations to a DuckDB database.
type Runner struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{db: db, logger: logger}
}

// Migrations returns the embedded migrations ordered by version.
func Migrations() ([]Migration, error) {
	return readMigrations(embedded, "migrations")
}

func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	var out []Migration
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("parsing version from %s: %w", e.Name(), err)
		}
		if prev, dup := seen[ver]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, e.Name(), ver)
		}
		seen[ver] = e.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(data)
		out = append(out, Migration{
			Version:  ver,
			Name:     e.Name(),
			SQL:      string(data),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

func (r *Runner) bootstrap(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		checksum   VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	return err
}

// applied returns the recorded checksum of every applied version.
func (r *Runner) applied(ctx context.Context) (map[int]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]string{}
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		out[version] = checksum
	}
	return out, rows.Err()
}

// plan compares the database with the embedded migrations and returns the
// ones still to apply.
func (r *Runner) plan(ctx context.Context) (current int, pending []Migration, err error) {
	if err := r.bootstrap(ctx); err != nil {
		return 0, nil, fmt.Errorf("bootstrap schema_migrations: %w", err)
	}
	done, err := r.applied(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("reading applied versions: %w", err)
	}
	migs, err := Migrations()
	if err != nil {
		return 0, nil, err
	}

	for _, m := range migs {
		recorded, ok := done[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if recorded != m.Checksum {
			return 0, nil, &DriftError{Version: m.Version, Name: m.Name, Recorded: recorded, Embedded: m.Checksum}
		}
		current = max(current, m.Version)
	}
	return current, pending, nil
}

// Run applies all pending migrations in order, each in its own transaction.
func (r *Runner) Run(ctx context.Context) error {
	current, pending, err := r.plan(ctx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := r.apply(ctx, m); err != nil {
			return err
		}
		r.logger.Debug("applied migration",
			zap.Int("version", m.Version),
			zap.String("name", m.Name),
			zap.Int("from", current))
		current = m.Version
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", m.Name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("executing %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
		m.Version, m.Name, m.Checksum); err != nil {
		return fmt.Errorf("recording %s: %w", m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", m.Name, err)
	}
	committed = true
	return nil
}

// Status reports the applied version and the names of pending migrations.
// It returns a *DriftError when an applied migration has changed.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	current, pending, err := r.plan(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Current: current}
	for _, m := range pending {
		st.Pending = append(st.Pending, m.Name)
	}
	return st, nil
}
