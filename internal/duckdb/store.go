// Package duckdb keeps a SQL-queryable copy of the registry in DuckDB.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tinytelemetry/photon/internal/duckdb/migrate"
	"github.com/tinytelemetry/photon/internal/model"
	"go.uber.org/zap"
)

// StoreConfig holds tunable parameters for the catalog store.
type StoreConfig struct {
	QueryTimeout time.Duration
	Logger       *zap.Logger
}

// Store manages the DuckDB connection. Catalog replacement takes the write
// lock; queries share the read lock.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	logger       *zap.Logger
	QueryTimeout time.Duration
}

var _ model.CatalogQuerier = (*Store)(nil)

// NewStore opens or creates a DuckDB database and applies the catalog schema.
// If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string, conf ...StoreConfig) (*Store, error) {
	qt := model.DefaultQueryTimeout
	logger := zap.NewNop()
	if len(conf) > 0 {
		if conf[0].QueryTimeout > 0 {
			qt = conf[0].QueryTimeout
		}
		if conf[0].Logger != nil {
			logger = conf[0].Logger
		}
	}

	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt)
	defer cancel()
	if err := migrate.NewRunner(db, logger).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		logger:       logger,
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the configured database path. Empty means in-memory.
func (s *Store) DBPath() string {
	return s.dbPath
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()
	st, err := migrate.NewRunner(s.db, s.logger).Status(ctx)
	return st.Current, err
}
