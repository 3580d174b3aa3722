// File path: internal/records/store.go
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var errNilStore = errors.New("records store not initialised")

// Store wraps a pooled sqlx.DB holding the survey records and the usage log.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store at path, falling back to the environment configuration
// when path is empty. The schema is migrated on open.
func Open(path string) (*Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		cfg.Path = trimmed
	}
	return OpenWithConfig(cfg)
}

func OpenWithConfig(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve records path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create records directory: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open records db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping records db: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sqlx.DB for advanced callers.
func (s *Store) DB() *sqlx.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Store) ensureReady() error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for i, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("execute schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS patient_records (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                source_id TEXT NOT NULL UNIQUE,
                age INTEGER NOT NULL,
                height_cm REAL NOT NULL,
                weight_kg REAL NOT NULL,
                bmi REAL NOT NULL,
                bmi_category TEXT NOT NULL,
                state TEXT NOT NULL,
                residence TEXT NOT NULL,
                wealth TEXT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS usage_log (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                request_id TEXT NOT NULL,
                age INTEGER NOT NULL,
                gender TEXT NOT NULL,
                bmi REAL NOT NULL,
                bmi_category TEXT NOT NULL,
                diet TEXT NOT NULL,
                region TEXT NOT NULL,
                residence TEXT NOT NULL,
                wealth TEXT NOT NULL,
                outcome TEXT NOT NULL,
                region_substituted INTEGER NOT NULL DEFAULT 0,
                context_limited INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_records_state ON patient_records(state COLLATE NOCASE);`,
	`CREATE INDEX IF NOT EXISTS idx_records_category ON patient_records(bmi_category COLLATE NOCASE);`,
	`CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_log(created_at);`,
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
