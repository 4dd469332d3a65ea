// Package sqlite provides a SQLite-backed implementation of the storage
// interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
)

// Ensure SQLiteStore implements the storage interfaces.
var (
	_ storage.Store        = (*SQLiteStore)(nil)
	_ storage.AccountStore = (*SQLiteStore)(nil)
	_ storage.ElecStore    = (*SQLiteStore)(nil)
)

// SQLiteStore implements storage over SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate makes every transaction take the write lock up front,
	// so the read-then-write sequence in InTx is serialized per database.
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time; a single pooled connection makes
	// concurrent transactions queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a write transaction, committing on success and rolling
// back on any error.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// sqliteTx exposes the storage.Tx operations over one *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	return getBill(ctx, t.tx, billID)
}

func (t *sqliteTx) GetEntriesByBill(ctx context.Context, billID string) ([]*models.SettlementEntry, error) {
	return getEntriesByBill(ctx, t.tx, billID)
}

func (t *sqliteTx) SetEntryCompleted(ctx context.Context, billID, uid string) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE settlement_entries SET completed = 1 WHERE bill_id = ? AND uid = ?",
		billID, uid,
	)
	if err != nil {
		return fmt.Errorf("failed to complete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entry %s/%s: %w", billID, uid, storage.ErrNotFound)
	}
	return nil
}

// querier covers *sql.DB and *sql.Tx so the row helpers work in both contexts.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
