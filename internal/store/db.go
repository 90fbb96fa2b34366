// Package store provides the SQLite storage layer of the package catalog:
// connection handling, transactions, and the interned value tables the
// catalog schema is built from.
package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// InMemory is the path that opens a private in-memory database.
const InMemory = ":memory:"

// Mode controls how the database file is opened.
type Mode int

const (
	// ModeReadWrite opens (or creates) the file for reading and writing.
	ModeReadWrite Mode = iota
	// ModeRead opens the file read-only, still honoring other writers' locks.
	ModeRead
	// ModeImmutable opens the file read-only without taking any lock. Safe
	// only when the file is replaced atomically rather than written in place.
	ModeImmutable
)

func (m Mode) String() string {
	switch m {
	case ModeReadWrite:
		return "ReadWrite"
	case ModeRead:
		return "Read"
	case ModeImmutable:
		return "Immutable"
	}
	return "Unknown"
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store provides SQLite database operations for the catalog.
type Store struct {
	db   *sql.DB
	path string
	mode Mode
}

// New opens dbPath for reading and writing.
// Use ":memory:" for in-memory databases (useful for testing).
func New(dbPath string) (*Store, error) {
	return Open(dbPath, ModeReadWrite)
}

// Open opens dbPath with the given mode.
func Open(dbPath string, mode Mode) (*Store, error) {
	dsn, err := dataSourceName(dbPath, mode)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool defaults
	db.SetMaxOpenConns(1) // SQLite only allows one writer at a time
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Store{db: db, path: dbPath, mode: mode}, nil
}

func dataSourceName(dbPath string, mode Mode) (string, error) {
	if dbPath == InMemory {
		return InMemory, nil
	}

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}

	query := url.Values{}
	switch mode {
	case ModeRead:
		query.Set("mode", "ro")
	case ModeImmutable:
		query.Set("mode", "ro")
		query.Set("immutable", "1")
	}

	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: query.Encode()}
	return u.String(), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Mode returns the mode the store was opened with.
func (s *Store) Mode() Mode {
	return s.mode
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
