// Package storage implements the relational side of the engine: the token
// dictionary, the variable-token table, the cached bond tables and the
// document kernel (documents, starters, per-document bond sub-tables,
// positional records, provenance and the monotonic address counters).
//
// Two backends are supported, selected at Open time: Postgres (through
// pgx's database/sql driver) and SQLite (through the CGO-free modernc
// driver). A small Dialect value absorbs the differences: placeholder
// syntax, auto-increment primary keys and the JSON column type.
package storage

import (
	"database/sql"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver
)

// Backend selects the relational implementation.
type Backend string

const (
	Postgres Backend = "postgres"
	Sqlite   Backend = "sqlite"
)

var (
	// ErrNotFound is returned by point lookups that matched no row.
	ErrNotFound = errors.New("not found")

	// ErrExhausted is returned when an address counter reaches the
	// capacity of its century (2500 × 2500 sequences).
	ErrExhausted = errors.New("address space exhausted")
)

// Store is an open relational store. All document writes are transactional;
// the store assumes a single writing process (the engine serializes
// writers).
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the given backend and ensures the schema exists.
//
// For Sqlite, conn is a filename (or ":memory:"); for Postgres a standard
// connection string.
func Open(backend Backend, conn string) (*Store, error) {
	var driver string
	var d dialect
	switch backend {
	case Postgres:
		driver, d = "pgx", pgDialect{}
	case Sqlite:
		driver, d = "sqlite", sqliteDialect{}
	default:
		return nil, errors.Errorf("unknown storage backend %q", backend)
	}
	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s store", backend)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "connecting to %s store", backend)
	}
	s := &Store{db: db, dialect: d}
	if err = s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	klog.V(1).Infof("storage: opened %s backend", backend)
	return s, nil
}

// Close releases the underlying connections. In-flight transactions are
// rolled back by the driver.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind translates '?' placeholders to the dialect's syntax.
func (s *Store) rebind(query string) string {
	return s.dialect.rebind(query)
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			klog.Errorf("storage: rollback failed: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
