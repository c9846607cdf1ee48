// Package state implements the persistent build state: a single-file SQLite
// database holding the bipartite dependency graph, the pending sets, and the
// build history. All access goes through serializable transactions obtained
// from Store.Begin.
package state

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// epoch is the stored timestamp of a task that has never executed.
var epoch = time.Unix(0, 0).UTC()

// timeLayout is the stored form of all timestamps.
const timeLayout = time.RFC3339Nano

// Store owns the state file. It is process-wide shared state: a single mutex
// serializes transactions so that every Begin/Commit pair is linearizable.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens or creates the state file at path and initializes the schema.
func Open(path string) (*Store, error) {
	// Pragmas ride the DSN so every pooled connection gets them; foreign
	// keys in particular are per-connection state.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", path, err)
	}
	// A single connection keeps transaction isolation trivial; the outer
	// mutex serializes callers anyway.
	db.SetMaxOpenConns(1)

	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}
	if _, err := db.Exec(seedDescriptionRow); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed description row: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the location of the state file.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Tx is one serializable transaction against the store. Exactly one Tx is
// live at a time; Commit or Rollback releases the store for the next caller.
type Tx struct {
	tx    *sql.Tx
	store *Store
	done  bool
}

// Begin starts a transaction. The calling goroutine holds the store until it
// calls Commit or Rollback.
func (s *Store) Begin() (*Tx, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, types.ErrStoreClosed
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, store: s}, nil
}

// Commit applies the transaction and releases the store.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.store.mu.Unlock()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction and releases the store. Rollback after
// Commit is a no-op, so it is always safe to defer.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.store.mu.Unlock()
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling back
// on error.
func (s *Store) WithTx(fn func(*Tx) error) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
