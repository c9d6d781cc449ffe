// ABOUTME: Transactional SQLite persistence layer with typed sub-stores per entity kind.
// ABOUTME: Multi-row mutations run inside one BEGIN IMMEDIATE transaction. See spec.md §4.B.
package storage

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fleetforge/fleetd/internal/clock"
)

// Store is the SQLite-backed persistence layer. It is safe for concurrent
// use; SQLite's own locking combined with BEGIN IMMEDIATE transactions
// provides read-your-write within a single process.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens or creates a SQLite database at path and runs migrations. An
// empty path opens an in-memory database with SQLite's shared cache, so
// Stores opened with an empty path in one process share the same data
// while any of them is open.
func Open(path string, c clock.Clock) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	// _txlock=immediate makes every database/sql transaction issue
	// BEGIN IMMEDIATE instead of SQLite's default deferred BEGIN, so
	// writer/writer conflicts surface as SQLITE_BUSY up front rather than
	// mid-transaction.
	if strings.Contains(dsn, "?") {
		dsn += "&_txlock=immediate"
	} else {
		dsn += "?_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite only supports one writer at a time; serialize writers at the
	// database/sql pool level so BEGIN IMMEDIATE transactions never
	// collide with SQLITE_BUSY under concurrent request handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, clock: c}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Healthy reports liveness via a trivial round-trip query, per spec.md
// §4.B: "Health check returns boolean liveness."
func (s *Store) Healthy() bool {
	var one int
	return s.db.QueryRow("SELECT 1").Scan(&one) == nil && one == 1
}

// withTx runs fn inside a BEGIN IMMEDIATE transaction, committing on
// success and rolling back on any error (including a panic, which is
// re-raised after rollback).
func (s *Store) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("component=storage action=rollback_failed err=%v orig_err=%v", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}
