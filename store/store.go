// Package store persists processed signals and order outcomes.
// All database access goes through this package.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"gridhook/logger"
)

// Store is the SQLite-backed event store
type Store struct {
	db *sql.DB

	signal *SignalStore
	order  *OrderStore

	mu sync.Mutex
}

// New opens (creating if needed) the database at dbPath
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("Database initialized at %s", dbPath)
	return s, nil
}

func (s *Store) initTables() error {
	for _, sub := range []interface{ initTables() error }{
		s.Signal(), s.Order(),
	} {
		if err := sub.initTables(); err != nil {
			return err
		}
	}
	return nil
}

// Signal returns the signal sub-store
func (s *Store) Signal() *SignalStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signal == nil {
		s.signal = &SignalStore{db: s.db}
	}
	return s.signal
}

// Order returns the order-outcome sub-store
func (s *Store) Order() *OrderStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		s.order = &OrderStore{db: s.db}
	}
	return s.order
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
