package store

import (
	"database/sql"
	"time"
)

// SignalStore persists processed signal records
type SignalStore struct {
	db *sql.DB
}

// SignalRecord is one processed webhook signal
type SignalRecord struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`   // grid_entry/grid_exit/order
	Symbol    string    `json:"symbol"` // trading pair
	Status    string    `json:"status"` // success/partial/error
	Message   string    `json:"message"`
	Cancelled int       `json:"cancelled"` // orders cancelled (exit signals)
	CreatedAt time.Time `json:"created_at"`
}

func (s *SignalStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT DEFAULT '',
			cancelled INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`)
	return err
}

// Insert records one processed signal and returns its row ID
func (s *SignalStore) Insert(rec *SignalRecord) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO signals (kind, symbol, status, message, cancelled)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Kind, rec.Symbol, rec.Status, rec.Message, rec.Cancelled)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns the most recently processed signals, newest first
func (s *SignalStore) Recent(limit int) ([]*SignalRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, symbol, status, message, cancelled, created_at
		FROM signals
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SignalRecord
	for rows.Next() {
		rec := &SignalRecord{}
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Symbol, &rec.Status,
			&rec.Message, &rec.Cancelled, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
