package store

import (
	"database/sql"
	"time"
)

// OrderStore persists per-order outcomes
type OrderStore struct {
	db *sql.DB
}

// OrderRecord is one attempted order, placed or rejected
type OrderRecord struct {
	ID        int64     `json:"id"`
	SignalID  int64     `json:"signal_id"` // owning signal row
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`     // BUY/SELL
	Type      string    `json:"type"`     // LIMIT/MARKET
	Quantity  string    `json:"quantity"` // decimal string, exact
	Price     string    `json:"price"`
	OrderID   string    `json:"order_id"` // exchange order ID when placed
	Status    string    `json:"status"`   // PLACED/REJECTED
	Reason    string    `json:"reason"`   // rejection reason
	CreatedAt time.Time `json:"created_at"`
}

// Order statuses
const (
	OrderStatusPlaced   = "PLACED"
	OrderStatusRejected = "REJECTED"
)

func (s *OrderStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS order_outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			quantity TEXT NOT NULL,
			price TEXT DEFAULT '',
			order_id TEXT DEFAULT '',
			status TEXT NOT NULL,
			reason TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (signal_id) REFERENCES signals(id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_order_outcomes_signal ON order_outcomes(signal_id)`)
	return err
}

// Insert records one order outcome
func (s *OrderStore) Insert(rec *OrderRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO order_outcomes (signal_id, symbol, side, type, quantity, price, order_id, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SignalID, rec.Symbol, rec.Side, rec.Type, rec.Quantity, rec.Price,
		rec.OrderID, rec.Status, rec.Reason)
	return err
}

// Recent returns the most recent order outcomes, newest first
func (s *OrderStore) Recent(limit int) ([]*OrderRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, signal_id, symbol, side, type, quantity, price, order_id, status, reason, created_at
		FROM order_outcomes
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*OrderRecord
	for rows.Next() {
		rec := &OrderRecord{}
		if err := rows.Scan(&rec.ID, &rec.SignalID, &rec.Symbol, &rec.Side, &rec.Type,
			&rec.Quantity, &rec.Price, &rec.OrderID, &rec.Status, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// BySignal returns the outcomes belonging to one signal, oldest first
func (s *OrderStore) BySignal(signalID int64) ([]*OrderRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, signal_id, symbol, side, type, quantity, price, order_id, status, reason, created_at
		FROM order_outcomes
		WHERE signal_id = ?
		ORDER BY id ASC
	`, signalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*OrderRecord
	for rows.Next() {
		rec := &OrderRecord{}
		if err := rows.Scan(&rec.ID, &rec.SignalID, &rec.Symbol, &rec.Side, &rec.Type,
			&rec.Quantity, &rec.Price, &rec.OrderID, &rec.Status, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
