// Package storage persists wallet sessions and pending payments in sqlite
// and provides the per-wallet serialization the unlock workflow relies on.
package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			wallet TEXT PRIMARY KEY,
			full_story TEXT NOT NULL DEFAULT '',
			unlocked INTEGER NOT NULL DEFAULT 0,
			unlocked_tx_hash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS pending_payments (
			wallet TEXT PRIMARY KEY,
			amount_units TEXT NOT NULL,
			tx_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Sessions ---

// ConnectSession creates a session for a wallet if none exists. An existing
// session (and its story and unlock state) is left untouched.
func (s *Storage) ConnectSession(wallet string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (wallet, created_at, updated_at)
		 VALUES (?, ?, ?)`,
		wallet, now, now,
	)
	return err
}

// GetSession returns the session for a wallet
func (s *Storage) GetSession(wallet string) (*Session, error) {
	var sess Session
	var unlocked int
	var createdAt, updatedAt int64

	err := s.db.QueryRow(
		`SELECT wallet, full_story, unlocked, unlocked_tx_hash, created_at, updated_at
		 FROM sessions WHERE wallet = ?`,
		wallet,
	).Scan(&sess.Wallet, &sess.FullStory, &unlocked, &sess.UnlockedTxHash, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.Unlocked = unlocked != 0
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)

	return &sess, nil
}

// SetStory stores a freshly generated story and re-locks the session.
// A new story must be re-purchased, so the unlock state is always reset here.
func (s *Storage) SetStory(wallet, fullStory string) error {
	result, err := s.db.Exec(
		`UPDATE sessions
		 SET full_story = ?, unlocked = 0, unlocked_tx_hash = '', updated_at = ?
		 WHERE wallet = ?`,
		fullStory, time.Now().Unix(), wallet,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkUnlocked records the confirming transaction hash and unlocks the
// session's current story.
func (s *Storage) MarkUnlocked(wallet, txHash string) error {
	result, err := s.db.Exec(
		`UPDATE sessions
		 SET unlocked = 1, unlocked_tx_hash = ?, updated_at = ?
		 WHERE wallet = ?`,
		txHash, time.Now().Unix(), wallet,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Pending payments ---

// SavePendingPayment stores an outstanding payment request, superseding any
// prior pending request for the wallet.
func (s *Storage) SavePendingPayment(wallet, amountUnits, txJSON string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO pending_payments (wallet, amount_units, tx_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		wallet, amountUnits, txJSON, time.Now().Unix(),
	)
	return err
}

// GetPendingPayment returns the outstanding payment request for a wallet
func (s *Storage) GetPendingPayment(wallet string) (*PendingPayment, error) {
	var p PendingPayment
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT wallet, amount_units, tx_json, created_at
		 FROM pending_payments WHERE wallet = ?`,
		wallet,
	).Scan(&p.Wallet, &p.AmountUnits, &p.TxJSON, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

// ConsumePendingPayment atomically removes the pending payment for a wallet,
// returning true if one was outstanding. A hash cannot re-grant from a stale
// pending record because only the first consumer sees true.
func (s *Storage) ConsumePendingPayment(wallet string) (bool, error) {
	result, err := s.db.Exec(
		"DELETE FROM pending_payments WHERE wallet = ?",
		wallet,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
