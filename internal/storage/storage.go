// Package storage persists the appointment collection as a single JSON
// document under a fixed key in a sqlite-backed key-value table. The whole
// collection is rewritten on every mutation.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"agendamed/internal/apperr"
	"agendamed/internal/model"
)

// AppointmentsKey is the fixed slot the appointment collection lives under.
const AppointmentsKey = "appointments"

// DB wraps sql.DB for the booking engine.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv_slots (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// LoadAppointments reads and decodes the collection. A missing slot yields
// an empty collection; an undecodable slot yields ErrStorageCorrupt so the
// caller can fall back to empty without treating it as fatal.
func (db *DB) LoadAppointments(ctx context.Context) ([]model.Appointment, error) {
	var raw string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM kv_slots WHERE key = ?`, AppointmentsKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", AppointmentsKey, err)
	}

	var appointments []model.Appointment
	if err := json.Unmarshal([]byte(raw), &appointments); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStorageCorrupt, err)
	}
	return appointments, nil
}

// SaveAppointments serializes and writes the full collection atomically.
func (db *DB) SaveAppointments(ctx context.Context, appointments []model.Appointment) error {
	if appointments == nil {
		appointments = []model.Appointment{}
	}
	raw, err := json.Marshal(appointments)
	if err != nil {
		return fmt.Errorf("encode appointments: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO kv_slots (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		AppointmentsKey, string(raw), time.Now())
	if err != nil {
		return fmt.Errorf("write slot %s: %w", AppointmentsKey, err)
	}
	return nil
}
