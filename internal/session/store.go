// Package session persists engine state durably so an interrupted run can
// resume without losing or duplicating work.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aristath/autopilot/internal/engine"
)

// SchemaVersion tags every snapshot. Loading a snapshot with a different
// version fails closed rather than guessing at field meanings.
const SchemaVersion = 1

var (
	// ErrNoSession means no snapshot has been saved yet.
	ErrNoSession = errors.New("no session snapshot")

	// ErrSessionIncompatible means the stored snapshot carries an unknown
	// schema version. The engine refuses to guess prior state.
	ErrSessionIncompatible = errors.New("session snapshot schema incompatible")
)

// Snapshot is one durable record of engine state.
type Snapshot struct {
	SchemaVersion int                `json:"schema_version"`
	SavedAt       time.Time          `json:"saved_at"`
	State         engine.EngineState `json:"state"`
}

// Store defines the persistence interface for session snapshots.
type Store interface {
	// Save persists a snapshot, replacing any prior one.
	Save(ctx context.Context, state engine.EngineState) error

	// Load returns the last snapshot. ErrNoSession if none exists;
	// ErrSessionIncompatible if the stored schema version is unknown.
	Load(ctx context.Context) (*Snapshot, error)

	// Clear discards the session. Used by explicit user-initiated restart.
	Clear(ctx context.Context) error

	// Close releases the underlying database.
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewMemoryStore creates an in-memory SQLite store for testing.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	// A single connection keeps the shared-cache memory database alive
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Save persists the engine state, replacing the prior snapshot and upserting
// one row per iteration so end-of-run summaries can be queried without
// decoding the full state blob.
func (s *SQLiteStore) Save(ctx context.Context, state engine.EngineState) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode engine state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, schema_version, saved_at, state)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			saved_at = excluded.saved_at,
			state = excluded.state
	`, SchemaVersion, time.Now().UTC().Format(time.RFC3339Nano), string(blob))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	for _, it := range state.History {
		var endedAt any
		if it.EndedAt != nil {
			endedAt = it.EndedAt.UTC().Format(time.RFC3339Nano)
		}
		switches, err := json.Marshal(it.Switches)
		if err != nil {
			return fmt.Errorf("failed to encode agent switches: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO iterations (number, task_id, started_at, ended_at, outcome, switches)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(number) DO UPDATE SET
				task_id = excluded.task_id,
				ended_at = excluded.ended_at,
				outcome = excluded.outcome,
				switches = excluded.switches
		`, it.Number, it.TaskID, it.StartedAt.UTC().Format(time.RFC3339Nano), endedAt, string(it.Outcome), string(switches))
		if err != nil {
			return fmt.Errorf("failed to save iteration %d: %w", it.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Load returns the last saved snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var version int
	var savedAt, blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT schema_version, saved_at, state FROM snapshots WHERE id = 1
	`).Scan(&version, &savedAt, &blob)

	if err == sql.ErrNoRows {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	if version != SchemaVersion {
		return nil, fmt.Errorf("%w: stored version %d, supported version %d",
			ErrSessionIncompatible, version, SchemaVersion)
	}

	at, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
	}

	var state engine.EngineState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("failed to decode engine state: %w", err)
	}

	return &Snapshot{SchemaVersion: version, SavedAt: at, State: state}, nil
}

// Clear discards the snapshot and iteration history.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM iterations`); err != nil {
		return fmt.Errorf("failed to clear iterations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
