package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"StreamCast/internal/domain/models"
	domrepo "StreamCast/internal/domain/repository"

	_ "modernc.org/sqlite"
)

// SQLiteSnapshotStore keeps the latest snapshot per key in a local SQLite file.
type SQLiteSnapshotStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteSnapshotStore(path string) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{path: path}
}

func (s *SQLiteSnapshotStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// one writer; the runner saves from a single goroutine anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			key TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			saved_at TEXT NOT NULL,
			payload BLOB NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap models.Snapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Key, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (key, run_id, tick, saved_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			run_id = excluded.run_id,
			tick = excluded.tick,
			saved_at = excluded.saved_at,
			payload = excluded.payload
	`, snap.Key, snap.RunID, snap.Tick, snap.SavedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"), payload)
	return err
}

func (s *SQLiteSnapshotStore) Load(ctx context.Context, key string) (models.Snapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return models.Snapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE key = ?`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Snapshot{}, false, nil
		}
		return models.Snapshot{}, false, err
	}

	var snap models.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap, true, nil
}

func (s *SQLiteSnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteSnapshotStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("snapshot store is not initialized")
	}
	return s.db, nil
}

var _ domrepo.SnapshotStore = (*SQLiteSnapshotStore)(nil)
