package repository

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"StreamCast/internal/domain/models"
	domrepo "StreamCast/internal/domain/repository"
	"StreamCast/internal/tracker"
)

func sampleSnapshot(t *testing.T, key string, tick int64) models.Snapshot {
	t.Helper()
	tr, err := tracker.New(2)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	for i := int64(1); i <= tick; i++ {
		if _, err := tr.Observe(float64(i), []float64{float64(i + 1), float64(i + 2)}); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	return models.Snapshot{
		Key:       key,
		RunID:     "run-1",
		Tick:      tick,
		SavedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Tracker:   tr.Snapshot(),
		Predictor: json.RawMessage(`{"level":3}`),
	}
}

func exerciseSnapshotStore(t *testing.T, store domrepo.SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "cpu"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	if err := store.Save(ctx, sampleSnapshot(t, "cpu", 3)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, sampleSnapshot(t, "cpu", 5)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, ok, err := store.Load(ctx, "cpu")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Tick != 5 || got.RunID != "run-1" || got.Tracker.Tick != 5 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if string(got.Predictor) != `{"level":3}` {
		t.Fatalf("predictor state not preserved: %s", got.Predictor)
	}
	if _, err := tracker.Restore(got.Tracker); err != nil {
		t.Fatalf("stored tracker state does not restore: %v", err)
	}
	if _, ok, _ := store.Load(ctx, "other"); ok {
		t.Fatalf("keys must be independent")
	}
}

func TestCacheSnapshotStoreMemory(t *testing.T) {
	store, err := NewSnapshotStore(context.Background(), SnapshotOptions{Kind: "memory"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer store.Close()
	exerciseSnapshotStore(t, store)
}

func TestSQLiteSnapshotStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := NewSnapshotStore(context.Background(), SnapshotOptions{Kind: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseSnapshotStore(t, store)
}

func TestSQLiteSnapshotStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	first := NewSQLiteSnapshotStore(path)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.Save(ctx, sampleSnapshot(t, "cpu", 4)); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = first.Close()

	second := NewSQLiteSnapshotStore(path)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, ok, err := second.Load(ctx, "cpu")
	if err != nil || !ok || got.Tick != 4 {
		t.Fatalf("reopened load: %+v ok=%v err=%v", got, ok, err)
	}
}

func TestSQLiteSnapshotStoreRequiresInit(t *testing.T) {
	s := NewSQLiteSnapshotStore(filepath.Join(t.TempDir(), "x.db"))
	if err := s.Save(context.Background(), models.Snapshot{Key: "k"}); err == nil {
		t.Fatalf("expected error before Init")
	}
	if err := NewSQLiteSnapshotStore("").Init(context.Background()); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestNewSnapshotStoreUnknownKind(t *testing.T) {
	_, err := NewSnapshotStore(context.Background(), SnapshotOptions{Kind: "s3"})
	if !errors.Is(err, domrepo.ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}

func TestCacheSnapshotStoreRejectsEmptyKey(t *testing.T) {
	store, _ := NewSnapshotStore(context.Background(), SnapshotOptions{})
	defer store.Close()
	if err := store.Save(context.Background(), models.Snapshot{}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
