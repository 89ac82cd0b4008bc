package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pastebox/internal/storage"
	"pastebox/internal/storage/storetest"
)

var _ storage.Store = (*Store)(nil)

func openTemp(t *testing.T, name string) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return openTemp(t, "contract.db")
	})
}

func TestViewCountSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	ctx := context.Background()
	paste := &storage.Paste{ID: "abc123", Content: "hello", CreatedAt: time.Now().UTC(), MaxViews: 5}
	if err := store.Create(ctx, paste); err != nil {
		t.Fatalf("create paste: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.IncrementViews(ctx, paste.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	out, err := store.Get(ctx, paste.ID)
	if err != nil {
		t.Fatalf("get paste: %v", err)
	}
	if out.ViewCount != 2 || out.MaxViews != 5 {
		t.Fatalf("got view_count=%d max_views=%d, want 2/5", out.ViewCount, out.MaxViews)
	}
}

func TestDeleteExpiredCount(t *testing.T) {
	store := openTemp(t, "exp.db")
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Second)
	active := &storage.Paste{ID: "alive", Content: "ok", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	expired := &storage.Paste{ID: "dead", Content: "bye", CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}
	edge := &storage.Paste{ID: "edge", Content: "now", CreatedAt: now, ExpiresAt: now}
	for _, p := range []*storage.Paste{active, expired, edge} {
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.ID, err)
		}
	}

	removed, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
}
