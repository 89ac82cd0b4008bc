package metrics

import (
	"context"
	"time"

	"pastebox/internal/storage"
)

type instrumentedStore struct {
	storage.Store
	m *Metrics
}

// InstrumentStore wraps store so every call is timed into
// pastebox_store_operation_seconds. A nil Metrics returns store unchanged.
func InstrumentStore(store storage.Store, m *Metrics) storage.Store {
	if m == nil {
		return store
	}
	return &instrumentedStore{Store: store, m: m}
}

func (s *instrumentedStore) Create(ctx context.Context, paste *storage.Paste) error {
	defer s.m.ObserveStore("create", time.Now())
	return s.Store.Create(ctx, paste)
}

func (s *instrumentedStore) Get(ctx context.Context, id string) (*storage.Paste, error) {
	defer s.m.ObserveStore("fetch", time.Now())
	return s.Store.Get(ctx, id)
}

func (s *instrumentedStore) IncrementViews(ctx context.Context, id string) (int, error) {
	defer s.m.ObserveStore("increment", time.Now())
	return s.Store.IncrementViews(ctx, id)
}

func (s *instrumentedStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	defer s.m.ObserveStore("delete_expired", time.Now())
	return s.Store.DeleteExpired(ctx, before)
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	defer s.m.ObserveStore("ping", time.Now())
	return s.Store.Ping(ctx)
}
