// Package lifecycle decides whether a paste may be served and does the view
// accounting for each successful access.
//
// Access is check-then-increment: the gate is evaluated on the fetched,
// pre-increment count and the increment runs afterwards as its own atomic
// store operation. Two requests racing at the view limit can both pass the
// gate, so a paste may be served up to (max_views + concurrent racers - 1)
// times. The counter itself never loses an update, and remaining views never
// drop below zero. Exact enforcement would need the check and the increment
// in one store transaction, which this package does not ask of stores.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"pastebox/internal/storage"
)

// IDGenerator produces fresh paste ids.
type IDGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// Config wires an Engine.
type Config struct {
	Store       storage.Store
	IDGenerator IDGenerator
	// OpTimeout bounds each store call. Zero leaves the caller's deadline alone.
	OpTimeout time.Duration
}

// Engine runs paste creation and access against a store.
type Engine struct {
	store     storage.Store
	ids       IDGenerator
	opTimeout time.Duration
}

// New returns an Engine. Store and IDGenerator are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.IDGenerator == nil {
		return nil, errors.New("id generator required")
	}
	return &Engine{
		store:     cfg.Store,
		ids:       cfg.IDGenerator,
		opTimeout: cfg.OpTimeout,
	}, nil
}

// CreateParams are already-validated creation inputs.
type CreateParams struct {
	Content string
	// TTL of zero means the paste never time-expires.
	TTL time.Duration
	// MaxViews of zero means unlimited views.
	MaxViews int
}

// Created describes a stored paste.
type Created struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// View is the result of a successful access.
type View struct {
	Content string
	// RemainingViews is nil for pastes without a view limit.
	RemainingViews *int
	ExpiresAt      time.Time
}

// Create stores a new paste created at now. An id collision is reported as a
// storage failure.
func (e *Engine) Create(ctx context.Context, params CreateParams, now time.Time) (*Created, error) {
	id, err := e.ids.Generate(ctx)
	if err != nil {
		return nil, &StorageError{Op: "create", Err: err}
	}

	paste := &storage.Paste{
		ID:        id,
		Content:   params.Content,
		CreatedAt: now.UTC(),
		MaxViews:  params.MaxViews,
	}
	if params.TTL > 0 {
		paste.ExpiresAt = paste.CreatedAt.Add(params.TTL)
	}

	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.store.Create(opCtx, paste); err != nil {
		return nil, &StorageError{Op: "create", Err: err}
	}
	return &Created{ID: id, CreatedAt: paste.CreatedAt, ExpiresAt: paste.ExpiresAt}, nil
}

// Access serves a paste at now and records one view.
//
// It returns ErrNotAccessible when the paste is missing, expired, exhausted,
// or vanished before the increment. Any other error matches ErrStorage; an
// increment abandoned on deadline or cancellation also matches
// ErrIndeterminate and is never retried here.
func (e *Engine) Access(ctx context.Context, id string, now time.Time) (*View, error) {
	paste, err := e.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if Evaluate(*paste, now) != StatusActive {
		return nil, ErrNotAccessible
	}

	count, err := e.increment(ctx, id)
	if err != nil {
		return nil, err
	}

	return &View{
		Content:        paste.Content,
		RemainingViews: RemainingViews(paste.MaxViews, count),
		ExpiresAt:      paste.ExpiresAt,
	}, nil
}

// Available reports whether the paste could be served at now without
// recording a view.
func (e *Engine) Available(ctx context.Context, id string, now time.Time) (bool, error) {
	paste, err := e.fetch(ctx, id)
	if errors.Is(err, ErrNotAccessible) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Evaluate(*paste, now) == StatusActive, nil
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.store.Ping(opCtx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context, id string) (*storage.Paste, error) {
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	paste, err := e.store.Get(opCtx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotAccessible
	}
	if err != nil {
		return nil, &StorageError{Op: "fetch", Err: err}
	}
	return paste, nil
}

func (e *Engine) increment(ctx context.Context, id string) (int, error) {
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	count, err := e.store.IncrementViews(opCtx, id)
	switch {
	case err == nil:
		return count, nil
	case errors.Is(err, storage.ErrNotFound):
		return 0, ErrNotAccessible
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), opCtx.Err() != nil:
		return 0, &StorageError{Op: "increment", Err: err, Indeterminate: true}
	default:
		return 0, &StorageError{Op: "increment", Err: err}
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.opTimeout)
}
