package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a paste does not exist.
	ErrNotFound = errors.New("paste not found")
	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("paste id already exists")
)

// Paste represents a stored paste entry.
//
// Content, CreatedAt, ExpiresAt and MaxViews never change after creation.
// ViewCount only moves through Store.IncrementViews.
type Paste struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxViews  int       `json:"max_views"`
	ViewCount int       `json:"view_count"`
}

// HasExpiration reports whether the paste has an expiry set.
func (p Paste) HasExpiration() bool {
	return !p.ExpiresAt.IsZero()
}

// HasViewLimit reports whether the paste has a view limit set.
func (p Paste) HasViewLimit() bool {
	return p.MaxViews > 0
}

// Store defines the storage backend contract.
type Store interface {
	// Create persists a new paste. The paste's ID is chosen by the caller and
	// its ViewCount is stored as zero. ErrDuplicateID is returned when the id
	// is taken.
	Create(ctx context.Context, paste *Paste) error
	// Get returns the current persisted state, or ErrNotFound.
	Get(ctx context.Context, id string) (*Paste, error)
	// IncrementViews adds exactly one to the view count and returns the new
	// count. Concurrent calls for the same id never lose an update.
	// ErrNotFound is returned when the paste no longer exists.
	IncrementViews(ctx context.Context, id string) (int, error)
	// DeleteExpired removes pastes whose expiry is at or before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// IncrementStrategy names how a backend makes IncrementViews linearizable.
type IncrementStrategy string

const (
	// StrategyAuto lets the backend pick its native strategy.
	StrategyAuto IncrementStrategy = "auto"
	// StrategyAtomic uses one conditional update that also returns the new count.
	StrategyAtomic IncrementStrategy = "atomic"
	// StrategyLocking reads and writes the counter inside a locking transaction.
	StrategyLocking IncrementStrategy = "locking"
)

// ParseIncrementStrategy validates a strategy name. The empty string means auto.
func ParseIncrementStrategy(s string) (IncrementStrategy, error) {
	switch IncrementStrategy(s) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyAtomic, StrategyLocking:
		return IncrementStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown increment strategy %q (supported: auto, atomic, locking)", s)
	}
}

// Strategist is implemented by stores that report which increment path they run.
type Strategist interface {
	IncrementStrategy() IncrementStrategy
}
