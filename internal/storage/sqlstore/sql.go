// Package sqlstore implements storage.Store on database/sql for SQLite,
// PostgreSQL and libSQL (Turso).
//
// View increments run one of two paths, fixed when the store is opened:
//
//   - atomic: UPDATE ... SET view_count = view_count + 1 ... RETURNING view_count
//   - locking: a transaction that reads the row under a write lock
//     (SELECT ... FOR UPDATE on PostgreSQL, BEGIN IMMEDIATE on SQLite)
//     and writes back count+1.
//
// A failed atomic statement is reported as is; it never falls through to
// the locking path.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"pastebox/internal/storage"
)

// Options tunes Open.
type Options struct {
	// Strategy selects the increment path. StrategyAuto picks atomic when the
	// dialect supports RETURNING.
	Strategy storage.IncrementStrategy
}

// Store implements storage.Store over database/sql.
type Store struct {
	db       *sql.DB
	dialect  dialect
	strategy storage.IncrementStrategy
}

// Open connects to dsn and applies the schema. The dialect is chosen from the
// DSN: postgres:// URLs or key=value strings use lib/pq, libsql:// and
// http(s):// URLs use libSQL, anything else is a SQLite path.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	d := detectDialect(dsn)

	strategy, err := resolveStrategy(d, opts.Strategy)
	if err != nil {
		return nil, err
	}

	connStr := dsn
	if d.name == sqliteDialect.name {
		connStr = sqliteDSN(dsn, strategy == storage.StrategyLocking)
	}

	db, err := sql.Open(d.driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d.singleConn {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", d.name, err)
	}
	if err := initialize(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: d, strategy: strategy}, nil
}

func resolveStrategy(d dialect, want storage.IncrementStrategy) (storage.IncrementStrategy, error) {
	switch want {
	case "", storage.StrategyAuto:
		if d.returning {
			return storage.StrategyAtomic, nil
		}
		return storage.StrategyLocking, nil
	case storage.StrategyAtomic:
		if !d.returning {
			return "", fmt.Errorf("%s does not support atomic increments", d.name)
		}
		return want, nil
	case storage.StrategyLocking:
		return want, nil
	default:
		return "", fmt.Errorf("unknown increment strategy %q", want)
	}
}

func initialize(ctx context.Context, db *sql.DB, d dialect) error {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Dialect returns the detected SQL dialect name.
func (s *Store) Dialect() string {
	return s.dialect.name
}

// IncrementStrategy reports the increment path chosen at Open.
func (s *Store) IncrementStrategy() storage.IncrementStrategy {
	return s.strategy
}

// Create inserts a paste. The primary key rejects reused ids.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}

	q := s.dialect.rebind(`
INSERT INTO pastes (id, content, created_at, expires_at, max_views, view_count)
VALUES (?, ?, ?, ?, ?, 0)
ON CONFLICT (id) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, q,
		paste.ID,
		paste.Content,
		paste.CreatedAt.UTC().UnixNano(),
		nullableTime(paste.ExpiresAt),
		nullableInt(paste.MaxViews),
	)
	if err != nil {
		return fmt.Errorf("save paste: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrDuplicateID
	}
	return nil
}

// Get fetches a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	q := s.dialect.rebind(`
SELECT id, content, created_at, expires_at, max_views, view_count
FROM pastes WHERE id = ?`)

	var (
		paste     storage.Paste
		createdAt int64
		expiresAt sql.NullInt64
		maxViews  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&paste.ID, &paste.Content, &createdAt, &expiresAt, &maxViews, &paste.ViewCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query paste: %w", err)
	}
	paste.CreatedAt = time.Unix(0, createdAt).UTC()
	if expiresAt.Valid {
		paste.ExpiresAt = time.Unix(0, expiresAt.Int64).UTC()
	}
	if maxViews.Valid {
		paste.MaxViews = int(maxViews.Int64)
	}
	return &paste, nil
}

// IncrementViews adds one view using the strategy chosen at Open.
func (s *Store) IncrementViews(ctx context.Context, id string) (int, error) {
	if s.strategy == storage.StrategyLocking {
		return s.incrementLocking(ctx, id)
	}
	return s.incrementAtomic(ctx, id)
}

func (s *Store) incrementAtomic(ctx context.Context, id string) (int, error) {
	q := s.dialect.rebind(`UPDATE pastes SET view_count = view_count + 1 WHERE id = ? RETURNING view_count`)
	var count int
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return count, nil
}

func (s *Store) incrementLocking(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var count int
	sel := s.dialect.rebind(`SELECT view_count FROM pastes WHERE id = ?` + s.dialect.lockClause)
	if err := tx.QueryRowContext(ctx, sel, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("lock paste: %w", err)
	}

	count++
	upd := s.dialect.rebind(`UPDATE pastes SET view_count = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, upd, count, id); err != nil {
		return 0, fmt.Errorf("update views: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return count, nil
}

// DeleteExpired removes all expired pastes.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	q := s.dialect.rebind(`DELETE FROM pastes WHERE expires_at IS NOT NULL AND expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, q, before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(rows), nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().UnixNano()
}

func nullableInt(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}
