package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"pastebox/internal/storage"
)

// DefaultPrefix namespaces paste hashes.
const DefaultPrefix = "paste:"

// createScript refuses to overwrite an existing hash and sets native key
// expiry so Redis reaps time-expired pastes itself.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'id', ARGV[1],
  'content', ARGV[2],
  'created_at', ARGV[3],
  'expires_at', ARGV[4],
  'max_views', ARGV[5],
  'view_count', 0)
if ARGV[6] ~= '' then
  redis.call('PEXPIREAT', KEYS[1], ARGV[6])
end
return 1
`)

// incrementScript only bumps the counter of a hash that still exists.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'view_count', 1)
`)

// Store implements storage.Store on Redis hashes. Scripts run atomically on
// the server, so increments are linearizable per key.
type Store struct {
	client *redis.Client
	prefix string
}

// Open parses a redis:// URL and verifies the connection.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// IncrementStrategy reports the atomic path.
func (s *Store) IncrementStrategy() storage.IncrementStrategy {
	return storage.StrategyAtomic
}

// Create stores the paste hash unless the key already exists.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	var expiresAt, expireMillis, maxViews string
	if paste.HasExpiration() {
		expiresAt = strconv.FormatInt(paste.ExpiresAt.UTC().UnixNano(), 10)
		expireMillis = strconv.FormatInt(paste.ExpiresAt.UnixMilli(), 10)
	}
	if paste.HasViewLimit() {
		maxViews = strconv.Itoa(paste.MaxViews)
	}

	created, err := createScript.Run(ctx, s.client, []string{s.key(paste.ID)},
		paste.ID,
		paste.Content,
		strconv.FormatInt(paste.CreatedAt.UTC().UnixNano(), 10),
		expiresAt,
		maxViews,
		expireMillis,
	).Int()
	if err != nil {
		return fmt.Errorf("save paste: %w", err)
	}
	if created == 0 {
		return storage.ErrDuplicateID
	}
	return nil
}

// Get reads the paste hash.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get paste: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}
	return fieldsToPaste(fields)
}

// IncrementViews runs HINCRBY behind an existence check.
func (s *Store) IncrementViews(ctx context.Context, id string) (int, error) {
	count, err := incrementScript.Run(ctx, s.client, []string{s.key(id)}).Int()
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	if count < 0 {
		return 0, storage.ErrNotFound
	}
	return count, nil
}

// DeleteExpired is a no-op: keys carry their own expiry.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return 0, ctx.Err()
}

// Ping checks the server connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func fieldsToPaste(fields map[string]string) (*storage.Paste, error) {
	paste := &storage.Paste{
		ID:      fields["id"],
		Content: fields["content"],
	}
	var err error
	if paste.CreatedAt, err = parseNanos(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if paste.ExpiresAt, err = parseNanos(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if paste.MaxViews, err = parseInt(fields["max_views"]); err != nil {
		return nil, fmt.Errorf("parse max_views: %w", err)
	}
	if paste.ViewCount, err = parseInt(fields["view_count"]); err != nil {
		return nil, fmt.Errorf("parse view_count: %w", err)
	}
	return paste, nil
}

func parseNanos(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ts).UTC(), nil
}

func parseInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
