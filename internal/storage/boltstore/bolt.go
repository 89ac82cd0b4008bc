package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"pastebox/internal/storage"
)

var (
	pasteBucket  = []byte("pastes")
	expireBucket = []byte("expires")
)

var errBuckets = errors.New("buckets not initialized")

// Store implements storage.Store backed by BoltDB.
//
// Bolt allows a single read-write transaction at a time, so view increments
// take the locking path: read, bump and write inside one Update.
type Store struct {
	db *bolt.DB
}

// Open initializes a BoltDB-backed store located at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pasteBucket); err != nil {
			return fmt.Errorf("create paste bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(expireBucket); err != nil {
			return fmt.Errorf("create expire bucket: %w", err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// IncrementStrategy reports the locking path.
func (s *Store) IncrementStrategy() storage.IncrementStrategy {
	return storage.StrategyLocking
}

// Create persists a new paste and indexes its expiry.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := *paste
	record.CreatedAt = record.CreatedAt.UTC()
	record.ExpiresAt = record.ExpiresAt.UTC()
	record.ViewCount = 0

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal paste: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		pBucket := tx.Bucket(pasteBucket)
		eBucket := tx.Bucket(expireBucket)
		if pBucket == nil || eBucket == nil {
			return errBuckets
		}
		if pBucket.Get([]byte(record.ID)) != nil {
			return storage.ErrDuplicateID
		}
		if err := pBucket.Put([]byte(record.ID), data); err != nil {
			return fmt.Errorf("save paste: %w", err)
		}
		if record.HasExpiration() {
			if err := eBucket.Put(expireKey(record.ExpiresAt, record.ID), []byte(record.ID)); err != nil {
				return fmt.Errorf("index expiry: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *storage.Paste
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(pasteBucket)
		if bucket == nil {
			return errBuckets
		}
		paste, err := decode(bucket.Get([]byte(id)))
		if err != nil {
			return err
		}
		out = paste
		return nil
	})
	return out, err
}

// IncrementViews bumps the view counter inside a read-write transaction.
func (s *Store) IncrementViews(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(pasteBucket)
		if bucket == nil {
			return errBuckets
		}
		paste, err := decode(bucket.Get([]byte(id)))
		if err != nil {
			return err
		}
		paste.ViewCount++
		data, err := json.Marshal(paste)
		if err != nil {
			return fmt.Errorf("marshal paste: %w", err)
		}
		if err := bucket.Put([]byte(id), data); err != nil {
			return fmt.Errorf("save view count: %w", err)
		}
		count = paste.ViewCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteExpired removes all pastes with expiry before or equal to the provided time.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		pBucket := tx.Bucket(pasteBucket)
		eBucket := tx.Bucket(expireBucket)
		if pBucket == nil || eBucket == nil {
			return errBuckets
		}

		// Deleting through a live cursor skips entries, so collect first.
		var keys, ids [][]byte
		cursor := eBucket.Cursor()
		cutoff := toTimestamp(before)
		for key, val := cursor.First(); key != nil; key, val = cursor.Next() {
			if binary.BigEndian.Uint64(key[:8]) > cutoff {
				break
			}
			keys = append(keys, append([]byte(nil), key...))
			ids = append(ids, append([]byte(nil), val...))
		}
		for i, key := range keys {
			if err := pBucket.Delete(ids[i]); err != nil {
				return fmt.Errorf("delete expired paste %s: %w", ids[i], err)
			}
			if err := eBucket.Delete(key); err != nil {
				return fmt.Errorf("delete expiry index: %w", err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Ping checks that the buckets are readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(pasteBucket) == nil {
			return errBuckets
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decode(raw []byte) (*storage.Paste, error) {
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	var paste storage.Paste
	if err := json.Unmarshal(raw, &paste); err != nil {
		return nil, fmt.Errorf("unmarshal paste: %w", err)
	}
	return &paste, nil
}

func expireKey(t time.Time, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key, toTimestamp(t))
	copy(key[8:], id)
	return key
}

func toTimestamp(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UTC().UnixNano())
}
