package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore keeps one bucket per cache name in a BoltDB file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the asset database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("asset cache path is required")
	}
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open asset cache: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying BoltDB database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) Put(ctx context.Context, cache string, assets ...*Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payloads := make(map[string][]byte, len(assets))
	for _, a := range assets {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal asset %s: %w", a.Key, err)
		}
		payloads[a.Key] = data
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(cache))
		if err != nil {
			return fmt.Errorf("create cache bucket: %w", err)
		}
		for key, data := range payloads {
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Get(ctx context.Context, cache, key string) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var asset Asset
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cache))
		if bucket == nil {
			return ErrAssetNotFound
		}
		payload := bucket.Get([]byte(key))
		if payload == nil {
			return ErrAssetNotFound
		}
		if err := json.Unmarshal(payload, &asset); err != nil {
			return fmt.Errorf("unmarshal asset: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *BoltStore) Caches(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

func (s *BoltStore) DeleteCache(ctx context.Context, cache string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(cache)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(cache))
	})
}
