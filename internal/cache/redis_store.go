package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const assetCachesKey = "ledger:asset-caches"

// RedisStore keeps each cache as a hash keyed by asset key.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func assetHashKey(cache string) string {
	return fmt.Sprintf("ledger:assets:%s", cache)
}

func (s *RedisStore) Put(ctx context.Context, cache string, assets ...*Asset) error {
	fields := make(map[string]any, len(assets))
	for _, a := range assets {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal asset %s: %w", a.Key, err)
		}
		fields[a.Key] = data
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, assetCachesKey, cache)
		if len(fields) > 0 {
			pipe.HSet(ctx, assetHashKey(cache), fields)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, cache, key string) (*Asset, error) {
	data, err := s.rdb.HGet(ctx, assetHashKey(cache), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	var asset Asset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("unmarshal asset: %w", err)
	}
	return &asset, nil
}

func (s *RedisStore) Caches(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, assetCachesKey).Result()
}

func (s *RedisStore) DeleteCache(ctx context.Context, cache string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, assetHashKey(cache))
		pipe.SRem(ctx, assetCachesKey, cache)
		return nil
	})
	return err
}
