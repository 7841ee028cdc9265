package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrAssetNotFound is returned by stores when a cache holds no entry for a key.
var ErrAssetNotFound = errors.New("asset not cached")

// Asset is a stored copy of a successful response.
type Asset struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// AssetStore persists named asset caches.
type AssetStore interface {
	// Put writes every asset into the named cache atomically.
	Put(ctx context.Context, cache string, assets ...*Asset) error
	Get(ctx context.Context, cache, key string) (*Asset, error)
	Caches(ctx context.Context) ([]string, error)
	DeleteCache(ctx context.Context, cache string) error
}
