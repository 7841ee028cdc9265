package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingOrigin struct {
	hits    atomic.Int64
	missing map[string]bool
}

func (o *countingOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.hits.Add(1)
	if o.missing[r.URL.Path] {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("body of " + r.URL.Path))
}

func openStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGatewayCacheName(t *testing.T) {
	g := NewGateway(GatewayOptions{Version: "v3", Store: openStore(t), Origin: &countingOrigin{}})
	assert.Equal(t, "ledger-assets-v3", g.CacheName())
}

func TestGatewayInstallIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	origin := &countingOrigin{missing: map[string]bool{"/static/js/app.js": true}}
	g := NewGateway(GatewayOptions{
		Version:  "v1",
		Manifest: []string{"/", "/static/css/app.css", "/static/js/app.js"},
		Origin:   origin,
		Store:    store,
	})

	require.Error(t, g.Install(ctx))
	names, err := store.Caches(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	origin.missing = nil
	require.NoError(t, g.Install(ctx))
	a, err := store.Get(ctx, g.CacheName(), "/static/css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "body of /static/css/app.css", string(a.Body))
}

func TestGatewayServesCacheFirst(t *testing.T) {
	origin := &countingOrigin{}
	g := NewGateway(GatewayOptions{Version: "v1", Manifest: []string{}, Origin: origin, Store: openStore(t)})

	first := httptest.NewRecorder()
	g.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := httptest.NewRecorder()
	g.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "body of /static/css/app.css", second.Body.String())
	assert.Equal(t, "text/plain", second.Header().Get("Content-Type"))
	assert.Equal(t, int64(1), origin.hits.Load())
}

func TestGatewayDoesNotCacheFailures(t *testing.T) {
	origin := &countingOrigin{missing: map[string]bool{"/gone.png": true}}
	g := NewGateway(GatewayOptions{Version: "v1", Manifest: []string{}, Origin: origin, Store: openStore(t)})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gone.png", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, int64(2), origin.hits.Load())
}

func TestGatewayBypassesDataRequests(t *testing.T) {
	origin := &countingOrigin{}
	g := NewGateway(GatewayOptions{Version: "v1", Manifest: []string{}, Origin: origin, Store: openStore(t)})

	for _, target := range []string{"/api/orders", "/api/orders", "/api"} {
		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	post := httptest.NewRecorder()
	g.ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/static/css/app.css", nil))
	assert.Empty(t, post.Header().Get("X-Cache"))

	assert.Equal(t, int64(4), origin.hits.Load())
	assert.False(t, isDataPath("/apix"))
}

func TestGatewayActivateDropsStaleCaches(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	origin := &countingOrigin{}
	manifest := []string{"/"}

	old := NewGateway(GatewayOptions{Version: "v1", Manifest: manifest, Origin: origin, Store: store})
	require.NoError(t, old.Install(ctx))

	current := NewGateway(GatewayOptions{Version: "v2", Manifest: manifest, Origin: origin, Store: store})
	require.NoError(t, current.Install(ctx))
	require.NoError(t, current.Activate(ctx))

	names, err := store.Caches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger-assets-v2"}, names)

	_, err = store.Get(ctx, "ledger-assets-v1", "/")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestCacheHelpersDegradeWithoutRedis(t *testing.T) {
	ctx := context.Background()
	Close()
	assert.Nil(t, GetClient())
	assert.False(t, Healthy(ctx))

	_, ok := GetCachedTripSummary(ctx, 1)
	assert.False(t, ok)
	CacheTripSummary(ctx, 1, []byte(`{}`))
	InvalidateTripSummaries(ctx, 1)
	assert.Error(t, Init(RedisOptions{}))
}
