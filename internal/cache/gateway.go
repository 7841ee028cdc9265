package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"ledger-backend/internal/metrics"
	"ledger-backend/internal/timeutil"
)

// DefaultManifest is the application shell pre-populated on install.
var DefaultManifest = []string{
	"/",
	"/static/css/app.css",
	"/static/js/app.js",
	"/static/icons/icon-192.png",
	"/static/icons/icon-512.png",
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Prefix   string
	Version  string
	Manifest []string
	// Origin serves same-origin paths on a miss.
	Origin http.Handler
	// Client fetches absolute manifest URLs. Defaults to http.DefaultClient.
	Client *http.Client
	Store  AssetStore
}

// Gateway serves static assets cache-first from a versioned asset cache.
// It is never consulted for /api/ data.
type Gateway struct {
	name     string
	manifest []string
	origin   http.Handler
	client   *http.Client
	store    AssetStore
}

func NewGateway(opts GatewayOptions) *Gateway {
	if opts.Prefix == "" {
		opts.Prefix = "ledger-assets"
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Manifest == nil {
		opts.Manifest = DefaultManifest
	}
	return &Gateway{
		name:     opts.Prefix + "-" + opts.Version,
		manifest: opts.Manifest,
		origin:   opts.Origin,
		client:   opts.Client,
		store:    opts.Store,
	}
}

// CacheName returns "<prefix>-<version>".
func (g *Gateway) CacheName() string {
	return g.name
}

// Install fetches every manifest entry and stores them in the current cache.
// If any entry fails nothing is stored.
func (g *Gateway) Install(ctx context.Context) error {
	assets := make([]*Asset, 0, len(g.manifest))
	for _, key := range g.manifest {
		a, err := g.fetch(ctx, key)
		if err != nil {
			return fmt.Errorf("install %s: %w", key, err)
		}
		if a.Status != http.StatusOK {
			return fmt.Errorf("install %s: status %d", key, a.Status)
		}
		assets = append(assets, a)
	}
	if err := g.store.Put(ctx, g.name, assets...); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	log.Printf("[Cache] Installed %d assets into %s", len(assets), g.name)
	return nil
}

// Activate deletes every cache whose name differs from the current one.
func (g *Gateway) Activate(ctx context.Context) error {
	names, err := g.store.Caches(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == g.name {
			continue
		}
		if err := g.store.DeleteCache(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
		log.Printf("[Cache] Deleted stale cache %s", name)
	}
	return nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || isDataPath(r.URL.Path) {
		metrics.CacheRequests.WithLabelValues("bypass").Inc()
		g.origin.ServeHTTP(w, r)
		return
	}

	key := r.URL.RequestURI()
	if a, err := g.store.Get(r.Context(), g.name, key); err == nil {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		writeAsset(w, a, "HIT")
		return
	} else if !errors.Is(err, ErrAssetNotFound) {
		log.Printf("[Cache] lookup %s failed: %v", key, err)
	}

	metrics.CacheRequests.WithLabelValues("miss").Inc()
	rec := newRecorder()
	g.origin.ServeHTTP(rec, r)
	a := rec.asset(key)
	if a.Status == http.StatusOK {
		if err := g.store.Put(r.Context(), g.name, a); err != nil {
			log.Printf("[Cache] store %s failed: %v", key, err)
		}
	}
	writeAsset(w, a, "MISS")
}

func isDataPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func (g *Gateway) fetch(ctx context.Context, key string) (*Asset, error) {
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
		if err != nil {
			return nil, err
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &Asset{Key: key, Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body, StoredAt: timeutil.Now()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	rec := newRecorder()
	g.origin.ServeHTTP(rec, req)
	return rec.asset(req.URL.RequestURI()), nil
}

func writeAsset(w http.ResponseWriter, a *Asset, state string) {
	for k, vs := range a.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Cache", state)
	w.WriteHeader(a.Status)
	w.Write(a.Body)
}

// recorder buffers an origin response so it can be stored and replayed.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *recorder) asset(key string) *Asset {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &Asset{Key: key, Status: status, Header: r.header.Clone(), Body: r.body.Bytes(), StoredAt: timeutil.Now()}
}
