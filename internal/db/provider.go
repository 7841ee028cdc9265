package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Status is the provider's tri-state health.
type Status int32

const (
	StatusNotReady Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "not_ready"
	}
}

// Migrator upgrades a freshly opened connection and returns the resulting schema version.
type Migrator interface {
	Migrate(ctx context.Context, conn *sql.DB, d Dialect) (int, error)
}

// Options configures a Provider.
type Options struct {
	Driver string
	DSN    string

	// MaxOpenConns applies to postgres only. SQLite always uses one connection.
	MaxOpenConns int

	// BusyTimeout is the SQLite busy_timeout pragma.
	BusyTimeout time.Duration

	Migrator Migrator
}

// Provider owns the single storage connection of the process and publishes
// a Handle once it has been opened and migrated.
type Provider struct {
	opts Options

	// openMu serialises Open so concurrent callers share one connection.
	openMu sync.Mutex

	mu        sync.Mutex
	status    Status
	handle    *Handle
	conn      *sql.DB
	err       error
	changed   chan struct{}
	listeners []func(Status)
}

func NewProvider(opts Options) *Provider {
	return &Provider{
		opts:    opts,
		changed: make(chan struct{}),
	}
}

// Open connects, migrates and publishes the handle. It is safe to call from a
// goroutine started before any consumer exists. Calling Open on a ready
// provider is a no-op, including for callers that waited on a concurrent Open.
func (p *Provider) Open(ctx context.Context) error {
	p.openMu.Lock()
	defer p.openMu.Unlock()
	if p.Health() == StatusReady {
		return nil
	}

	dialect, err := DialectFor(p.opts.Driver)
	if err != nil {
		p.fail(err)
		return err
	}

	conn, err := openConn(ctx, dialect, p.opts)
	if err != nil {
		err = fmt.Errorf("open %s storage: %w", dialect.Name, err)
		p.fail(err)
		return err
	}

	version := 0
	if p.opts.Migrator != nil {
		version, err = p.opts.Migrator.Migrate(ctx, conn, dialect)
		if err != nil {
			conn.Close()
			p.fail(err)
			return err
		}
	}

	stores, err := presentStores(ctx, conn, dialect)
	if err != nil {
		conn.Close()
		err = fmt.Errorf("inspect schema: %w", err)
		p.fail(err)
		return err
	}

	p.publish(newHandle(conn, dialect, stores, version), conn)
	log.Printf("[Storage] %s storage ready (schema v%d, %d stores)", dialect.Name, version, len(stores))
	return nil
}

// HandleIfReady returns the handle without blocking, or nil.
func (p *Provider) HandleIfReady() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusReady {
		return nil
	}
	return p.handle
}

func (p *Provider) Health() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Err returns the error that put the provider into StatusFailed.
func (p *Provider) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Changed returns a channel closed on the next status transition.
func (p *Provider) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// Subscribe registers fn to be called after every status transition.
func (p *Provider) Subscribe(fn func(Status)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Close releases the connection and returns the provider to NotReady.
func (p *Provider) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	p.transition(StatusNotReady, nil, nil)
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (p *Provider) publish(h *Handle, conn *sql.DB) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	p.transition(StatusReady, h, nil)
}

func (p *Provider) fail(err error) {
	log.Printf("[Storage] storage failed: %v", err)
	p.transition(StatusFailed, nil, err)
}

func (p *Provider) transition(status Status, h *Handle, err error) {
	p.mu.Lock()
	p.status = status
	p.handle = h
	p.err = err
	close(p.changed)
	p.changed = make(chan struct{})
	listeners := append([]func(Status){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}

func openConn(ctx context.Context, d Dialect, opts Options) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("empty DSN")
	}
	conn, err := sql.Open(d.DriverName, opts.DSN)
	if err != nil {
		return nil, err
	}

	if d.IsPostgres() {
		if opts.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(opts.MaxOpenConns)
		}
		conn.SetConnMaxIdleTime(5 * time.Minute)
	} else {
		conn.SetMaxOpenConns(1)
		busy := opts.BusyTimeout
		if busy <= 0 {
			busy = 5 * time.Second
		}
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			fmt.Sprintf("PRAGMA busy_timeout=%d", busy.Milliseconds()),
			"PRAGMA synchronous=NORMAL",
		}
		for _, pragma := range pragmas {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				conn.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func presentStores(ctx context.Context, conn *sql.DB, d Dialect) ([]Store, error) {
	var stores []Store
	for _, s := range AllStores {
		var n int
		if err := conn.QueryRowContext(ctx, d.TableExistsQuery(), string(s)).Scan(&n); err != nil {
			return nil, err
		}
		if n > 0 {
			stores = append(stores, s)
		}
	}
	return stores, nil
}

// PostgresDSN builds a connection URL from discrete settings.
func PostgresDSN(host string, port int, user, password, name, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", user, password, host, port, name, sslmode)
}
