package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Handle is a live, migrated connection. It is only ever published by the
// Provider once migration has completed.
type Handle struct {
	conn    *sql.DB
	dialect Dialect
	stores  map[Store]bool
	version int
}

func newHandle(conn *sql.DB, dialect Dialect, stores []Store, version int) *Handle {
	known := make(map[Store]bool, len(stores))
	for _, s := range stores {
		known[s] = true
	}
	return &Handle{conn: conn, dialect: dialect, stores: known, version: version}
}

func (h *Handle) Dialect() Dialect { return h.dialect }

// SchemaVersion is the last migration version applied when the handle was opened.
func (h *Handle) SchemaVersion() int { return h.version }

// HasStore reports whether the migrated schema contains the store.
func (h *Handle) HasStore(s Store) bool { return h.stores[s] }

// Stores returns the known store names in sorted order.
func (h *Handle) Stores() []Store {
	out := make([]Store, 0, len(h.stores))
	for s := range h.stores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Handle) Ping(ctx context.Context) error {
	return h.conn.PingContext(ctx)
}

// View runs fn inside a read-only transaction over the given stores.
func (h *Handle) View(ctx context.Context, stores []Store, fn func(*Tx) error) error {
	return h.run(ctx, stores, true, fn)
}

// Update runs fn inside a read-write transaction over the given stores. The
// transaction commits only when fn returns nil.
func (h *Handle) Update(ctx context.Context, stores []Store, fn func(*Tx) error) error {
	return h.run(ctx, stores, false, fn)
}

func (h *Handle) run(ctx context.Context, stores []Store, readOnly bool, fn func(*Tx) error) (err error) {
	scope := make(map[Store]bool, len(stores))
	for _, s := range stores {
		if !h.stores[s] {
			return fmt.Errorf("store %q is not part of the schema", s)
		}
		scope[s] = true
	}

	opts := &sql.TxOptions{}
	if h.dialect.IsPostgres() {
		opts.ReadOnly = readOnly
	}
	sqlTx, err := h.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &Tx{tx: sqlTx, dialect: h.dialect, scope: scope, readOnly: readOnly}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Tx is a transaction restricted to a declared set of stores.
type Tx struct {
	tx       *sql.Tx
	dialect  Dialect
	scope    map[Store]bool
	readOnly bool
}

func (t *Tx) Dialect() Dialect { return t.dialect }

func (t *Tx) ReadOnly() bool { return t.readOnly }

// Use fails when s was not declared when the transaction was opened.
func (t *Tx) Use(s Store) error {
	if !t.scope[s] {
		return fmt.Errorf("store %q is outside the transaction scope %s", s, t.scopeString())
	}
	return nil
}

func (t *Tx) scopeString() string {
	names := make([]string, 0, len(t.scope))
	for s := range t.scope {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ",") + "]"
}

func (t *Tx) writable(s Store) error {
	if err := t.Use(s); err != nil {
		return err
	}
	if t.readOnly {
		return fmt.Errorf("write to %q inside a read-only transaction", s)
	}
	return nil
}

// Exec runs a statement that modifies s.
func (t *Tx) Exec(ctx context.Context, s Store, query string, args ...any) (sql.Result, error) {
	if err := t.writable(s); err != nil {
		return nil, err
	}
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

// Insert runs an INSERT into s and returns the generated id.
func (t *Tx) Insert(ctx context.Context, s Store, query string, args ...any) (int64, error) {
	if err := t.writable(s); err != nil {
		return 0, err
	}
	var id int64
	q := t.dialect.Rebind(strings.TrimRight(strings.TrimSpace(query), ";") + " RETURNING id")
	if err := t.tx.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *Tx) Query(ctx context.Context, s Store, query string, args ...any) (*sql.Rows, error) {
	if err := t.Use(s); err != nil {
		return nil, err
	}
	return t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) QueryRow(ctx context.Context, s Store, query string, args ...any) *Row {
	if err := t.Use(s); err != nil {
		return &Row{err: err}
	}
	return &Row{row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

// ForUpdate returns the row-locking suffix for reads that precede a write.
func (t *Tx) ForUpdate() string {
	if t.readOnly {
		return ""
	}
	return t.dialect.ForUpdate()
}

// Row defers a scope error until Scan, mirroring sql.Row.
type Row struct {
	row *sql.Row
	err error
}

func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}
