package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tableMigrator struct{}

func (tableMigrator) Migrate(ctx context.Context, conn *sql.DB, d Dialect) (int, error) {
	_, err := conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS customers ("+d.AutoIDColumn()+", name TEXT NOT NULL)")
	if err != nil {
		return 0, err
	}
	_, err = conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS products ("+d.AutoIDColumn()+", name TEXT NOT NULL)")
	return 1, err
}

type countingMigrator struct {
	calls atomic.Int32
}

func (m *countingMigrator) Migrate(ctx context.Context, conn *sql.DB, d Dialect) (int, error) {
	m.calls.Add(1)
	return tableMigrator{}.Migrate(ctx, conn, d)
}

func openTestProvider(t *testing.T) *Provider {
	t.Helper()
	p := NewProvider(Options{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		Migrator: tableMigrator{},
	})
	require.NoError(t, p.Open(context.Background()))
	t.Cleanup(func() { p.Close() })
	return p
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver   string
		expected Dialect
		wantErr  bool
	}{
		{"", SQLite, false},
		{"sqlite", SQLite, false},
		{"SQLite3", SQLite, false},
		{"pgx", Postgres, false},
		{"postgres", Postgres, false},
		{"mysql", Dialect{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := DialectFor(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM orders WHERE id = ? AND note = '?' AND status = ?"

	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM orders WHERE id = $1 AND note = '?' AND status = $2", Postgres.Rebind(q))
	assert.Equal(t, "SELECT 1", Postgres.Rebind("SELECT 1"))
}

func TestParseStore(t *testing.T) {
	s, ok := ParseStore("orders")
	assert.True(t, ok)
	assert.Equal(t, StoreOrders, s)

	s, ok = ParseStore("trip-expenses")
	assert.True(t, ok)
	assert.Equal(t, StoreTripExpenses, s)

	_, ok = ParseStore("users")
	assert.False(t, ok)
}

func TestPostgresDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/ledger?sslmode=disable", PostgresDSN("db", 5432, "u", "p", "ledger", ""))
}

func TestProviderLifecycle(t *testing.T) {
	p := NewProvider(Options{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		Migrator: tableMigrator{},
	})
	assert.Equal(t, StatusNotReady, p.Health())
	assert.Nil(t, p.HandleIfReady())

	var seen []Status
	p.Subscribe(func(s Status) { seen = append(seen, s) })
	changed := p.Changed()

	require.NoError(t, p.Open(context.Background()))
	assert.Equal(t, StatusReady, p.Health())
	select {
	case <-changed:
	default:
		t.Fatal("Changed channel was not closed on transition")
	}

	h := p.HandleIfReady()
	require.NotNil(t, h)
	assert.Equal(t, 1, h.SchemaVersion())
	assert.True(t, h.HasStore(StoreCustomers))
	assert.False(t, h.HasStore(StoreOrders))
	assert.Equal(t, []Store{StoreCustomers, StoreProducts}, h.Stores())

	// opening a ready provider is a no-op
	require.NoError(t, p.Open(context.Background()))

	require.NoError(t, p.Close())
	assert.Equal(t, StatusNotReady, p.Health())
	assert.Equal(t, []Status{StatusReady, StatusNotReady}, seen)
}

func TestConcurrentOpenSharesOneConnection(t *testing.T) {
	m := &countingMigrator{}
	p := NewProvider(Options{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		Migrator: m,
	})
	t.Cleanup(func() { p.Close() })

	var transitions atomic.Int32
	p.Subscribe(func(Status) { transitions.Add(1) })

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Open(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), m.calls.Load())
	assert.Equal(t, int32(1), transitions.Load())
	assert.Equal(t, StatusReady, p.Health())
}

func TestProviderFailsOnBadDriver(t *testing.T) {
	p := NewProvider(Options{Driver: "oracle", DSN: "x"})
	err := p.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, p.Health())
	assert.Equal(t, err, p.Err())
	assert.Nil(t, p.HandleIfReady())
}

func TestProviderFailsOnEmptyDSN(t *testing.T) {
	p := NewProvider(Options{Driver: "sqlite"})
	require.Error(t, p.Open(context.Background()))
	assert.Equal(t, StatusFailed, p.Health())
}

func TestUpdateCommitsAndRollsBack(t *testing.T) {
	p := openTestProvider(t)
	h := p.HandleIfReady()
	ctx := context.Background()

	var id int64
	err := h.Update(ctx, []Store{StoreCustomers}, func(tx *Tx) error {
		var err error
		id, err = tx.Insert(ctx, StoreCustomers, "INSERT INTO customers (name) VALUES (?)", "Asha")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	err = h.Update(ctx, []Store{StoreCustomers}, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, StoreCustomers, "INSERT INTO customers (name) VALUES (?)", "Ravi"); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var count int
	err = h.View(ctx, []Store{StoreCustomers}, func(tx *Tx) error {
		return tx.QueryRow(ctx, StoreCustomers, "SELECT COUNT(*) FROM customers").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTransactionScopeIsEnforced(t *testing.T) {
	p := openTestProvider(t)
	h := p.HandleIfReady()
	ctx := context.Background()

	err := h.View(ctx, []Store{StoreCustomers}, func(tx *Tx) error {
		var n int
		return tx.QueryRow(ctx, StoreProducts, "SELECT COUNT(*) FROM products").Scan(&n)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the transaction scope")

	err = h.View(ctx, []Store{StoreCustomers}, func(tx *Tx) error {
		_, err := tx.Exec(ctx, StoreCustomers, "DELETE FROM customers")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")

	// stores missing from the schema cannot be declared at all
	err = h.View(ctx, []Store{StoreOrders}, func(tx *Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not part of the schema")
}
