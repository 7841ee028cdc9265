package db

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect captures the SQL differences between the supported engines.
// Queries are written with '?' placeholders and rebound per dialect.
type Dialect struct {
	Name       string
	DriverName string
}

var (
	SQLite   = Dialect{Name: "sqlite", DriverName: "sqlite"}
	Postgres = Dialect{Name: "postgres", DriverName: "pgx"}
)

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unsupported storage driver %q", driver)
}

func (d Dialect) IsPostgres() bool {
	return d.Name == Postgres.Name
}

// Rebind rewrites '?' placeholders into '$n' for postgres. Quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.IsPostgres() || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// AutoIDColumn is the column definition of a store-local auto-increment key.
func (d Dialect) AutoIDColumn() string {
	if d.IsPostgres() {
		return "id BIGSERIAL PRIMARY KEY"
	}
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

// ForUpdate is appended to reads that precede a write in the same transaction.
// SQLite runs a single writer connection, so it needs no row locks.
func (d Dialect) ForUpdate() string {
	if d.IsPostgres() {
		return " FOR UPDATE"
	}
	return ""
}

func (d Dialect) TableExistsQuery() string {
	if d.IsPostgres() {
		return `SELECT COUNT(*) FROM information_schema.tables
		        WHERE table_schema = current_schema() AND table_name = $1`
	}
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

func (d Dialect) IndexExistsQuery() string {
	if d.IsPostgres() {
		return `SELECT COUNT(*) FROM pg_indexes
		        WHERE schemaname = current_schema() AND indexname = $1`
	}
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`
}

func (d Dialect) ColumnExistsQuery() string {
	if d.IsPostgres() {
		return `SELECT COUNT(*) FROM information_schema.columns
		        WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`
	}
	return `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
}
