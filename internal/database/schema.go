package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ledger-backend/internal/db"
)

// Schema is the shape-checking DDL helper handed to each migration step.
type Schema struct {
	tx      *sql.Tx
	dialect db.Dialect
}

func (s *Schema) Dialect() db.Dialect { return s.dialect }

func (s *Schema) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := s.tx.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (s *Schema) TableExists(ctx context.Context, table string) (bool, error) {
	n, err := s.count(ctx, s.dialect.TableExistsQuery(), table)
	return n > 0, err
}

func (s *Schema) IndexExists(ctx context.Context, index string) (bool, error) {
	n, err := s.count(ctx, s.dialect.IndexExistsQuery(), index)
	return n > 0, err
}

func (s *Schema) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	n, err := s.count(ctx, s.dialect.ColumnExistsQuery(), table, column)
	return n > 0, err
}

// EnsureTable creates table with the given column definitions unless it exists.
// The auto-increment id column is prepended.
func (s *Schema) EnsureTable(ctx context.Context, table string, columns ...string) error {
	ok, err := s.TableExists(ctx, table)
	if err != nil || ok {
		return err
	}
	defs := append([]string{s.dialect.AutoIDColumn()}, columns...)
	ddl := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t"))
	if _, err := s.tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// EnsureIndex creates the index unless an index with that name exists.
func (s *Schema) EnsureIndex(ctx context.Context, name, table string, unique bool, columns ...string) error {
	ok, err := s.IndexExists(ctx, name)
	if err != nil || ok {
		return err
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	ddl := fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, name, table, strings.Join(columns, ", "))
	if _, err := s.tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// EnsureColumn adds column to table unless it is already present.
func (s *Schema) EnsureColumn(ctx context.Context, table, column, definition string) error {
	ok, err := s.ColumnExists(ctx, table, column)
	if err != nil || ok {
		return err
	}
	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := s.tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
