package database

import (
	"context"
)

func ledgerSteps() []Step {
	return []Step{
		{Version: 1, Name: "create_stores", Apply: createStores},
		{Version: 2, Name: "versions_and_reversals", Apply: addVersionsAndReversals},
	}
}

func createStores(ctx context.Context, s *Schema) error {
	tables := []struct {
		name    string
		columns []string
	}{
		{"customers", []string{
			"name TEXT NOT NULL",
			"contact TEXT NOT NULL DEFAULT ''",
			"address TEXT NOT NULL DEFAULT ''",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		}},
		{"products", []string{
			"name TEXT NOT NULL",
			"unit TEXT NOT NULL DEFAULT ''",
			"current_stock BIGINT NOT NULL DEFAULT 0",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		}},
		{"suppliers", []string{
			"name TEXT NOT NULL",
			"contact TEXT NOT NULL DEFAULT ''",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		}},
		{"orders", []string{
			"customer_id BIGINT NOT NULL",
			"customer_name TEXT NOT NULL DEFAULT ''",
			"order_date BIGINT NOT NULL",
			"status TEXT NOT NULL",
			"items TEXT NOT NULL",
			"total_amount TEXT NOT NULL",
			"total_profit TEXT NOT NULL",
			"delivered_trip_id BIGINT",
			"payment_received TEXT NOT NULL DEFAULT '0'",
			"notes TEXT NOT NULL DEFAULT ''",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		}},
		{"trips", []string{
			"trip_name TEXT NOT NULL",
			"trip_date BIGINT NOT NULL",
			"status TEXT NOT NULL",
			"notes TEXT NOT NULL DEFAULT ''",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		}},
		{"trip_expenses", []string{
			"trip_id BIGINT NOT NULL",
			"expense_type TEXT NOT NULL",
			"amount TEXT NOT NULL",
			"description TEXT NOT NULL DEFAULT ''",
			"expense_date BIGINT NOT NULL",
			"created_at BIGINT NOT NULL",
		}},
		{"payments", []string{
			"order_id BIGINT NOT NULL",
			"trip_id BIGINT NOT NULL",
			"amount TEXT NOT NULL",
			"method TEXT NOT NULL DEFAULT ''",
			"note TEXT NOT NULL DEFAULT ''",
			"paid_at BIGINT NOT NULL",
			"created_at BIGINT NOT NULL",
		}},
	}
	for _, t := range tables {
		if err := s.EnsureTable(ctx, t.name, t.columns...); err != nil {
			return err
		}
	}

	indexes := []struct {
		name, table string
		columns     []string
	}{
		{"idx_orders_customer", "orders", []string{"customer_id"}},
		{"idx_orders_trip", "orders", []string{"delivered_trip_id"}},
		{"idx_orders_status", "orders", []string{"status"}},
		{"idx_trips_date", "trips", []string{"trip_date"}},
		{"idx_trip_expenses_trip", "trip_expenses", []string{"trip_id"}},
		{"idx_payments_order", "payments", []string{"order_id"}},
		{"idx_payments_trip", "payments", []string{"trip_id"}},
	}
	for _, idx := range indexes {
		if err := s.EnsureIndex(ctx, idx.name, idx.table, false, idx.columns...); err != nil {
			return err
		}
	}
	return nil
}

// addVersionsAndReversals adds optimistic concurrency stamps and the
// compensating-entry columns of the payment ledger.
func addVersionsAndReversals(ctx context.Context, s *Schema) error {
	columns := []struct{ table, column, def string }{
		{"orders", "version", "BIGINT NOT NULL DEFAULT 1"},
		{"trips", "version", "BIGINT NOT NULL DEFAULT 1"},
		{"payments", "kind", "TEXT NOT NULL DEFAULT 'PAYMENT'"},
		{"payments", "reverses_payment_id", "BIGINT"},
	}
	for _, c := range columns {
		if err := s.EnsureColumn(ctx, c.table, c.column, c.def); err != nil {
			return err
		}
	}
	if err := s.EnsureIndex(ctx, "idx_payments_kind", "payments", false, "kind"); err != nil {
		return err
	}
	// one reversal per payment; NULLs do not collide
	return s.EnsureIndex(ctx, "idx_payments_reverses", "payments", true, "reverses_payment_id")
}
