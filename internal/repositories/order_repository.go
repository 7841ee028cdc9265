package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/db"
	"ledger-backend/internal/metrics"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/timeutil"
)

const orderColumns = `id, customer_id, customer_name, order_date, status, items, total_amount, total_profit,
	delivered_trip_id, payment_received, notes, version, created_at, updated_at`

// Reconciler repairs an order whose received total drifted from its payments.
type Reconciler interface {
	ReconcileOrder(ctx context.Context, orderID int64) (*models.Order, error)
}

type OrderRepository struct {
	base
	customers  *CustomerRepository
	products   *ProductRepository
	payments   *PaymentRepository
	reconciler Reconciler
}

func NewOrderRepository(gate readiness.HandleSource, customers *CustomerRepository,
	products *ProductRepository, payments *PaymentRepository) *OrderRepository {
	return &OrderRepository{
		base:      base{gate: gate},
		customers: customers,
		products:  products,
		payments:  payments,
	}
}

// SetReconciler wires repair-on-read.
func (r *OrderRepository) SetReconciler(rec Reconciler) {
	r.reconciler = rec
}

func scanOrder(s scanner) (*models.Order, error) {
	var o models.Order
	var orderDate, created, updated int64
	var status, items string
	var trip sql.NullInt64
	err := s.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &orderDate, &status, &items,
		&o.TotalAmount, &o.TotalProfit, &trip, &o.PaymentReceived, &o.Notes, &o.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of order %d: %w", o.ID, err)
	}
	o.Status = models.OrderStatus(status)
	o.DeliveredTripID = nullableID(trip)
	o.OrderDate = timeutil.FromMillis(orderDate)
	o.CreatedAt = timeutil.FromMillis(created)
	o.UpdatedAt = timeutil.FromMillis(updated)
	// stored totals are a cache; items are authoritative
	o.Recalculate()
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()
	orders := []*models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create stores a new, unlinked order. Totals are derived from the items and
// stock of referenced products is taken in the same transaction.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) (int64, error) {
	o.ID = 0
	o.DeliveredTripID = nil
	o.PaymentReceived = decimal.Zero
	if o.Status == "" {
		o.Status = models.OrderNew
	}
	if !o.Status.Assignable() {
		return 0, apperrors.Validation("status_managed_by_reconciliation",
			"new orders must be %s or %s", models.OrderNew, models.OrderPendingAssignment)
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = timeutil.Now()
	}
	if err := o.Validate(); err != nil {
		return 0, err
	}

	err := r.update(ctx, stores(db.StoreOrders, db.StoreCustomers, db.StoreProducts), func(tx *db.Tx) error {
		c, err := r.customers.GetTx(ctx, tx, o.CustomerID)
		if err != nil {
			return err
		}
		o.CustomerName = c.Name
		if err := r.products.AdjustStockTx(ctx, tx, StockDeltas(nil, o.Items)); err != nil {
			return err
		}
		_, err = r.InsertTx(ctx, tx, o)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.publish(db.StoreOrders, "created", o.ID)
	return o.ID, nil
}

// InsertTx writes o as a new row with version 1.
func (r *OrderRepository) InsertTx(ctx context.Context, tx *db.Tx, o *models.Order) (int64, error) {
	o.Recalculate()
	items, err := json.Marshal(o.Items)
	if err != nil {
		return 0, err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = timeutil.Now()
	}
	o.UpdatedAt = timeutil.Now()
	o.Version = 1
	id, err := tx.Insert(ctx, db.StoreOrders,
		`INSERT INTO orders (customer_id, customer_name, order_date, status, items, total_amount, total_profit,
			delivered_trip_id, payment_received, notes, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.CustomerID, o.CustomerName, timeutil.ToMillis(o.OrderDate), string(o.Status), string(items),
		o.TotalAmount.String(), o.TotalProfit.String(), o.DeliveredTripID, o.PaymentReceived.String(),
		o.Notes, o.Version, timeutil.ToMillis(o.CreatedAt), timeutil.ToMillis(o.UpdatedAt))
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

// Update applies a caller patch. When the patch carries a version it must
// match the stored one.
func (r *OrderRepository) Update(ctx context.Context, id int64, patch models.OrderPatch) error {
	var tripID *int64
	err := r.update(ctx, stores(db.StoreOrders, db.StoreProducts), func(tx *db.Tx) error {
		o, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != o.Version {
			return apperrors.Conflict(string(db.StoreOrders), id)
		}
		before := append([]models.OrderItem(nil), o.Items...)
		if err := o.Apply(patch); err != nil {
			return err
		}
		if err := o.Validate(); err != nil {
			return err
		}
		if patch.Items != nil {
			if err := r.products.AdjustStockTx(ctx, tx, StockDeltas(before, o.Items)); err != nil {
				return err
			}
		}
		tripID = o.DeliveredTripID
		return r.SaveTx(ctx, tx, o)
	})
	if err != nil {
		return err
	}
	if tripID != nil {
		r.invalidateTrips(ctx, *tripID)
	}
	r.publish(db.StoreOrders, "updated", id)
	return nil
}

// SaveTx persists o with a conditional write on its version.
func (r *OrderRepository) SaveTx(ctx context.Context, tx *db.Tx, o *models.Order) error {
	o.Recalculate()
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	o.UpdatedAt = timeutil.Now()
	res, err := tx.Exec(ctx, db.StoreOrders,
		`UPDATE orders SET order_date = ?, status = ?, items = ?, total_amount = ?, total_profit = ?,
			delivered_trip_id = ?, payment_received = ?, notes = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		timeutil.ToMillis(o.OrderDate), string(o.Status), string(items), o.TotalAmount.String(),
		o.TotalProfit.String(), o.DeliveredTripID, o.PaymentReceived.String(), o.Notes,
		timeutil.ToMillis(o.UpdatedAt), o.ID, o.Version)
	if err != nil {
		return err
	}
	if err := r.checkWritten(ctx, tx, res, o.ID); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *OrderRepository) checkWritten(ctx context.Context, tx *db.Tx, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	ok, err := exists(ctx, tx, db.StoreOrders, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound(string(db.StoreOrders), id)
	}
	return apperrors.Conflict(string(db.StoreOrders), id)
}

// Remove deletes an unlinked order without payments and returns its stock.
// Orders on a trip must be unlinked first.
func (r *OrderRepository) Remove(ctx context.Context, id int64) error {
	err := r.update(ctx, stores(db.StoreOrders, db.StorePayments, db.StoreProducts), func(tx *db.Tx) error {
		o, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.IsLinked() {
			return apperrors.Validation("order_linked_to_trip",
				"order %d is on trip %d; unlink it before removing", id, *o.DeliveredTripID)
		}
		payments, err := r.payments.ListByOrderTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return apperrors.Validation("order_has_payments",
				"order %d has %d payment entries and cannot be removed", id, len(payments))
		}
		if err := r.products.AdjustStockTx(ctx, tx, StockDeltas(o.Items, nil)); err != nil {
			return err
		}
		res, err := tx.Exec(ctx, db.StoreOrders, `DELETE FROM orders WHERE id = ? AND version = ?`, id, o.Version)
		if err != nil {
			return err
		}
		return r.checkWritten(ctx, tx, res, id)
	})
	if err != nil {
		return err
	}
	r.publish(db.StoreOrders, "removed", id)
	return nil
}

// GetAll returns every order, repairing any whose received total disagrees
// with its payment entries.
func (r *OrderRepository) GetAll(ctx context.Context) ([]*models.Order, error) {
	var orders []*models.Order
	var drifted []int
	err := r.view(ctx, stores(db.StoreOrders, db.StorePayments), func(tx *db.Tx) error {
		var err error
		orders, err = r.ListTx(ctx, tx)
		if err != nil {
			return err
		}
		sums, err := r.payments.SumsByOrderTx(ctx, tx)
		if err != nil {
			return err
		}
		for i, o := range orders {
			if !o.PaymentReceived.Equal(sums[o.ID]) {
				drifted = append(drifted, i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, i := range drifted {
		repaired, err := r.repair(ctx, orders[i])
		if err != nil {
			return nil, err
		}
		orders[i] = repaired
	}
	return orders, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	var o *models.Order
	drift := false
	err := r.view(ctx, stores(db.StoreOrders, db.StorePayments), func(tx *db.Tx) error {
		var err error
		o, err = r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		payments, err := r.payments.ListByOrderTx(ctx, tx, id)
		if err != nil {
			return err
		}
		drift = !o.PaymentReceived.Equal(models.SumPayments(payments))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if drift {
		return r.repair(ctx, o)
	}
	return o, nil
}

func (r *OrderRepository) repair(ctx context.Context, o *models.Order) (*models.Order, error) {
	log.Printf("[Reconcile] order %d received total drifted from payment ledger, repairing", o.ID)
	metrics.DriftRepairs.Inc()
	if r.reconciler == nil {
		return o, nil
	}
	return r.reconciler.ReconcileOrder(ctx, o.ID)
}

// ListByTrip returns the orders linked to a trip.
func (r *OrderRepository) ListByTrip(ctx context.Context, tripID int64) ([]*models.Order, error) {
	var out []*models.Order
	err := r.view(ctx, stores(db.StoreOrders), func(tx *db.Tx) error {
		var err error
		out, err = r.ListByTripTx(ctx, tx, tripID)
		return err
	})
	return out, err
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID int64) ([]*models.Order, error) {
	var out []*models.Order
	err := r.view(ctx, stores(db.StoreOrders), func(tx *db.Tx) error {
		rows, err := tx.Query(ctx, db.StoreOrders,
			`SELECT `+orderColumns+` FROM orders WHERE customer_id = ? ORDER BY order_date DESC, id DESC`, customerID)
		if err != nil {
			return err
		}
		out, err = collectOrders(rows)
		return err
	})
	return out, err
}

// Debts returns the outstanding balance of every order that still owes money.
func (r *OrderRepository) Debts(ctx context.Context) ([]models.DebtView, error) {
	orders, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	debts := []models.DebtView{}
	for _, o := range orders {
		if o.RemainingDebt().IsPositive() {
			debts = append(debts, models.NewDebtView(o))
		}
	}
	return debts, nil
}

// GetTx loads an order; in a read-write transaction the row is locked.
func (r *OrderRepository) GetTx(ctx context.Context, tx *db.Tx, id int64) (*models.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx, db.StoreOrders,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`+tx.ForUpdate(), id))
	if err != nil {
		return nil, notFound(err, db.StoreOrders, id)
	}
	return o, nil
}

func (r *OrderRepository) ListTx(ctx context.Context, tx *db.Tx) ([]*models.Order, error) {
	rows, err := tx.Query(ctx, db.StoreOrders,
		`SELECT `+orderColumns+` FROM orders ORDER BY order_date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *OrderRepository) ListByTripTx(ctx context.Context, tx *db.Tx, tripID int64) ([]*models.Order, error) {
	rows, err := tx.Query(ctx, db.StoreOrders,
		`SELECT `+orderColumns+` FROM orders WHERE delivered_trip_id = ? ORDER BY id`+tx.ForUpdate(), tripID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}
