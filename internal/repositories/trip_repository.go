package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/cache"
	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/timeutil"
)

const tripColumns = `id, trip_name, trip_date, status, notes, version, created_at, updated_at`

type TripRepository struct {
	base
	orders   *OrderRepository
	expenses *TripExpenseRepository
}

func NewTripRepository(gate readiness.HandleSource, orders *OrderRepository, expenses *TripExpenseRepository) *TripRepository {
	return &TripRepository{base: base{gate: gate}, orders: orders, expenses: expenses}
}

func scanTrip(s scanner) (*models.Trip, error) {
	var t models.Trip
	var date, created, updated int64
	var status string
	if err := s.Scan(&t.ID, &t.TripName, &date, &status, &t.Notes, &t.Version, &created, &updated); err != nil {
		return nil, err
	}
	t.Status = models.TripStatus(status)
	t.TripDate = timeutil.FromMillis(date)
	t.CreatedAt = timeutil.FromMillis(created)
	t.UpdatedAt = timeutil.FromMillis(updated)
	return &t, nil
}

// Create stores a new trip. Trips start Planned or InProgress.
func (r *TripRepository) Create(ctx context.Context, t *models.Trip) (int64, error) {
	if t.Status == models.TripDelivered {
		return 0, apperrors.Validation("trip_delivered_is_derived",
			"a trip becomes Delivered only when all its orders are completed")
	}
	if t.TripDate.IsZero() {
		t.TripDate = timeutil.Now()
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}
	err := r.update(ctx, stores(db.StoreTrips), func(tx *db.Tx) error {
		_, err := r.InsertTx(ctx, tx, t)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.publish(db.StoreTrips, "created", t.ID)
	return t.ID, nil
}

func (r *TripRepository) InsertTx(ctx context.Context, tx *db.Tx, t *models.Trip) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = timeutil.Now()
	}
	t.UpdatedAt = timeutil.Now()
	t.Version = 1
	id, err := tx.Insert(ctx, db.StoreTrips,
		`INSERT INTO trips (trip_name, trip_date, status, notes, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.TripName, timeutil.ToMillis(t.TripDate), string(t.Status), t.Notes, t.Version,
		timeutil.ToMillis(t.CreatedAt), timeutil.ToMillis(t.UpdatedAt))
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

// Update applies a caller patch; the stored status is re-derived from the
// linked orders afterwards.
func (r *TripRepository) Update(ctx context.Context, id int64, patch models.TripPatch) error {
	err := r.update(ctx, stores(db.StoreTrips, db.StoreOrders), func(tx *db.Tx) error {
		t, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != t.Version {
			return apperrors.Conflict(string(db.StoreTrips), id)
		}
		if err := t.Apply(patch); err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return err
		}
		orders, err := r.orders.ListByTripTx(ctx, tx, id)
		if err != nil {
			return err
		}
		t.Status = models.DeriveTripStatus(t.Status, len(orders), countCompleted(orders))
		return r.SaveTx(ctx, tx, t)
	})
	if err != nil {
		return err
	}
	r.invalidateTrips(ctx, id)
	r.publish(db.StoreTrips, "updated", id)
	return nil
}

func countCompleted(orders []*models.Order) int {
	n := 0
	for _, o := range orders {
		if o.Status == models.OrderCompleted {
			n++
		}
	}
	return n
}

// SaveTx persists t with a conditional write on its version.
func (r *TripRepository) SaveTx(ctx context.Context, tx *db.Tx, t *models.Trip) error {
	t.UpdatedAt = timeutil.Now()
	res, err := tx.Exec(ctx, db.StoreTrips,
		`UPDATE trips SET trip_name = ?, trip_date = ?, status = ?, notes = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		t.TripName, timeutil.ToMillis(t.TripDate), string(t.Status), t.Notes, timeutil.ToMillis(t.UpdatedAt),
		t.ID, t.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		ok, err := exists(ctx, tx, db.StoreTrips, t.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NotFound(string(db.StoreTrips), t.ID)
		}
		return apperrors.Conflict(string(db.StoreTrips), t.ID)
	}
	t.Version++
	return nil
}

// Remove deletes a trip without linked orders together with its expenses.
// Payment entries keep their trip id.
func (r *TripRepository) Remove(ctx context.Context, id int64) error {
	err := r.update(ctx, stores(db.StoreTrips, db.StoreOrders, db.StoreTripExpenses), func(tx *db.Tx) error {
		if _, err := r.GetTx(ctx, tx, id); err != nil {
			return err
		}
		orders, err := r.orders.ListByTripTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(orders) > 0 {
			return apperrors.Validation("trip_has_orders",
				"trip %d still has %d linked orders", id, len(orders))
		}
		if _, err := tx.Exec(ctx, db.StoreTripExpenses, `DELETE FROM trip_expenses WHERE trip_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.Exec(ctx, db.StoreTrips, `DELETE FROM trips WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, db.StoreTrips, id)
	})
	if err != nil {
		return err
	}
	r.invalidateTrips(ctx, id)
	r.publish(db.StoreTrips, "removed", id)
	return nil
}

func (r *TripRepository) GetAll(ctx context.Context) ([]*models.Trip, error) {
	var out []*models.Trip
	err := r.view(ctx, stores(db.StoreTrips), func(tx *db.Tx) error {
		var err error
		out, err = r.ListTx(ctx, tx)
		return err
	})
	return out, err
}

func (r *TripRepository) GetByID(ctx context.Context, id int64) (*models.Trip, error) {
	var t *models.Trip
	err := r.view(ctx, stores(db.StoreTrips), func(tx *db.Tx) error {
		var err error
		t, err = r.GetTx(ctx, tx, id)
		return err
	})
	return t, err
}

// Summary derives the aggregates of a trip. Results are cached in Redis
// until a change to the trip, its orders, payments or expenses.
func (r *TripRepository) Summary(ctx context.Context, id int64) (*models.TripSummary, error) {
	if data, ok := cache.GetCachedTripSummary(ctx, id); ok {
		var s models.TripSummary
		if err := json.Unmarshal(data, &s); err == nil {
			return &s, nil
		}
	}

	var summary models.TripSummary
	err := r.view(ctx, stores(db.StoreTrips, db.StoreOrders, db.StoreTripExpenses), func(tx *db.Tx) error {
		t, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		orders, err := r.orders.ListByTripTx(ctx, tx, id)
		if err != nil {
			return err
		}
		expenses, err := r.expenses.ListByTripTx(ctx, tx, id)
		if err != nil {
			return err
		}
		summary = models.Summarize(t, orders, expenses)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(summary); err == nil {
		cache.CacheTripSummary(ctx, id, data)
	}
	return &summary, nil
}

// GetTx loads a trip; in a read-write transaction the row is locked.
func (r *TripRepository) GetTx(ctx context.Context, tx *db.Tx, id int64) (*models.Trip, error) {
	t, err := scanTrip(tx.QueryRow(ctx, db.StoreTrips,
		`SELECT `+tripColumns+` FROM trips WHERE id = ?`+tx.ForUpdate(), id))
	if err != nil {
		return nil, notFound(err, db.StoreTrips, id)
	}
	return t, nil
}

func (r *TripRepository) ListTx(ctx context.Context, tx *db.Tx) ([]*models.Trip, error) {
	rows, err := tx.Query(ctx, db.StoreTrips, `SELECT `+tripColumns+` FROM trips ORDER BY trip_date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collectTrips(rows)
}

func collectTrips(rows *sql.Rows) ([]*models.Trip, error) {
	defer rows.Close()
	trips := []*models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}
