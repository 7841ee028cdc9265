package repositories

import (
	"context"
	"database/sql"

	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/timeutil"
)

const expenseColumns = `id, trip_id, expense_type, amount, description, expense_date, created_at`

type TripExpenseRepository struct {
	base
}

func NewTripExpenseRepository(gate readiness.HandleSource) *TripExpenseRepository {
	return &TripExpenseRepository{base{gate: gate}}
}

func scanExpense(s scanner) (*models.TripExpense, error) {
	var e models.TripExpense
	var date, created int64
	if err := s.Scan(&e.ID, &e.TripID, &e.Type, &e.Amount, &e.Description, &date, &created); err != nil {
		return nil, err
	}
	e.Date = timeutil.FromMillis(date)
	e.CreatedAt = timeutil.FromMillis(created)
	return &e, nil
}

func collectExpenses(rows *sql.Rows) ([]*models.TripExpense, error) {
	defer rows.Close()
	expenses := []*models.TripExpense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// Create records an expense against an existing trip.
func (r *TripExpenseRepository) Create(ctx context.Context, e *models.TripExpense) (int64, error) {
	if e.Date.IsZero() {
		e.Date = timeutil.Now()
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}
	err := r.update(ctx, stores(db.StoreTripExpenses, db.StoreTrips), func(tx *db.Tx) error {
		if err := r.requireTrip(ctx, tx, e.TripID); err != nil {
			return err
		}
		_, err := r.InsertTx(ctx, tx, e)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.invalidateTrips(ctx, e.TripID)
	r.publish(db.StoreTripExpenses, "created", e.ID)
	return e.ID, nil
}

func (r *TripExpenseRepository) requireTrip(ctx context.Context, tx *db.Tx, tripID int64) error {
	ok, err := exists(ctx, tx, db.StoreTrips, tripID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(sql.ErrNoRows, db.StoreTrips, tripID)
	}
	return nil
}

func (r *TripExpenseRepository) InsertTx(ctx context.Context, tx *db.Tx, e *models.TripExpense) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = timeutil.Now()
	}
	id, err := tx.Insert(ctx, db.StoreTripExpenses,
		`INSERT INTO trip_expenses (trip_id, expense_type, amount, description, expense_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.TripID, e.Type, e.Amount.String(), e.Description, timeutil.ToMillis(e.Date), timeutil.ToMillis(e.CreatedAt))
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func (r *TripExpenseRepository) Update(ctx context.Context, id int64, patch models.TripExpensePatch) error {
	var tripID int64
	err := r.update(ctx, stores(db.StoreTripExpenses), func(tx *db.Tx) error {
		e, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		e.Apply(patch)
		if err := e.Validate(); err != nil {
			return err
		}
		tripID = e.TripID
		_, err = tx.Exec(ctx, db.StoreTripExpenses,
			`UPDATE trip_expenses SET expense_type = ?, amount = ?, description = ?, expense_date = ? WHERE id = ?`,
			e.Type, e.Amount.String(), e.Description, timeutil.ToMillis(e.Date), id)
		return err
	})
	if err != nil {
		return err
	}
	r.invalidateTrips(ctx, tripID)
	r.publish(db.StoreTripExpenses, "updated", id)
	return nil
}

func (r *TripExpenseRepository) Remove(ctx context.Context, id int64) error {
	var tripID int64
	err := r.update(ctx, stores(db.StoreTripExpenses), func(tx *db.Tx) error {
		e, err := r.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		tripID = e.TripID
		res, err := tx.Exec(ctx, db.StoreTripExpenses, `DELETE FROM trip_expenses WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, db.StoreTripExpenses, id)
	})
	if err != nil {
		return err
	}
	r.invalidateTrips(ctx, tripID)
	r.publish(db.StoreTripExpenses, "removed", id)
	return nil
}

func (r *TripExpenseRepository) GetAll(ctx context.Context) ([]*models.TripExpense, error) {
	var out []*models.TripExpense
	err := r.view(ctx, stores(db.StoreTripExpenses), func(tx *db.Tx) error {
		var err error
		out, err = r.ListTx(ctx, tx)
		return err
	})
	return out, err
}

func (r *TripExpenseRepository) GetByID(ctx context.Context, id int64) (*models.TripExpense, error) {
	var e *models.TripExpense
	err := r.view(ctx, stores(db.StoreTripExpenses), func(tx *db.Tx) error {
		var err error
		e, err = r.GetTx(ctx, tx, id)
		return err
	})
	return e, err
}

func (r *TripExpenseRepository) ListByTrip(ctx context.Context, tripID int64) ([]*models.TripExpense, error) {
	var out []*models.TripExpense
	err := r.view(ctx, stores(db.StoreTripExpenses), func(tx *db.Tx) error {
		var err error
		out, err = r.ListByTripTx(ctx, tx, tripID)
		return err
	})
	return out, err
}

func (r *TripExpenseRepository) GetTx(ctx context.Context, tx *db.Tx, id int64) (*models.TripExpense, error) {
	e, err := scanExpense(tx.QueryRow(ctx, db.StoreTripExpenses,
		`SELECT `+expenseColumns+` FROM trip_expenses WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, db.StoreTripExpenses, id)
	}
	return e, nil
}

func (r *TripExpenseRepository) ListTx(ctx context.Context, tx *db.Tx) ([]*models.TripExpense, error) {
	rows, err := tx.Query(ctx, db.StoreTripExpenses,
		`SELECT `+expenseColumns+` FROM trip_expenses ORDER BY expense_date, id`)
	if err != nil {
		return nil, err
	}
	return collectExpenses(rows)
}

func (r *TripExpenseRepository) ListByTripTx(ctx context.Context, tx *db.Tx, tripID int64) ([]*models.TripExpense, error) {
	rows, err := tx.Query(ctx, db.StoreTripExpenses,
		`SELECT `+expenseColumns+` FROM trip_expenses WHERE trip_id = ? ORDER BY expense_date, id`, tripID)
	if err != nil {
		return nil, err
	}
	return collectExpenses(rows)
}
