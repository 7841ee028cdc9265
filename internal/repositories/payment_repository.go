package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/timeutil"
)

const paymentColumns = `id, order_id, trip_id, amount, method, note, paid_at, kind, reverses_payment_id, created_at`

// PaymentEngine records payments and reversals together with the order and
// trip state they affect.
type PaymentEngine interface {
	ProcessPayment(ctx context.Context, req models.ProcessPaymentRequest) (*models.Payment, error)
	ReversePayment(ctx context.Context, paymentID int64, note string) (*models.Payment, error)
}

// PaymentPatch exists for API symmetry; payments are never edited.
type PaymentPatch struct {
	Method *string `json:"method,omitempty"`
	Note   *string `json:"note,omitempty"`
}

type PaymentRepository struct {
	base
	engine PaymentEngine
}

func NewPaymentRepository(gate readiness.HandleSource) *PaymentRepository {
	return &PaymentRepository{base: base{gate: gate}}
}

// SetEngine wires the reconciliation engine used by Create and Remove.
func (r *PaymentRepository) SetEngine(e PaymentEngine) {
	r.engine = e
}

func scanPayment(s scanner) (*models.Payment, error) {
	var p models.Payment
	var paidAt, created int64
	var reverses sql.NullInt64
	var kind string
	if err := s.Scan(&p.ID, &p.OrderID, &p.TripID, &p.Amount, &p.Method, &p.Note,
		&paidAt, &kind, &reverses, &created); err != nil {
		return nil, err
	}
	p.Kind = models.PaymentKind(kind)
	p.ReversesPaymentID = nullableID(reverses)
	p.PaidAt = timeutil.FromMillis(paidAt)
	p.CreatedAt = timeutil.FromMillis(created)
	return &p, nil
}

func collectPayments(rows *sql.Rows) ([]*models.Payment, error) {
	defer rows.Close()
	payments := []*models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// Create records a payment through the reconciliation engine.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) (int64, error) {
	if r.engine == nil {
		return 0, errors.New("payment engine not configured")
	}
	created, err := r.engine.ProcessPayment(ctx, models.ProcessPaymentRequest{
		OrderID: p.OrderID,
		TripID:  p.TripID,
		Amount:  p.Amount,
		Method:  p.Method,
		Note:    p.Note,
	})
	if err != nil {
		return 0, err
	}
	*p = *created
	return p.ID, nil
}

// Update always fails: the payment ledger is append-only.
func (r *PaymentRepository) Update(ctx context.Context, id int64, patch PaymentPatch) error {
	return apperrors.Validation("payments_append_only",
		"payment %d cannot be edited; record a reversal instead", id)
}

// Remove records a compensating reversal of the payment.
func (r *PaymentRepository) Remove(ctx context.Context, id int64) error {
	if r.engine == nil {
		return errors.New("payment engine not configured")
	}
	_, err := r.engine.ReversePayment(ctx, id, "")
	return err
}

// InsertTx appends a ledger entry.
func (r *PaymentRepository) InsertTx(ctx context.Context, tx *db.Tx, p *models.Payment) (int64, error) {
	if p.Kind == "" {
		p.Kind = models.PaymentKindPayment
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = timeutil.Now()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = timeutil.Now()
	}
	id, err := tx.Insert(ctx, db.StorePayments,
		`INSERT INTO payments (order_id, trip_id, amount, method, note, paid_at, kind, reverses_payment_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrderID, p.TripID, p.Amount.String(), p.Method, p.Note,
		timeutil.ToMillis(p.PaidAt), string(p.Kind), p.ReversesPaymentID, timeutil.ToMillis(p.CreatedAt))
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (r *PaymentRepository) GetAll(ctx context.Context) ([]*models.Payment, error) {
	var out []*models.Payment
	err := r.view(ctx, stores(db.StorePayments), func(tx *db.Tx) error {
		var err error
		out, err = r.ListTx(ctx, tx)
		return err
	})
	return out, err
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	var p *models.Payment
	err := r.view(ctx, stores(db.StorePayments), func(tx *db.Tx) error {
		var err error
		p, err = r.GetTx(ctx, tx, id)
		return err
	})
	return p, err
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID int64) ([]*models.Payment, error) {
	var out []*models.Payment
	err := r.view(ctx, stores(db.StorePayments), func(tx *db.Tx) error {
		var err error
		out, err = r.ListByOrderTx(ctx, tx, orderID)
		return err
	})
	return out, err
}

func (r *PaymentRepository) ListByTrip(ctx context.Context, tripID int64) ([]*models.Payment, error) {
	var out []*models.Payment
	err := r.view(ctx, stores(db.StorePayments), func(tx *db.Tx) error {
		rows, err := tx.Query(ctx, db.StorePayments,
			`SELECT `+paymentColumns+` FROM payments WHERE trip_id = ? ORDER BY paid_at, id`, tripID)
		if err != nil {
			return err
		}
		out, err = collectPayments(rows)
		return err
	})
	return out, err
}

func (r *PaymentRepository) GetTx(ctx context.Context, tx *db.Tx, id int64) (*models.Payment, error) {
	p, err := scanPayment(tx.QueryRow(ctx, db.StorePayments,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, db.StorePayments, id)
	}
	return p, nil
}

func (r *PaymentRepository) ListTx(ctx context.Context, tx *db.Tx) ([]*models.Payment, error) {
	rows, err := tx.Query(ctx, db.StorePayments,
		`SELECT `+paymentColumns+` FROM payments ORDER BY paid_at, id`)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (r *PaymentRepository) ListByOrderTx(ctx context.Context, tx *db.Tx, orderID int64) ([]*models.Payment, error) {
	rows, err := tx.Query(ctx, db.StorePayments,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ? ORDER BY paid_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

// ReversalOfTx returns the reversal entry of a payment, or nil.
func (r *PaymentRepository) ReversalOfTx(ctx context.Context, tx *db.Tx, paymentID int64) (*models.Payment, error) {
	p, err := scanPayment(tx.QueryRow(ctx, db.StorePayments,
		`SELECT `+paymentColumns+` FROM payments WHERE reverses_payment_id = ?`, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// SumsByOrderTx returns the signed payment total of every order with entries.
func (r *PaymentRepository) SumsByOrderTx(ctx context.Context, tx *db.Tx) (map[int64]decimal.Decimal, error) {
	all, err := r.ListTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	sums := make(map[int64]decimal.Decimal)
	for _, p := range all {
		sums[p.OrderID] = sums[p.OrderID].Add(p.SignedAmount())
	}
	return sums, nil
}
