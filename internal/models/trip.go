package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger-backend/internal/apperrors"
)

type TripStatus string

const (
	TripPlanned    TripStatus = "Planned"
	TripInProgress TripStatus = "InProgress"
	TripDelivered  TripStatus = "Delivered"
)

func (s TripStatus) Valid() bool {
	return s == TripPlanned || s == TripInProgress || s == TripDelivered
}

type Trip struct {
	ID        int64      `json:"id"`
	TripName  string     `json:"trip_name"`
	TripDate  time.Time  `json:"trip_date"`
	Status    TripStatus `json:"status"`
	Notes     string     `json:"notes"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type TripPatch struct {
	TripName        *string     `json:"trip_name,omitempty"`
	TripDate        *time.Time  `json:"trip_date,omitempty"`
	Status          *TripStatus `json:"status,omitempty"`
	Notes           *string     `json:"notes,omitempty"`
	ExpectedVersion *int64      `json:"version,omitempty"`
}

func (t *Trip) Validate() error {
	t.TripName = strings.TrimSpace(t.TripName)
	if t.TripName == "" {
		return apperrors.Validation("trip_name_required", "trip name is required")
	}
	if t.TripDate.IsZero() {
		return apperrors.Validation("trip_date_required", "trip date is required")
	}
	if t.Status == "" {
		t.Status = TripPlanned
	}
	if !t.Status.Valid() {
		return apperrors.Validation("trip_status_invalid", "unknown trip status %q", t.Status)
	}
	return nil
}

// Apply merges a caller patch. Delivered is derived and cannot be set by hand.
func (t *Trip) Apply(p TripPatch) error {
	if p.Status != nil {
		if *p.Status == TripDelivered && t.Status != TripDelivered {
			return apperrors.Validation("trip_delivered_is_derived",
				"a trip becomes Delivered only when all its orders are completed")
		}
		t.Status = *p.Status
	}
	if p.TripName != nil {
		t.TripName = *p.TripName
	}
	if p.TripDate != nil {
		t.TripDate = *p.TripDate
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	return nil
}

// DeriveTripStatus computes the status of a trip from its linked orders.
// A trip is Delivered iff it has at least one order and all are completed.
// A Planned trip with no orders stays Planned.
func DeriveTripStatus(current TripStatus, linked, completed int) TripStatus {
	if linked > 0 && completed == linked {
		return TripDelivered
	}
	if linked == 0 && current == TripPlanned {
		return TripPlanned
	}
	return TripInProgress
}

// TripSummary holds the aggregates of a trip. It is always derived.
type TripSummary struct {
	TripID         int64           `json:"trip_id"`
	TripName       string          `json:"trip_name"`
	Status         TripStatus      `json:"status"`
	OrderCount     int             `json:"order_count"`
	CompletedCount int             `json:"completed_count"`
	Revenue        decimal.Decimal `json:"revenue"`
	Cost           decimal.Decimal `json:"cost"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	Expenses       decimal.Decimal `json:"expenses"`
	NetProfit      decimal.Decimal `json:"net_profit"`
	Collected      decimal.Decimal `json:"collected"`
	Outstanding    decimal.Decimal `json:"outstanding"`
}

// Summarize aggregates a trip's orders and expenses.
func Summarize(t *Trip, orders []*Order, expenses []*TripExpense) TripSummary {
	s := TripSummary{
		TripID:      t.ID,
		TripName:    t.TripName,
		Status:      t.Status,
		Revenue:     decimal.Zero,
		Cost:        decimal.Zero,
		Expenses:    decimal.Zero,
		Collected:   decimal.Zero,
		Outstanding: decimal.Zero,
	}
	for _, o := range orders {
		o.Recalculate()
		s.OrderCount++
		if o.Status == OrderCompleted {
			s.CompletedCount++
		}
		s.Revenue = s.Revenue.Add(o.TotalAmount)
		s.Cost = s.Cost.Add(o.TotalAmount.Sub(o.TotalProfit))
		s.Collected = s.Collected.Add(o.PaymentReceived)
		s.Outstanding = s.Outstanding.Add(o.RemainingDebt())
	}
	for _, e := range expenses {
		s.Expenses = s.Expenses.Add(e.Amount)
	}
	s.GrossProfit = s.Revenue.Sub(s.Cost)
	s.NetProfit = s.GrossProfit.Sub(s.Expenses)
	return s
}
