package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger-backend/internal/apperrors"
)

type TripExpense struct {
	ID          int64           `json:"id"`
	TripID      int64           `json:"trip_id"`
	Type        string          `json:"type"` // fuel, toll, labour...
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

type TripExpensePatch struct {
	Type        *string          `json:"type,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description *string          `json:"description,omitempty"`
	Date        *time.Time       `json:"date,omitempty"`
}

func (e *TripExpense) Validate() error {
	if e.TripID <= 0 {
		return apperrors.Validation("trip_required", "expense requires a trip")
	}
	e.Type = strings.TrimSpace(e.Type)
	if e.Type == "" {
		return apperrors.Validation("expense_type_required", "expense type is required")
	}
	if e.Amount.IsNegative() {
		return apperrors.Validation("expense_amount_non_negative", "expense amount cannot be negative")
	}
	if e.Date.IsZero() {
		return apperrors.Validation("expense_date_required", "expense date is required")
	}
	return nil
}

func (e *TripExpense) Apply(p TripExpensePatch) {
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
}
