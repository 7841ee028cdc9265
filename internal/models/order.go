package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger-backend/internal/apperrors"
)

type OrderStatus string

const (
	OrderNew               OrderStatus = "New"
	OrderPendingAssignment OrderStatus = "PendingAssignment"
	OrderInTransit         OrderStatus = "InTransit"
	OrderCompleted         OrderStatus = "Completed"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderNew, OrderPendingAssignment, OrderInTransit, OrderCompleted:
		return true
	}
	return false
}

// Assignable reports whether an order in this status may be linked to a trip.
// Every status the intake flow produces must be listed here.
func (s OrderStatus) Assignable() bool {
	return s == OrderNew || s == OrderPendingAssignment
}

// OrderItem is one line of an order. ProductName and SupplierName are
// snapshots taken at order time; ProductID may point at a removed product.
type OrderItem struct {
	ProductID     *int64          `json:"product_id,omitempty"`
	ProductName   string          `json:"product_name"`
	SupplierName  string          `json:"supplier_name,omitempty"`
	Qty           int64           `json:"qty"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

func (it OrderItem) Amount() decimal.Decimal {
	return it.SellingPrice.Mul(decimal.NewFromInt(it.Qty))
}

func (it OrderItem) Cost() decimal.Decimal {
	return it.PurchasePrice.Mul(decimal.NewFromInt(it.Qty))
}

type Order struct {
	ID              int64           `json:"id"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name"` // snapshot, survives customer removal
	OrderDate       time.Time       `json:"order_date"`
	Status          OrderStatus     `json:"status"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	DeliveredTripID *int64          `json:"delivered_trip_id"`
	PaymentReceived decimal.Decimal `json:"payment_received"`
	Debt            decimal.Decimal `json:"debt"` // derived
	Notes           string          `json:"notes"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderPatch carries the caller-editable fields of an order. Totals, trip
// linkage and payments are never accepted from callers.
type OrderPatch struct {
	CustomerID      *int64       `json:"customer_id,omitempty"`
	OrderDate       *time.Time   `json:"order_date,omitempty"`
	Status          *OrderStatus `json:"status,omitempty"`
	Items           *[]OrderItem `json:"items,omitempty"`
	Notes           *string      `json:"notes,omitempty"`
	ExpectedVersion *int64       `json:"version,omitempty"`
}

// Recalculate derives totals and debt from the items and the received amount.
func (o *Order) Recalculate() {
	total := decimal.Zero
	cost := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Amount())
		cost = cost.Add(it.Cost())
	}
	o.TotalAmount = total
	o.TotalProfit = total.Sub(cost)
	o.Debt = o.RemainingDebt()
}

// RemainingDebt is max(0, total - paymentReceived).
func (o *Order) RemainingDebt() decimal.Decimal {
	d := o.TotalAmount.Sub(o.PaymentReceived)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func (o *Order) IsLinked() bool {
	return o.DeliveredTripID != nil
}

// Eligible reports whether the order can be linked to a trip.
func (o *Order) Eligible() bool {
	return o.Status.Assignable() && o.DeliveredTripID == nil
}

// FullyPaid reports whether payments cover the total.
func (o *Order) FullyPaid() bool {
	return o.PaymentReceived.GreaterThanOrEqual(o.TotalAmount)
}

// CheckLinkage verifies that a trip reference is present exactly when the
// order is in transit or completed.
func (o *Order) CheckLinkage() error {
	inTrip := o.Status == OrderInTransit || o.Status == OrderCompleted
	if inTrip != (o.DeliveredTripID != nil) {
		return apperrors.Validation("trip_link_status_mismatch",
			"order status %s does not match trip link", o.Status)
	}
	return nil
}

// Validate recalculates totals and checks every order invariant.
func (o *Order) Validate() error {
	if o.CustomerID <= 0 {
		return apperrors.Validation("customer_required", "order requires a customer")
	}
	if !o.Status.Valid() {
		return apperrors.Validation("order_status_invalid", "unknown order status %q", o.Status)
	}
	if len(o.Items) == 0 {
		return apperrors.Validation("items_required", "order requires at least one item")
	}
	for i := range o.Items {
		it := &o.Items[i]
		it.ProductName = strings.TrimSpace(it.ProductName)
		if it.ProductName == "" {
			return apperrors.Validation("item_product_required", "item %d has no product name", i+1)
		}
		if it.Qty <= 0 {
			return apperrors.Validation("item_qty_positive", "item %d quantity must be greater than zero", i+1)
		}
		if it.SellingPrice.IsNegative() || it.PurchasePrice.IsNegative() {
			return apperrors.Validation("item_price_non_negative", "item %d prices cannot be negative", i+1)
		}
	}
	if o.OrderDate.IsZero() {
		return apperrors.Validation("order_date_required", "order date is required")
	}
	o.Recalculate()
	if o.PaymentReceived.IsNegative() {
		return apperrors.Validation("payment_non_negative", "payment received cannot be negative")
	}
	if o.PaymentReceived.GreaterThan(o.TotalAmount) {
		return apperrors.Validation("payment_exceeds_total",
			"payment received %s exceeds order total %s", o.PaymentReceived, o.TotalAmount)
	}
	return o.CheckLinkage()
}

// Apply merges a caller patch. Status may only move between the
// not-yet-assigned statuses; the rest is owned by reconciliation.
func (o *Order) Apply(p OrderPatch) error {
	if p.CustomerID != nil && *p.CustomerID != o.CustomerID {
		return apperrors.Validation("customer_immutable", "the customer of an order cannot be changed")
	}
	if p.Status != nil && *p.Status != o.Status {
		if !p.Status.Assignable() || !o.Status.Assignable() {
			return apperrors.Validation("status_managed_by_reconciliation",
				"order status %s cannot be set to %s directly", o.Status, *p.Status)
		}
		o.Status = *p.Status
	}
	if p.Items != nil {
		if o.IsLinked() {
			return apperrors.Validation("order_locked_in_trip", "items of an order on a trip cannot be changed")
		}
		o.Items = append([]OrderItem(nil), (*p.Items)...)
	}
	if p.OrderDate != nil {
		o.OrderDate = *p.OrderDate
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	return nil
}

// DebtView is a read-only projection of an order's outstanding balance.
type DebtView struct {
	OrderID         int64           `json:"order_id"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	OrderDate       time.Time       `json:"order_date"`
	Status          OrderStatus     `json:"status"`
	TripID          *int64          `json:"trip_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentReceived decimal.Decimal `json:"payment_received"`
	Debt            decimal.Decimal `json:"debt"`
}

func NewDebtView(o *Order) DebtView {
	return DebtView{
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		CustomerName:    o.CustomerName,
		OrderDate:       o.OrderDate,
		Status:          o.Status,
		TripID:          o.DeliveredTripID,
		TotalAmount:     o.TotalAmount,
		PaymentReceived: o.PaymentReceived,
		Debt:            o.RemainingDebt(),
	}
}
