package services

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/cache"
	"ledger-backend/internal/db"
	"ledger-backend/internal/metrics"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/repositories"
	"ledger-backend/internal/timeutil"
)

// ReconciliationService keeps order status, trip status and received totals
// consistent. Every operation reads and writes inside one transaction.
type ReconciliationService struct {
	Gate     readiness.HandleSource
	Orders   *repositories.OrderRepository
	Trips    *repositories.TripRepository
	Payments *repositories.PaymentRepository

	events repositories.EventSink
}

func NewReconciliationService(gate readiness.HandleSource, orders *repositories.OrderRepository,
	trips *repositories.TripRepository, payments *repositories.PaymentRepository) *ReconciliationService {
	return &ReconciliationService{Gate: gate, Orders: orders, Trips: trips, Payments: payments}
}

func (s *ReconciliationService) SetEventSink(sink repositories.EventSink) {
	s.events = sink
}

// ReconcileReport summarizes a full reconciliation pass.
type ReconcileReport struct {
	OrdersChecked  int `json:"orders_checked"`
	OrdersRepaired int `json:"orders_repaired"`
	TripsChecked   int `json:"trips_checked"`
	TripsUpdated   int `json:"trips_updated"`
}

func (s *ReconciliationService) run(ctx context.Context, op string, scope []db.Store, fn func(*db.Tx) error) error {
	h, err := s.Gate.AwaitHandle(ctx, scope[0])
	if err != nil {
		metrics.ReconcileOperations.WithLabelValues(op, "unavailable").Inc()
		return err
	}
	err = h.Update(ctx, scope, fn)
	result := "ok"
	if err != nil {
		result = string(apperrors.CodeOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.ReconcileOperations.WithLabelValues(op, result).Inc()
	return err
}

func (s *ReconciliationService) publish(store db.Store, action string, id int64) {
	if s.events == nil {
		return
	}
	s.events.Publish(models.ChangeEvent{Type: "change", Store: string(store), Action: action, ID: id, At: timeutil.Now()})
}

// LinkOrdersToTrip assigns every listed order to the trip. If any order is
// missing or not eligible nothing is changed and the rejected orders are
// reported.
func (s *ReconciliationService) LinkOrdersToTrip(ctx context.Context, tripID int64, orderIDs []int64) ([]*models.Order, error) {
	ids := uniqueIDs(orderIDs)
	if len(ids) == 0 {
		return nil, apperrors.Validation("order_ids_required", "at least one order is required")
	}

	var linked []*models.Order
	err := s.run(ctx, "link", []db.Store{db.StoreOrders, db.StoreTrips}, func(tx *db.Tx) error {
		trip, err := s.Trips.GetTx(ctx, tx, tripID)
		if err != nil {
			return err
		}

		var rejected []apperrors.Rejection
		orders := make([]*models.Order, 0, len(ids))
		for _, id := range ids {
			o, err := s.Orders.GetTx(ctx, tx, id)
			if apperrors.IsNotFound(err) {
				rejected = append(rejected, apperrors.Rejection{ID: id, Reason: "order not found"})
				continue
			}
			if err != nil {
				return err
			}
			if !o.Eligible() {
				rejected = append(rejected, apperrors.Rejection{ID: id, Reason: ineligibleReason(o)})
				continue
			}
			orders = append(orders, o)
		}
		if len(rejected) > 0 {
			return apperrors.Reconciliation("order_not_eligible",
				fmt.Sprintf("%d of %d orders cannot be linked to trip %d", len(rejected), len(ids), tripID), rejected)
		}

		for _, o := range orders {
			o.DeliveredTripID = &tripID
			settleStatus(o)
			if err := s.Orders.SaveTx(ctx, tx, o); err != nil {
				return err
			}
		}
		linked = orders
		_, err = s.recomputeTx(ctx, tx, trip)
		return err
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateTripSummaries(ctx, tripID)
	for _, o := range linked {
		s.publish(db.StoreOrders, "linked", o.ID)
	}
	s.publish(db.StoreTrips, "recomputed", tripID)
	log.Printf("[Reconcile] linked %d orders to trip %d", len(linked), tripID)
	return linked, nil
}

func ineligibleReason(o *models.Order) string {
	if o.DeliveredTripID != nil {
		return fmt.Sprintf("already linked to trip %d", *o.DeliveredTripID)
	}
	return fmt.Sprintf("status %s is not assignable", o.Status)
}

// UnlinkOrderFromTrip returns an order to PendingAssignment. Its payments are
// kept and the old trip is recomputed.
func (s *ReconciliationService) UnlinkOrderFromTrip(ctx context.Context, orderID int64) (*models.Order, error) {
	var order *models.Order
	var oldTrip int64
	err := s.run(ctx, "unlink", []db.Store{db.StoreOrders, db.StoreTrips}, func(tx *db.Tx) error {
		o, err := s.Orders.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !o.IsLinked() {
			return apperrors.Validation("order_not_linked", "order %d is not on a trip", orderID)
		}
		if o.Status == models.OrderCompleted {
			return apperrors.Validation("order_completed",
				"order %d is completed and cannot be removed from its trip", orderID)
		}
		oldTrip = *o.DeliveredTripID
		o.DeliveredTripID = nil
		o.Status = models.OrderPendingAssignment
		if err := s.Orders.SaveTx(ctx, tx, o); err != nil {
			return err
		}
		order = o

		trip, err := s.Trips.GetTx(ctx, tx, oldTrip)
		if apperrors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = s.recomputeTx(ctx, tx, trip)
		return err
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateTripSummaries(ctx, oldTrip)
	s.publish(db.StoreOrders, "unlinked", orderID)
	s.publish(db.StoreTrips, "recomputed", oldTrip)
	return order, nil
}

// ProcessPayment appends a payment for an order on the given trip. The
// amount must be positive and cannot exceed the remaining debt.
func (s *ReconciliationService) ProcessPayment(ctx context.Context, req models.ProcessPaymentRequest) (*models.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.Validation("payment_amount_positive", "payment amount must be greater than zero")
	}

	var payment *models.Payment
	err := s.run(ctx, "payment", []db.Store{db.StoreOrders, db.StorePayments, db.StoreTrips}, func(tx *db.Tx) error {
		o, err := s.Orders.GetTx(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if o.DeliveredTripID == nil || *o.DeliveredTripID != req.TripID {
			return apperrors.Validation("order_not_on_trip",
				"order %d is not linked to trip %d", req.OrderID, req.TripID)
		}

		history, err := s.Payments.ListByOrderTx(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		o.PaymentReceived = models.SumPayments(history)
		o.Recalculate()
		remaining := o.RemainingDebt()
		if req.Amount.GreaterThan(remaining) {
			return apperrors.Validation("payment_exceeds_debt",
				"payment %s exceeds remaining debt %s of order %d", req.Amount, remaining, o.ID)
		}

		p := &models.Payment{
			OrderID: o.ID,
			TripID:  req.TripID,
			Amount:  req.Amount,
			Method:  req.Method,
			Note:    req.Note,
			Kind:    models.PaymentKindPayment,
			PaidAt:  timeutil.Now(),
		}
		if _, err := s.Payments.InsertTx(ctx, tx, p); err != nil {
			return err
		}
		payment = p

		o.PaymentReceived = o.PaymentReceived.Add(req.Amount)
		settleStatus(o)
		if err := s.Orders.SaveTx(ctx, tx, o); err != nil {
			return err
		}
		return s.recomputeByID(ctx, tx, req.TripID)
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateTripSummaries(ctx, req.TripID)
	s.publish(db.StorePayments, "paid", payment.ID)
	s.publish(db.StoreOrders, "updated", req.OrderID)
	s.publish(db.StoreTrips, "recomputed", req.TripID)
	return payment, nil
}

// ReversePayment appends the compensating entry of a payment. The order
// falls back to InTransit when it is no longer fully paid.
func (s *ReconciliationService) ReversePayment(ctx context.Context, paymentID int64, note string) (*models.Payment, error) {
	var reversal *models.Payment
	var tripID *int64
	err := s.run(ctx, "reverse", []db.Store{db.StorePayments, db.StoreOrders, db.StoreTrips}, func(tx *db.Tx) error {
		p, err := s.Payments.GetTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Kind == models.PaymentKindReversal {
			return apperrors.Validation("cannot_reverse_reversal", "payment %d is itself a reversal", paymentID)
		}
		existing, err := s.Payments.ReversalOfTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.Validation("payment_already_reversed",
				"payment %d was already reversed by entry %d", paymentID, existing.ID)
		}

		o, err := s.Orders.GetTx(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}

		if note == "" {
			note = fmt.Sprintf("reversal of payment %d", paymentID)
		}
		rev := &models.Payment{
			OrderID:           p.OrderID,
			TripID:            p.TripID,
			Amount:            p.Amount,
			Method:            p.Method,
			Note:              note,
			Kind:              models.PaymentKindReversal,
			ReversesPaymentID: &p.ID,
			PaidAt:            timeutil.Now(),
		}
		if _, err := s.Payments.InsertTx(ctx, tx, rev); err != nil {
			return err
		}
		reversal = rev

		history, err := s.Payments.ListByOrderTx(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		o.PaymentReceived = models.SumPayments(history)
		settleStatus(o)
		if err := s.Orders.SaveTx(ctx, tx, o); err != nil {
			return err
		}
		if o.DeliveredTripID == nil {
			return nil
		}
		tripID = o.DeliveredTripID
		return s.recomputeByID(ctx, tx, *o.DeliveredTripID)
	})
	if err != nil {
		return nil, err
	}

	s.publish(db.StorePayments, "reversed", reversal.ID)
	s.publish(db.StoreOrders, "updated", reversal.OrderID)
	if tripID != nil {
		cache.InvalidateTripSummaries(ctx, *tripID)
		s.publish(db.StoreTrips, "recomputed", *tripID)
	}
	return reversal, nil
}

// RecomputeTripStatus derives the trip status from its linked orders. It is
// idempotent and only writes when the status changes.
func (s *ReconciliationService) RecomputeTripStatus(ctx context.Context, tripID int64) (*models.Trip, error) {
	var trip *models.Trip
	changed := false
	err := s.run(ctx, "recompute", []db.Store{db.StoreTrips, db.StoreOrders}, func(tx *db.Tx) error {
		t, err := s.Trips.GetTx(ctx, tx, tripID)
		if err != nil {
			return err
		}
		changed, err = s.recomputeTx(ctx, tx, t)
		trip = t
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		cache.InvalidateTripSummaries(ctx, tripID)
		s.publish(db.StoreTrips, "recomputed", tripID)
	}
	return trip, nil
}

// ReconcileOrder rebuilds an order's received total from its payment entries
// and re-derives its status and its trip's status.
func (s *ReconciliationService) ReconcileOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order *models.Order
	repaired := false
	err := s.run(ctx, "reconcile_order", []db.Store{db.StoreOrders, db.StorePayments, db.StoreTrips}, func(tx *db.Tx) error {
		o, err := s.Orders.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		history, err := s.Payments.ListByOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		repaired, err = s.repairTx(ctx, tx, o, models.SumPayments(history))
		order = o
		if err != nil || o.DeliveredTripID == nil {
			return err
		}
		return s.recomputeByID(ctx, tx, *o.DeliveredTripID)
	})
	if err != nil {
		return nil, err
	}
	if repaired {
		log.Printf("[Reconcile] order %d repaired, received=%s status=%s", order.ID, order.PaymentReceived, order.Status)
		if order.DeliveredTripID != nil {
			cache.InvalidateTripSummaries(ctx, *order.DeliveredTripID)
		}
		s.publish(db.StoreOrders, "updated", order.ID)
	}
	return order, nil
}

// ReconcileAll repairs every order and recomputes every trip in one transaction.
func (s *ReconciliationService) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	err := s.run(ctx, "reconcile_all", []db.Store{db.StoreOrders, db.StorePayments, db.StoreTrips}, func(tx *db.Tx) error {
		*report = ReconcileReport{}
		orders, err := s.Orders.ListTx(ctx, tx)
		if err != nil {
			return err
		}
		sums, err := s.Payments.SumsByOrderTx(ctx, tx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			report.OrdersChecked++
			repaired, err := s.repairTx(ctx, tx, o, sums[o.ID])
			if err != nil {
				return err
			}
			if repaired {
				report.OrdersRepaired++
			}
		}

		trips, err := s.Trips.ListTx(ctx, tx)
		if err != nil {
			return err
		}
		for _, t := range trips {
			report.TripsChecked++
			changed, err := s.recomputeTx(ctx, tx, t)
			if err != nil {
				return err
			}
			if changed {
				report.TripsUpdated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if report.OrdersRepaired > 0 || report.TripsUpdated > 0 {
		cache.InvalidateTripSummaries(ctx)
	}
	log.Printf("[Reconcile] checked %d orders (%d repaired), %d trips (%d updated)",
		report.OrdersChecked, report.OrdersRepaired, report.TripsChecked, report.TripsUpdated)
	return report, nil
}

// repairTx sets the received total to the ledger sum and re-derives status.
// It writes only when something changed.
func (s *ReconciliationService) repairTx(ctx context.Context, tx *db.Tx, o *models.Order, received decimal.Decimal) (bool, error) {
	before := o.PaymentReceived
	beforeStatus := o.Status

	o.PaymentReceived = received
	settleStatus(o)
	if o.PaymentReceived.Equal(before) && o.Status == beforeStatus {
		return false, nil
	}
	if err := s.Orders.SaveTx(ctx, tx, o); err != nil {
		return false, err
	}
	metrics.DriftRepairs.Inc()
	return true, nil
}

func (s *ReconciliationService) recomputeByID(ctx context.Context, tx *db.Tx, tripID int64) error {
	t, err := s.Trips.GetTx(ctx, tx, tripID)
	if err != nil {
		return err
	}
	_, err = s.recomputeTx(ctx, tx, t)
	return err
}

func (s *ReconciliationService) recomputeTx(ctx context.Context, tx *db.Tx, t *models.Trip) (bool, error) {
	return recomputeTrip(ctx, tx, s.Orders, s.Trips, t)
}

// recomputeTrip re-derives the trip status from its linked orders and writes
// it only when it changed.
func recomputeTrip(ctx context.Context, tx *db.Tx, orders *repositories.OrderRepository,
	trips *repositories.TripRepository, t *models.Trip) (bool, error) {
	linked, err := orders.ListByTripTx(ctx, tx, t.ID)
	if err != nil {
		return false, err
	}
	next := models.DeriveTripStatus(t.Status, len(linked), countCompleted(linked))
	if next == t.Status {
		return false, nil
	}
	t.Status = next
	return true, trips.SaveTx(ctx, tx, t)
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

// settleStatus derives the status of an order from its trip link and payments.
func settleStatus(o *models.Order) {
	o.Recalculate()
	if o.DeliveredTripID == nil {
		if !o.Status.Assignable() {
			o.Status = models.OrderPendingAssignment
		}
		return
	}
	if o.FullyPaid() {
		o.Status = models.OrderCompleted
	} else {
		o.Status = models.OrderInTransit
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
