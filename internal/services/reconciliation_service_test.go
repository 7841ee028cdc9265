package services

import (
	"context"
	"sync"
	"testing"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/db"
	"ledger-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (e *eventLog) Publish(ev models.ChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Store+":"+ev.Action)
	}
	return out
}

func TestPaymentFlow(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	customerID := l.customer(t, "Ravi")
	orderID := l.order(t, customerID, 10, "50000", "40000")
	tripID := l.trip(t, "North")

	o := l.getOrder(t, orderID)
	assert.True(t, amount("500000").Equal(o.TotalAmount))
	assert.True(t, amount("100000").Equal(o.TotalProfit))

	// link: order goes in transit, trip is not delivered yet
	linked, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)
	require.Len(t, linked, 1)
	o = l.getOrder(t, orderID)
	assert.Equal(t, models.OrderInTransit, o.Status)
	require.NotNil(t, o.DeliveredTripID)
	assert.Equal(t, tripID, *o.DeliveredTripID)
	assert.Equal(t, models.TripInProgress, l.getTrip(t, tripID).Status)

	// first half
	l.pay(t, orderID, tripID, "250000")
	o = l.getOrder(t, orderID)
	assert.True(t, amount("250000").Equal(o.PaymentReceived))
	assert.True(t, amount("250000").Equal(o.Debt))
	assert.Equal(t, models.OrderInTransit, o.Status)
	assert.Equal(t, models.TripInProgress, l.getTrip(t, tripID).Status)

	// second half completes the order and delivers the trip
	l.pay(t, orderID, tripID, "250000")
	o = l.getOrder(t, orderID)
	assert.True(t, amount("500000").Equal(o.PaymentReceived))
	assert.True(t, o.Debt.IsZero())
	assert.Equal(t, models.OrderCompleted, o.Status)
	assert.Equal(t, models.TripDelivered, l.getTrip(t, tripID).Status)

	// anything beyond the remaining debt is rejected without state change
	_, err = l.reconciler.ProcessPayment(ctx, models.ProcessPaymentRequest{OrderID: orderID, TripID: tripID, Amount: amount("1")})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	after := l.getOrder(t, orderID)
	assert.True(t, amount("500000").Equal(after.PaymentReceived))
	assert.Equal(t, o.Version, after.Version)
	history, err := l.payments.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPaymentOverDebtInOneStep(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	tripID := l.trip(t, "North")
	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)

	l.pay(t, orderID, tripID, "60")
	_, err = l.reconciler.ProcessPayment(ctx, models.ProcessPaymentRequest{OrderID: orderID, TripID: tripID, Amount: amount("40.01")})
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "payment_exceeds_debt", appErr.Rule)

	o := l.getOrder(t, orderID)
	assert.True(t, amount("40").Equal(o.Debt))
	assert.False(t, o.Debt.IsNegative())
}

func TestPaymentRequiresLinkAndPositiveAmount(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	tripID := l.trip(t, "North")

	_, err := l.reconciler.ProcessPayment(ctx, models.ProcessPaymentRequest{OrderID: orderID, TripID: tripID, Amount: amount("10")})
	assert.True(t, apperrors.IsValidation(err))

	_, err = l.reconciler.ProcessPayment(ctx, models.ProcessPaymentRequest{OrderID: orderID, TripID: tripID, Amount: amount("0")})
	assert.True(t, apperrors.IsValidation(err))

	_, err = l.reconciler.ProcessPayment(ctx, models.ProcessPaymentRequest{OrderID: 404, TripID: tripID, Amount: amount("1")})
	assert.True(t, apperrors.IsNotFound(err))

	// payments through the repository go through the same engine
	_, err = l.payments.Create(ctx, &models.Payment{OrderID: orderID, TripID: tripID, Amount: amount("10")})
	assert.True(t, apperrors.IsValidation(err))
}

func TestLinkingIsAtomic(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	customerID := l.customer(t, "Ravi")

	a := l.order(t, customerID, 1, "100", "80")
	b := l.order(t, customerID, 1, "100", "80")
	c := l.order(t, customerID, 1, "100", "80")
	first := l.trip(t, "First")
	second := l.trip(t, "Second")

	_, err := l.reconciler.LinkOrdersToTrip(ctx, first, []int64{b})
	require.NoError(t, err)
	aBefore := l.getOrder(t, a)
	cBefore := l.getOrder(t, c)

	_, err = l.reconciler.LinkOrdersToTrip(ctx, second, []int64{a, b, c})
	require.Error(t, err)
	assert.True(t, apperrors.IsReconciliation(err))
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Len(t, appErr.Rejected, 1)
	assert.Equal(t, b, appErr.Rejected[0].ID)

	for _, before := range []*models.Order{aBefore, cBefore} {
		after := l.getOrder(t, before.ID)
		assert.Nil(t, after.DeliveredTripID)
		assert.Equal(t, models.OrderNew, after.Status)
		assert.Equal(t, before.Version, after.Version)
	}
	assert.Equal(t, models.TripPlanned, l.getTrip(t, second).Status)

	bAfter := l.getOrder(t, b)
	require.NotNil(t, bAfter.DeliveredTripID)
	assert.Equal(t, first, *bAfter.DeliveredTripID)
}

func TestLinkingRejectsMissingOrdersAndTrips(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	tripID := l.trip(t, "North")

	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID, 404})
	assert.True(t, apperrors.IsReconciliation(err))
	assert.Nil(t, l.getOrder(t, orderID).DeliveredTripID)

	_, err = l.reconciler.LinkOrdersToTrip(ctx, 404, []int64{orderID})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = l.reconciler.LinkOrdersToTrip(ctx, tripID, nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestTripStatusWithManyOrders(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	customerID := l.customer(t, "Ravi")
	tripID := l.trip(t, "North")

	// zero orders
	trip, err := l.reconciler.RecomputeTripStatus(ctx, tripID)
	require.NoError(t, err)
	assert.Equal(t, models.TripPlanned, trip.Status)

	ids := []int64{
		l.order(t, customerID, 1, "100", "80"),
		l.order(t, customerID, 1, "200", "150"),
		l.order(t, customerID, 1, "300", "250"),
	}
	_, err = l.reconciler.LinkOrdersToTrip(ctx, tripID, ids)
	require.NoError(t, err)

	l.pay(t, ids[0], tripID, "100")
	l.pay(t, ids[1], tripID, "200")
	assert.Equal(t, models.TripInProgress, l.getTrip(t, tripID).Status)

	l.pay(t, ids[2], tripID, "300")
	assert.Equal(t, models.TripDelivered, l.getTrip(t, tripID).Status)

	summary, err := l.trips.Summary(ctx, tripID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.OrderCount)
	assert.Equal(t, 3, summary.CompletedCount)
	assert.True(t, amount("600").Equal(summary.Collected))
	assert.True(t, summary.Outstanding.IsZero())
}

func TestUnlinkOrder(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	customerID := l.customer(t, "Ravi")
	tripID := l.trip(t, "North")
	open := l.order(t, customerID, 1, "100", "80")
	paid := l.order(t, customerID, 1, "50", "40")

	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{open, paid})
	require.NoError(t, err)
	l.pay(t, paid, tripID, "50")
	l.pay(t, open, tripID, "30")
	assert.Equal(t, models.TripInProgress, l.getTrip(t, tripID).Status)

	// completed orders stay on their trip
	_, err = l.reconciler.UnlinkOrderFromTrip(ctx, paid)
	assert.True(t, apperrors.IsValidation(err))

	o, err := l.reconciler.UnlinkOrderFromTrip(ctx, open)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPendingAssignment, o.Status)
	assert.Nil(t, o.DeliveredTripID)
	assert.True(t, amount("30").Equal(l.getOrder(t, open).PaymentReceived))

	// the remaining order is completed, so the trip is now delivered
	assert.Equal(t, models.TripDelivered, l.getTrip(t, tripID).Status)

	_, err = l.reconciler.UnlinkOrderFromTrip(ctx, open)
	assert.True(t, apperrors.IsValidation(err))

	// linked orders and orders with payments cannot be removed
	assert.True(t, apperrors.IsValidation(l.orders.Remove(ctx, paid)))
	assert.True(t, apperrors.IsValidation(l.orders.Remove(ctx, open)))
}

func TestReversePayment(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	events := &eventLog{}
	l.reconciler.SetEventSink(events)

	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	tripID := l.trip(t, "North")
	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)

	p := l.pay(t, orderID, tripID, "100")
	assert.Equal(t, models.TripDelivered, l.getTrip(t, tripID).Status)

	rev, err := l.reconciler.ReversePayment(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentKindReversal, rev.Kind)
	require.NotNil(t, rev.ReversesPaymentID)
	assert.Equal(t, p.ID, *rev.ReversesPaymentID)
	assert.Contains(t, rev.Note, "reversal of payment")

	o := l.getOrder(t, orderID)
	assert.True(t, o.PaymentReceived.IsZero())
	assert.True(t, amount("100").Equal(o.Debt))
	assert.Equal(t, models.OrderInTransit, o.Status)
	assert.Equal(t, models.TripInProgress, l.getTrip(t, tripID).Status)

	_, err = l.reconciler.ReversePayment(ctx, p.ID, "")
	assert.True(t, apperrors.IsValidation(err))
	_, err = l.reconciler.ReversePayment(ctx, rev.ID, "")
	assert.True(t, apperrors.IsValidation(err))
	_, err = l.reconciler.ReversePayment(ctx, 404, "")
	assert.True(t, apperrors.IsNotFound(err))

	// the ledger keeps both entries
	history, err := l.payments.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	assert.Contains(t, events.actions(), "payments:reversed")
	assert.Contains(t, events.actions(), "orders:linked")
}

func TestRemovingPaymentRecordsReversal(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	tripID := l.trip(t, "North")
	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)
	p := l.pay(t, orderID, tripID, "40")

	require.NoError(t, l.payments.Remove(ctx, p.ID))

	all, err := l.payments.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, l.getOrder(t, orderID).PaymentReceived.IsZero())
}

func TestDriftIsRepairedOnRead(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	tripID := l.trip(t, "North")
	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)
	l.pay(t, orderID, tripID, "40")

	corrupt := func() {
		h := l.provider.HandleIfReady()
		err := h.Update(ctx, []db.Store{db.StoreOrders}, func(tx *db.Tx) error {
			_, err := tx.Exec(ctx, db.StoreOrders, `UPDATE orders SET payment_received = '100', status = 'Completed' WHERE id = ?`, orderID)
			return err
		})
		require.NoError(t, err)
	}

	corrupt()
	o := l.getOrder(t, orderID)
	assert.True(t, amount("40").Equal(o.PaymentReceived))
	assert.Equal(t, models.OrderInTransit, o.Status)

	corrupt()
	all, err := l.orders.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, amount("40").Equal(all[0].PaymentReceived))

	corrupt()
	report, err := l.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrdersChecked)
	assert.Equal(t, 1, report.OrdersRepaired)
	assert.Equal(t, 1, report.TripsChecked)

	report, err = l.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.OrdersRepaired)
	assert.Equal(t, 0, report.TripsUpdated)
}

func TestLinkingZeroTotalOrderSettlesIt(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	orderID := l.order(t, l.customer(t, "Ravi"), 1, "0", "0")
	tripID := l.trip(t, "Samples")

	linked, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)
	require.Len(t, linked, 1)

	// nothing is owed, so no payment could ever complete it later
	o := l.getOrder(t, orderID)
	assert.Equal(t, models.OrderCompleted, o.Status)
	assert.True(t, o.Debt.IsZero())
	assert.Equal(t, models.TripDelivered, l.getTrip(t, tripID).Status)

	_, err = l.reconciler.ProcessPayment(ctx, models.ProcessPaymentRequest{OrderID: orderID, TripID: tripID, Amount: amount("1")})
	assert.True(t, apperrors.IsValidation(err))
}
