package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/db"
	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportCustomers(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	first := l.customer(t, "Ravi")
	l.customer(t, "Meena")

	var buf bytes.Buffer
	n, err := l.transfer.Export(ctx, db.StoreCustomers, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var exported []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &exported))
	require.Len(t, exported, 2)
	assert.Contains(t, exported[0], "created_at")

	res, err := l.transfer.Import(ctx, db.StoreCustomers, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, "customers", res.Store)
	for _, id := range res.IDs {
		assert.Greater(t, id, int64(2))
	}

	all, err := l.customers.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	original, err := l.customers.GetByID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", original.Name)
}

func TestImportOrderRestoresDatesAndResetsPayments(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	customerID := l.customer(t, "Ravi")
	tripID := l.trip(t, "North")

	orderDate := time.Date(2024, 3, 5, 9, 15, 0, 0, time.UTC)
	orderID, err := l.orders.Create(ctx, &models.Order{
		CustomerID: customerID,
		OrderDate:  orderDate,
		Items:      []models.OrderItem{{ProductName: "Cement", Qty: 2, SellingPrice: amount("50"), PurchasePrice: amount("40")}},
	})
	require.NoError(t, err)
	_, err = l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)
	l.pay(t, orderID, tripID, "100")
	require.Equal(t, models.OrderCompleted, l.getOrder(t, orderID).Status)

	var buf bytes.Buffer
	_, err = l.transfer.Export(ctx, db.StoreOrders, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "2024-03-05T09:15:00")

	res, err := l.transfer.Import(ctx, db.StoreOrders, &buf)
	require.NoError(t, err)
	require.Len(t, res.IDs, 1)
	assert.NotEqual(t, orderID, res.IDs[0])

	imported := l.getOrder(t, res.IDs[0])
	assert.True(t, orderDate.Equal(imported.OrderDate))
	assert.True(t, imported.PaymentReceived.IsZero())
	assert.Equal(t, models.OrderInTransit, imported.Status)
	assert.True(t, amount("100").Equal(imported.TotalAmount))
}

func TestImportPaymentsRemapsReversals(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	tripID := l.trip(t, "North")
	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)

	p := l.pay(t, orderID, tripID, "40")
	_, err = l.reconciler.ReversePayment(ctx, p.ID, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = l.transfer.Export(ctx, db.StorePayments, &buf)
	require.NoError(t, err)

	res, err := l.transfer.Import(ctx, db.StorePayments, &buf)
	require.NoError(t, err)
	require.Len(t, res.IDs, 2)

	byID := map[int64]*models.Payment{}
	all, err := l.payments.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for _, entry := range all {
		byID[entry.ID] = entry
	}

	var payment, reversal *models.Payment
	for _, id := range res.IDs {
		entry := byID[id]
		require.NotNil(t, entry)
		if entry.Kind == models.PaymentKindReversal {
			reversal = entry
		} else {
			payment = entry
		}
	}
	require.NotNil(t, payment)
	require.NotNil(t, reversal)
	require.NotNil(t, reversal.ReversesPaymentID)
	assert.Equal(t, payment.ID, *reversal.ReversesPaymentID)
	assert.NotEqual(t, p.ID, payment.ID)

	o := l.getOrder(t, orderID)
	assert.True(t, o.PaymentReceived.IsZero())
}

func TestImportRejectsBadInput(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	_, err := l.transfer.Import(ctx, db.StoreCustomers, strings.NewReader(`{"name":"not an array"}`))
	assert.True(t, apperrors.IsValidation(err))

	_, err = l.transfer.Import(ctx, db.StoreCustomers, strings.NewReader(`not json`))
	assert.True(t, apperrors.IsValidation(err))

	_, err = l.transfer.Import(ctx, db.Store("ghosts"), strings.NewReader(`[]`))
	assert.True(t, apperrors.IsValidation(err))

	_, err = l.transfer.Import(ctx, db.StoreOrders, strings.NewReader(`[{"customer_id": 1, "order_date": 12}]`))
	assert.True(t, apperrors.IsValidation(err))

	// one invalid record rolls back the whole batch
	_, err = l.transfer.Import(ctx, db.StoreCustomers, strings.NewReader(`[{"name":"Ravi"},{"name":""}]`))
	require.Error(t, err)
	all, err := l.customers.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSnapshotCoversEveryStore(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	tripID := l.trip(t, "North")
	_, err := l.expenses.Create(ctx, &models.TripExpense{TripID: tripID, Type: "fuel", Amount: decimal.NewFromInt(25)})
	require.NoError(t, err)
	_, err = l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)
	l.pay(t, orderID, tripID, "10")

	snap, err := l.transfer.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.SchemaVersion)
	assert.Len(t, snap.Customers, 1)
	assert.Len(t, snap.Orders, 1)
	assert.Len(t, snap.Trips, 1)
	assert.Len(t, snap.TripExpenses, 1)
	assert.Len(t, snap.Payments, 1)
	assert.Empty(t, snap.Products)
	assert.Empty(t, snap.Suppliers)
}

func TestImportLinkedOrdersRecomputesTrip(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	orderID := l.order(t, l.customer(t, "Ravi"), 2, "50", "40")
	tripID := l.trip(t, "North")
	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{orderID})
	require.NoError(t, err)
	l.pay(t, orderID, tripID, "100")
	require.Equal(t, models.TripDelivered, l.getTrip(t, tripID).Status)

	var buf bytes.Buffer
	_, err = l.transfer.Export(ctx, db.StoreOrders, &buf)
	require.NoError(t, err)
	res, err := l.transfer.Import(ctx, db.StoreOrders, &buf)
	require.NoError(t, err)
	require.Len(t, res.IDs, 1)
	copyID := res.IDs[0]

	imported := l.getOrder(t, copyID)
	require.NotNil(t, imported.DeliveredTripID)
	assert.Equal(t, tripID, *imported.DeliveredTripID)
	assert.Equal(t, models.OrderInTransit, imported.Status)

	// one of two linked orders is open, so the trip is no longer delivered
	linked, err := l.orders.ListByTrip(ctx, tripID)
	require.NoError(t, err)
	assert.Len(t, linked, 2)
	assert.Equal(t, models.TripInProgress, l.getTrip(t, tripID).Status)

	// the copy can still be settled through the engine
	l.pay(t, copyID, tripID, "100")
	assert.Equal(t, models.OrderCompleted, l.getOrder(t, copyID).Status)
	assert.Equal(t, models.TripDelivered, l.getTrip(t, tripID).Status)
}

func TestImportOrderRejectsMissingTrip(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	customerID := l.customer(t, "Ravi")

	input := fmt.Sprintf(`[{"customer_id": %d, "order_date": "2024-03-05T09:15:00Z", "status": "InTransit",
		"delivered_trip_id": 999, "items": [{"product_name": "Sand", "qty": 1, "selling_price": "10", "purchase_price": "5"}]}]`, customerID)
	_, err := l.transfer.Import(ctx, db.StoreOrders, strings.NewReader(input))
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "order_trip_missing", appErr.Rule)

	all, err := l.orders.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImportPaymentsFollowOrderLinks(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	orderID := l.order(t, l.customer(t, "Ravi"), 1, "100", "80")
	north := l.trip(t, "North")
	south := l.trip(t, "South")
	_, err := l.reconciler.LinkOrdersToTrip(ctx, north, []int64{orderID})
	require.NoError(t, err)

	// a payment naming a trip the order is not on is refused
	wrongTrip := fmt.Sprintf(`[{"order_id": %d, "trip_id": %d, "amount": "40", "method": "cash"}]`, orderID, south)
	_, err = l.transfer.Import(ctx, db.StorePayments, strings.NewReader(wrongTrip))
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "order_not_on_trip", appErr.Rule)

	payments, err := l.payments.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.True(t, l.getOrder(t, orderID).PaymentReceived.IsZero())

	input := fmt.Sprintf(`[
		{"order_id": %[1]d, "trip_id": %[2]d, "amount": "60", "method": "cash", "paid_at": "2024-03-06T10:00:00Z"},
		{"order_id": %[1]d, "trip_id": %[2]d, "amount": "40", "method": "upi", "paid_at": "2024-03-07T10:00:00Z"}
	]`, orderID, north)
	_, err = l.transfer.Import(ctx, db.StorePayments, strings.NewReader(input))
	require.NoError(t, err)

	o := l.getOrder(t, orderID)
	history, err := l.payments.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, models.SumPayments(history).Equal(o.PaymentReceived))
	assert.True(t, amount("100").Equal(o.PaymentReceived))
	assert.Equal(t, models.OrderCompleted, o.Status)
	assert.Equal(t, models.TripDelivered, l.getTrip(t, north).Status)
	assert.Equal(t, models.TripPlanned, l.getTrip(t, south).Status)

	byTrip, err := l.payments.ListByTrip(ctx, north)
	require.NoError(t, err)
	assert.Len(t, byTrip, 2)
}
