package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripStatement(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	customerID := l.customer(t, "Ravi")
	tripID := l.trip(t, "North")
	a := l.order(t, customerID, 2, "100", "70")
	b := l.order(t, customerID, 1, "300", "250")
	_, err := l.expenses.Create(ctx, &models.TripExpense{TripID: tripID, Type: "fuel", Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	_, err = l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{a, b})
	require.NoError(t, err)
	l.pay(t, a, tripID, "200")

	st, err := l.reports.GetTripStatement(ctx, tripID)
	require.NoError(t, err)
	assert.Len(t, st.Orders, 2)
	assert.Len(t, st.Expenses, 1)
	assert.Len(t, st.Payments, 1)
	assert.True(t, amount("500").Equal(st.Summary.Revenue))
	assert.True(t, amount("70").Equal(st.Summary.NetProfit))
	assert.True(t, amount("300").Equal(st.Summary.Outstanding))

	pdf, err := l.reports.TripStatementPDF(ctx, tripID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, err = l.reports.TripStatementPDF(ctx, 404)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRenderEmptyTripStatement(t *testing.T) {
	trip := &models.Trip{ID: 1, TripName: "Empty", Status: models.TripPlanned}
	pdf, err := RenderTripStatement(&TripStatement{Trip: trip, Summary: models.Summarize(trip, nil, nil)})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestDebtsCSV(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	customerID := l.customer(t, "Ravi")
	tripID := l.trip(t, "North")
	open := l.order(t, customerID, 1, "100", "80")
	settled := l.order(t, customerID, 1, "50", "40")
	l.order(t, customerID, 1, "75", "60")
	_, err := l.reconciler.LinkOrdersToTrip(ctx, tripID, []int64{open, settled})
	require.NoError(t, err)
	l.pay(t, open, tripID, "25.5")
	l.pay(t, settled, tripID, "50")

	var buf bytes.Buffer
	require.NoError(t, l.reports.WriteDebtsCSV(ctx, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Order ID", "Customer ID", "Customer", "Order Date", "Status", "Trip ID", "Total", "Received", "Debt"}, rows[0])

	var linkedRow []string
	for _, row := range rows[1:] {
		if row[5] != "" {
			linkedRow = row
		}
		assert.Equal(t, "Ravi", row[2])
	}
	require.NotNil(t, linkedRow)
	assert.Equal(t, "InTransit", linkedRow[4])
	assert.Equal(t, "100.00", linkedRow[6])
	assert.Equal(t, "25.50", linkedRow[7])
	assert.Equal(t, "74.50", linkedRow[8])
}
