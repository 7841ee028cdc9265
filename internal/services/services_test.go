package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ledger-backend/internal/database"
	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type ledger struct {
	provider   *db.Provider
	gate       *readiness.Gate
	customers  *repositories.CustomerRepository
	products   *repositories.ProductRepository
	suppliers  *repositories.SupplierRepository
	orders     *repositories.OrderRepository
	trips      *repositories.TripRepository
	expenses   *repositories.TripExpenseRepository
	payments   *repositories.PaymentRepository
	reconciler *ReconciliationService
	transfer   *TransferService
	reports    *ReportService
}

func setupLedger(t *testing.T) *ledger {
	t.Helper()
	p := db.NewProvider(db.Options{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "ledger.db"),
		Migrator: database.NewMigrator(),
	})
	require.NoError(t, p.Open(context.Background()))
	t.Cleanup(func() { p.Close() })

	l := &ledger{provider: p}
	l.gate = readiness.NewGate(p, readiness.Options{Timeout: time.Second, PollInterval: 10 * time.Millisecond})
	l.customers = repositories.NewCustomerRepository(l.gate)
	l.products = repositories.NewProductRepository(l.gate)
	l.suppliers = repositories.NewSupplierRepository(l.gate)
	l.payments = repositories.NewPaymentRepository(l.gate)
	l.orders = repositories.NewOrderRepository(l.gate, l.customers, l.products, l.payments)
	l.expenses = repositories.NewTripExpenseRepository(l.gate)
	l.trips = repositories.NewTripRepository(l.gate, l.orders, l.expenses)

	l.reconciler = NewReconciliationService(l.gate, l.orders, l.trips, l.payments)
	l.orders.SetReconciler(l.reconciler)
	l.payments.SetEngine(l.reconciler)

	l.transfer = &TransferService{
		Gate:      l.gate,
		Customers: l.customers,
		Products:  l.products,
		Suppliers: l.suppliers,
		Orders:    l.orders,
		Trips:     l.trips,
		Expenses:  l.expenses,
		Payments:  l.payments,
	}
	l.reports = NewReportService(l.trips, l.orders, l.expenses, l.payments)
	return l
}

func (l *ledger) customer(t *testing.T, name string) int64 {
	t.Helper()
	id, err := l.customers.Create(context.Background(), &models.Customer{Name: name})
	require.NoError(t, err)
	return id
}

// order creates an order of qty units at the given selling and purchase price.
func (l *ledger) order(t *testing.T, customerID, qty int64, selling, purchase string) int64 {
	t.Helper()
	id, err := l.orders.Create(context.Background(), &models.Order{
		CustomerID: customerID,
		Items: []models.OrderItem{{
			ProductName:   "Cement",
			Qty:           qty,
			SellingPrice:  decimal.RequireFromString(selling),
			PurchasePrice: decimal.RequireFromString(purchase),
		}},
	})
	require.NoError(t, err)
	return id
}

func (l *ledger) trip(t *testing.T, name string) int64 {
	t.Helper()
	id, err := l.trips.Create(context.Background(), &models.Trip{TripName: name})
	require.NoError(t, err)
	return id
}

func (l *ledger) getOrder(t *testing.T, id int64) *models.Order {
	t.Helper()
	o, err := l.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (l *ledger) getTrip(t *testing.T, id int64) *models.Trip {
	t.Helper()
	trip, err := l.trips.GetByID(context.Background(), id)
	require.NoError(t, err)
	return trip
}

func (l *ledger) pay(t *testing.T, orderID, tripID int64, amount string) *models.Payment {
	t.Helper()
	p, err := l.reconciler.ProcessPayment(context.Background(), models.ProcessPaymentRequest{
		OrderID: orderID,
		TripID:  tripID,
		Amount:  decimal.RequireFromString(amount),
		Method:  "cash",
	})
	require.NoError(t, err)
	return p
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
