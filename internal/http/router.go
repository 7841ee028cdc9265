package http

import (
	"net/http"

	"ledger-backend/internal/handlers"
	"ledger-backend/internal/middleware"
	"ledger-backend/internal/monitoring"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router dispatches to.
type Handlers struct {
	Customers    *handlers.CustomerHandler
	Products     *handlers.ProductHandler
	Suppliers    *handlers.SupplierHandler
	Orders       *handlers.OrderHandler
	Trips        *handlers.TripHandler
	TripExpenses *handlers.TripExpenseHandler
	Payments     *handlers.PaymentHandler
	Debts        *handlers.DebtHandler
	Transfer     *handlers.TransferHandler
	Reports      *handlers.ReportHandler
	Backups      *handlers.BackupHandler
	Health       *handlers.HealthHandler
	Hub          *monitoring.Hub

	// Assets serves the UI shell and static files; normally the cache gateway.
	Assets http.Handler
}

func NewRouter(h Handlers) *mux.Router {
	r := mux.NewRouter()
	// Runs after matching so metrics are labelled by route template
	r.Use(middleware.MetricsMiddleware)

	// Health and metrics
	r.HandleFunc("/health", h.Health.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", h.Health.ReadinessHealth).Methods("GET")
	r.HandleFunc("/health/detailed", h.Health.DetailedHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Customers
	api.HandleFunc("/customers", h.Customers.ListCustomers).Methods("GET")
	api.HandleFunc("/customers", h.Customers.CreateCustomer).Methods("POST")
	api.HandleFunc("/customers/{id:[0-9]+}", h.Customers.GetCustomer).Methods("GET")
	api.HandleFunc("/customers/{id:[0-9]+}", h.Customers.UpdateCustomer).Methods("PUT", "PATCH")
	api.HandleFunc("/customers/{id:[0-9]+}", h.Customers.DeleteCustomer).Methods("DELETE")
	api.HandleFunc("/customers/{id:[0-9]+}/orders", h.Customers.ListCustomerOrders).Methods("GET")

	// Products
	api.HandleFunc("/products", h.Products.ListProducts).Methods("GET")
	api.HandleFunc("/products", h.Products.CreateProduct).Methods("POST")
	api.HandleFunc("/products/{id:[0-9]+}", h.Products.GetProduct).Methods("GET")
	api.HandleFunc("/products/{id:[0-9]+}", h.Products.UpdateProduct).Methods("PUT", "PATCH")
	api.HandleFunc("/products/{id:[0-9]+}", h.Products.DeleteProduct).Methods("DELETE")

	// Suppliers
	api.HandleFunc("/suppliers", h.Suppliers.ListSuppliers).Methods("GET")
	api.HandleFunc("/suppliers", h.Suppliers.CreateSupplier).Methods("POST")
	api.HandleFunc("/suppliers/{id:[0-9]+}", h.Suppliers.GetSupplier).Methods("GET")
	api.HandleFunc("/suppliers/{id:[0-9]+}", h.Suppliers.UpdateSupplier).Methods("PUT", "PATCH")
	api.HandleFunc("/suppliers/{id:[0-9]+}", h.Suppliers.DeleteSupplier).Methods("DELETE")

	// Orders
	api.HandleFunc("/orders", h.Orders.ListOrders).Methods("GET")
	api.HandleFunc("/orders", h.Orders.CreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}", h.Orders.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", h.Orders.UpdateOrder).Methods("PUT", "PATCH")
	api.HandleFunc("/orders/{id:[0-9]+}", h.Orders.DeleteOrder).Methods("DELETE")
	api.HandleFunc("/orders/{id:[0-9]+}/unlink", h.Orders.UnlinkOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/reconcile", h.Orders.ReconcileOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/payments", h.Orders.ListOrderPayments).Methods("GET")

	// Trips
	api.HandleFunc("/trips", h.Trips.ListTrips).Methods("GET")
	api.HandleFunc("/trips", h.Trips.CreateTrip).Methods("POST")
	api.HandleFunc("/trips/{id:[0-9]+}", h.Trips.GetTrip).Methods("GET")
	api.HandleFunc("/trips/{id:[0-9]+}", h.Trips.UpdateTrip).Methods("PUT", "PATCH")
	api.HandleFunc("/trips/{id:[0-9]+}", h.Trips.DeleteTrip).Methods("DELETE")
	api.HandleFunc("/trips/{id:[0-9]+}/orders", h.Trips.ListTripOrders).Methods("GET")
	api.HandleFunc("/trips/{id:[0-9]+}/orders", h.Trips.LinkOrders).Methods("POST")
	api.HandleFunc("/trips/{id:[0-9]+}/expenses", h.Trips.ListTripExpenses).Methods("GET")
	api.HandleFunc("/trips/{id:[0-9]+}/recompute", h.Trips.RecomputeTrip).Methods("POST")
	api.HandleFunc("/trips/{id:[0-9]+}/summary", h.Trips.GetTripSummary).Methods("GET")

	// Trip expenses
	api.HandleFunc("/trip-expenses", h.TripExpenses.ListExpenses).Methods("GET")
	api.HandleFunc("/trip-expenses", h.TripExpenses.CreateExpense).Methods("POST")
	api.HandleFunc("/trip-expenses/{id:[0-9]+}", h.TripExpenses.GetExpense).Methods("GET")
	api.HandleFunc("/trip-expenses/{id:[0-9]+}", h.TripExpenses.UpdateExpense).Methods("PUT", "PATCH")
	api.HandleFunc("/trip-expenses/{id:[0-9]+}", h.TripExpenses.DeleteExpense).Methods("DELETE")

	// Payments (append-only)
	api.HandleFunc("/payments", h.Payments.ListPayments).Methods("GET")
	api.HandleFunc("/payments", h.Payments.ProcessPayment).Methods("POST")
	api.HandleFunc("/payments/{id:[0-9]+}", h.Payments.GetPayment).Methods("GET")
	api.HandleFunc("/payments/{id:[0-9]+}", h.Payments.UpdatePayment).Methods("PUT", "PATCH")
	api.HandleFunc("/payments/{id:[0-9]+}", h.Payments.DeletePayment).Methods("DELETE")
	api.HandleFunc("/payments/{id:[0-9]+}/reverse", h.Payments.ReversePayment).Methods("POST")

	// Debts and reconciliation
	api.HandleFunc("/debts", h.Debts.GetDebts).Methods("GET")
	api.HandleFunc("/reconcile", h.Debts.ReconcileAll).Methods("POST")

	// Import / export
	api.HandleFunc("/export", h.Transfer.Snapshot).Methods("GET")
	api.HandleFunc("/export/{store}", h.Transfer.Export).Methods("GET")
	api.HandleFunc("/import/{store}", h.Transfer.Import).Methods("POST")

	// Reports
	api.HandleFunc("/reports/trips/{id:[0-9]+}.pdf", h.Reports.GetTripStatementPDF).Methods("GET")
	api.HandleFunc("/reports/debts.csv", h.Reports.GetDebtsCSV).Methods("GET")

	// Backups
	api.HandleFunc("/backups", h.Backups.ListBackups).Methods("GET")
	api.HandleFunc("/backups", h.Backups.CreateBackup).Methods("POST")

	// Monitoring
	if h.Hub != nil {
		api.HandleFunc("/monitoring/stats", h.Hub.HandleStats).Methods("GET")
		api.HandleFunc("/monitoring/alerts", h.Hub.HandleAlerts).Methods("GET")
		r.HandleFunc("/ws", h.Hub.HandleWebSocket)
	}

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found","code":"NOT_FOUND"}`))
	})

	// UI shell and static assets, cache-first
	if h.Assets != nil {
		r.PathPrefix("/").Handler(h.Assets).Methods("GET", "HEAD")
	}

	return r
}
