package app

import (
	"context"
	"fmt"
	"log"
	"os"

	"ledger-backend/internal/config"
	"ledger-backend/internal/database"
	"ledger-backend/internal/db"
	"ledger-backend/internal/metrics"
	"ledger-backend/internal/readiness"
	"ledger-backend/internal/repositories"
	"ledger-backend/internal/services"
	"ledger-backend/internal/timeutil"
)

// App holds the storage provider and everything built on top of it. The
// server and ledgerctl share it.
type App struct {
	Config   *config.Config
	Provider *db.Provider
	Gate     *readiness.Gate

	Customers    *repositories.CustomerRepository
	Products     *repositories.ProductRepository
	Suppliers    *repositories.SupplierRepository
	Orders       *repositories.OrderRepository
	Trips        *repositories.TripRepository
	TripExpenses *repositories.TripExpenseRepository
	Payments     *repositories.PaymentRepository

	Reconciler *services.ReconciliationService
	Transfer   *services.TransferService
	Reports    *services.ReportService
	Backups    *services.BackupService
}

// New wires the provider, gate, repositories and services. Nothing is
// opened yet; call Open (possibly from a goroutine) to publish the handle.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := timeutil.SetLocation(cfg.Timezone); err != nil {
		return nil, err
	}

	dialect, err := db.DialectFor(cfg.Storage.Driver)
	if err != nil {
		return nil, err
	}
	if !dialect.IsPostgres() && cfg.Storage.DSN == "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	provider := db.NewProvider(db.Options{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.StorageDSN(),
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		BusyTimeout:  cfg.Storage.BusyTimeout,
		Migrator:     database.NewMigrator(),
	})
	provider.Subscribe(func(s db.Status) {
		metrics.StorageStatus.Set(float64(s))
	})

	gate := readiness.NewGate(provider, readiness.Options{
		Timeout:      cfg.Readiness.Timeout,
		PollInterval: cfg.Readiness.PollInterval,
	})

	a := Wire(gate)
	a.Config = cfg
	a.Provider = provider

	var store services.ObjectStore
	if cfg.Backup.Enabled {
		client, err := services.NewS3Client(ctx, backupOptions(cfg))
		if err != nil {
			log.Printf("[Backup] Disabled: %v", err)
		} else {
			store = client
		}
	}
	a.Backups = services.NewBackupService(a.Transfer, store, backupOptions(cfg))
	return a, nil
}

// Wire builds repositories and services over any handle source.
func Wire(gate readiness.HandleSource) *App {
	a := &App{}
	if g, ok := gate.(*readiness.Gate); ok {
		a.Gate = g
	}

	a.Customers = repositories.NewCustomerRepository(gate)
	a.Products = repositories.NewProductRepository(gate)
	a.Suppliers = repositories.NewSupplierRepository(gate)
	a.Payments = repositories.NewPaymentRepository(gate)
	a.Orders = repositories.NewOrderRepository(gate, a.Customers, a.Products, a.Payments)
	a.TripExpenses = repositories.NewTripExpenseRepository(gate)
	a.Trips = repositories.NewTripRepository(gate, a.Orders, a.TripExpenses)

	a.Reconciler = services.NewReconciliationService(gate, a.Orders, a.Trips, a.Payments)
	a.Orders.SetReconciler(a.Reconciler)
	a.Payments.SetEngine(a.Reconciler)

	a.Transfer = &services.TransferService{
		Gate:      gate,
		Customers: a.Customers,
		Products:  a.Products,
		Suppliers: a.Suppliers,
		Orders:    a.Orders,
		Trips:     a.Trips,
		Expenses:  a.TripExpenses,
		Payments:  a.Payments,
	}
	a.Reports = services.NewReportService(a.Trips, a.Orders, a.TripExpenses, a.Payments)
	a.Backups = services.NewBackupService(a.Transfer, nil, services.BackupOptions{})
	return a
}

func backupOptions(cfg *config.Config) services.BackupOptions {
	return services.BackupOptions{
		Endpoint:  cfg.Backup.Endpoint,
		Region:    cfg.Backup.Region,
		Bucket:    cfg.Backup.Bucket,
		Prefix:    cfg.Backup.Prefix,
		AccessKey: cfg.Backup.AccessKey,
		SecretKey: cfg.Backup.SecretKey,
		Interval:  cfg.Backup.Interval,
	}
}

// SetEventSink routes committed changes of every repository and the
// reconciliation engine to sink.
func (a *App) SetEventSink(sink repositories.EventSink) {
	a.Customers.SetEventSink(sink)
	a.Products.SetEventSink(sink)
	a.Suppliers.SetEventSink(sink)
	a.Orders.SetEventSink(sink)
	a.Trips.SetEventSink(sink)
	a.TripExpenses.SetEventSink(sink)
	a.Payments.SetEventSink(sink)
	a.Reconciler.SetEventSink(sink)
}

// Open opens and migrates storage.
func (a *App) Open(ctx context.Context) error {
	return a.Provider.Open(ctx)
}

// Close stops the backup scheduler and releases storage.
func (a *App) Close() error {
	if a.Backups != nil {
		a.Backups.Stop()
	}
	if a.Provider == nil {
		return nil
	}
	return a.Provider.Close()
}
