package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledger-backend/internal/app"
	"ledger-backend/internal/cache"
	"ledger-backend/internal/config"
	"ledger-backend/internal/handlers"
	"ledger-backend/internal/health"
	h "ledger-backend/internal/http"
	"ledger-backend/internal/middleware"
	"ledger-backend/internal/monitoring"
)

func main() {
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	configFile := flag.String("config", config.DefaultConfigFile, "path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional; every cache call degrades to a miss without it
	if cfg.Redis.Enabled {
		if err := cache.Init(cache.RedisOptions{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}); err != nil {
			log.Printf("[Redis] Not available, continuing without cache: %v", err)
		}
	}
	defer cache.Close()

	ledger, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer ledger.Close()

	hub := monitoring.NewHub(ledger.Provider, cfg.Storage.DataDir, cfg.Monitoring.StatsInterval)
	go hub.Run(ctx)
	ledger.SetEventSink(hub)

	// Storage opens in the background; requests wait on the readiness gate
	go func() {
		start := time.Now()
		if err := ledger.Open(ctx); err != nil {
			log.Printf("[Storage] Failed to open %s storage: %v", cfg.Storage.Driver, err)
			return
		}
		log.Printf("[Storage] %s storage ready in %s", cfg.Storage.Driver, time.Since(start).Round(time.Millisecond))
	}()

	assets, closeAssets := buildAssetHandler(ctx, cfg)
	defer closeAssets()

	router := h.NewRouter(h.Handlers{
		Customers:    handlers.NewCustomerHandler(ledger.Customers, ledger.Orders),
		Products:     handlers.NewProductHandler(ledger.Products),
		Suppliers:    handlers.NewSupplierHandler(ledger.Suppliers),
		Orders:       handlers.NewOrderHandler(ledger.Orders, ledger.Payments, ledger.Reconciler),
		Trips:        handlers.NewTripHandler(ledger.Trips, ledger.Orders, ledger.TripExpenses, ledger.Reconciler),
		TripExpenses: handlers.NewTripExpenseHandler(ledger.TripExpenses),
		Payments:     handlers.NewPaymentHandler(ledger.Payments, ledger.Reconciler),
		Debts:        handlers.NewDebtHandler(ledger.Orders, ledger.Reconciler),
		Transfer:     handlers.NewTransferHandler(ledger.Transfer),
		Reports:      handlers.NewReportHandler(ledger.Reports),
		Backups:      handlers.NewBackupHandler(ledger.Backups),
		Health:       handlers.NewHealthHandler(health.NewHealthChecker(ledger.Provider, cfg.Storage.DataDir)),
		Hub:          hub,
		Assets:       assets,
	})

	// Wrap with panic recovery, request logging and CORS
	handler := middleware.PanicRecovery(middleware.APILogging(middleware.NewCORS(cfg)(router)))

	if ledger.Backups.Enabled() {
		ledger.Backups.Start()
		log.Printf("[Backup] Scheduled every %s to bucket %s", cfg.Backup.Interval, cfg.Backup.Bucket)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("╔════════════════════════════════════════════════════════════╗")
		log.Println("║  LEDGER BACKEND                                            ║")
		log.Println("╚════════════════════════════════════════════════════════════╝")
		log.Printf("Server running on %s (storage: %s, timezone: %s)", addr, cfg.Storage.Driver, cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

// buildAssetHandler returns the cache gateway over the static directory, or
// the plain file server when the asset cache is disabled or cannot open.
func buildAssetHandler(ctx context.Context, cfg *config.Config) (http.Handler, func()) {
	files := http.FileServer(http.Dir(cfg.Server.StaticDir))
	if !cfg.Cache.Enabled {
		return files, func() {}
	}

	var store cache.AssetStore
	closeStore := func() {}
	switch cfg.Cache.Backend {
	case "redis":
		if cache.GetClient() == nil {
			log.Println("[Cache] Redis backend selected but Redis is unavailable, serving assets uncached")
			return files, closeStore
		}
		store = cache.NewRedisStore(cache.GetClient())
	default:
		bolt, err := cache.OpenBoltStore(cfg.AssetCachePath())
		if err != nil {
			log.Printf("[Cache] Failed to open asset cache: %v", err)
			return files, closeStore
		}
		store = bolt
		closeStore = func() { bolt.Close() }
	}

	var manifest []string
	if len(cfg.Cache.Manifest) > 0 {
		manifest = cfg.Cache.Manifest
	}
	gateway := cache.NewGateway(cache.GatewayOptions{
		Prefix:   cfg.Cache.Prefix,
		Version:  cfg.Cache.Version,
		Manifest: manifest,
		Origin:   files,
		Store:    store,
	})

	go func() {
		if err := gateway.Install(ctx); err != nil {
			log.Printf("[Cache] Install of %s failed: %v", gateway.CacheName(), err)
			return
		}
		if err := gateway.Activate(ctx); err != nil {
			log.Printf("[Cache] Activate of %s failed: %v", gateway.CacheName(), err)
		}
	}()
	return gateway, closeStore
}
