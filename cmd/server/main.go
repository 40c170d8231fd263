package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/csfest/vendor-booking/internal/auth"
	"github.com/csfest/vendor-booking/internal/booking"
	"github.com/csfest/vendor-booking/internal/config"
	"github.com/csfest/vendor-booking/internal/database"
	"github.com/csfest/vendor-booking/internal/handler"
	"github.com/csfest/vendor-booking/internal/middleware"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/queue"
	"github.com/csfest/vendor-booking/internal/repository"
	"github.com/csfest/vendor-booking/internal/router"
	"github.com/csfest/vendor-booking/internal/store"
	vsync "github.com/csfest/vendor-booking/internal/sync"
)

func main() {
	// Load a local .env when present; real deployments set the
	// environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()

	// The key-value store carries the map state. Without Redis the
	// service still runs, but state is process-local and lost on
	// restart.
	var kv store.Store
	rdb := config.NewRedisClient()
	if rdb != nil {
		kv = store.NewRedisStore(rdb)
	} else {
		log.Println("redis unavailable, running on in-memory store")
		kv = store.NewMemoryStore()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	sessions := auth.NewSessionProvider(kv)
	ledger := repository.NewReservationLedger(kv)

	var source repository.SpotFetcher
	if cfg.SpotsURL != "" {
		source = repository.NewRemoteSpotSource(cfg.SpotsURL)
	}
	registry := repository.NewSpotRegistry(kv, source, ledger)

	var payments booking.PaymentProvider = booking.StubProvider{}
	if cfg.PaymentURL != "" {
		payments = booking.NewIntentClient(cfg.PaymentURL)
	}
	events := booking.QueueSink{}
	adminFlow := booking.NewFlow(registry, ledger, payments, events, kv)

	seedAdmin(cfg, users)

	// Watcher keeps the registry's degraded-mode cache warm and logs
	// session flips observed through the store, the same reconcile
	// the map pages run.
	watcher := vsync.NewWatcher(kv, vsync.DefaultInterval)
	watcher.OnDataChange(func(ctx context.Context) {
		if _, err := registry.Load(ctx); err != nil {
			log.Printf("watcher: refresh spot cache: %v", err)
		}
	})
	watcher.OnAuthChange(func(ctx context.Context) {
		log.Println("watcher: session identity changed")
	})
	go func() {
		if err := watcher.Run(context.Background()); err != nil {
			log.Printf("watcher stopped: %v", err)
		}
	}()

	go func() {
		if err := queue.StartBookingConsumer(); err != nil {
			log.Printf("booking consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, sessions), cfg.JWTSecret)
	spotH := handler.NewSpotHandler(registry, ledger)
	bookH := handler.NewBookingHandler(registry, ledger, payments, events, kv)
	router.RegisterPublic(e, spotH, bookH, handler.NewWatchHandler(kv))
	router.RegisterEditor(e, spotH, cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(ledger, adminFlow, users, tokens, kv), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// seedAdmin creates the bootstrap admin account when the users table
// is empty so a fresh install is immediately operable.
func seedAdmin(cfg config.Config, users *repository.UserRepo) {
	ctx := context.Background()
	n, err := users.Count(ctx)
	if err != nil {
		log.Printf("seed admin: count users: %v", err)
		return
	}
	if n > 0 {
		return
	}
	if cfg.AdminPassword == "" {
		log.Println("users table is empty and BOOTSTRAP_ADMIN_PASSWORD is unset, skipping admin seed")
		return
	}
	flags := []string{model.FlagAdmin, model.FlagEdit}
	if _, err := users.Create(ctx, "admin", cfg.AdminEmail, cfg.AdminPassword, flags, cfg.BcryptCost); err != nil {
		log.Printf("seed admin: %v", err)
		return
	}
	log.Printf("seeded bootstrap admin %s", cfg.AdminEmail)
}
