package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // RESTAURANT_TZ must resolve on minimal images

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/restaurant-order-engine/internal/checkout"
	"github.com/iliyamo/restaurant-order-engine/internal/config"
	"github.com/iliyamo/restaurant-order-engine/internal/database"
	"github.com/iliyamo/restaurant-order-engine/internal/events"
	"github.com/iliyamo/restaurant-order-engine/internal/handler"
	"github.com/iliyamo/restaurant-order-engine/internal/inventory"
	"github.com/iliyamo/restaurant-order-engine/internal/middleware"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/orderflow"
	"github.com/iliyamo/restaurant-order-engine/internal/payment"
	"github.com/iliyamo/restaurant-order-engine/internal/redisx"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
	"github.com/iliyamo/restaurant-order-engine/internal/router"
	"github.com/iliyamo/restaurant-order-engine/internal/scheduler"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable: idempotency, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}
	store := redisx.New(rdb)

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, cfg.Kafka.Buffer, log)
		producer.Start(ctx)
		defer producer.WaitClosed()
		pub = producer
	}

	// Notifications go through RabbitMQ; when the broker is down they are
	// sent directly.
	senders := map[string]notify.Sender{
		notify.ChannelEmail: notify.NewSMTPSender(cfg.Notify.SMTPHost, cfg.Notify.SMTPPort, cfg.Notify.SMTPUser, cfg.Notify.SMTPPass, cfg.Notify.From),
	}
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken)
		if err != nil {
			log.Warn("telegram alerts disabled", "err", err)
		} else {
			senders[notify.ChannelTelegram] = tg
		}
	}
	queue := notify.NewQueue(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.Notify.PublishTimeout, log)
	defer queue.Close()
	notifier := notify.Fallback{Primary: queue, Secondary: notify.NewDirect(senders, 0, log)}
	dispatcher := notify.NewDispatcher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.RabbitMQ.Prefetch,
		cfg.RabbitMQ.MaxAttempts, cfg.RabbitMQ.RetryBase, senders, queue.Retry, log)
	go func() { _ = dispatcher.Run(ctx) }()
	staff := notify.NewStaffAlerts(notifier, cfg.Notify.TelegramChatID, cfg.Notify.StaffEmail, store, log)

	menuRepo := repository.NewMenuRepo(db)
	holdRepo := repository.NewStockHoldRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	userRepo := repository.NewUserRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)
	reservationRepo := repository.NewReservationRepo(db)

	ledger := inventory.NewLedger(menuRepo, holdRepo, staff, log)
	machine := orderflow.NewMachine(orderRepo, userRepo, ledger, notifier, pub, log)
	rules := scheduler.Rules{
		Location:        cfg.Restaurant.Location(),
		OpeningHour:     cfg.Restaurant.OpeningHour,
		LastSeatingHour: cfg.Restaurant.LastSeatingHour,
		DefaultDuration: cfg.Restaurant.DefaultDuration,
		MaxDuration:     cfg.Restaurant.MaxDuration,
	}
	bookings := scheduler.New(rules, reservationRepo, userRepo, notifier, log)

	provider := payment.NewBkash(payment.BkashConfig{
		BaseURL:     cfg.Payment.BaseURL,
		AppKey:      cfg.Payment.AppKey,
		AppSecret:   cfg.Payment.AppSecret,
		Username:    cfg.Payment.Username,
		Password:    cfg.Payment.Password,
		CallbackURL: cfg.Payment.CallbackURL,
		Timeout:     cfg.Payment.HTTPTimeout,
	})
	reconciler := payment.NewReconciler(payment.Config{
		Currency:    cfg.Payment.Currency,
		TTL:         cfg.Payment.TTL,
		LoyaltyUnit: cfg.Restaurant.LoyaltyUnit,
	}, provider, payment.Deps{
		Orders:   orderRepo,
		Payments: paymentRepo,
		Users:    userRepo,
		Ledger:   ledger,
		Machine:  machine,
		Notifier: notifier,
		Staff:    staff,
		Events:   pub,
		Dedup:    store,
	}, log)
	orchestrator := checkout.New(orderRepo, userRepo, ledger, reconciler, checkout.Options{
		Notifier: notifier,
		Staff:    staff,
		Events:   pub,
		Idem:     store,
		HoldTTL:  cfg.Payment.TTL,
	}, log)

	sweeper := payment.NewSweeper(holdRepo, reconciler, store, cfg.Payment.SweepInterval, log)
	go sweeper.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status,
				"latency_ms", v.Latency.Milliseconds(), "ip", v.RemoteIP)
			return nil
		},
	}))
	router.RegisterRoutes(e, router.Handlers{
		Health:       handler.Health(db),
		Menu:         handler.NewMenuHandler(ledger, log),
		Reservations: handler.NewReservationHandler(bookings, log),
		Orders:       handler.NewOrderHandler(orchestrator, machine, log),
		Payments:     handler.NewPaymentHandler(reconciler, log),
	}, router.Middleware{
		Cache:     middleware.ResponseCache(config.LoadCacheConfig(), rdb),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	}, cfg.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		stop()
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
