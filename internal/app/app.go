package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/checkout"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/events"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/maintenance"
	"github.com/xenking/kart-orders/internal/repository"
	"github.com/xenking/kart-orders/pkg/health"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the background
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	numbering, err := repository.ParseNumbering(cfg.Orders.Numbering)
	if err != nil {
		return errors.Wrap(err, "numbering")
	}
	rates, err := cfg.TaxRates()
	if err != nil {
		return err
	}
	shippingMethods, err := cfg.ShippingMethods()
	if err != nil {
		return err
	}
	paymentMethods := cfg.PaymentMethods()

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Register(health.Readiness, health.Check{
		Name:    "postgres",
		Func:    health.PingCheck(pool),
		Timeout: 5 * time.Second,
	})
	healthSvc.Register(health.Liveness, health.Check{
		Name: "goroutines",
		Func: health.GoroutineCountCheck(10000),
	})

	// Carts live in Redis when configured, in process otherwise.
	var carts cart.Store = cart.NewMemoryStore()
	if cfg.Redis.URL != "" {
		rdb, err := repository.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		carts = repository.NewCartStore(rdb, cfg.Redis.CartTTL)
		healthSvc.Register(health.Readiness, health.Check{
			Name: "redis",
			Func: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		lg.Warn("Redis is not configured, carts are kept in process memory")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	orderStore := repository.NewOrderStore(pool, numbering, cfg.Kafka.Topic)

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	customerSvc := customer.NewService(customerRepo)
	cartSvc := cart.NewService(carts, productRepo, customerSvc, rates, shippingMethods, couponValidator)
	orderSvc, err := order.NewService(orderStore,
		order.WithNumberAttempts(cfg.Orders.NumberAttempts),
		order.WithShippingRequired(cfg.Orders.RequireShipping),
		order.WithStaleAfter(cfg.Maintenance.StaleAfter),
		order.WithPaymentMethods(paymentMethods),
		order.WithShippingMethods(shippingMethods),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	checkoutSvc := checkout.NewService(cartSvc, orderSvc, couponValidator)

	// HTTP handlers.
	h := handler.New(handler.Config{
		Currency:     cfg.Currency,
		SecureCookie: cfg.SecureCookie,
		CheckoutLimit: httpmiddleware.Throttle(ctx, httpmiddleware.ThrottleConfig{
			Max:     cfg.Checkout.Max,
			Window:  cfg.Checkout.Window,
			KeyFunc: handler.ActorKey,
		}),
	}, cartSvc, checkoutSvc, orderSvc)

	mux := http.NewServeMux()
	mux.Handle("GET /livez", healthSvc.Handler(health.Liveness))
	mux.Handle("GET /readyz", healthSvc.Handler(health.Readiness))
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(order.WithRequestID),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("kart-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers)
		defer func() { _ = publisher.Close() }()

		relay := events.NewRelay(repository.NewOutboxRepository(pool), publisher,
			lg.Named("relay"), cfg.Kafka.RelayInterval, cfg.Kafka.BatchSize)
		g.Go(func() error { return relay.Run(gctx) })
		lg.Info("Order event relay enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	if cfg.Maintenance.Enabled {
		sched, err := maintenance.NewScheduler(orderSvc, lg.Named("maintenance"),
			cfg.Maintenance.Schedule, cfg.Maintenance.Timeout)
		if err != nil {
			return errors.Wrap(err, "create scheduler")
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
