// Command legacy-import loads orders exported from the previous shop. The
// input is a gzip-compressed dump with one JSON order record per line.
package main

import (
	"context"
	"flag"
	"os"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/joho/godotenv"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"

	appkg "github.com/xenking/kart-orders/internal/app"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/message"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/legacy"
	"github.com/xenking/kart-orders/internal/repository"
)

func main() {
	var (
		dumpFile string
		workers  int
		resume   bool
		expected uint
	)
	flag.StringVar(&dumpFile, "file", "orders.jsonl.gz", "gzip JSONL dump of exported orders")
	flag.IntVar(&workers, "workers", runtime.GOMAXPROCS(0), "concurrent order saves")
	flag.BoolVar(&resume, "resume", true, "skip orders whose number is already stored")
	flag.UintVar(&expected, "expected", 1_000_000, "expected number of stored orders, sizes the resume filter")
	flag.Parse()

	_ = godotenv.Load()

	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadToolConfig()
		if err != nil {
			return err
		}
		return run(ctx, lg, m, cfg, dumpFile, workers, resume, expected)
	})
}

func run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *appkg.Config, dumpFile string, workers int, resume bool, expected uint) error {
	f, err := os.Open(dumpFile)
	if err != nil {
		return errors.Wrapf(err, "open %s", dumpFile)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", dumpFile)
	}
	defer func() { _ = gz.Close() }()

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	numbering, err := repository.ParseNumbering(cfg.Orders.Numbering)
	if err != nil {
		return err
	}
	shippingMethods, err := cfg.ShippingMethods()
	if err != nil {
		return err
	}
	payments := cfg.PaymentMethods()
	store := repository.NewOrderStore(pool, numbering, cfg.Kafka.Topic)

	orders, err := order.NewService(store,
		order.WithNumberAttempts(cfg.Orders.NumberAttempts),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	var skip *legacy.Skipper
	if resume {
		skip, err = legacy.LoadSkipper(ctx, store, expected)
		if err != nil {
			return err
		}
	}

	conv := legacy.NewConverter(
		customer.NewService(repository.NewCustomerRepository(pool)),
		shippingMethods,
		payments,
		message.NewLog(lg.Named("convert")),
	)
	im := legacy.NewImporter(conv, orders, skip, lg, workers)

	lg.Info("Importing orders", zap.String("file", dumpFile), zap.Int("workers", workers), zap.Bool("resume", resume))
	stats, err := im.Import(ctx, gz)
	lg.Info("Import finished",
		zap.Int64("read", stats.Read),
		zap.Int64("imported", stats.Imported),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
	)
	return err
}
