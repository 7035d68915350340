// Command seed-db loads the catalog, coupons and customers used in
// development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appkg "github.com/xenking/kart-orders/internal/app"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/repository"
)

type productJSON struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Type       string          `json:"type"`
	TaxClasses []string        `json:"tax_classes"`
}

type couponJSON struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
	MinItems     int             `json:"min_items"`
	Description  string          `json:"description"`
	ValidFrom    *time.Time      `json:"valid_from"`
	ValidUntil   *time.Time      `json:"valid_until"`
	MaxUses      int             `json:"max_uses"`
	MaxDiscount  decimal.Decimal `json:"max_discount"`
}

func main() {
	var seedDir string
	flag.StringVar(&seedDir, "dir", "db/seed", "directory with products.json, coupons.json and customers.json")
	flag.Parse()

	_ = godotenv.Load()

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		cfg, err := appkg.LoadToolConfig()
		if err != nil {
			return err
		}
		return run(ctx, lg, cfg.DatabaseURL, seedDir)
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, dir string) error {
	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, repository.NewProductRepository(pool), filepath.Join(dir, "products.json")); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, repository.NewCouponRepository(pool), filepath.Join(dir, "coupons.json")); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	svc := customer.NewService(repository.NewCustomerRepository(pool))
	if err := seedCustomers(ctx, lg, svc, filepath.Join(dir, "customers.json")); err != nil {
		return errors.Wrap(err, "seed customers")
	}

	lg.Info("Seed completed")
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo product.Repository, path string) error {
	var products []productJSON
	if err := readJSON(path, &products); err != nil {
		return err
	}
	for _, p := range products {
		typ := item.Type(p.Type)
		if typ == "" {
			typ = item.TypeProduct
		}
		if !typ.Valid() {
			return errors.Errorf("product %d: unknown type %q", p.ID, p.Type)
		}
		if err := repo.Save(ctx, &product.Product{
			ID:         p.ID,
			Name:       p.Name,
			Price:      p.Price,
			Type:       typ,
			TaxClasses: p.TaxClasses,
		}); err != nil {
			return errors.Wrapf(err, "save product %d", p.ID)
		}
		lg.Info("Upserted product", zap.Int64("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo coupon.Repository, path string) error {
	var coupons []couponJSON
	if err := readJSON(path, &coupons); err != nil {
		return err
	}
	for _, c := range coupons {
		if err := repo.Save(ctx, &coupon.Rule{
			Code:         c.Code,
			DiscountType: coupon.DiscountType(c.DiscountType),
			Value:        c.Value,
			MinItems:     c.MinItems,
			Description:  c.Description,
			ValidFrom:    c.ValidFrom,
			ValidUntil:   c.ValidUntil,
			MaxUses:      c.MaxUses,
			MaxDiscount:  c.MaxDiscount,
			Active:       true,
		}); err != nil {
			return errors.Wrapf(err, "save coupon %s", c.Code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}

func seedCustomers(ctx context.Context, lg *zap.Logger, svc *customer.Service, path string) error {
	var customers []customer.Customer
	if err := readJSON(path, &customers); err != nil {
		return err
	}
	for i := range customers {
		c := &customers[i]
		if err := svc.Save(ctx, c); err != nil {
			return errors.Wrapf(err, "save customer %d", c.ID)
		}
		lg.Info("Upserted customer", zap.Int64("id", c.ID), zap.String("login", c.Login))
	}
	return nil
}
