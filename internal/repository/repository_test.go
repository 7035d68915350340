//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/money"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

var (
	pool  *pgxpool.Pool
	redis *redislib.Client
)

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	err = dc.
		WaitForService("postgres", wait.ForListeningPort("5432/tcp")).
		WaitForService("redis", wait.ForListeningPort("6379/tcp")).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	pgContainer, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	pgAddr, err := pgContainer.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		log.Fatalf("postgres addr: %v", err)
	}
	redisContainer, err := dc.ServiceContainer(ctx, "redis")
	if err != nil {
		log.Fatalf("redis container: %v", err)
	}
	redisAddr, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		log.Fatalf("redis addr: %v", err)
	}

	// The port opens before the server accepts the final configuration.
	for attempt := 0; ; attempt++ {
		pool, err = NewPool(ctx, fmt.Sprintf("postgres://kart:kart@%s/kart?sslmode=disable", pgAddr))
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		if attempt == 30 {
			log.Fatalf("connect postgres: %v", err)
		}
		time.Sleep(time.Second)
	}
	defer pool.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	redis, err = NewRedisClient(ctx, "redis://"+redisAddr)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redis.Close()

	return m.Run()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newOrderService(t *testing.T, numbering Numbering) *order.Service {
	t.Helper()
	svc, err := order.NewService(NewOrderStore(pool, numbering, "kart.orders"))
	require.NoError(t, err)
	return svc
}

func sampleOrder() *order.Order {
	o := order.New()
	o.Items = []*item.Item{
		{
			ProductID: 1,
			Type:      item.TypeProduct,
			Name:      "Waffle",
			Price:     dec("10.00"),
			Quantity:  2,
			Taxes:     money.Taxes{"standard": dec("1.00")},
		},
		{
			Type:     item.TypeFee,
			Name:     "Gift wrap",
			Price:    dec("2.50"),
			Quantity: 1,
			Meta:     map[string]string{"color": "red"},
		},
	}
	o.Shipping = &shipping.Selection{MethodID: shipping.FlatRateID, Name: "Flat rate", Rate: dec("5.00")}
	o.PaymentMethod = "cod"
	o.CustomerNote = "ring twice"
	return o
}

func TestOrderStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t, NumberingCounter)

	o := sampleOrder()
	require.NoError(t, svc.Save(ctx, o))
	require.NotZero(t, o.ID)
	require.NotZero(t, o.Number)

	got, err := svc.Find(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.Equal(t, o.Key, got.Key)
	assert.Equal(t, "ring twice", got.CustomerNote)
	require.Len(t, got.Items, 2)
	assert.Equal(t, o.Items[0].ID, got.Items[0].ID)
	assert.Zero(t, got.Items[1].ProductID)
	assert.Equal(t, "red", got.Items[1].Meta["color"])
	assert.True(t, got.Items[0].Taxes["standard"].Equal(dec("1.00")))
	assert.True(t, got.Total().Equal(dec("28.50")))

	// Re-saving an unchanged order keeps every identity.
	ids := []int64{o.Items[0].ID, o.Items[1].ID}
	require.NoError(t, svc.Save(ctx, o))
	assert.Equal(t, ids, []int64{o.Items[0].ID, o.Items[1].ID})

	// Removing a line deletes its row and its meta.
	require.NoError(t, o.UpdateQuantity(o.Items[1].ID, 0))
	require.NoError(t, o.SetStatus(order.StatusProcessing))
	require.NoError(t, svc.Save(ctx, o))

	got, err = svc.Find(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, order.StatusProcessing, got.Status)

	var metaRows int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM order_item_meta WHERE item_id = $1`, ids[1]).Scan(&metaRows))
	assert.Zero(t, metaRows)

	var events int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM outbox WHERE key = $1`, fmt.Sprint(o.ID)).Scan(&events))
	assert.Equal(t, 2, events)
}

func TestOrderStore_NotFound(t *testing.T) {
	_, err := newOrderService(t, NumberingCounter).Find(context.Background(), 987654321)
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func TestOrderStore_ConcurrentNumbering(t *testing.T) {
	for _, numbering := range []Numbering{NumberingCounter, NumberingMaxScan} {
		t.Run(string(numbering), func(t *testing.T) {
			ctx := context.Background()
			svc := newOrderService(t, numbering)

			const n = 8
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				numbers = make(map[int64]bool)
				errs    []error
			)
			for range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					o := sampleOrder()
					err := svc.Save(ctx, o)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
						return
					}
					numbers[o.Number] = true
				}()
			}
			wg.Wait()

			if numbering == NumberingCounter {
				require.Empty(t, errs)
			}
			for _, err := range errs {
				assert.ErrorIs(t, err, order.ErrNumberTaken)
			}
			assert.Len(t, numbers, n-len(errs), "numbers must be unique")
		})
	}
}

func TestOrderStore_ImportedNumbers(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t, NumberingCounter)

	imported := sampleOrder()
	imported.Number = 500000
	require.NoError(t, svc.Save(ctx, imported))

	next := sampleOrder()
	require.NoError(t, svc.Save(ctx, next))
	assert.Equal(t, int64(500001), next.Number)

	dup := sampleOrder()
	dup.Number = 500000
	err := svc.Save(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrNumberTaken)
	assert.Zero(t, dup.ID)
}

func TestOrderStore_List(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t, NumberingCounter)

	old := sampleOrder()
	old.CreatedAt = time.Now().AddDate(0, -3, 0)
	require.NoError(t, svc.Save(ctx, old))

	got, err := svc.FindOldPending(ctx)
	require.NoError(t, err)
	var found bool
	for _, o := range got {
		assert.Equal(t, order.StatusPending, o.Status)
		found = found || o.ID == old.ID
	}
	assert.True(t, found)

	limited, err := svc.FindByQuery(ctx, order.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t, NumberingCounter)
	require.NoError(t, svc.Save(ctx, sampleOrder()))

	ob := NewOutboxRepository(pool)
	pending, err := ob.Pending(ctx, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "kart.orders", pending[0].Topic)

	require.NoError(t, ob.MarkSent(ctx, pending[0].ID))
	after, err := ob.Pending(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, after, len(pending)-1)
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(pool)

	p := &product.Product{Name: "Waffle", Price: dec("10.00"), Type: item.TypeProduct, TaxClasses: []string{"standard"}}
	require.NoError(t, repo.Save(ctx, p))
	require.NotZero(t, p.ID)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Waffle", got.Name)
	assert.Equal(t, []string{"standard"}, got.TaxClasses)

	_, err = repo.GetByID(ctx, 987654321)
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestCouponRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(pool)

	require.NoError(t, repo.Save(ctx, &coupon.Rule{
		Code:         "save10",
		DiscountType: coupon.DiscountPercentage,
		Value:        dec("10"),
		Active:       true,
	}))
	rule, err := repo.FindByCode(ctx, "Save10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", rule.Code)

	require.NoError(t, repo.IncrementUses(ctx, rule.Code))
	rule, err = repo.FindByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, rule.Uses)

	_, err = repo.FindByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}

func TestCustomerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(pool)

	c := &customer.Customer{
		Login:   "ann",
		Email:   "ann@example.com",
		Billing: customer.Address{FirstName: "Ann", Company: &customer.Company{Name: "Acme", TaxID: "PL1"}},
	}
	require.NoError(t, repo.Save(ctx, c))
	require.NotZero(t, c.ID)

	got, err := repo.Find(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, *c, *got)

	_, err = repo.Find(ctx, 987654321)
	assert.True(t, fault.IsNotFound(err))
}

func TestCartStore(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(redis, time.Minute)

	_, err := store.Load(ctx, "session:missing")
	assert.ErrorIs(t, err, cart.ErrNotFound)

	c := cart.New("session:abc", customer.Guest())
	c.Add(&item.Item{Key: "k", ProductID: 1, Type: item.TypeProduct, Name: "Waffle", Price: dec("10.00"), Quantity: 1})
	require.NoError(t, store.Save(ctx, c))

	got, err := store.Load(ctx, "session:abc")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Subtotal().Equal(dec("10.00")))

	require.NoError(t, store.Delete(ctx, "session:abc"))
	_, err = store.Load(ctx, "session:abc")
	assert.ErrorIs(t, err, cart.ErrNotFound)
}
