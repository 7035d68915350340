package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/payment"
	"github.com/xenking/kart-orders/internal/domain/shipping"
	"github.com/xenking/kart-orders/internal/domain/tax"
	"github.com/xenking/kart-orders/internal/repository"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Currency     string `default:"USD" usage:"Currency used for formatted amounts"`
	SecureCookie bool   `default:"false" usage:"Mark the session cookie Secure" flag:"secure-cookie"`
	Redis        RedisConfig
	Orders       OrdersConfig
	Tax          TaxConfig
	Shipping     ShippingConfig
	Payment      PaymentConfig
	Checkout     CheckoutConfig
	Kafka        KafkaConfig
	Maintenance  MaintenanceConfig
	Graceful     GracefulConfig
}

// RedisConfig controls the cart store. An empty URL keeps carts in process.
type RedisConfig struct {
	URL     string        `usage:"Redis URL for carts (KART_REDIS_URL or REDIS_URL)"`
	CartTTL time.Duration `default:"72h" usage:"How long an untouched cart is kept"`
}

// OrdersConfig controls order saving.
type OrdersConfig struct {
	Numbering       string `default:"counter" usage:"Order number strategy: counter or max-scan"`
	NumberAttempts  int    `default:"3" usage:"Save attempts when a freshly assigned number is taken"`
	RequireShipping bool   `default:"true" usage:"Reject checkout without a shipping method"`
}

// TaxConfig lists per-class tax rates.
type TaxConfig struct {
	Rates []string `default:"standard:20" usage:"Tax rates as class:percent"`
}

// ShippingConfig configures the shipping methods.
type ShippingConfig struct {
	FlatRate      string `default:"5.00" usage:"Flat shipping rate"`
	FreeThreshold string `default:"0" usage:"Subtotal from which shipping is free, 0 disables"`
}

// PaymentConfig lists the enabled payment methods.
type PaymentConfig struct {
	Methods []string `default:"cheque,cod" usage:"Payment methods as id or id:name"`
}

// CheckoutConfig throttles checkout per actor. A zero Max disables it.
type CheckoutConfig struct {
	Max    int           `default:"10" usage:"Checkouts allowed per actor and window"`
	Window time.Duration `default:"1m" usage:"Checkout throttle window"`
}

// KafkaConfig controls the outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers       []string      `usage:"Kafka brokers for order events"`
	Topic         string        `default:"order-events" usage:"Topic order events are written to"`
	RelayInterval time.Duration `default:"5s" usage:"Outbox poll interval"`
	BatchSize     int           `default:"100" usage:"Outbox messages per poll"`
}

// MaintenanceConfig controls the stale order sweep.
type MaintenanceConfig struct {
	Enabled    bool          `default:"false" usage:"Run the stale order sweep"`
	Schedule   string        `default:"@every 1h" usage:"Cron schedule of the sweep"`
	StaleAfter time.Duration `default:"720h" usage:"Age after which pending and processing orders are stale"`
	Timeout    time.Duration `default:"5m" usage:"Maximum duration of one sweep"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

// LoadToolConfig loads configuration like LoadConfig but leaves command
// line flags to the calling command.
func LoadToolConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "KART",
		SkipFlags: true,
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	}
	if _, err := repository.ParseNumbering(c.Orders.Numbering); err != nil {
		return errors.Wrap(err, "orders")
	}
	if c.Orders.NumberAttempts < 1 {
		return errors.Errorf("orders: number attempts must be at least 1, got %d", c.Orders.NumberAttempts)
	}
	if _, err := c.Tax.rates(); err != nil {
		return err
	}
	if _, err := c.Shipping.registry(); err != nil {
		return err
	}
	if len(c.PaymentMethods().List()) == 0 {
		return errors.New("payment: at least one method is required")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka: topic is required with brokers")
	}
	return nil
}

func (c TaxConfig) rates() (tax.Rates, error) {
	r, err := tax.ParseRates(c.Rates)
	if err != nil {
		return nil, errors.Wrap(err, "tax rates")
	}
	return r, nil
}

// registry builds the shipping methods: the flat rate, plus free shipping
// when a threshold is set.
func (c ShippingConfig) registry() (*shipping.Registry, error) {
	flat, err := decimal.NewFromString(c.FlatRate)
	if err != nil || flat.IsNegative() {
		return nil, errors.Errorf("shipping: invalid flat rate %q", c.FlatRate)
	}
	threshold := decimal.Zero
	if c.FreeThreshold != "" {
		threshold, err = decimal.NewFromString(c.FreeThreshold)
		if err != nil || threshold.IsNegative() {
			return nil, errors.Errorf("shipping: invalid free threshold %q", c.FreeThreshold)
		}
	}

	methods := []shipping.Method{shipping.FlatRate{Amount: flat}}
	if threshold.IsPositive() {
		// Free first, so it is preselected once the cart qualifies.
		methods = append([]shipping.Method{shipping.Free{Threshold: threshold}}, methods...)
	}
	return shipping.NewRegistry(methods...), nil
}

// TaxRates returns the configured per-class tax rates.
func (c *Config) TaxRates() (tax.Rates, error) {
	return c.Tax.rates()
}

// ShippingMethods returns the configured shipping methods.
func (c *Config) ShippingMethods() (*shipping.Registry, error) {
	return c.Shipping.registry()
}

// PaymentMethods returns the enabled payment methods.
func (c *Config) PaymentMethods() *payment.Registry {
	return payment.NewRegistry(payment.ParseMethods(c.Payment.Methods)...)
}
