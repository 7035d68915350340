package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/shipping"
	"github.com/xenking/kart-orders/internal/maintenance"
	"github.com/xenking/kart-orders/internal/repository"
)

func testLoader() aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "KART",
		SkipFlags: true,
		SkipFiles: true,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("KART_DATABASE_URL", "postgres://localhost/kart")

	cfg, err := loadConfig(testLoader())
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "counter", cfg.Orders.Numbering)
	assert.Equal(t, 3, cfg.Orders.NumberAttempts)
	assert.True(t, cfg.Orders.RequireShipping)
	assert.Equal(t, 72*time.Hour, cfg.Redis.CartTTL)
	assert.Equal(t, repository.DefaultCartTTL, cfg.Redis.CartTTL)
	assert.Equal(t, maintenance.DefaultSchedule, cfg.Maintenance.Schedule)
	assert.Equal(t, []string{"standard:20"}, cfg.Tax.Rates)
	assert.Equal(t, []string{"cheque", "cod"}, cfg.Payment.Methods)
	assert.Equal(t, "order-events", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.Maintenance.Enabled)
	assert.Equal(t, 720*time.Hour, cfg.Maintenance.StaleAfter)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/kart")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig(testLoader())
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/kart", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "NoDatabase", env: map[string]string{"DATABASE_URL": ""}, want: "database URL is required"},
		{
			name: "Numbering",
			env:  map[string]string{"KART_DATABASE_URL": "postgres://x", "KART_ORDERS_NUMBERING": "random"},
			want: "unknown numbering strategy",
		},
		{
			name: "Attempts",
			env:  map[string]string{"KART_DATABASE_URL": "postgres://x", "KART_ORDERS_NUMBER_ATTEMPTS": "0"},
			want: "number attempts must be at least 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig(testLoader())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestShippingConfig_Registry(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ShippingConfig
		ids     []string
		wantErr bool
	}{
		{name: "FlatOnly", cfg: ShippingConfig{FlatRate: "5.00", FreeThreshold: "0"}, ids: []string{shipping.FlatRateID}},
		{name: "WithFree", cfg: ShippingConfig{FlatRate: "5.00", FreeThreshold: "50"}, ids: []string{shipping.FreeID, shipping.FlatRateID}},
		{name: "BadRate", cfg: ShippingConfig{FlatRate: "five"}, wantErr: true},
		{name: "NegativeThreshold", cfg: ShippingConfig{FlatRate: "5", FreeThreshold: "-1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := tt.cfg.registry()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			var ids []string
			for _, m := range reg.Available(decimal.NewFromInt(100)) {
				ids = append(ids, m.ID())
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}
