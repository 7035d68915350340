package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	redislib "github.com/redis/go-redis/v9"

	"github.com/xenking/kart-orders/internal/domain/cart"
)

// DefaultCartTTL is how long an untouched cart is kept.
const DefaultCartTTL = 72 * time.Hour

var _ cart.Store = (*CartStore)(nil)

// CartStore keeps carts in Redis as JSON documents. Every save refreshes
// the expiry.
type CartStore struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewCartStore creates a Redis-backed cart store.
func NewCartStore(client *redislib.Client, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartStore{
		client: client,
		prefix: "kart:cart:",
		ttl:    ttl,
	}
}

func (s *CartStore) Load(ctx context.Context, id string) (*cart.Cart, error) {
	result, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("loading cart %q: %w", id, err)
	}

	var c cart.Cart
	if err := json.Unmarshal(result, &c); err != nil {
		return nil, fmt.Errorf("decoding cart %q: %w", id, err)
	}
	return &c, nil
}

func (s *CartStore) Save(ctx context.Context, c *cart.Cart) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding cart %q: %w", c.ID, err)
	}
	if err := s.client.Set(ctx, s.key(c.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving cart %q: %w", c.ID, err)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting cart %q: %w", id, err)
	}
	return nil
}

func (s *CartStore) key(id string) string {
	return s.prefix + id
}

// NewRedisClient connects to the Redis server at url.
func NewRedisClient(ctx context.Context, url string) (*redislib.Client, error) {
	opts, err := redislib.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redislib.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}
