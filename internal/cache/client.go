// Package cache wraps Redis as a last-known-price store so a quote provider
// outage degrades valuation instead of aborting it.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradetools/tradetools-server/internal/config"
)

const priceKeyPrefix = "mtm:price:"

// Client wraps the Redis client with price-cache operations
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetPrice caches a symbol's latest price with TTL
func (c *Client) SetPrice(ctx context.Context, symbol string, price float64, ttl time.Duration) error {
	return c.rdb.Set(ctx, priceKeyPrefix+symbol, price, ttl).Err()
}

// GetPrice retrieves a cached price
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return c.rdb.Get(ctx, priceKeyPrefix+symbol).Float64()
}

// GetPrices retrieves cached prices for the given symbols in one round trip.
// Symbols without a cached value are simply absent from the result.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = priceKeyPrefix + s
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget prices: %w", err)
	}

	prices := make(map[string]float64, len(symbols))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		prices[symbols[i]] = price
	}
	return prices, nil
}
