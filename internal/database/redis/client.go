// Package redis provides Redis caching for the purepool services. Its
// main job is the miner directory cache: identity lookups on the hot
// submission path and the sticky disabled-miner flag.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// disabledSentinel marks a cached miner as administratively disabled.
// Caching the ban itself keeps banned miners from hitting the database
// on every request.
const disabledSentinel = "DISABLED"

// ErrCacheMiss is returned when a key is not in the cache.
var ErrCacheMiss = fmt.Errorf("cache miss")

// ErrMinerDisabled is returned when the cache has recorded the miner as
// disabled.
var ErrMinerDisabled = fmt.Errorf("miner is disabled")

// Client wraps Redis operations for the pool
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration. URL takes precedence
// over the discrete fields when set.
type Config struct {
	URL          string
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a new Redis client
func NewClient(cfg *Config) (*Client, error) {
	if cfg.URL != "" {
		return NewClientFromURL(cfg.URL)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromURL creates a Redis client from a redis:// URL
func NewClientFromURL(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Miner directory cache

func minerKey(network, address string) string {
	return fmt.Sprintf("miner_id:%s:%s", network, address)
}

func workerKey(network, address, worker string) string {
	return fmt.Sprintf("worker_id:%s:%s:%s", network, address, worker)
}

// GetMinerID looks up a cached miner id by address. Returns
// ErrMinerDisabled when the ban sentinel is cached and ErrCacheMiss when
// the address is unknown to the cache.
func (c *Client) GetMinerID(ctx context.Context, network, address string) (string, error) {
	val, err := c.rdb.Get(ctx, minerKey(network, address)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("failed to get cached miner id: %w", err)
	}

	if val == disabledSentinel {
		return "", ErrMinerDisabled
	}
	return val, nil
}

// SetMinerID caches a miner id for an address
func (c *Client) SetMinerID(ctx context.Context, network, address, minerID string) error {
	if err := c.rdb.Set(ctx, minerKey(network, address), minerID, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache miner id: %w", err)
	}
	return nil
}

// MarkMinerDisabled caches the ban sentinel for an address. The flag is
// sticky until the miner is explicitly invalidated.
func (c *Client) MarkMinerDisabled(ctx context.Context, network, address string) error {
	if err := c.rdb.Set(ctx, minerKey(network, address), disabledSentinel, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache disabled miner: %w", err)
	}
	return nil
}

// GetWorkerID looks up a cached worker id
func (c *Client) GetWorkerID(ctx context.Context, network, address, worker string) (string, error) {
	val, err := c.rdb.Get(ctx, workerKey(network, address, worker)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("failed to get cached worker id: %w", err)
	}
	return val, nil
}

// SetWorkerID caches a worker id
func (c *Client) SetWorkerID(ctx context.Context, network, address, worker, workerID string) error {
	if err := c.rdb.Set(ctx, workerKey(network, address, worker), workerID, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache worker id: %w", err)
	}
	return nil
}

// InvalidateMiner drops a miner's cached identity, including the sticky
// disabled sentinel. Miner rows are enabled and disabled by operators
// outside these services, so nothing calls this automatically; it is
// the eviction counterpart of MarkMinerDisabled for operator tooling.
func (c *Client) InvalidateMiner(ctx context.Context, network, address string) error {
	if err := c.rdb.Del(ctx, minerKey(network, address)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached miner: %w", err)
	}
	return nil
}

// Hashrate samples

// SetHashrate stores a reported hashrate sample for a miner/worker pair
func (c *Client) SetHashrate(ctx context.Context, network, minerID, workerID string, hashrate float64, window time.Duration) error {
	key := fmt.Sprintf("hashrate:%s:%s:%s", network, minerID, workerID)
	timestamp := time.Now().Unix()

	// Store as sorted set with timestamp as score
	member := &redis.Z{
		Score:  float64(timestamp),
		Member: hashrate,
	}

	pipe := c.rdb.Pipeline()
	pipe.ZAdd(ctx, key, *member)
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", timestamp-int64(window.Seconds())))
	pipe.Expire(ctx, key, window*2) // Keep data a bit longer than window

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set hashrate: %w", err)
	}

	return nil
}

// GetAverageHashrate calculates average hashrate over a time window
func (c *Client) GetAverageHashrate(ctx context.Context, network, minerID, workerID string, window time.Duration) (float64, error) {
	key := fmt.Sprintf("hashrate:%s:%s:%s", network, minerID, workerID)
	minScore := time.Now().Add(-window).Unix()

	// Get all hashrate values in the time window
	values, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", minScore),
		Max: "+inf",
	}).Result()

	if err != nil {
		return 0, fmt.Errorf("failed to get hashrate values: %w", err)
	}

	if len(values) == 0 {
		return 0, nil
	}

	// Calculate average
	var total float64
	for _, val := range values {
		if hashrate, err := strconv.ParseFloat(val, 64); err == nil {
			total += hashrate
		}
	}

	return total / float64(len(values)), nil
}
