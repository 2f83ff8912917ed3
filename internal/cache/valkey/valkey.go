// Package valkey provides a Valkey/Redis cache driver for multi-instance
// deployments where rate-limit counters must be shared.
package valkey

import (
	"context"
	"time"

	"github.com/mitchellh/mapstructure"
	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/feedbackhq/feedbackhq/internal/cache"
)

func init() {
	cache.RegisterDriver("valkey", func(options map[string]any) (cache.CacheWithCounter, error) {
		opts := DefaultOptions()
		if options != nil {
			if err := mapstructure.Decode(options, &opts); err != nil {
				return nil, err
			}
		}
		return New(opts)
	})
}

// Options holds Valkey connection configuration.
type Options struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	DefaultTTLSeconds int    `mapstructure:"default_ttl_seconds"`
}

// DefaultOptions returns sensible defaults for a local Valkey instance.
func DefaultOptions() Options {
	return Options{
		Addr:              "localhost:6379",
		DefaultTTLSeconds: 15 * 60,
	}
}

// Cache is a Valkey-backed cache.
type Cache struct {
	client     valkeygo.Client
	defaultTTL time.Duration
}

// New connects to Valkey and returns a cache.
func New(opts Options) (*Cache, error) {
	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
		// Rate-limit counters must not be served from the client-side cache.
		DisableCache: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		client:     client,
		defaultTTL: time.Duration(opts.DefaultTTLSeconds) * time.Second,
	}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.client.Do(ctx, c.client.B().Set().Key(key).Value(valkeygo.BinaryString(value)).Px(ttl).Build()).Error()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment adds delta to a counter and returns the new value and reset time.
// The TTL is attached when the counter is first created so the window does
// not slide on subsequent increments.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	count, err := c.client.Do(ctx, c.client.B().Incrby().Key(key).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, err
	}

	if count == delta {
		// First increment in this window
		if err := c.client.Do(ctx, c.client.B().Pexpire().Key(key).Milliseconds(ttl.Milliseconds()).Build()).Error(); err != nil {
			return 0, time.Time{}, err
		}
		return count, time.Now().Add(ttl), nil
	}

	remaining, err := c.client.Do(ctx, c.client.B().Pttl().Key(key).Build()).AsInt64()
	if err != nil || remaining < 0 {
		return count, time.Now().Add(ttl), nil
	}
	return count, time.Now().Add(time.Duration(remaining) * time.Millisecond), nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	v, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsInt64()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

// Reset sets a counter to 0.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Close releases the client connection.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

// Ensure Cache implements CacheWithCounter.
var _ cache.CacheWithCounter = (*Cache)(nil)
