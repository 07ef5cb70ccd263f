// Package redis implements the stats cache on Redis.
//
// Cache is a thin JSON layer over go-redis: point reads, multi-key reads and
// the guarded MULTI/EXEC used to commit a day. StatsStore maps the
// stats.Repository onto it with keys of the form stats:{username}:{statType}.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the stats cache connection. Zero pool and timeout fields fall
// back to go-redis defaults.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig points at a local Redis.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr is host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
	ErrCacheInvalidTTL    = errors.New("cache: invalid TTL")
	ErrCacheKeyEmpty      = errors.New("cache: key cannot be empty")

	// ErrGuardFailed: WriteIfAbsent found its guard key set, or lost the
	// WATCH race to a writer that set it.
	ErrGuardFailed = errors.New("cache: guard key already set")
)

// Cache is safe for concurrent use.
type Cache struct {
	client *redis.Client
}

// NewCache dials Redis and fails unless PING answers within DialTimeout.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.options())

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr(), err)
	}
	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps a client the caller already owns.
func NewCacheFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Close() error                   { return c.client.Close() }
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

// Get decodes the JSON value at key into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: key %s: %v", ErrCacheSerialization, key, err)
	}
	return nil
}

// Exists reports whether key is set.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// MGet reads keys in one round trip. Missing keys are absent from the map.
func (c *Cache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	found := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return found, nil
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			found[keys[i]] = s
		}
	}
	return found, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GUARDED WRITES
// ══════════════════════════════════════════════════════════════════════════════

// Write is one JSON-encoded SET. A zero TTL keeps the key forever.
type Write struct {
	Key   string
	Value any
	TTL   time.Duration
}

// WriteIfAbsent applies every write in one MULTI/EXEC while guard is unset.
// The guard is WATCHed from the EXISTS check through EXEC, so either all
// writes land or none do and the caller gets ErrGuardFailed.
func (c *Cache) WriteIfAbsent(ctx context.Context, guard string, writes ...Write) error {
	if guard == "" {
		return ErrCacheKeyEmpty
	}
	payloads, err := encodeWrites(writes)
	if err != nil {
		return err
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, guard).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrGuardFailed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range writes {
				pipe.Set(ctx, w.Key, payloads[i], w.TTL)
			}
			return nil
		})
		return err
	}, guard)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrGuardFailed
	}
	return err
}

func encodeWrites(writes []Write) ([][]byte, error) {
	payloads := make([][]byte, len(writes))
	for i, w := range writes {
		switch {
		case w.Key == "":
			return nil, ErrCacheKeyEmpty
		case w.TTL < 0:
			return nil, fmt.Errorf("%w: key %s: %s", ErrCacheInvalidTTL, w.Key, w.TTL)
		}
		data, err := json.Marshal(w.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", ErrCacheSerialization, w.Key, err)
		}
		payloads[i] = data
	}
	return payloads, nil
}
