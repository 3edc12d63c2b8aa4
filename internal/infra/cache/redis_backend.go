package cache

import (
	"context"
	"crypto/tls"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
)

// managedTLSSuffixes are host suffixes of providers known to require
// TLS on their managed Redis endpoints (spec §4.1: "Connection URL
// rewritten to TLS when the host matches a known managed-TLS provider
// suffix").
var managedTLSSuffixes = []string{
	".upstash.io",
	".redns.redis-cloud.com",
	".cache.amazonaws.com",
}

// RedisConfig configures the distributed backend.
type RedisConfig struct {
	URL       string
	KeyPrefix string
}

// needsTLS reports whether addr's host matches a known managed-TLS
// Redis provider.
func needsTLS(addr string) bool {
	for _, suffix := range managedTLSSuffixes {
		if strings.HasSuffix(addr, suffix) || strings.Contains(addr, suffix+":") {
			return true
		}
	}
	return false
}

// Redis is the distributed Backend of spec §4.1: a persistent
// connection pool of 50 with TCP keepalive and 30s health checks,
// failures degraded to miss/no-op rather than raised to callers.
type Redis struct {
	client    *redis.Client
	keyPrefix string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis dials a Redis client per spec's pool settings (pool size
// 50, 30s pool wait timeout; TCP keepalive is the client's default
// dialer setting) and rewrites the URL to TLS for known managed
// providers.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if needsTLS(opts.Addr) && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: hostOnly(opts.Addr)}
	}
	opts.PoolSize = 50
	opts.PoolTimeout = 30 * time.Second

	client := redis.NewClient(opts)

	r := &Redis{client: client, keyPrefix: cfg.KeyPrefix}
	go r.healthLoop()
	return r, nil
}

// healthLoop pings every 30 seconds per spec §4.1's "30-second health
// checks"; failures are logged, not propagated — the backend already
// degrades reads/writes independently of this loop's outcome.
func (r *Redis) healthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.client.Ping(ctx).Err()
		cancel()
		if err != nil {
			zlog.Warn().Msgf("redis health check failed: error=%v", err)
		}
	}
}

// Get degrades to a logged miss on any backend error (spec §4.1
// "failures log and degrade: get returns miss").
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			zlog.Warn().Msgf("redis get failed, degrading to miss: key=%s error=%v", key, err)
		}
		r.misses.Add(1)
		return nil, false, nil
	}
	r.hits.Add(1)
	return val, true, nil
}

// Set degrades to a logged no-op on any backend error (spec §4.1
// "set is a no-op").
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		zlog.Warn().Msgf("redis set failed, degrading to no-op: key=%s error=%v", key, err)
	}
	return nil
}

// Delete degrades to a logged no-op on any backend error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		zlog.Warn().Msgf("redis delete failed: key=%s error=%v", key, err)
	}
	return nil
}

// Exists degrades to false on any backend error.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		zlog.Warn().Msgf("redis exists failed, degrading to false: key=%s error=%v", key, err)
		return false, nil
	}
	return n > 0, nil
}

// Clear iterates keys by the instance prefix and deletes them (spec
// §4.1: "clear() iterates keys by the instance prefix").
func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		zlog.Warn().Msgf("redis clear scan failed: error=%v", err)
		return nil
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		zlog.Warn().Msgf("redis clear delete failed: error=%v", err)
	}
	return nil
}

// Stats returns the backend's hit/miss counters.
func (r *Redis) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// hostOnly strips the port from a host:port address, for TLS SNI.
func hostOnly(addr string) string {
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
