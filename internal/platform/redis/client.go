// Package redis connects the resolver cache, enrollment sessions and rate
// limit buckets to a shared Redis.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"praman/internal/platform/config"
	"praman/internal/platform/retry"
	"praman/pkg/platform/privacy"
)

type Client struct {
	*redis.Client
}

// New dials Redis and waits for PING. It returns nil, nil when no URL is
// configured so callers can fall back to in-memory stores.
func New(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	_, err = retry.Connect(ctx, logger, "redis", retry.DefaultMaxElapsed, func(ctx context.Context) (string, error) {
		return client.Ping(ctx).Result()
	})
	if err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// options overlays the configured pool sizing on the URL's settings. Zero
// values keep the go-redis defaults.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL %s: %w", privacy.RedactURL(cfg.URL), err)
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}

var (
	poolHitsDesc     = prometheus.NewDesc("praman_redis_pool_hits_total", "Connections found idle in the pool", nil, nil)
	poolMissesDesc   = prometheus.NewDesc("praman_redis_pool_misses_total", "Connections the pool had to dial", nil, nil)
	poolTimeoutsDesc = prometheus.NewDesc("praman_redis_pool_timeouts_total", "Waits for a pooled connection that timed out", nil, nil)
	poolTotalDesc    = prometheus.NewDesc("praman_redis_pool_total_conns", "Open connections in the pool", nil, nil)
	poolIdleDesc     = prometheus.NewDesc("praman_redis_pool_idle_conns", "Idle connections in the pool", nil, nil)
)

// PoolCollector exposes go-redis pool statistics, read at scrape time.
type PoolCollector struct {
	client *redis.Client
}

func NewPoolCollector(c *Client) *PoolCollector {
	return &PoolCollector{client: c.Client}
}

func (p *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolHitsDesc
	ch <- poolMissesDesc
	ch <- poolTimeoutsDesc
	ch <- poolTotalDesc
	ch <- poolIdleDesc
}

func (p *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.client.PoolStats()
	ch <- prometheus.MustNewConstMetric(poolHitsDesc, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(poolMissesDesc, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(poolTimeoutsDesc, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(s.IdleConns))
}
