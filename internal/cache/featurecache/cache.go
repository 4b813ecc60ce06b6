// Package featurecache is a read-through cache in front of the CARTO SQL fetcher.
//
// Results live in a per-process LRU backed by an optional shared Redis tier.
// Keys embed the table generation; a dataset refresh bumps the generation,
// which orphans every earlier entry in both tiers. With a hotness ranker
// configured, the hottest queries are fetched again right after a refresh so
// the first viewers after a reload do not all miss.
package featurecache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/freeze-risk-map/internal/cache/keys"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/executor"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/observability"
	"github.com/mohammed-shakir/freeze-risk-map/internal/hotness"
)

const (
	TierLRU   = "lru"
	TierRedis = "redis"
)

// Store is the shared tier. *redisstore.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

type Config struct {
	Table     string
	LRUSize   int
	TTL       time.Duration
	OpTimeout time.Duration

	// Hot ranks queries by request rate; nil disables warming.
	Hot          hotness.Ranker
	WarmTop      int
	WarmMinScore float64
	WarmTimeout  time.Duration
}

type entry struct {
	body        []byte
	contentType string
}

type Cache struct {
	next   executor.SQLFetcher
	shared Store
	cfg    Config
	logger *slog.Logger
	l1     *lru.Cache[string, entry]

	mu  sync.Mutex
	gen int64

	warming sync.WaitGroup
}

var _ executor.SQLFetcher = (*Cache)(nil)

// New wraps next. shared may be nil, in which case only the LRU tier is used
// and generations are tracked in process.
func New(next executor.SQLFetcher, shared Store, cfg Config, logger *slog.Logger) (*Cache, error) {
	if next == nil {
		return nil, errors.New("featurecache: nil fetcher")
	}
	if cfg.LRUSize <= 0 {
		cfg.LRUSize = 64
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 150 * time.Millisecond
	}
	if cfg.WarmTimeout <= 0 {
		cfg.WarmTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	l1, err := lru.New[string, entry](cfg.LRUSize)
	if err != nil {
		return nil, err
	}
	return &Cache{next: next, shared: shared, cfg: cfg, logger: logger, l1: l1}, nil
}

func (c *Cache) FetchSQL(ctx context.Context, sql string) ([]byte, string, error) {
	if c.cfg.Hot != nil {
		c.cfg.Hot.Inc(sql)
	}
	return c.fetch(ctx, sql)
}

func (c *Cache) fetch(ctx context.Context, sql string) ([]byte, string, error) {
	key := keys.Result(c.cfg.Table, c.generation(ctx), sql)

	if e, ok := c.l1.Get(key); ok {
		observability.IncCacheHit(TierLRU)
		return e.body, e.contentType, nil
	}
	observability.IncCacheMiss(TierLRU)

	if c.shared != nil {
		octx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
		b, ok, err := c.shared.Get(octx, key)
		cancel()
		switch {
		case err != nil:
			c.logger.Warn("shared cache get failed", "key", key, "err", err)
			observability.IncCacheMiss(TierRedis)
		case ok:
			observability.IncCacheHit(TierRedis)
			c.l1.Add(key, entry{body: b, contentType: "application/json"})
			return b, "application/json", nil
		default:
			observability.IncCacheMiss(TierRedis)
		}
	}

	body, ct, err := c.next.FetchSQL(ctx, sql)
	if err != nil {
		return nil, "", err
	}
	if !json.Valid(body) {
		return body, ct, nil
	}

	c.l1.Add(key, entry{body: body, contentType: ct})
	if c.shared != nil {
		octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OpTimeout)
		if err := c.shared.Set(octx, key, body, c.cfg.TTL); err != nil {
			c.logger.Warn("shared cache set failed", "key", key, "err", err)
		}
		cancel()
	}
	return body, ct, nil
}

// Invalidate moves table to a new generation. Refreshes for other tables are
// ignored.
func (c *Cache) Invalidate(ctx context.Context, table string) (int64, error) {
	if table != c.cfg.Table {
		return c.localGeneration(), nil
	}
	c.l1.Purge()

	if c.shared != nil {
		octx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
		defer cancel()
		n, err := c.shared.Incr(octx, keys.Generation(table))
		if err != nil {
			c.bumpLocal()
			return c.localGeneration(), err
		}
		c.setLocal(n)
		c.startWarm(ctx)
		return n, nil
	}
	n := c.bumpLocal()
	c.startWarm(ctx)
	return n, nil
}

func (c *Cache) startWarm(ctx context.Context) {
	if c.cfg.Hot == nil || c.cfg.WarmTop <= 0 {
		return
	}
	c.warming.Add(1)
	go func() {
		defer c.warming.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WarmTimeout)
		defer cancel()
		c.Warm(wctx)
	}()
}

// Warm fetches the hottest queries into the current generation and returns how
// many succeeded. Warm fetches do not count towards hotness.
func (c *Cache) Warm(ctx context.Context) int {
	if c.cfg.Hot == nil {
		return 0
	}
	ok := 0
	for _, sql := range c.cfg.Hot.Top(c.cfg.WarmTop, c.cfg.WarmMinScore) {
		if ctx.Err() != nil {
			break
		}
		_, _, err := c.fetch(ctx, sql)
		observability.IncWarmed(err)
		if err != nil {
			c.logger.Warn("cache warm fetch failed", "table", c.cfg.Table, "err", err)
			continue
		}
		ok++
	}
	c.logger.Debug("cache warmed", "table", c.cfg.Table, "queries", ok)
	return ok
}

// WaitWarm blocks until background warming started by Invalidate finishes.
func (c *Cache) WaitWarm() { c.warming.Wait() }

// Len reports the number of LRU entries.
func (c *Cache) Len() int { return c.l1.Len() }

// generation prefers the shared counter so every instance agrees. On a Redis
// failure the last known value is used.
func (c *Cache) generation(ctx context.Context) int64 {
	if c.shared == nil {
		return c.localGeneration()
	}
	octx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	n, err := c.shared.Counter(octx, keys.Generation(c.cfg.Table))
	if err != nil {
		c.logger.Warn("generation read failed", "table", c.cfg.Table, "err", err)
		return c.localGeneration()
	}
	c.setLocal(n)
	return n
}

func (c *Cache) localGeneration() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Cache) setLocal(n int64) {
	c.mu.Lock()
	if n > c.gen {
		c.gen = n
	}
	c.mu.Unlock()
}

func (c *Cache) bumpLocal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}
