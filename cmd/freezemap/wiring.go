package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammed-shakir/freeze-risk-map/internal/cache/featurecache"
	"github.com/mohammed-shakir/freeze-risk-map/internal/cache/redisstore"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/cartosql"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/executor"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/health"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/httpclient"
	"github.com/mohammed-shakir/freeze-risk-map/internal/hotness/expdecay"
	"github.com/mohammed-shakir/freeze-risk-map/internal/hotness/metricswrap"
)

// fetchStack is the SQL fetch path: the executor, optionally behind the
// two-tier result cache.
type fetchStack struct {
	exec    *executor.Executor
	cache   *featurecache.Cache
	redis   *redisstore.Client
	fetcher executor.SQLFetcher
	checks  []health.Check
}

func (a *app) buildFetchStack(ctx context.Context, withCache bool) (*fetchStack, error) {
	endpoint, err := cartosql.SQLEndpoint(a.cfg.CartoBaseURL, a.cfg.CartoUser)
	if err != nil {
		return nil, err
	}
	exec, err := executor.New(a.log, httpclient.NewOutbound(a.cfg.HTTPTimeout), endpoint)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	fs := &fetchStack{exec: exec, fetcher: exec}
	if !withCache || !a.cfg.Cache.Enabled {
		return fs, nil
	}

	var shared featurecache.Store
	rc, err := redisstore.New(ctx, a.cfg.Cache.RedisAddr)
	if err != nil {
		// the LRU tier alone still serves; readiness reports the outage
		a.log.Warn("redis unavailable, continuing with in-process cache only", "addr", a.cfg.Cache.RedisAddr, "err", err)
		fs.checks = append(fs.checks, health.Check{Name: "redis", Fn: func(context.Context) error {
			return fmt.Errorf("redis %s not connected at startup", a.cfg.Cache.RedisAddr)
		}})
	} else {
		fs.redis = rc
		shared = rc
		fs.checks = append(fs.checks, health.Check{Name: "redis", Fn: rc.Ping})
	}

	hotLog := a.zl.With().Str("component", "hotness").Logger()
	hot := metricswrap.New(expdecay.New(a.cfg.Cache.HotHalfLife), metricswrap.Options{
		Tier:      "query",
		Threshold: hotLogThreshold,
		LogSample: 0.01,
		Logger:    &hotLog,
	})
	c, err := featurecache.New(exec, shared, featurecache.Config{
		Table:        a.cfg.CartoTable,
		LRUSize:      a.cfg.Cache.LRUSize,
		TTL:          a.cfg.Cache.TTL,
		OpTimeout:    a.cfg.Cache.OpTimeout,
		Hot:          hot,
		WarmTop:      a.cfg.Cache.WarmTop,
		WarmMinScore: warmMinScore,
	}, a.log)
	if err != nil {
		fs.close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	fs.cache = c
	fs.fetcher = c
	a.log.Info("result cache enabled", "redis", fs.redis != nil, "ttl", a.cfg.Cache.TTL.String(), "lru", a.cfg.Cache.LRUSize)
	return fs, nil
}

func (fs *fetchStack) close() {
	if fs.redis != nil {
		_ = fs.redis.Close()
	}
}

const (
	startupTimeout = 5 * time.Second

	// queries requested less than about once per half-life are not worth warming
	warmMinScore    = 1.0
	hotLogThreshold = 50.0
)
