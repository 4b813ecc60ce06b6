// Package metricswrap wraps a hotness ranker with Prometheus metrics.
package metricswrap

import (
	"fmt"

	xx "github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/observability"
	"github.com/mohammed-shakir/freeze-risk-map/internal/hotness"
)

type Sizer interface{ Size() int }

// Options controls the sampled "hot key" log line. A zero Threshold disables it.
type Options struct {
	Tier      string
	Threshold float64
	LogSample float64
	Logger    *zerolog.Logger
}

type WithMetrics struct {
	inner hotness.Ranker
	opts  Options
}

var _ hotness.Ranker = (*WithMetrics)(nil)

func New(inner hotness.Ranker, opts Options) *WithMetrics {
	if opts.Tier == "" {
		opts.Tier = "query"
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &WithMetrics{inner: inner, opts: opts}
}

func (w *WithMetrics) Inc(key string) {
	w.inner.Inc(key)
	if w.opts.Threshold > 0 {
		score := w.inner.Score(key)
		if score >= w.opts.Threshold && shouldLog(w.opts.LogSample, key) {
			w.opts.Logger.Info().
				Str("event", "hotness_threshold").
				Float64("score", score).
				Str("tier", w.opts.Tier).
				Str("key_hash", fmt.Sprintf("%08x", xx.Sum64String(key))).
				Msg("hot query above threshold")
		}
	}
	w.report()
}

func (w *WithMetrics) Score(key string) float64 {
	return w.inner.Score(key)
}

func (w *WithMetrics) Reset(keys ...string) {
	w.inner.Reset(keys...)
	w.report()
}

func (w *WithMetrics) Top(n int, minScore float64) []string {
	return w.inner.Top(n, minScore)
}

func (w *WithMetrics) report() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotKeysGauge(w.opts.Tier, s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000 // 0.01 => 100/10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	h := xx.Sum64String(key)
	return (h % denom) < threshold
}
