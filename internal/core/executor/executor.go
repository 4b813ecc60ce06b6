// Package executor coordinates executing CARTO SQL requests and streaming responses.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/cartosql"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/observability"
)

type SQLFetcher interface {
	FetchSQL(ctx context.Context, sql string) ([]byte, string, error)
}

type Interface interface {
	SQLFetcher
	ForwardSQL(w http.ResponseWriter, r *http.Request, sql string)
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	sqlURL   *url.URL
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, endpoint string) (*Executor, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse sql endpoint: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{
		logger:   logger,
		client:   client,
		sqlURL:   u,
		startNow: time.Now,
	}, nil
}

func (e *Executor) Endpoint() string { return e.sqlURL.String() }

// ForwardSQL proxies the query to CARTO and streams the response back unchanged.
func (e *Executor) ForwardSQL(w http.ResponseWriter, r *http.Request, sql string) {
	params := cartosql.BuildParams(sql)
	start := e.startNow()

	rt := http.RoundTripper(http.DefaultTransport)
	if e.client != nil && e.client.Transport != nil {
		rt = e.client.Transport
	}

	proxy := &httputil.ReverseProxy{
		Transport: rt,

		Rewrite: func(p *httputil.ProxyRequest) {
			p.Out.URL.Scheme = e.sqlURL.Scheme
			p.Out.URL.Host = e.sqlURL.Host
			p.Out.URL.Path = e.sqlURL.Path
			p.Out.URL.RawPath = e.sqlURL.EscapedPath()
			p.Out.URL.RawQuery = params.Encode()
			p.Out.Host = e.sqlURL.Host
			p.Out.Header.Set("Accept", "application/geo+json, application/json")
			p.SetXForwarded()
		},

		ModifyResponse: func(resp *http.Response) error {
			dur := time.Since(start)
			e.logger.Debug("forward done",
				"status", resp.StatusCode,
				"duration", dur.String())
			observability.ObserveUpstreamLatency("carto", dur.Seconds())
			return nil
		},

		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			e.logger.Error("reverse proxy error", "err", err)
			http.Error(w, "upstream proxy error: "+err.Error(), http.StatusBadGateway)
		},
	}

	e.logger.Debug("forward carto sql", "endpoint", e.sqlURL.String())
	proxy.ServeHTTP(w, r)
}

// FetchSQL runs the query and returns the raw GeoJSON body. Non-2xx statuses
// come back as *UpstreamError; network failures wrap ErrTransport. A canceled
// ctx is returned as-is so callers can tell superseded requests apart.
func (e *Executor) FetchSQL(ctx context.Context, sql string) ([]byte, string, error) {
	params := cartosql.BuildParams(sql)

	u := *e.sqlURL
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, "", fmt.Errorf("do request: %w", ctxErr)
		}
		return nil, "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("carto", dur.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", classify(resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	return b, resp.Header.Get("Content-Type"), nil
}

// Fetch runs the query and decodes the response into a feature collection.
func (e *Executor) Fetch(ctx context.Context, q model.Query) (*model.FeatureCollection, error) {
	return Decode(ctx, e, q)
}

// Decode fetches through f and parses the body as GeoJSON.
func Decode(ctx context.Context, f SQLFetcher, q model.Query) (*model.FeatureCollection, error) {
	b, _, err := f.FetchSQL(ctx, q.SQL)
	if err != nil {
		return nil, err
	}
	fc, err := model.ParseFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	return fc, nil
}

// FeatureFetcher decodes through any SQLFetcher, such as the result cache.
type FeatureFetcher struct {
	SQL SQLFetcher
}

func (f FeatureFetcher) Fetch(ctx context.Context, q model.Query) (*model.FeatureCollection, error) {
	return Decode(ctx, f.SQL, q)
}
