package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/executor"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/health"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/router"
	"github.com/mohammed-shakir/freeze-risk-map/internal/metrics"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
	"github.com/mohammed-shakir/freeze-risk-map/internal/view"
)

const oneCounty = `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-94,41],[-93,41],[-93,42],[-94,42],[-94,41]]]},"properties":{"name":"Story County","state_name":"Iowa","f_10_doy":280}}]}`

type staticSQL struct{}

func (staticSQL) FetchSQL(context.Context, string) ([]byte, string, error) {
	return []byte(oneCounty), "application/json", nil
}

func testDeps(t *testing.T, checks ...health.Check) Deps {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prof, err := palette.LookupProfile("")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	api, err := router.New(router.Config{Fetcher: staticSQL{}, Profile: prof, Logger: logger})
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	vh, err := view.NewHandler(view.Config{
		Fetcher: executor.FeatureFetcher{SQL: staticSQL{}},
		Profile: prof,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("view.NewHandler: %v", err)
	}
	return Deps{
		API:     api,
		View:    vh,
		Metrics: metrics.Init(metrics.Config{}).Handler(),
		Checks:  checks,
	}
}

func TestNewHandler_Routes(t *testing.T) {
	srv := httptest.NewServer(NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), testDeps(t)))
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/api/legend", "/api/counties", "/api/sql?layer=20"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status=%d", path, resp.StatusCode)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatalf("GET %s: missing request id", path)
		}
	}

	resp, err := http.Get(srv.URL + "/query")
	if err != nil {
		t.Fatalf("GET /query: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown route status=%d", resp.StatusCode)
	}
}

func TestNewHandler_ReadyzReportsFailure(t *testing.T) {
	d := testDeps(t, health.Check{Name: "redis", Fn: func(context.Context) error { return errors.New("down") }})
	rr := httptest.NewRecorder()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), d).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestNewHandler_MetricsOptional(t *testing.T) {
	d := testDeps(t)
	d.Metrics = nil
	rr := httptest.NewRecorder()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), d).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestNewHandler_WebsocketThroughMiddleware(t *testing.T) {
	srv := httptest.NewServer(NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), testDeps(t)))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m view.ServerMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Type != view.MsgInit || m.Init == nil {
		t.Fatalf("first message=%+v", m)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)), testDeps(t))
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	err := Run(context.Background(), "256.0.0.1:bad", slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{})
	if err == nil {
		t.Fatal("expected listen error")
	}
}
