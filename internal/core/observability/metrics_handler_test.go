package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ExposeBuildInfo("test")
	ObserveHTTP("GET", "/api/counties", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "app_build_info") || !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestFetchAndCacheCounters_Labels(t *testing.T) {
	SetProfile("v2")
	defer SetProfile("")

	before := testutil.ToFloat64(fetchResults.WithLabelValues("not_found", "20", "v2"))
	IncFetch("not_found", "20")
	if got := testutil.ToFloat64(fetchResults.WithLabelValues("not_found", "20", "v2")); got != before+1 {
		t.Fatalf("fetch counter=%v want %v", got, before+1)
	}

	IncCacheHit("lru")
	if got := testutil.ToFloat64(cacheResults.WithLabelValues("hit", "lru", "v2")); got < 1 {
		t.Fatalf("cache hit counter=%v", got)
	}

	ObserveInvalidation("first_freeze_28f", errors.New("x"))
	if got := testutil.ToFloat64(invalidationsTotal.WithLabelValues("first_freeze_28f", "error")); got < 1 {
		t.Fatalf("invalidation counter=%v", got)
	}
}

func TestSetProfile_EmptyFallsBack(t *testing.T) {
	SetProfile("")
	if got := getProfile(); got != "v4" {
		t.Fatalf("profile=%q", got)
	}
}
