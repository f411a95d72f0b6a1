package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-order-agent/internal/observability"
)

func TestMetrics_CountsByRouteNotURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/tenants/:tenantId/orders", func(c *gin.Context) { c.String(http.StatusOK, "[]") })

	orders := observability.HTTPRequests.WithLabelValues("GET", "/tenants/:tenantId/orders", "2xx")
	missing := observability.HTTPRequests.WithLabelValues("GET", observability.UnmatchedRoute, "4xx")
	before, beforeMissing := testutil.ToFloat64(orders), testutil.ToFloat64(missing)

	for _, target := range []string{"/tenants/t1/orders", "/tenants/t2/orders", "/nope/221770001234"} {
		serve(r, httptest.NewRequest(http.MethodGet, target, nil))
	}

	if d := testutil.ToFloat64(orders) - before; d != 2 {
		t.Fatalf("orders delta=%v, want 2", d)
	}
	if d := testutil.ToFloat64(missing) - beforeMissing; d != 1 {
		t.Fatalf("unmatched delta=%v, want 1", d)
	}
	if v := testutil.ToFloat64(observability.HTTPInFlight); v != 0 {
		t.Fatalf("inflight=%v after requests", v)
	}
}
