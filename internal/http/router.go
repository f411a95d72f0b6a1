// Package httpapi wires the Gin engine: the provider webhooks, the
// tenant-scoped admin API, health and metrics.
//
// Global middleware runs in this order:
//  1. OpenTelemetry
//  2. RequestID
//  3. AccessLog (webhook signature and API key headers masked)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. Security headers
//
// The admin group adds CORS, AdminAuth, a per-subject rate limiter and gzip.
// It is only mounted when an admin JWT secret is configured.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-order-agent/internal/config"
	"github.com/tbourn/go-order-agent/internal/http/handlers"
	"github.com/tbourn/go-order-agent/internal/http/middleware"
	"github.com/tbourn/go-order-agent/internal/webhook"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

// WebhookPath is where the provider calls back.
const WebhookPath = "/webhook/whatsapp"

// TenantWebhookPath is the gateway callback bound to one tenant.
const TenantWebhookPath = "/webhooks/lam/:tenantId"

var adminAllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}

// RegisterRoutes attaches middleware and endpoints to r.
func RegisterRoutes(r *gin.Engine, cfg config.Config, h *handlers.Handlers) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName,
		otelgin.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/metrics" }),
	))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		MaskHeaders: []string{webhook.SignatureHeader, "lam-api-key", "x-lam-api-key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(MaxBodyBytes))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.GET(WebhookPath, h.VerifyWebhook)
	r.POST(WebhookPath, h.ReceiveWebhook)
	r.GET(TenantWebhookPath, h.VerifyTenantWebhook)
	r.POST(TenantWebhookPath, h.ReceiveTenantWebhook)

	if cfg.AdminJWTSecret == "" {
		return
	}

	admin := groupWithPrefix(r, cfg.APIBasePath)
	admin.Use(adminCORS(cfg.CORS))
	admin.Use(middleware.AdminAuth(cfg.AdminJWTSecret))
	admin.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySubjectOrIP()).Handler())
	admin.Use(gzip.Gzip(gzip.DefaultCompression))
	// Preflights are answered by the CORS middleware before auth runs.
	admin.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	{
		t := admin.Group("/tenants/:tenantId")
		t.GET("/conversations/:counterparty", h.GetConversation)
		t.DELETE("/conversations/:counterparty", h.ClearConversation)
		t.GET("/orders", h.ListOrders)
		t.GET("/menu", h.MenuLookup)
	}
}

// adminCORS allows any origin when none is configured, otherwise echoes
// allowlisted origins only. Credentials are never allowed.
func adminCORS(cc config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders:  adminAllowHeaders,
		ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cc.AllowedOrigins
	}
	return cors.New(c)
}

// limitBody caps request bodies at maxBytes; reads past the cap fail with
// *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
