package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only when TLS terminates in front of or at this process
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store plus legacy Pragma/Expires
	EnablePolicy bool          // Permissions-Policy and X-Permitted-Cross-Domain-Policies
}

type headerPair struct{ key, value string }

func (o SecurityOptions) static() []headerPair {
	pairs := []headerPair{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if o.EnablePolicy {
		pairs = append(pairs,
			headerPair{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			headerPair{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if o.NoStore {
		pairs = append(pairs,
			headerPair{"Cache-Control", "no-store"},
			headerPair{"Pragma", "no-cache"},
			headerPair{"Expires", "0"},
		)
	}
	return pairs
}

func (o SecurityOptions) hsts() string {
	age := o.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	return fmt.Sprintf("max-age=%d; includeSubDomains; preload", int64(age.Seconds()))
}

// SecurityHeaders sets the fixed response headers chosen by opt. HSTS is
// only sent on HTTPS requests (direct TLS or X-Forwarded-Proto: https), and
// a request id already on the response is added to
// Access-Control-Expose-Headers.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	pairs := opt.static()
	hsts := opt.hsts()

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, p := range pairs {
			h.Set(p.key, p.value)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			h.Set("Access-Control-Expose-Headers", appendToken(h.Get("Access-Control-Expose-Headers"), requestIDHeader))
		}
		c.Next()
	}
}

// appendToken adds tok to a comma-separated header value unless present.
func appendToken(list, tok string) string {
	if list == "" {
		return tok
	}
	for _, t := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(t), tok) {
			return list
		}
	}
	return list + ", " + tok
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
