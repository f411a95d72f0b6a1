package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	subjectKey     = "userID"
	claimsTenantID = "tenant_id"
	claimsRole     = "role"

	// RoleOperator may act on every tenant.
	RoleOperator = "operator"
)

var errSigningMethod = errors.New("unexpected signing method")

// AdminAuth validates an HS256 bearer token signed with secret.
//
// The token must carry a "sub". A token with role "operator" reaches every
// tenant; otherwise its "tenant_id" claim must equal the :tenantId route
// parameter (403 when it does not). Missing or invalid tokens get 401.
func AdminAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errSigningMethod
			}
			return key, nil
		})
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "token expired")
			return
		case err != nil:
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		sub, _ := claims.GetSubject()
		if sub == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "token has no subject")
			return
		}
		role, _ := claims[claimsRole].(string)
		scope, _ := claims[claimsTenantID].(string)
		if role != RoleOperator {
			if tid := c.Param("tenantId"); tid != "" && tid != scope {
				abortJSON(c, http.StatusForbidden, "forbidden", "token is not scoped to this tenant")
				return
			}
		}

		c.Set(subjectKey, sub)
		LoggerFrom(c).UpdateContext(func(l zerolog.Context) zerolog.Context {
			return l.Str("admin_sub", sub)
		})
		c.Next()
	}
}

// SubjectFrom returns the authenticated admin subject, if any.
func SubjectFrom(c *gin.Context) string {
	if v, ok := c.Get(subjectKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
