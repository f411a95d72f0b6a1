package webhook

import (
	"context"
	"net/url"
)

// TokenChecker reports whether any tenant is configured with token.
type TokenChecker interface {
	HasVerifyToken(ctx context.Context, token string) (bool, error)
}

// VerifyChallenge answers the subscription handshake. It returns the
// challenge to echo and true when the request is accepted.
//
// A request carrying a mode or a verify token is accepted only when the mode
// is "subscribe" and the token matches globalToken or any tenant token.
// Gateways that send nothing but a "challenge" parameter are echoed as is.
func VerifyChallenge(ctx context.Context, q url.Values, globalToken string, tenants TokenChecker) (string, bool, error) {
	mode := first(q, "hub.mode", "mode")
	token := first(q, "hub.verify_token", "verify_token")
	challenge := first(q, "hub.challenge", "challenge")

	if mode != "" || token != "" {
		if mode != "subscribe" || token == "" {
			return "", false, nil
		}
		if globalToken != "" && token == globalToken {
			return challenge, true, nil
		}
		if tenants != nil {
			ok, err := tenants.HasVerifyToken(ctx, token)
			if err != nil {
				return "", false, err
			}
			if ok {
				return challenge, true, nil
			}
		}
		return "", false, nil
	}
	if c := q.Get("challenge"); c != "" {
		return c, true, nil
	}
	return "", false, nil
}

// EchoChallenge answers the handshake of a tenant-scoped gateway endpoint,
// which has no verify token: the challenge, if any, is echoed.
func EchoChallenge(q url.Values) (string, bool) {
	c := first(q, "challenge", "hub.challenge")
	return c, c != ""
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}
