package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds re-sends of one request. MaxRetries counts additional
// attempts after the first one.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries 3 times starting at 500ms, doubling up to 8s.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	base, ceil := p.BaseDelay, p.MaxDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}
	if ceil < base {
		ceil = base
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         ceil,
	}
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body) }

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// postJSON sends body to url, retrying 429, 5xx and transport failures with
// exponential backoff and jitter. Other 4xx responses fail immediately.
// It returns the response body of the successful attempt and the number of
// attempts made.
func postJSON(ctx context.Context, client *http.Client, p RetryPolicy, url string, headers map[string]string, body any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}

	attempts := 0
	op := func() ([]byte, error) {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return b, nil
		}
		se := &StatusError{Code: resp.StatusCode, Body: string(b)}
		if retryable(resp.StatusCode) {
			return nil, se
		}
		return nil, backoff.Permanent(se)
	}

	maxTries := p.MaxRetries + 1
	if maxTries < 1 {
		maxTries = 1
	}
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("backoff", next).Str("url", url).Msg("outbound send failed, will retry")
		}),
	)
	return out, attempts, err
}
