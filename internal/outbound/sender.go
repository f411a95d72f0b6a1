// Package outbound delivers text replies through the messaging providers.
//
// Two adapters share one retry policy: the Graph adapter (WhatsApp Cloud API,
// bearer access token) and the Gateway adapter (REST gateway, API key). The
// Dispatcher picks one per tenant from configuration; the choice is never
// negotiated per message.
package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// ErrNoChannel is reported when the send target is not configured. No
// network call is made in that case.
var ErrNoChannel = errors.New("outbound: channel not configured")

// ErrImageUnsupported is reported for image sends on the gateway provider.
var ErrImageUnsupported = errors.New("outbound: provider cannot send images")

// Channel is the resolved send identity of a tenant.
type Channel struct {
	Provider      domain.Provider
	PhoneNumberID string
	AccessToken   string
	APIKey        string
	SenderID      string
}

// Result is the outcome of one send. Status is the HTTP status of a failed
// send (0 when no response was received). Attempts is 0 when nothing was sent.
type Result struct {
	Success   bool
	MessageID string
	ErrorText string
	Status    int
	Attempts  int
}

// Sender is one provider adapter.
type Sender interface {
	Send(ctx context.Context, ch Channel, to, text string) Result
}

// defaultHTTPClient is shared by adapters constructed without a client.
func defaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// failure converts an error from postJSON into a Result.
func failure(err error, attempts int) Result {
	res := Result{ErrorText: err.Error(), Attempts: attempts}
	var se *StatusError
	if errors.As(err, &se) {
		res.Status = se.Code
		res.ErrorText = providerError(se)
	}
	return res
}

// providerError extracts error.message or message from a provider body,
// falling back to the status code.
func providerError(se *StatusError) string {
	var body struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(se.Body), &body) == nil {
		if body.Error.Message != "" {
			return body.Error.Message
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strconv.Itoa(se.Code)
}
