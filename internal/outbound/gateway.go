package outbound

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// GatewaySender sends through the REST messaging gateway.
type GatewaySender struct {
	BaseURL string
	Client  *http.Client
	Policy  RetryPolicy
}

// NewGatewaySender builds an adapter with a client bounded by timeout.
func NewGatewaySender(baseURL string, timeout time.Duration, p RetryPolicy) *GatewaySender {
	return &GatewaySender{BaseURL: baseURL, Client: defaultHTTPClient(timeout), Policy: p}
}

type gatewaySendRequest struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Type string    `json:"type"`
	Text graphText `json:"text"`
}

// Send posts a text message to `to` from the channel's sender id.
func (g *GatewaySender) Send(ctx context.Context, ch Channel, to, text string) Result {
	if g.BaseURL == "" || ch.APIKey == "" || ch.SenderID == "" {
		return Result{ErrorText: ErrNoChannel.Error()}
	}
	b, attempts, err := postJSON(ctx, g.Client, g.Policy, strings.TrimRight(g.BaseURL, "/")+"/messages",
		map[string]string{"Authorization": "Bearer " + ch.APIKey},
		gatewaySendRequest{From: ch.SenderID, To: to, Type: "text", Text: graphText{Body: text}})
	if err != nil {
		return failure(err, attempts)
	}
	var resp struct {
		ID        string `json:"id"`
		MessageID string `json:"messageId"`
	}
	res := Result{Success: true, Attempts: attempts}
	if json.Unmarshal(b, &resp) == nil {
		res.MessageID = resp.ID
		if res.MessageID == "" {
			res.MessageID = resp.MessageID
		}
	}
	return res
}
