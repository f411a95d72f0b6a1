package outbound

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// GraphSender sends through the WhatsApp Cloud (Graph) API.
type GraphSender struct {
	BaseURL    string // e.g. https://graph.facebook.com
	APIVersion string // e.g. v18.0
	Client     *http.Client
	Policy     RetryPolicy
}

// NewGraphSender builds an adapter with a client bounded by timeout.
func NewGraphSender(baseURL, version string, timeout time.Duration, p RetryPolicy) *GraphSender {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	if version == "" {
		version = "v18.0"
	}
	return &GraphSender{BaseURL: baseURL, APIVersion: version, Client: defaultHTTPClient(timeout), Policy: p}
}

type graphText struct {
	Body string `json:"body"`
}

type graphImage struct {
	Link string `json:"link"`
}

type graphSendRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *graphText  `json:"text,omitempty"`
	Image            *graphImage `json:"image,omitempty"`
}

type graphReadRequest struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

func (g *GraphSender) endpoint(phoneID string) string {
	return strings.TrimRight(g.BaseURL, "/") + "/" + g.APIVersion + "/" + phoneID + "/messages"
}

// Send posts a text message to `to`.
func (g *GraphSender) Send(ctx context.Context, ch Channel, to, text string) Result {
	return g.send(ctx, ch, graphSendRequest{MessagingProduct: "whatsapp", To: to, Type: "text", Text: &graphText{Body: text}})
}

// SendImage posts an image message whose media the provider fetches from link.
func (g *GraphSender) SendImage(ctx context.Context, ch Channel, to, link string) Result {
	return g.send(ctx, ch, graphSendRequest{MessagingProduct: "whatsapp", To: to, Type: "image", Image: &graphImage{Link: link}})
}

func (g *GraphSender) send(ctx context.Context, ch Channel, req graphSendRequest) Result {
	if ch.PhoneNumberID == "" || ch.AccessToken == "" {
		return Result{ErrorText: ErrNoChannel.Error()}
	}
	b, attempts, err := postJSON(ctx, g.Client, g.Policy, g.endpoint(ch.PhoneNumberID),
		map[string]string{"Authorization": "Bearer " + ch.AccessToken}, req)
	if err != nil {
		return failure(err, attempts)
	}
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	res := Result{Success: true, Attempts: attempts}
	if json.Unmarshal(b, &resp) == nil && len(resp.Messages) > 0 {
		res.MessageID = resp.Messages[0].ID
	}
	return res
}

// MarkRead marks an inbound message as read. It is attempted once.
func (g *GraphSender) MarkRead(ctx context.Context, ch Channel, messageID string) error {
	if ch.PhoneNumberID == "" || ch.AccessToken == "" {
		return ErrNoChannel
	}
	_, _, err := postJSON(ctx, g.Client, RetryPolicy{MaxRetries: 0, BaseDelay: g.Policy.BaseDelay, MaxDelay: g.Policy.MaxDelay},
		g.endpoint(ch.PhoneNumberID),
		map[string]string{"Authorization": "Bearer " + ch.AccessToken},
		graphReadRequest{MessagingProduct: "whatsapp", Status: "read", MessageID: messageID})
	return err
}
