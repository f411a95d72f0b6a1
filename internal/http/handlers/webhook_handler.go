package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-order-agent/internal/http/middleware"
	"github.com/tbourn/go-order-agent/internal/services"
	"github.com/tbourn/go-order-agent/internal/webhook"
)

// API key headers sent by the gateway.
var apiKeyHeaders = []string{"lam-api-key", "x-lam-api-key"}

// VerifyWebhook godoc
// @ID          verifyWebhook
// @Summary     Verify the webhook subscription
// @Description Echoes hub.challenge when hub.mode is subscribe and hub.verify_token matches the global or a tenant token.
// @Tags        Webhooks
// @Produce     plain
//
// @Param       hub.mode          query  string  false  "Subscription mode"  example(subscribe)
// @Param       hub.verify_token  query  string  false  "Verify token"
// @Param       hub.challenge     query  string  false  "Challenge to echo"
//
// @Success     200  {string}  string  "The challenge"
// @Failure     403  {string}  string  "forbidden"
// @Router      /webhook/whatsapp [get]
func (h *Handlers) VerifyWebhook(c *gin.Context) {
	challenge, accepted, err := webhook.VerifyChallenge(c.Request.Context(), c.Request.URL.Query(), h.webhook.VerifyToken, h.webhook.Tokens)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("verify token lookup failed")
	}
	if err != nil || !accepted {
		c.String(http.StatusForbidden, "forbidden")
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Receive provider callbacks
// @Description Accepts Graph and gateway callbacks and queues their messages. Unknown and inactive tenants are acked with 200. The response never waits for the reply to be generated.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       X-Hub-Signature-256  header  string  false  "Graph payload signature"
// @Param       lam-api-key          header  string  false  "Gateway API key"
//
// @Success     200  {object}  map[string]bool  "ok true"
// @Failure     400  {object}  map[string]bool  "Unparseable body or no sender"
// @Failure     403  {object}  map[string]bool  "Signature mismatch"
// @Failure     413  {object}  map[string]bool  "Body too large"
// @Failure     500  {object}  map[string]bool  "Handoff failed"
// @Router      /webhook/whatsapp [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	h.receive(c, "")
}

// VerifyTenantWebhook godoc
// @ID          verifyTenantWebhook
// @Summary     Verify a tenant gateway webhook
// @Description Echoes challenge (or hub.challenge). The tenant id in the path is the credential.
// @Tags        Webhooks
// @Produce     plain
//
// @Param       tenantId   path   string  true   "Tenant ID"
// @Param       challenge  query  string  false  "Challenge to echo"
//
// @Success     200  {string}  string  "The challenge"
// @Failure     403  {string}  string  "forbidden"
// @Router      /webhooks/lam/{tenantId} [get]
func (h *Handlers) VerifyTenantWebhook(c *gin.Context) {
	challenge, ok := webhook.EchoChallenge(c.Request.URL.Query())
	if !ok {
		c.String(http.StatusForbidden, "forbidden")
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveTenantWebhook godoc
// @ID          receiveTenantWebhook
// @Summary     Receive gateway callbacks for one tenant
// @Description Gateway callbacks are bound to the path tenant. Status codes match receiveWebhook.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       tenantId  path  string  true  "Tenant ID"
//
// @Success     200  {object}  map[string]bool  "ok true"
// @Failure     400  {object}  map[string]bool  "Unparseable body or no sender"
// @Failure     413  {object}  map[string]bool  "Body too large"
// @Failure     500  {object}  map[string]bool  "Handoff failed"
// @Router      /webhooks/lam/{tenantId} [post]
func (h *Handlers) ReceiveTenantWebhook(c *gin.Context) {
	tenantID := strings.TrimSpace(c.Param("tenantId"))
	if tenantID == "" {
		ack(c, http.StatusBadRequest)
		return
	}
	h.receive(c, tenantID)
}

func (h *Handlers) receive(c *gin.Context, tenantID string) {
	lg := middleware.LoggerFrom(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			ack(c, http.StatusRequestEntityTooLarge)
			return
		}
		lg.Warn().Err(err).Msg("read webhook body")
		ack(c, http.StatusBadRequest)
		return
	}

	res, err := h.ingest.Ingest(c.Request.Context(), services.IngestRequest{
		Body:      body,
		Signature: c.GetHeader(webhook.SignatureHeader),
		APIKey:    apiKey(c),
		TenantID:  tenantID,
	})
	switch {
	case errors.Is(err, webhook.ErrBadSignature):
		lg.Warn().Msg("webhook signature mismatch")
		ack(c, http.StatusForbidden)
	case errors.Is(err, services.ErrInvalidPayload):
		lg.Warn().Err(err).Msg("invalid webhook payload")
		ack(c, http.StatusBadRequest)
	case err != nil:
		lg.Error().Err(err).Msg("webhook ingest failed")
		ack(c, http.StatusInternalServerError)
	default:
		lg.Debug().
			Str("format", res.Format.String()).
			Int("accepted", res.Accepted).
			Int("unresolved", res.Unresolved).
			Int("inactive", res.Inactive).
			Msg("webhook ingested")
		ack(c, http.StatusOK)
	}
}

func apiKey(c *gin.Context) string {
	for _, h := range apiKeyHeaders {
		if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
			return v
		}
	}
	return ""
}
