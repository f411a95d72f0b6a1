package outbound

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/observability"
	"github.com/tbourn/go-order-agent/internal/sysutil"
)

// Defaults are the global channel settings. Non-empty tenant values win.
type Defaults struct {
	Provider        domain.Provider
	PhoneNumberID   string
	AccessToken     string
	GatewayAPIKey   string
	GatewaySenderID string
}

// Dispatcher routes replies to the adapter selected for a tenant.
type Dispatcher struct {
	Graph    *GraphSender
	Gateway  *GatewaySender
	Defaults Defaults
}

// NewDispatcher wires both adapters.
func NewDispatcher(graph *GraphSender, gateway *GatewaySender, d Defaults) *Dispatcher {
	if d.Provider == "" {
		d.Provider = domain.ProviderGraph
	}
	return &Dispatcher{Graph: graph, Gateway: gateway, Defaults: d}
}

// ChannelFor resolves the send identity of t.
func (d *Dispatcher) ChannelFor(t *domain.Tenant) Channel {
	ch := Channel{
		Provider:      d.Defaults.Provider,
		PhoneNumberID: d.Defaults.PhoneNumberID,
		AccessToken:   d.Defaults.AccessToken,
		APIKey:        d.Defaults.GatewayAPIKey,
		SenderID:      d.Defaults.GatewaySenderID,
	}
	if t == nil {
		return ch
	}
	if t.Provider != "" {
		ch.Provider = t.Provider
	}
	ch.PhoneNumberID = sysutil.FirstNonEmpty(t.PhoneNumberID, ch.PhoneNumberID)
	ch.AccessToken = sysutil.FirstNonEmpty(t.AccessToken, ch.AccessToken)
	ch.APIKey = sysutil.FirstNonEmpty(t.GatewayAPIKey, ch.APIKey)
	ch.SenderID = sysutil.FirstNonEmpty(t.GatewaySenderID, ch.SenderID)
	return ch
}

func (d *Dispatcher) sender(p domain.Provider) Sender {
	if p == domain.ProviderGateway {
		if d.Gateway == nil {
			return nil
		}
		return d.Gateway
	}
	if d.Graph == nil {
		return nil
	}
	return d.Graph
}

// Send delivers text to `to` on behalf of t. Failures are returned in the
// Result, never as a panic or error.
func (d *Dispatcher) Send(ctx context.Context, t *domain.Tenant, to, text string) Result {
	ch := d.ChannelFor(t)
	ctx, span := otel.Tracer("outbound/dispatcher").Start(ctx, "Send",
		trace.WithAttributes(attribute.String("messaging.provider", string(ch.Provider))))
	defer span.End()

	s := d.sender(ch.Provider)
	if s == nil {
		observability.OutboundSends.WithLabelValues(string(ch.Provider), "no_channel").Inc()
		return Result{ErrorText: ErrNoChannel.Error()}
	}
	res := s.Send(ctx, ch, to, text)
	d.record(span, ch.Provider, res)
	return res
}

// SendImage delivers the image at link to `to`. Only the Graph provider
// carries images; the gateway reports ErrImageUnsupported without a call.
func (d *Dispatcher) SendImage(ctx context.Context, t *domain.Tenant, to, link string) Result {
	ch := d.ChannelFor(t)
	ctx, span := otel.Tracer("outbound/dispatcher").Start(ctx, "SendImage",
		trace.WithAttributes(attribute.String("messaging.provider", string(ch.Provider))))
	defer span.End()

	if ch.Provider != domain.ProviderGraph {
		return Result{ErrorText: ErrImageUnsupported.Error()}
	}
	if d.Graph == nil {
		observability.OutboundSends.WithLabelValues(string(ch.Provider), "no_channel").Inc()
		return Result{ErrorText: ErrNoChannel.Error()}
	}
	res := d.Graph.SendImage(ctx, ch, to, link)
	d.record(span, ch.Provider, res)
	return res
}

func (d *Dispatcher) record(span trace.Span, p domain.Provider, res Result) {
	span.SetAttributes(attribute.Int("send.attempts", res.Attempts), attribute.Bool("send.success", res.Success))

	switch {
	case res.Success:
		observability.OutboundSends.WithLabelValues(string(p), "success").Inc()
	case res.Attempts == 0:
		observability.OutboundSends.WithLabelValues(string(p), "no_channel").Inc()
	default:
		observability.OutboundSends.WithLabelValues(string(p), "failure").Inc()
		log.Error().
			Str("provider", string(p)).
			Int("status", res.Status).
			Int("attempts", res.Attempts).
			Str("error", res.ErrorText).
			Msg("outbound send failed")
	}
}

// MarkRead acknowledges an inbound Graph message. It is a no-op for the
// gateway provider.
func (d *Dispatcher) MarkRead(ctx context.Context, t *domain.Tenant, messageID string) error {
	ch := d.ChannelFor(t)
	if ch.Provider != domain.ProviderGraph || d.Graph == nil || messageID == "" {
		return nil
	}
	return d.Graph.MarkRead(ctx, ch, messageID)
}
