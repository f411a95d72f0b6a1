package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/observability"
	"github.com/tbourn/go-order-agent/internal/repo"
	"github.com/tbourn/go-order-agent/internal/sysutil"
)

// Outcome is what the processor did with one message.
type Outcome struct {
	Skipped   string // "duplicate", "inactive", "unresolved" or empty
	Reply     string
	Intent    string
	Order     *domain.OrderRecord
	Delivered bool
}

// Processor runs one inbound message end to end: dedup, metadata capture,
// the order state machine, orchestration, history and dispatch. Messages
// of one conversation are serialized.
type Processor struct {
	Tenants      TenantDirectory
	Store        ConversationStore
	Orders       *OrderFlow
	Orchestrator *Orchestrator
	Dispatcher   Dispatcher
	Dedup        Deduper // nil disables deduplication
	Locks        *KeyedMutex
	Now          func() time.Time
}

// Process is the queue handler. Failures are logged, never returned.
func (p *Processor) Process(ctx context.Context, msg domain.InboundMessage) {
	if _, err := p.Handle(ctx, msg); err != nil {
		p.logger(msg).Error().Err(err).Msg("inbound processing failed")
	}
}

// Handle is Process with the outcome exposed.
func (p *Processor) Handle(ctx context.Context, msg domain.InboundMessage) (*Outcome, error) {
	ctx, span := otel.Tracer("services/Processor").Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.String("tenant.id", msg.TenantID),
			attribute.String("message.id", msg.MessageID),
			attribute.String("provider", string(msg.Provider)),
		))
	defer span.End()
	lg := p.logger(msg)

	t, err := p.Tenants.ByID(ctx, msg.TenantID)
	if errors.Is(err, repo.ErrNotFound) {
		lg.Warn().Msg("tenant disappeared before processing")
		return &Outcome{Skipped: "unresolved"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if !t.IsActive {
		observability.InboundMessages.WithLabelValues(string(msg.Provider), "inactive").Inc()
		return &Outcome{Skipped: "inactive"}, nil
	}

	if p.Dedup != nil {
		first, err := p.Dedup.Claim(ctx, t.ID, string(msg.Provider), msg.MessageID)
		if err != nil {
			// a broken receipt store must not stop replies
			lg.Warn().Err(err).Msg("dedup claim failed; processing anyway")
		} else if !first {
			observability.InboundMessages.WithLabelValues(string(msg.Provider), "duplicate").Inc()
			lg.Info().Msg("duplicate message dropped")
			return &Outcome{Skipped: "duplicate"}, nil
		}
	}

	if p.Locks != nil {
		unlock := p.Locks.Lock(conversationKey(t.ID, msg.From))
		defer unlock()
	}

	meta, err := p.Store.Metadata(ctx, t.ID, msg.From)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	if patch, ok := capturePatch(msg, meta); ok {
		if err := p.Store.UpdateMetadata(ctx, t.ID, msg.From, patch); err != nil {
			return nil, fmt.Errorf("store contact details: %w", err)
		}
		meta.Apply(patch)
	}

	order, err := p.Orders.Handle(ctx, t.ID, msg.From, msg.Text, meta)
	if err != nil {
		return nil, err
	}
	if order.Handled {
		out := &Outcome{Reply: order.Reply, Intent: "order_control", Order: order.Order}
		out.Delivered = p.deliver(ctx, t, msg, order.Reply, "")
		if order.Order != nil {
			lg.Info().Str("order_id", order.Order.ID).Int64("total", order.Order.Total).Msg("order confirmed")
		}
		return out, nil
	}

	if err := p.Store.UpdateMetadata(ctx, t.ID, msg.From, domain.MetadataPatch{LastQuery: domain.StrPtr(msg.Text)}); err != nil {
		return nil, fmt.Errorf("store last query: %w", err)
	}
	if err := p.Store.Append(ctx, t.ID, msg.From, domain.Message{
		ID:        msg.MessageID,
		Role:      domain.RoleUser,
		Content:   msg.Text,
		Timestamp: msg.ReceivedAt,
	}); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	reply, err := p.Orchestrator.Respond(ctx, t, msg.From, msg.Text)
	if err != nil {
		return nil, err
	}
	text := reply.Text
	if order.Reprompt && reply.Quote == nil {
		observability.OrderTransitions.WithLabelValues("reprompted").Inc()
		text += RepromptText(order.Pending)
	}

	now := p.now()
	if err := p.Store.Append(ctx, t.ID, msg.From, domain.Message{
		ID:        fmt.Sprintf("ai_%d", now.UnixMilli()),
		Role:      domain.RoleAssistant,
		Content:   text,
		ImageURL:  reply.ImageURL,
		Timestamp: now,
	}); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	lg.Info().Str("intent", reply.Intent).Bool("fallback", reply.Fallback).Msg("reply generated")
	out := &Outcome{Reply: text, Intent: reply.Intent}
	out.Delivered = p.deliver(ctx, t, msg, text, reply.ImageURL)
	return out, nil
}

// deliver sends text, then the image when there is one, and on success over
// Graph marks the inbound message read. The image and mark-read are best
// effort.
func (p *Processor) deliver(ctx context.Context, t *domain.Tenant, msg domain.InboundMessage, text, imageURL string) bool {
	if p.Dispatcher == nil {
		return false
	}
	res := p.Dispatcher.Send(ctx, t, msg.From, text)
	if !res.Success {
		return false
	}
	if imageURL != "" {
		if img := p.Dispatcher.SendImage(ctx, t, msg.From, imageURL); !img.Success {
			p.logger(msg).Warn().Str("error", img.ErrorText).Msg("image send failed")
		}
	}
	if msg.Provider == domain.ProviderGraph && msg.MessageID != "" {
		if err := p.Dispatcher.MarkRead(ctx, t, msg.MessageID); err != nil {
			p.logger(msg).Debug().Err(err).Msg("mark read failed")
		}
	}
	return true
}

// capturePatch records a shared location and the contact display name.
func capturePatch(msg domain.InboundMessage, meta domain.Metadata) (domain.MetadataPatch, bool) {
	var patch domain.MetadataPatch
	changed := false
	if msg.Type == domain.MessageLocation && msg.Location != nil {
		patch.LocationText = domain.StrPtr(msg.Location.Coords())
		changed = true
	}
	if name := strings.TrimSpace(msg.ContactName); name != "" && meta.CustomerName == "" {
		patch.CustomerName = domain.StrPtr(name)
		changed = true
	}
	return patch, changed
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) logger(msg domain.InboundMessage) *zerolog.Logger {
	l := log.With().
		Str("tenant_id", msg.TenantID).
		Str("message_id", msg.MessageID).
		Str("provider", string(msg.Provider)).
		Str("counterparty_tail", sysutil.Tail(msg.From, 4)).
		Logger()
	return &l
}
