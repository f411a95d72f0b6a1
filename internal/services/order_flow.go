package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/observability"
	"github.com/tbourn/go-order-agent/internal/repo"
)

// Decision classifies a reply to a pending quote.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionConfirm
	DecisionCancel
)

var (
	confirmTokens = map[string]bool{"yes": true, "y": true, "confirm": true, "oui": true}
	cancelTokens  = map[string]bool{"no": true, "n": true, "cancel": true, "non": true}
)

// Classify matches the whole trimmed, lower-cased message against the
// confirm and cancel tokens.
func Classify(text string) Decision {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case confirmTokens[t]:
		return DecisionConfirm
	case cancelTokens[t]:
		return DecisionCancel
	default:
		return DecisionNone
	}
}

// OrderOutcome is the result of offering a message to the state machine.
// Handled means orchestration must be skipped and Reply sent as is.
// Reprompt means a quote is still pending and the next reply should remind
// the customer about it.
type OrderOutcome struct {
	Handled  bool
	Reply    string
	Order    *domain.OrderRecord
	Reprompt bool
	Pending  *domain.PendingOrder
}

// OrderFlow is the NONE -> QUOTED -> CONFIRMED|CANCELLED state machine. The
// QUOTED state is the presence of Metadata.PendingOrder.
type OrderFlow struct {
	Store  ConversationStore
	Ledger OrderLedger
	Now    func() time.Time
	NewID  func(now time.Time) string
}

// NewOrderFlow wires an OrderFlow with the default clock and id scheme.
func NewOrderFlow(store ConversationStore, ledger OrderLedger) *OrderFlow {
	return &OrderFlow{Store: store, Ledger: ledger, Now: time.Now, NewID: NewOrderID}
}

// NewOrderID returns "ord_<unix ms>_<8 hex>".
func NewOrderID(now time.Time) string {
	return fmt.Sprintf("ord_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Handle applies text to the pending quote in meta, if any. Callers must
// hold the conversation lock.
//
// The order id comes from the quote, so a confirm retried after a failed
// clear hits repo.ErrDuplicate and is treated as already recorded.
func (f *OrderFlow) Handle(ctx context.Context, tenantID, counterparty, text string, meta domain.Metadata) (OrderOutcome, error) {
	pending := meta.PendingOrder
	if pending == nil {
		return OrderOutcome{}, nil
	}
	ctx, span := otel.Tracer("services/OrderFlow").Start(ctx, "Handle",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	switch Classify(text) {
	case DecisionConfirm:
		now := f.now()
		id := pending.OrderID
		if id == "" {
			id = f.newID(now)
		}
		rec := &domain.OrderRecord{
			ID:           id,
			TenantID:     tenantID,
			Counterparty: counterparty,
			CustomerName: meta.CustomerName,
			LineItems:    append([]domain.LineItem(nil), pending.LineItems...),
			ItemsSummary: pending.ItemsSummary,
			NotFound:     append([]string(nil), pending.NotFoundItems...),
			Total:        pending.Total,
			Notes:        orderNotes(meta),
			Status:       domain.OrderConfirmed,
			CreatedAt:    now,
		}
		err := f.Ledger.Create(ctx, rec)
		if errors.Is(err, repo.ErrDuplicate) {
			span.AddEvent("order already recorded")
			err = nil
		}
		if err != nil {
			span.RecordError(err)
			return OrderOutcome{}, fmt.Errorf("create order: %w", err)
		}
		if err := f.Store.UpdateMetadata(ctx, tenantID, counterparty, domain.MetadataPatch{ClearPendingOrder: true}); err != nil {
			return OrderOutcome{}, fmt.Errorf("clear pending order: %w", err)
		}
		observability.OrderTransitions.WithLabelValues("confirmed").Inc()
		span.SetAttributes(attribute.String("order.id", rec.ID))
		return OrderOutcome{Handled: true, Order: rec, Reply: ConfirmReply(rec)}, nil

	case DecisionCancel:
		if err := f.Store.UpdateMetadata(ctx, tenantID, counterparty, domain.MetadataPatch{ClearPendingOrder: true}); err != nil {
			return OrderOutcome{}, fmt.Errorf("clear pending order: %w", err)
		}
		observability.OrderTransitions.WithLabelValues("cancelled").Inc()
		return OrderOutcome{Handled: true, Reply: CancelReply}, nil

	default:
		return OrderOutcome{Reprompt: true, Pending: pending.Clone()}, nil
	}
}

func (f *OrderFlow) now() time.Time {
	if f.Now != nil {
		return f.Now().UTC()
	}
	return time.Now().UTC()
}

func (f *OrderFlow) newID(now time.Time) string {
	if f.NewID != nil {
		return f.NewID(now)
	}
	return NewOrderID(now)
}

func orderNotes(meta domain.Metadata) string {
	var parts []string
	if meta.LocationText != "" {
		parts = append(parts, "Location: "+meta.LocationText)
	}
	if fee := meta.PendingOrder.DeliveryFee; fee > 0 {
		parts = append(parts, fmt.Sprintf("Delivery fee: %d FCFA", fee))
	}
	return strings.Join(parts, "; ")
}

// CancelReply is sent when the customer rejects a quote.
const CancelReply = "❌ Order cancelled. What else would you like?"

// ConfirmReply is sent when the customer accepts a quote.
func ConfirmReply(o *domain.OrderRecord) string {
	id := o.ID
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return fmt.Sprintf("✅ Order #%s confirmed! Total: %d FCFA. We are preparing it now.", id, o.Total)
}

// RepromptText reminds the customer of a quote that is still pending.
func RepromptText(p *domain.PendingOrder) string {
	return fmt.Sprintf("\n\nYou still have a pending order (%d FCFA). Reply YES to confirm or NO to cancel.", p.Total)
}
