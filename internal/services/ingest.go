package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/observability"
	"github.com/tbourn/go-order-agent/internal/repo"
	"github.com/tbourn/go-order-agent/internal/sysutil"
	"github.com/tbourn/go-order-agent/internal/webhook"
)

// IngestRequest is one webhook POST.
type IngestRequest struct {
	Body      []byte
	Signature string // X-Hub-Signature-256
	APIKey    string // lam-api-key / x-lam-api-key
	TenantID  string // path tenant on /webhooks/lam/:tenantId
}

// IngestResult counts what happened to the messages of one callback.
type IngestResult struct {
	Format     webhook.Format
	Accepted   int
	Unresolved int
	Inactive   int
}

// Ingestor validates webhook callbacks, resolves tenants and hands the
// normalized messages to the queue. It never waits for processing.
type Ingestor struct {
	Tenants   TenantDirectory
	Queue     Enqueuer
	AppSecret string // global Graph signing secret; empty disables checks
	Now       func() time.Time
}

type resolved struct {
	tenant *domain.Tenant
	msg    domain.InboundMessage
}

// Ingest returns webhook.ErrBadSignature on a signature mismatch (nothing is
// enqueued), ErrInvalidPayload for unparseable bodies and the queue error
// when the handoff fails. Unresolved tenants are counted, not errors.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	ctx, span := otel.Tracer("services/Ingestor").Start(ctx, "Ingest")
	defer span.End()

	env, err := webhook.Parse(req.Body)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	span.SetAttributes(attribute.String("webhook.format", env.Format.String()))
	res := IngestResult{Format: env.Format}
	now := i.now()

	var batch []resolved
	switch env.Format {
	case webhook.FormatGraph:
		batch, err = i.resolveGraph(ctx, env.Graph, req, now, &res)
	case webhook.FormatGateway:
		batch, err = i.resolveGateway(ctx, env.Gateway, req, now, &res)
	}
	if err != nil {
		return res, err
	}

	for _, r := range batch {
		if !r.tenant.IsActive {
			res.Inactive++
			observability.InboundMessages.WithLabelValues(string(r.msg.Provider), "inactive").Inc()
			continue
		}
		if err := i.Queue.Enqueue(ctx, r.msg); err != nil {
			observability.InboundMessages.WithLabelValues(string(r.msg.Provider), "queue_full").Inc()
			span.RecordError(err)
			return res, fmt.Errorf("enqueue: %w", err)
		}
		res.Accepted++
		observability.InboundMessages.WithLabelValues(string(r.msg.Provider), "accepted").Inc()
	}
	return res, nil
}

// resolveGraph looks up every message's tenant and checks the signature
// against the tenant secret (or the global one) before anything is queued.
func (i *Ingestor) resolveGraph(ctx context.Context, ev *webhook.GraphEvent, req IngestRequest, now time.Time, res *IngestResult) ([]resolved, error) {
	provider := string(domain.ProviderGraph)
	if len(ev.Messages) == 0 {
		// status callbacks carry no tenant to pick a secret from
		if err := webhook.VerifySignature(req.Body, req.Signature, i.AppSecret); err != nil {
			observability.InboundMessages.WithLabelValues(provider, "bad_signature").Inc()
			return nil, err
		}
		observability.InboundMessages.WithLabelValues(provider, "ignored").Inc()
		return nil, nil
	}

	verified := map[string]bool{}
	var out []resolved
	for _, m := range ev.Messages {
		t, err := lookup(ctx, i.Tenants.ByPhoneNumberID, m.PhoneNumberID)
		if err != nil {
			return nil, err
		}
		secret := i.AppSecret
		if t != nil {
			secret = sysutil.FirstNonEmpty(t.AppSecret, i.AppSecret)
		}
		if !verified[secret] {
			if err := webhook.VerifySignature(req.Body, req.Signature, secret); err != nil {
				observability.InboundMessages.WithLabelValues(provider, "bad_signature").Inc()
				return nil, err
			}
			verified[secret] = true
		}
		if t == nil {
			res.Unresolved++
			observability.InboundMessages.WithLabelValues(provider, "unresolved").Inc()
			log.Warn().Str("provider", provider).Str("phone_number_id", m.PhoneNumberID).Msg("no tenant for channel; dropping")
			continue
		}
		out = append(out, resolved{tenant: t, msg: m.Inbound(t.ID, now)})
	}
	return out, nil
}

// resolveGateway looks up the tenant by the path tenant id when the
// callback came in on the tenant-scoped endpoint. Otherwise it tries the
// business number, then the API key header.
func (i *Ingestor) resolveGateway(ctx context.Context, ev *webhook.GatewayEvent, req IngestRequest, now time.Time, res *IngestResult) ([]resolved, error) {
	provider := string(domain.ProviderGateway)
	var (
		t   *domain.Tenant
		err error
	)
	if req.TenantID != "" {
		if t, err = lookup(ctx, i.Tenants.ByID, req.TenantID); err != nil {
			return nil, err
		}
	} else {
		if t, err = lookup(ctx, i.Tenants.ByPhoneNumberID, sysutil.FirstNonEmpty(ev.To, ev.From)); err != nil {
			return nil, err
		}
		if t == nil {
			if t, err = lookup(ctx, i.Tenants.ByAPIKey, req.APIKey); err != nil {
				return nil, err
			}
		}
	}
	if t == nil {
		res.Unresolved++
		observability.InboundMessages.WithLabelValues(provider, "unresolved").Inc()
		log.Warn().Str("provider", provider).Str("counterparty_tail", sysutil.Tail(ev.From, 4)).Msg("no tenant for gateway message; dropping")
		return nil, nil
	}
	return []resolved{{tenant: t, msg: ev.Inbound(t.ID, now)}}, nil
}

// lookup maps repo.ErrNotFound and blank keys to a nil tenant.
func lookup(ctx context.Context, fn func(context.Context, string) (*domain.Tenant, error), key string) (*domain.Tenant, error) {
	if key == "" {
		return nil, nil
	}
	t, err := fn(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}
	return t, nil
}

func (i *Ingestor) now() time.Time {
	if i.Now != nil {
		return i.Now().UTC()
	}
	return time.Now().UTC()
}
