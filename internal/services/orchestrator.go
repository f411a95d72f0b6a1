package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-order-agent/internal/delivery"
	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/llm"
	"github.com/tbourn/go-order-agent/internal/observability"
	"github.com/tbourn/go-order-agent/internal/search"
)

const (
	// FallbackReply is sent when generation fails or times out.
	FallbackReply = "Désolé, je rencontre une petite difficulté technique. Peux-tu reformuler ta question ?"
	// IntentError marks a fallback reply.
	IntentError = "error"

	defaultGenerationTimeout = 15 * time.Second
	defaultSearchTimeout     = 2 * time.Second
	knowledgeChunks          = 3
	menuSearchSize           = 3
)

var (
	boldStarRE  = regexp.MustCompile(`\*\*(.*?)\*\*`)
	boldUnderRE = regexp.MustCompile(`__(.*?)__`)
)

// Reply is the orchestrator's outgoing text and what produced it.
type Reply struct {
	Text     string
	Intent   string
	Language string
	Quote    *domain.PendingOrder
	ImageURL string
	Fallback bool
}

// Orchestrator turns a customer message into the outgoing reply. The
// customer message must already be in the conversation history.
type Orchestrator struct {
	Store     ConversationStore
	Generator Generator
	Zones     *delivery.Estimator
	Knowledge *search.KnowledgeBase
	Catalog   CatalogSearch

	Timeout       time.Duration
	SearchTimeout time.Duration
}

// NewOrchestrator wires an Orchestrator with default zones and timeouts.
func NewOrchestrator(store ConversationStore, gen Generator, catalog CatalogSearch) *Orchestrator {
	return &Orchestrator{
		Store:         store,
		Generator:     gen,
		Zones:         delivery.NewEstimator(nil),
		Knowledge:     search.NewKnowledgeBase(),
		Catalog:       catalog,
		Timeout:       defaultGenerationTimeout,
		SearchTimeout: defaultSearchTimeout,
	}
}

// Respond builds the context, calls the generator under the timeout and
// records any quote as the pending order. Generation failures never
// surface as errors: the fallback reply is returned with IntentError.
// Only conversation store failures are returned.
func (o *Orchestrator) Respond(ctx context.Context, t *domain.Tenant, counterparty, text string) (*Reply, error) {
	ctx, span := otel.Tracer("services/Orchestrator").Start(ctx, "Respond",
		trace.WithAttributes(attribute.String("tenant.id", t.ID)))
	defer span.End()

	meta, err := o.Store.Metadata(ctx, t.ID, counterparty)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	if patch, ok := o.estimatePatch(meta, text); ok {
		if err := o.Store.UpdateMetadata(ctx, t.ID, counterparty, patch); err != nil {
			return nil, fmt.Errorf("store delivery estimate: %w", err)
		}
		meta.Apply(patch)
	}

	history, err := o.Store.History(ctx, t.ID, counterparty)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var chunks []string
	if o.Knowledge != nil && t.KnowledgeBase != "" {
		chunks = o.Knowledge.Retrieve(t.ID, t.KnowledgeBase, text, knowledgeChunks)
	}

	req := llm.GenerateRequest{
		TenantID:   t.ID,
		TenantName: t.Name,
		Context:    BuildContext(t, meta, chunks),
		History:    history,
		Catalog:    t.Catalog,
	}

	start := time.Now()
	res, err := o.generate(ctx, req)
	observability.GenerationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("tenant_id", t.ID).Msg("generation failed; sending fallback")
		observability.Generations.WithLabelValues(IntentError).Inc()
		return &Reply{Text: FallbackReply, Intent: IntentError, Fallback: true}, nil
	}
	observability.Generations.WithLabelValues(res.Intent).Inc()
	span.SetAttributes(attribute.String("llm.intent", res.Intent))

	reply := &Reply{
		Text:     StripBold(res.Reply),
		Intent:   res.Intent,
		Language: res.Language,
		ImageURL: res.ImageURL,
	}
	if q := res.Quote.Clone(); q != nil && len(q.LineItems) > 0 {
		if q.OrderID == "" {
			q.OrderID = NewOrderID(time.Now().UTC())
		}
		if err := o.Store.UpdateMetadata(ctx, t.ID, counterparty, domain.MetadataPatch{PendingOrder: q}); err != nil {
			return nil, fmt.Errorf("store pending order: %w", err)
		}
		observability.OrderTransitions.WithLabelValues("quoted").Inc()
		reply.Quote = q.Clone()
		reply.Text += QuotePrompt(q.Total)
	}
	return reply, nil
}

// generate races the generator against the timeout so a backend that
// ignores cancellation cannot hold the worker.
func (o *Orchestrator) generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	if o.Generator == nil {
		return nil, fmt.Errorf("no generator configured")
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		res *llm.GenerateResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := o.Generator.Generate(ctx, req)
		ch <- result{res, err}
	}()
	select {
	case r := <-ch:
		if r.err == nil && r.res == nil {
			return nil, fmt.Errorf("generator returned no result")
		}
		return r.res, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("generation: %w", ctx.Err())
	}
}

// estimatePatch runs the zone estimator when no estimate is stored yet, or
// when only the Unknown fallback is.
func (o *Orchestrator) estimatePatch(meta domain.Metadata, text string) (domain.MetadataPatch, bool) {
	if o.Zones == nil {
		return domain.MetadataPatch{}, false
	}
	if cur := meta.DeliveryEstimate; cur != nil && cur.Zone != delivery.UnknownZone.Name {
		return domain.MetadataPatch{}, false
	}
	est := o.Zones.Estimate(text)
	if est == nil {
		return domain.MetadataPatch{}, false
	}
	if cur := meta.DeliveryEstimate; cur != nil && cur.Zone == est.Zone {
		return domain.MetadataPatch{}, false
	}
	patch := domain.MetadataPatch{DeliveryEstimate: est}
	// shared GPS coordinates are more precise than a zone name
	if !strings.HasPrefix(meta.LocationText, "coords:") {
		patch.LocationText = domain.StrPtr(est.Zone)
	}
	return patch, true
}

// GetMenuInformation returns the best catalog match for query: the top
// ranked search result when available, else a substring match over names
// and descriptions. It never fails; nil means no match.
func (o *Orchestrator) GetMenuInformation(ctx context.Context, t *domain.Tenant, query string) *domain.CatalogItem {
	if o.Catalog != nil && t.ID != "" {
		timeout := o.SearchTimeout
		if timeout <= 0 {
			timeout = defaultSearchTimeout
		}
		sctx, cancel := context.WithTimeout(ctx, timeout)
		items, err := o.Catalog.Search(sctx, t.ID, query, menuSearchSize)
		cancel()
		if err == nil && len(items) > 0 {
			it := items[0]
			return &it
		}
		if err != nil {
			log.Debug().Err(err).Str("tenant_id", t.ID).Msg("catalog search failed; using substring match")
		}
	}
	return search.MatchSubstring(t.Catalog, query)
}

// BuildContext renders the business context passed to the generator, one
// field per line.
func BuildContext(t *domain.Tenant, meta domain.Metadata, knowledge []string) string {
	line := func(label, v, def string) string {
		if strings.TrimSpace(v) == "" {
			v = def
		}
		return label + ": " + v
	}
	ordering := "No"
	if t.OrderingEnabled {
		ordering = "Yes"
	}
	estimate := "Delivery Estimate: unknown"
	if meta.DeliveryEstimate != nil {
		estimate = "Delivery Estimate: " + delivery.Format(meta.DeliveryEstimate)
	}
	lines := []string{
		line("Restaurant", t.Name, ""),
		line("Description", t.Description, ""),
		line("Cuisine", t.Cuisine, ""),
		line("Hours", t.BusinessHours, "Not specified"),
		line("Welcome", t.WelcomeMessage, ""),
		line("Special Instructions", t.SpecialInstructions, ""),
		line("Delivery", t.DeliveryInfo, "Available"),
		estimate,
		line("Customer Name", meta.CustomerName, "Guest"),
		line("Customer Location", meta.LocationText, "Unknown"),
		"Ordering Enabled: " + ordering,
	}
	out := strings.Join(lines, "\n")
	if len(knowledge) > 0 {
		out += "\n\n## Business Knowledge Base\n" + strings.Join(knowledge, "\n\n")
	}
	return out
}

// StripBold removes **bold** and __bold__ markup for plain-text channels.
func StripBold(s string) string {
	s = boldStarRE.ReplaceAllString(s, "$1")
	return boldUnderRE.ReplaceAllString(s, "$1")
}

// QuotePrompt is appended to a reply that carries a new quote.
func QuotePrompt(total int64) string {
	return fmt.Sprintf("\n\nReply YES to confirm this order (%d FCFA) or NO to cancel.", total)
}
