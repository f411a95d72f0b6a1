package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-order-agent/internal/delivery"
	"github.com/tbourn/go-order-agent/internal/domain"
)

// Intents recognised by the classifier.
const (
	IntentMenuQuestion     = "menu_question"
	IntentOrderCalculation = "order_calculation"
	IntentGeneral          = "general"
	IntentFullMenu         = "full_menu"
)

// Tool names reported in GenerateResult.UsedTools.
const (
	ToolCatalogSearch    = "catalog_search"
	ToolOrderTotal       = "order_total"
	ToolDeliveryEstimate = "delivery_estimate"
)

const (
	historyWindow   = 5
	menuSummarySize = 15
	retrievalSize   = 5
)

// Retriever ranks a tenant's catalog items for a query.
type Retriever interface {
	Search(ctx context.Context, tenantID, query string, k int) ([]domain.CatalogItem, error)
}

// GenerateRequest is the full input of one reply generation. History ends
// with the customer's current message.
type GenerateRequest struct {
	TenantID   string
	TenantName string
	Context    string
	History    []domain.Message
	Catalog    []domain.CatalogItem
}

// GenerateResult is the generated reply plus what was learned on the way.
// Quote is set only when at least one line item was priced.
type GenerateResult struct {
	Reply     string
	Language  string
	Intent    string
	UsedTools []string
	Quote     *domain.PendingOrder
	ImageURL  string
}

// Responder produces replies with a three-step flow: language detection and
// intent classification on the fast model, an optional tool step (catalog
// retrieval or order pricing), then the final reply on the main model.
type Responder struct {
	Client    Client
	Model     string
	FastModel string
	Retriever Retriever
	Zones     *delivery.Estimator
}

// NewResponder wires a Responder. fastModel defaults to model.
func NewResponder(c Client, model, fastModel string, r Retriever) *Responder {
	if fastModel == "" {
		fastModel = model
	}
	return &Responder{Client: c, Model: model, FastModel: fastModel, Retriever: r, Zones: delivery.NewEstimator(nil)}
}

// Generate runs the flow. Only a failure of the final completion is
// returned as an error; the classification and tool steps degrade to
// defaults.
func (r *Responder) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ctx, span := otel.Tracer("llm/responder").Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("tenant.id", req.TenantID)))
	defer span.End()

	last := lastUserText(req.History)
	res := &GenerateResult{Language: "en", Intent: IntentGeneral}

	if out, err := prompt(ctx, r.Client, r.FastModel, languagePrompt(last), 16); err == nil {
		res.Language = NormalizeLanguage(out)
	}
	if out, err := prompt(ctx, r.Client, r.FastModel, intentPrompt(last), 16); err == nil {
		res.Intent = ParseIntent(out)
	}
	span.SetAttributes(attribute.String("llm.intent", res.Intent), attribute.String("llm.language", res.Language))

	var tool string
	switch res.Intent {
	case IntentMenuQuestion:
		tool = r.retrieve(ctx, req, last, res)
	case IntentOrderCalculation:
		tool = r.priceOrder(ctx, req, last, res)
	}

	final, err := prompt(ctx, r.Client, r.Model, r.finalPrompt(req, res, last, tool), 1024)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	res.Reply, res.ImageURL = ExtractImage(final, req.Catalog)
	return res, nil
}

func (r *Responder) retrieve(ctx context.Context, req GenerateRequest, query string, res *GenerateResult) string {
	if r.Retriever == nil || req.TenantID == "" {
		return ""
	}
	items, err := r.Retriever.Search(ctx, req.TenantID, query, retrievalSize)
	res.UsedTools = append(res.UsedTools, ToolCatalogSearch)
	if err != nil || len(items) == 0 {
		return ""
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("- %s: %s (%d FCFA)", it.Name, it.Description, it.Price)
		if it.Category != "" {
			lines[i] += " [" + it.Category + "]"
		}
	}
	return strings.Join(lines, "\n")
}

func (r *Responder) priceOrder(ctx context.Context, req GenerateRequest, text string, res *GenerateResult) string {
	out, err := prompt(ctx, r.Client, r.FastModel, extractionPrompt(text, req.Catalog), 512)
	if err != nil {
		return ""
	}
	reqs, err := ParseExtraction(out)
	res.UsedTools = append(res.UsedTools, ToolOrderTotal)
	if err != nil {
		return "Items: could not read an order from the message"
	}
	calc := PriceOrder(reqs, req.Catalog)

	lines := []string{fmt.Sprintf("Order Subtotal: %d FCFA", calc.Total)}
	if calc.ItemsSummary != "" {
		lines = append(lines, "Items: "+calc.ItemsSummary)
	} else {
		lines = append(lines, "Items: no menu items matched the message")
	}
	if len(calc.NotFound) > 0 {
		lines = append(lines, "Not on the menu: "+strings.Join(calc.NotFound, ", "))
	}

	var fee int64
	if r.Zones != nil && r.Zones.Matches(text) {
		est := r.Zones.Estimate(text)
		fee = est.Fee
		lines = append(lines, "Delivery: "+delivery.Format(est))
		res.UsedTools = append(res.UsedTools, ToolDeliveryEstimate)
	}

	if len(calc.LineItems) > 0 {
		res.Quote = &domain.PendingOrder{
			Total:         calc.Total + fee,
			ItemsSummary:  calc.ItemsSummary,
			LineItems:     calc.LineItems,
			NotFoundItems: calc.NotFound,
			DeliveryFee:   fee,
		}
		if fee > 0 {
			lines = append(lines, fmt.Sprintf("Order Total: %d FCFA", res.Quote.Total))
		}
	}
	return strings.Join(lines, "\n")
}

func lastUserText(h []domain.Message) string {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == domain.RoleUser {
			return h[i].Content
		}
	}
	return ""
}

// NormalizeLanguage maps a free-form model answer to en, fr, wo or ar.
func NormalizeLanguage(s string) string {
	x := strings.ToLower(strings.TrimSpace(s))
	x = strings.Trim(x, "\"'`. ")
	switch {
	case strings.HasPrefix(x, "fr") || strings.Contains(x, "fran") || strings.Contains(x, "french"):
		return "fr"
	case strings.HasPrefix(x, "wo") || strings.Contains(x, "wolof"):
		return "wo"
	case strings.HasPrefix(x, "ar") || strings.Contains(x, "arab") || strings.Contains(x, "الع"):
		return "ar"
	default:
		return "en"
	}
}

// ParseIntent maps a free-form model answer to one of the intents. Unknown
// answers are general.
func ParseIntent(s string) string {
	x := strings.ToLower(s)
	for _, in := range []string{IntentFullMenu, IntentOrderCalculation, IntentMenuQuestion, IntentGeneral} {
		if strings.Contains(x, in) {
			return in
		}
	}
	return IntentGeneral
}

var imageTagRE = regexp.MustCompile(`\[IMAGE:\s*(.*?)\]`)

// ExtractImage strips every [IMAGE: name] tag from text and resolves the
// first one to the image URL of a catalog item whose name contains it.
func ExtractImage(text string, catalog []domain.CatalogItem) (string, string) {
	var url string
	if m := imageTagRE.FindStringSubmatch(text); m != nil {
		dish := strings.ToLower(strings.TrimSpace(m[1]))
		for _, it := range catalog {
			if it.ImageURL != "" && dish != "" && strings.Contains(strings.ToLower(it.Name), dish) {
				url = it.ImageURL
				break
			}
		}
	}
	return strings.TrimSpace(imageTagRE.ReplaceAllString(text, "")), url
}

var languageNames = map[string]string{"en": "English", "fr": "French", "wo": "Wolof", "ar": "Arabic"}

func languagePrompt(msg string) string {
	return fmt.Sprintf("Which language is this message written in? Answer with the ISO code only (en, fr, wo, ar, ...).\nMessage: %q", msg)
}

func intentPrompt(msg string) string {
	return fmt.Sprintf(`Classify the customer's message into exactly one category:
- menu_question: asks about specific dishes, ingredients or dietary details
- order_calculation: wants to order or to know what an order costs
- general: greetings, opening hours, location or other restaurant information
- full_menu: wants to see the whole menu

Message: %q
Answer with the category name only.`, msg)
}

func extractionPrompt(msg string, catalog []domain.CatalogItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "List the dishes and quantities ordered in this message: %q\n\nMenu:\n", msg)
	for _, it := range catalog {
		if it.IsAvailable {
			b.WriteString("- " + it.Name + "\n")
		}
	}
	b.WriteString(`
Use the menu spelling for each dish. Answer with JSON only, shaped like
{"items": [{"itemName": "Dish Name", "quantity": 1}]}
and use an empty "items" array when the message contains no order.`)
	return b.String()
}

func (r *Responder) finalPrompt(req GenerateRequest, res *GenerateResult, last, tool string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the WhatsApp ordering assistant of %s.\n", req.TenantName)
	fmt.Fprintf(&b, "Reply in %s. Be warm, brief and precise.\n\n", languageNames[res.Language])
	b.WriteString("BUSINESS CONTEXT:\n" + req.Context + "\n\n")

	h := req.History
	if len(h) > historyWindow {
		h = h[len(h)-historyWindow:]
	}
	b.WriteString("RECENT CONVERSATION:\n")
	for _, m := range h {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	b.WriteString("\nMENU HIGHLIGHTS:\n")
	for i, it := range req.Catalog {
		if i >= menuSummarySize {
			break
		}
		fmt.Fprintf(&b, "- %s: %s (%d FCFA)", it.Name, it.Description, it.Price)
		if it.ImageURL != "" {
			b.WriteString(" [PHOTO AVAILABLE]")
		}
		b.WriteByte('\n')
	}
	if tool != "" {
		b.WriteString("\nTOOL RESULTS:\n" + tool + "\n")
	}
	if res.Intent == IntentFullMenu {
		b.WriteString("\nFULL MENU:\n")
		for _, it := range req.Catalog {
			fmt.Fprintf(&b, "%s - %s - %d FCFA\n", it.Name, it.Description, it.Price)
		}
	}
	b.WriteString(`
RULES:
- Greet with the business name on the first turn and offer the menu.
- For an order, ask whether it is dine-in or delivery; for delivery ask for the neighbourhood.
- When a location is known, state the delivery fee and ETA.
- Repeat items and quantities with the subtotal, the delivery fee if any, and the total.
- Never ask for a phone number.
- To show one dish photo, end the reply with [IMAGE: dish name]. Only do this for dishes marked [PHOTO AVAILABLE].
`)
	fmt.Fprintf(&b, "\nCustomer message: %q\n", last)
	return b.String()
}
