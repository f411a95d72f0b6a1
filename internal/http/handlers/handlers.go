package handlers

import (
	"context"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/services"
	"github.com/tbourn/go-order-agent/internal/webhook"
)

// Ingester accepts webhook callbacks. It must return quickly; processing
// happens behind the queue.
type Ingester interface {
	Ingest(ctx context.Context, req services.IngestRequest) (services.IngestResult, error)
}

// AdminService is the read/clear surface of the admin API.
type AdminService interface {
	Conversation(ctx context.Context, tenantID, counterparty string) (*domain.Conversation, error)
	ClearConversation(ctx context.Context, tenantID, counterparty string) error
	Orders(ctx context.Context, tenantID, counterparty string, page, pageSize int) ([]domain.OrderRecord, int64, error)
	MenuLookup(ctx context.Context, tenantID, query string) (*domain.CatalogItem, error)
}

// WebhookConfig carries the global handshake token. Tenant tokens are
// checked through Tokens.
type WebhookConfig struct {
	VerifyToken string
	Tokens      webhook.TokenChecker
}

// Handlers groups the webhook and admin endpoints. Admin may be nil when
// the admin API is disabled.
type Handlers struct {
	ingest  Ingester
	admin   AdminService
	webhook WebhookConfig
}

// New binds the handlers to their services.
func New(ingest Ingester, admin AdminService, wh WebhookConfig) *Handlers {
	return &Handlers{ingest: ingest, admin: admin, webhook: wh}
}
