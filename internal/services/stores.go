package services

import (
	"context"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/llm"
	"github.com/tbourn/go-order-agent/internal/outbound"
)

// ConversationStore is the per-(tenant, counterparty) history and metadata
// contract. repo.ConversationStore and repo.MemoryConversationStore both
// satisfy it.
type ConversationStore interface {
	Snapshot(ctx context.Context, tenantID, counterparty string) (*domain.Conversation, error)
	History(ctx context.Context, tenantID, counterparty string) ([]domain.Message, error)
	Append(ctx context.Context, tenantID, counterparty string, msg domain.Message) error
	Metadata(ctx context.Context, tenantID, counterparty string) (domain.Metadata, error)
	UpdateMetadata(ctx context.Context, tenantID, counterparty string, patch domain.MetadataPatch) error
	Clear(ctx context.Context, tenantID, counterparty string) error
}

// OrderLedger persists confirmed orders.
type OrderLedger interface {
	Create(ctx context.Context, o *domain.OrderRecord) error
	List(ctx context.Context, tenantID, counterparty string, offset, limit int) ([]domain.OrderRecord, int64, error)
}

// TenantDirectory resolves tenants by their channel identities. Lookups
// return repo.ErrNotFound when nothing matches.
type TenantDirectory interface {
	ByID(ctx context.Context, id string) (*domain.Tenant, error)
	ByPhoneNumberID(ctx context.Context, phoneID string) (*domain.Tenant, error)
	ByAPIKey(ctx context.Context, key string) (*domain.Tenant, error)
	HasVerifyToken(ctx context.Context, token string) (bool, error)
}

// Deduper claims provider message ids. Claim reports false for a repeat.
type Deduper interface {
	Claim(ctx context.Context, tenantID, provider, key string) (bool, error)
}

// Generator is the reply generation backend.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error)
}

// CatalogSearch ranks a tenant's catalog for a free-text query.
type CatalogSearch interface {
	Search(ctx context.Context, tenantID, query string, k int) ([]domain.CatalogItem, error)
}

// Dispatcher delivers replies. outbound.Dispatcher satisfies it.
type Dispatcher interface {
	Send(ctx context.Context, t *domain.Tenant, to, text string) outbound.Result
	SendImage(ctx context.Context, t *domain.Tenant, to, link string) outbound.Result
	MarkRead(ctx context.Context, t *domain.Tenant, messageID string) error
}

// Enqueuer hands messages to the workers. queue.Pool and queue.JetStream
// satisfy it.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg domain.InboundMessage) error
}
