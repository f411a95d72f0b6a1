package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/repo"
	"github.com/tbourn/go-order-agent/internal/utils"
)

// AdminService backs the tenant-scoped admin API.
type AdminService struct {
	Tenants      TenantDirectory
	Store        ConversationStore
	Ledger       OrderLedger
	Orchestrator *Orchestrator
	Locks        *KeyedMutex
}

func (s *AdminService) tenant(ctx context.Context, id string) (*domain.Tenant, error) {
	t, err := s.Tenants.ByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	return t, err
}

// Conversation returns the history and metadata of one counterparty. An
// unknown counterparty yields an empty conversation.
func (s *AdminService) Conversation(ctx context.Context, tenantID, counterparty string) (*domain.Conversation, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Conversation",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	if strings.TrimSpace(counterparty) == "" {
		return nil, ErrEmptyCounterparty
	}
	if _, err := s.tenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.Store.Snapshot(ctx, tenantID, counterparty)
}

// ClearConversation deletes the history and metadata of one counterparty,
// pending quote included.
func (s *AdminService) ClearConversation(ctx context.Context, tenantID, counterparty string) error {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "ClearConversation",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	if strings.TrimSpace(counterparty) == "" {
		return ErrEmptyCounterparty
	}
	if _, err := s.tenant(ctx, tenantID); err != nil {
		return err
	}
	if s.Locks != nil {
		defer s.Locks.Lock(conversationKey(tenantID, counterparty))()
	}
	return s.Store.Clear(ctx, tenantID, counterparty)
}

// Orders lists a tenant's orders newest first, optionally for one
// counterparty. page and pageSize are normalized like the query parser does.
func (s *AdminService) Orders(ctx context.Context, tenantID, counterparty string, page, pageSize int) ([]domain.OrderRecord, int64, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Orders",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	if _, err := s.tenant(ctx, tenantID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	items, total, err := s.Ledger.List(ctx, tenantID, strings.TrimSpace(counterparty), utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []domain.OrderRecord{}
	}
	return items, total, nil
}

// MenuLookup returns the best catalog match for query, or nil.
func (s *AdminService) MenuLookup(ctx context.Context, tenantID, query string) (*domain.CatalogItem, error) {
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if s.Orchestrator == nil {
		return nil, nil
	}
	return s.Orchestrator.GetMenuInformation(ctx, t, query), nil
}
