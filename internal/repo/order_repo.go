// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only order ledger.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// CreateOrder inserts a new order record. The caller assigns the id.
func CreateOrder(ctx context.Context, db *gorm.DB, o *domain.OrderRecord) error {
	if strings.TrimSpace(o.ID) == "" {
		return errors.New("order id is required")
	}
	if err := db.WithContext(ctx).Create(o).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func orderScope(db *gorm.DB, tenantID, counterparty string) *gorm.DB {
	q := db.Model(&domain.OrderRecord{}).Where("tenant_id = ?", tenantID)
	if counterparty != "" {
		q = q.Where("counterparty = ?", counterparty)
	}
	return q
}

// CountOrders counts orders for a tenant, optionally for one counterparty.
func CountOrders(ctx context.Context, db *gorm.DB, tenantID, counterparty string) (int64, error) {
	var n int64
	err := orderScope(db.WithContext(ctx), tenantID, counterparty).Count(&n).Error
	return n, err
}

// ListOrdersPage returns orders newest first.
func ListOrdersPage(ctx context.Context, db *gorm.DB, tenantID, counterparty string, offset, limit int) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	err := orderScope(db.WithContext(ctx), tenantID, counterparty).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// OrderLedger adapts the free functions to the service-layer order store.
type OrderLedger struct {
	DB *gorm.DB
}

// NewOrderLedger wraps db.
func NewOrderLedger(db *gorm.DB) *OrderLedger { return &OrderLedger{DB: db} }

// Create appends o to the ledger.
func (l *OrderLedger) Create(ctx context.Context, o *domain.OrderRecord) error {
	return CreateOrder(ctx, l.DB, o)
}

// List returns one page of orders and the total count.
func (l *OrderLedger) List(ctx context.Context, tenantID, counterparty string, offset, limit int) ([]domain.OrderRecord, int64, error) {
	total, err := CountOrders(ctx, l.DB, tenantID, counterparty)
	if err != nil {
		return nil, 0, err
	}
	items, err := ListOrdersPage(ctx, l.DB, tenantID, counterparty, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
