package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// ErrDuplicate indicates that a record with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

const receiptKey = "tenant_id = ? AND provider = ? AND message_id = ?"

// FindReceipt returns the live receipt for a message or ErrNotFound.
func FindReceipt(ctx context.Context, db *gorm.DB, tenantID, provider, messageID string, now time.Time) (*domain.MessageReceipt, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, ErrNotFound
	}
	var rec domain.MessageReceipt
	err := db.WithContext(ctx).
		Where(receiptKey, tenantID, provider, messageID).
		Where("expires_at > ?", now).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertReceipt stores a receipt valid for ttl from now. A live or expired
// row for the same message yields ErrDuplicate.
func InsertReceipt(ctx context.Context, db *gorm.DB, tenantID, provider, messageID string, ttl time.Duration, now time.Time) (*domain.MessageReceipt, error) {
	rec := &domain.MessageReceipt{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Provider:   provider,
		MessageID:  messageID,
		ReceivedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	switch {
	case isUniqueViolation(err):
		return nil, ErrDuplicate
	case err != nil:
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredReceipts deletes receipts that expired at or before now.
func PurgeExpiredReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.MessageReceipt{})
	return res.RowsAffected, res.Error
}

// SQLDeduper claims message ids through the message_receipts table.
type SQLDeduper struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Claim reports whether this caller is the first to see the message within
// the TTL. An expired receipt for the same message is replaced. Messages
// without an id are always claimed.
func (d *SQLDeduper) Claim(ctx context.Context, tenantID, provider, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return true, nil
	}
	now := time.Now().UTC()
	if _, err := FindReceipt(ctx, d.DB, tenantID, provider, messageID, now); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	stale := d.DB.WithContext(ctx).
		Where(receiptKey, tenantID, provider, messageID).
		Where("expires_at <= ?", now).
		Delete(&domain.MessageReceipt{})
	if stale.Error != nil {
		return false, stale.Error
	}
	if _, err := InsertReceipt(ctx, d.DB, tenantID, provider, messageID, d.TTL, now); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isUniqueViolation matches unique-constraint errors across drivers;
// glebarez/sqlite reports them as plain text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"unique constraint failed", "constraint failed: unique", "violates unique constraint"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
