// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the persistent Conversation Store.
//
// Each (tenant, counterparty) pair maps to one row holding the bounded
// history and the metadata bag as JSON columns. Writes are read-modify-write
// cycles guarded by a version column: an update only lands when the version
// read is still current, otherwise the cycle is retried. This keeps
// concurrent writers in different processes from losing each other's
// updates.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// ErrConflict is returned when a versioned write keeps losing the race
// after all retries.
var ErrConflict = errors.New("conversation update conflict")

const (
	// DefaultHistoryLimit is the number of history entries kept per conversation.
	DefaultHistoryLimit = 50
	defaultCASRetries   = 5
)

// ConversationStore is the GORM-backed Conversation Store.
type ConversationStore struct {
	DB *gorm.DB

	// Limit caps stored history (<= 0 uses DefaultHistoryLimit).
	Limit int
	// MaxAge hides older entries from History (0 disables). Stored rows are
	// not rewritten by the filter.
	MaxAge time.Duration
	// Retries bounds compare-and-swap attempts per write.
	Retries int

	now func() time.Time
}

// NewConversationStore returns a store over db with the given caps.
func NewConversationStore(db *gorm.DB, limit int, maxAge time.Duration) *ConversationStore {
	return &ConversationStore{DB: db, Limit: limit, MaxAge: maxAge, Retries: defaultCASRetries, now: time.Now}
}

func (s *ConversationStore) limit() int {
	if s.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return s.Limit
}

func (s *ConversationStore) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// GetConversation loads the row for (tenantID, counterparty) or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, tenantID, counterparty string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND counterparty = ?", tenantID, counterparty).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Snapshot returns the full row, or an empty conversation when none exists.
func (s *ConversationStore) Snapshot(ctx context.Context, tenantID, counterparty string) (*domain.Conversation, error) {
	c, err := GetConversation(ctx, s.DB, tenantID, counterparty)
	if errors.Is(err, ErrNotFound) {
		return &domain.Conversation{TenantID: tenantID, Counterparty: counterparty}, nil
	}
	if err != nil {
		return nil, err
	}
	c.History = FilterByAge(c.History, s.MaxAge, s.clock())
	return c, nil
}

// History returns the stored history, oldest first. A missing conversation
// yields an empty slice.
func (s *ConversationStore) History(ctx context.Context, tenantID, counterparty string) ([]domain.Message, error) {
	c, err := GetConversation(ctx, s.DB, tenantID, counterparty)
	if errors.Is(err, ErrNotFound) {
		return []domain.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return FilterByAge(c.History, s.MaxAge, s.clock()), nil
}

// Append adds msg and truncates history to the most recent Limit entries.
func (s *ConversationStore) Append(ctx context.Context, tenantID, counterparty string, msg domain.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.clock()
	}
	return s.mutate(ctx, tenantID, counterparty, func(c *domain.Conversation) {
		c.History = domain.TrimHistory(append(c.History, msg), s.limit())
	})
}

// Metadata returns the metadata bag; a missing conversation yields the zero value.
func (s *ConversationStore) Metadata(ctx context.Context, tenantID, counterparty string) (domain.Metadata, error) {
	c, err := GetConversation(ctx, s.DB, tenantID, counterparty)
	if errors.Is(err, ErrNotFound) {
		return domain.Metadata{}, nil
	}
	if err != nil {
		return domain.Metadata{}, err
	}
	return c.Metadata, nil
}

// UpdateMetadata shallow-merges patch into the stored metadata.
func (s *ConversationStore) UpdateMetadata(ctx context.Context, tenantID, counterparty string, patch domain.MetadataPatch) error {
	return s.mutate(ctx, tenantID, counterparty, func(c *domain.Conversation) {
		c.Metadata.Apply(patch)
	})
}

// Clear deletes the conversation (history and metadata).
func (s *ConversationStore) Clear(ctx context.Context, tenantID, counterparty string) error {
	return s.DB.WithContext(ctx).
		Where("tenant_id = ? AND counterparty = ?", tenantID, counterparty).
		Delete(&domain.Conversation{}).Error
}

// mutate runs fn against the current row and writes it back with a version
// check, creating the row on first write.
func (s *ConversationStore) mutate(ctx context.Context, tenantID, counterparty string, fn func(*domain.Conversation)) error {
	retries := s.Retries
	if retries <= 0 {
		retries = defaultCASRetries
	}
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.clock()

		c, err := GetConversation(ctx, s.DB, tenantID, counterparty)
		if errors.Is(err, ErrNotFound) {
			c = &domain.Conversation{TenantID: tenantID, Counterparty: counterparty, CreatedAt: now}
			fn(c)
			c.Version = 1
			c.UpdatedAt = now
			cerr := s.DB.WithContext(ctx).Create(c).Error
			if cerr == nil {
				return nil
			}
			if isUniqueViolation(cerr) {
				continue // created concurrently; retry as an update
			}
			return cerr
		}
		if err != nil {
			return err
		}

		prev := c.Version
		fn(c)
		c.Version = prev + 1
		c.UpdatedAt = now

		res := s.DB.WithContext(ctx).
			Model(c).
			Where("version = ?", prev).
			Select("History", "Metadata", "Version", "UpdatedAt").
			Updates(c)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}
	}
	return ErrConflict
}

// FilterByAge drops entries older than maxAge relative to now. maxAge <= 0
// returns h unchanged.
func FilterByAge(h []domain.Message, maxAge time.Duration, now time.Time) []domain.Message {
	if maxAge <= 0 || len(h) == 0 {
		return h
	}
	cutoff := now.Add(-maxAge)
	out := make([]domain.Message, 0, len(h))
	for _, m := range h {
		if m.Timestamp.IsZero() || m.Timestamp.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}
