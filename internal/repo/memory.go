// Package repo implements the data persistence layer for domain entities.
// This file provides in-memory implementations of the conversation store,
// the order ledger, the tenant directory and the message deduper. They back
// demo mode (no database) and tests.
//
// All types are safe for concurrent use. Values are deep-copied on the way in
// and out so callers never share state with the store.
package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/go-order-agent/internal/domain"
)

func convKey(tenantID, counterparty string) string { return tenantID + "\x00" + counterparty }

// MemoryConversationStore keeps conversations in a map.
type MemoryConversationStore struct {
	mu     sync.RWMutex
	convs  map[string]*domain.Conversation
	limit  int
	maxAge time.Duration
	now    func() time.Time
}

// NewMemoryConversationStore creates an empty store.
func NewMemoryConversationStore(limit int, maxAge time.Duration) *MemoryConversationStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MemoryConversationStore{
		convs:  make(map[string]*domain.Conversation),
		limit:  limit,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Snapshot returns a copy of the conversation, or an empty one.
func (s *MemoryConversationStore) Snapshot(_ context.Context, tenantID, counterparty string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[convKey(tenantID, counterparty)]
	if !ok {
		return &domain.Conversation{TenantID: tenantID, Counterparty: counterparty}, nil
	}
	out := copyConversation(c)
	out.History = FilterByAge(out.History, s.maxAge, s.now().UTC())
	return out, nil
}

// History returns a copy of the stored history.
func (s *MemoryConversationStore) History(_ context.Context, tenantID, counterparty string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[convKey(tenantID, counterparty)]
	if !ok {
		return []domain.Message{}, nil
	}
	h := append([]domain.Message(nil), c.History...)
	return FilterByAge(h, s.maxAge, s.now().UTC()), nil
}

// Append adds msg and applies the history cap.
func (s *MemoryConversationStore) Append(_ context.Context, tenantID, counterparty string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	c := s.getOrCreateLocked(tenantID, counterparty)
	c.History = domain.TrimHistory(append(c.History, msg), s.limit)
	c.Version++
	c.UpdatedAt = s.now().UTC()
	return nil
}

// Metadata returns a copy of the metadata bag.
func (s *MemoryConversationStore) Metadata(_ context.Context, tenantID, counterparty string) (domain.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[convKey(tenantID, counterparty)]
	if !ok {
		return domain.Metadata{}, nil
	}
	return c.Metadata.Clone(), nil
}

// UpdateMetadata shallow-merges patch.
func (s *MemoryConversationStore) UpdateMetadata(_ context.Context, tenantID, counterparty string, patch domain.MetadataPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreateLocked(tenantID, counterparty)
	c.Metadata.Apply(patch)
	c.Version++
	c.UpdatedAt = s.now().UTC()
	return nil
}

// Clear removes the conversation.
func (s *MemoryConversationStore) Clear(_ context.Context, tenantID, counterparty string) error {
	s.mu.Lock()
	delete(s.convs, convKey(tenantID, counterparty))
	s.mu.Unlock()
	return nil
}

func (s *MemoryConversationStore) getOrCreateLocked(tenantID, counterparty string) *domain.Conversation {
	k := convKey(tenantID, counterparty)
	c, ok := s.convs[k]
	if !ok {
		now := s.now().UTC()
		c = &domain.Conversation{TenantID: tenantID, Counterparty: counterparty, CreatedAt: now}
		s.convs[k] = c
	}
	return c
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	out.History = append([]domain.Message(nil), c.History...)
	out.Metadata = c.Metadata.Clone()
	return &out
}

// MemoryOrderLedger is an in-memory order ledger.
type MemoryOrderLedger struct {
	mu     sync.RWMutex
	orders []domain.OrderRecord
	ids    map[string]struct{}
}

// NewMemoryOrderLedger creates an empty ledger.
func NewMemoryOrderLedger() *MemoryOrderLedger {
	return &MemoryOrderLedger{ids: make(map[string]struct{})}
}

// Create appends o; a repeated id returns ErrDuplicate.
func (l *MemoryOrderLedger) Create(_ context.Context, o *domain.OrderRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.ids[o.ID]; dup {
		return ErrDuplicate
	}
	rec := *o
	rec.LineItems = append([]domain.LineItem(nil), o.LineItems...)
	rec.NotFound = append([]string(nil), o.NotFound...)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	l.orders = append(l.orders, rec)
	l.ids[o.ID] = struct{}{}
	return nil
}

// List returns orders newest first.
func (l *MemoryOrderLedger) List(_ context.Context, tenantID, counterparty string, offset, limit int) ([]domain.OrderRecord, int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var match []domain.OrderRecord
	for i := len(l.orders) - 1; i >= 0; i-- {
		o := l.orders[i]
		if o.TenantID != tenantID {
			continue
		}
		if counterparty != "" && o.Counterparty != counterparty {
			continue
		}
		match = append(match, o)
	}
	sort.SliceStable(match, func(i, j int) bool { return match[i].CreatedAt.After(match[j].CreatedAt) })
	total := int64(len(match))
	if offset >= len(match) {
		return []domain.OrderRecord{}, total, nil
	}
	end := len(match)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]domain.OrderRecord(nil), match[offset:end]...), total, nil
}

// MemoryTenantDirectory serves tenants from a fixed set (demo mode and tests).
type MemoryTenantDirectory struct {
	mu      sync.RWMutex
	tenants map[string]domain.Tenant
}

// NewMemoryTenantDirectory indexes tenants by id.
func NewMemoryTenantDirectory(tenants ...domain.Tenant) *MemoryTenantDirectory {
	d := &MemoryTenantDirectory{tenants: make(map[string]domain.Tenant, len(tenants))}
	for _, t := range tenants {
		d.Put(t)
	}
	return d
}

// Put inserts or replaces a tenant.
func (d *MemoryTenantDirectory) Put(t domain.Tenant) {
	d.mu.Lock()
	d.tenants[t.ID] = t
	d.mu.Unlock()
}

// ByID returns the tenant or ErrNotFound.
func (d *MemoryTenantDirectory) ByID(_ context.Context, id string) (*domain.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTenant(t), nil
}

// ByPhoneNumberID returns the tenant owning phoneID or ErrNotFound.
func (d *MemoryTenantDirectory) ByPhoneNumberID(_ context.Context, phoneID string) (*domain.Tenant, error) {
	return d.find(func(t domain.Tenant) bool { return phoneID != "" && t.PhoneNumberID == phoneID })
}

// ByAPIKey returns the tenant owning key or ErrNotFound.
func (d *MemoryTenantDirectory) ByAPIKey(_ context.Context, key string) (*domain.Tenant, error) {
	return d.find(func(t domain.Tenant) bool { return key != "" && t.GatewayAPIKey == key })
}

// HasVerifyToken reports whether any tenant uses token.
func (d *MemoryTenantDirectory) HasVerifyToken(_ context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	t, _ := d.find(func(t domain.Tenant) bool { return t.VerifyToken == token })
	return t != nil, nil
}

func (d *MemoryTenantDirectory) find(match func(domain.Tenant) bool) (*domain.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.tenants))
	for id := range d.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if t := d.tenants[id]; match(t) {
			return copyTenant(t), nil
		}
	}
	return nil, ErrNotFound
}

func copyTenant(t domain.Tenant) *domain.Tenant {
	t.Catalog = append([]domain.CatalogItem(nil), t.Catalog...)
	return &t
}

// MemoryDeduper remembers claimed keys until their TTL passes.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates a deduper with the given TTL.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

// Claim reports whether key is seen for the first time within the TTL.
func (d *MemoryDeduper) Claim(_ context.Context, tenantID, provider, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return true, nil
	}
	now := d.now()
	k := tenantID + "\x00" + provider + "\x00" + key

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.seen) > 10000 {
		for kk, exp := range d.seen {
			if !exp.After(now) {
				delete(d.seen, kk)
			}
		}
	}
	if exp, ok := d.seen[k]; ok && exp.After(now) {
		return false, nil
	}
	d.seen[k] = now.Add(d.ttl)
	return true, nil
}
