package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/repo"
)

func newAdmin() (*AdminService, *repo.MemoryConversationStore, *repo.MemoryOrderLedger) {
	store := repo.NewMemoryConversationStore(50, 0)
	ledger := repo.NewMemoryOrderLedger()
	return &AdminService{
		Tenants:      repo.NewMemoryTenantDirectory(testTenant()),
		Store:        store,
		Ledger:       ledger,
		Orchestrator: NewOrchestrator(store, nil, nil),
		Locks:        NewKeyedMutex(),
	}, store, ledger
}

func TestAdmin_ConversationAndClear(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newAdmin()
	_ = store.Append(ctx, "t1", "2217", domain.Message{Role: domain.RoleUser, Content: "hi"})
	_ = store.UpdateMetadata(ctx, "t1", "2217", domain.MetadataPatch{PendingOrder: quote()})

	c, err := s.Conversation(ctx, "t1", "2217")
	if err != nil || len(c.History) != 1 || c.Metadata.PendingOrder == nil {
		t.Fatalf("conv=%+v err=%v", c, err)
	}
	if err := s.ClearConversation(ctx, "t1", "2217"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	c, _ = s.Conversation(ctx, "t1", "2217")
	if len(c.History) != 0 || c.Metadata.PendingOrder != nil {
		t.Fatalf("not cleared: %+v", c)
	}

	if _, err := s.Conversation(ctx, "missing", "2217"); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("want ErrTenantNotFound, got %v", err)
	}
	if _, err := s.Conversation(ctx, "t1", " "); !errors.Is(err, ErrEmptyCounterparty) {
		t.Fatalf("want ErrEmptyCounterparty, got %v", err)
	}
}

func TestAdmin_Orders(t *testing.T) {
	ctx := context.Background()
	s, _, ledger := newAdmin()
	base := time.Now().UTC()
	for i, party := range []string{"a", "b", "a"} {
		_ = ledger.Create(ctx, &domain.OrderRecord{
			ID: "o" + string(rune('1'+i)), TenantID: "t1", Counterparty: party,
			Total: int64(1000 * (i + 1)), Status: domain.OrderConfirmed, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	items, total, err := s.Orders(ctx, "t1", "", 1, 2)
	if err != nil || total != 3 || len(items) != 2 || items[0].ID != "o3" {
		t.Fatalf("items=%+v total=%d err=%v", items, total, err)
	}
	items, total, _ = s.Orders(ctx, "t1", "a", 0, 0)
	if total != 2 || len(items) != 2 {
		t.Fatalf("filtered: items=%+v total=%d", items, total)
	}
	items, _, _ = s.Orders(ctx, "t1", "zzz", 1, 10)
	if items == nil || len(items) != 0 {
		t.Fatalf("want empty slice, got %#v", items)
	}
}

func TestAdmin_MenuLookup(t *testing.T) {
	s, _, _ := newAdmin()
	it, err := s.MenuLookup(context.Background(), "t1", "yassa")
	if err != nil || it == nil || it.ID != "i2" {
		t.Fatalf("item=%+v err=%v", it, err)
	}
}
