package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-order-agent/internal/domain"
)

func TestMemoryConversationStore_CapAndCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConversationStore(50, 0)

	for i := 0; i < 55; i++ {
		_ = s.Append(ctx, "t1", "p1", userMsg(fmt.Sprintf("m%d", i)))
	}
	h, _ := s.History(ctx, "t1", "p1")
	if len(h) != 50 || h[0].Content != "m5" {
		t.Fatalf("len=%d first=%q", len(h), h[0].Content)
	}
	h[0].Content = "mutated"
	h2, _ := s.History(ctx, "t1", "p1")
	if h2[0].Content != "m5" {
		t.Fatalf("History must return a copy")
	}
}

func TestMemoryConversationStore_Metadata(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConversationStore(0, 0)

	_ = s.UpdateMetadata(ctx, "t1", "p1", domain.MetadataPatch{
		PendingOrder: &domain.PendingOrder{Total: 1500, LineItems: []domain.LineItem{{Name: "Pastels", Quantity: 3, UnitPrice: 500}}},
	})
	md, _ := s.Metadata(ctx, "t1", "p1")
	md.PendingOrder.Total = 1
	md2, _ := s.Metadata(ctx, "t1", "p1")
	if md2.PendingOrder.Total != 1500 {
		t.Fatalf("Metadata must return a deep copy")
	}

	_ = s.UpdateMetadata(ctx, "t1", "p1", domain.MetadataPatch{ClearPendingOrder: true, LastQuery: domain.StrPtr("q")})
	md3, _ := s.Metadata(ctx, "t1", "p1")
	if md3.PendingOrder != nil || md3.LastQuery != "q" {
		t.Fatalf("metadata=%+v", md3)
	}

	_ = s.Clear(ctx, "t1", "p1")
	snap, _ := s.Snapshot(ctx, "t1", "p1")
	if snap.Metadata.LastQuery != "" || len(snap.History) != 0 {
		t.Fatalf("clear failed: %+v", snap)
	}
}

func TestMemoryConversationStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConversationStore(50, 0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, "t1", "p1", userMsg(fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()
	h, _ := s.History(ctx, "t1", "p1")
	if len(h) != 20 {
		t.Fatalf("len=%d, want 20", len(h))
	}
}

func TestMemoryOrderLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryOrderLedger()
	base := time.Now().UTC()
	_ = l.Create(ctx, mkOrder("a", "t1", "p1", 100, base))
	_ = l.Create(ctx, mkOrder("b", "t1", "p1", 200, base.Add(time.Second)))
	_ = l.Create(ctx, mkOrder("c", "t2", "p1", 300, base))

	if err := l.Create(ctx, mkOrder("a", "t1", "p1", 100, base)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	items, total, err := l.List(ctx, "t1", "p1", 0, 10)
	if err != nil || total != 2 || len(items) != 2 || items[0].ID != "b" {
		t.Fatalf("List=%+v total=%d err=%v", items, total, err)
	}
	items, _, _ = l.List(ctx, "t1", "", 5, 10)
	if len(items) != 0 {
		t.Fatalf("offset past end should be empty")
	}
}

func TestMemoryTenantDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryTenantDirectory(domain.Tenant{ID: "t1", PhoneNumberID: "pn1", GatewayAPIKey: "k1", VerifyToken: "v1"})

	if tn, err := d.ByPhoneNumberID(ctx, "pn1"); err != nil || tn.ID != "t1" {
		t.Fatalf("ByPhoneNumberID: %v %v", tn, err)
	}
	if tn, err := d.ByAPIKey(ctx, "k1"); err != nil || tn.ID != "t1" {
		t.Fatalf("ByAPIKey: %v %v", tn, err)
	}
	if _, err := d.ByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if ok, _ := d.HasVerifyToken(ctx, "v1"); !ok {
		t.Fatalf("HasVerifyToken should match")
	}
	if ok, _ := d.HasVerifyToken(ctx, "v2"); ok {
		t.Fatalf("HasVerifyToken should not match")
	}
}

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(time.Minute)
	now := time.Now()
	d.now = func() time.Time { return now }

	if ok, _ := d.Claim(ctx, "t1", "whatsapp", "m1"); !ok {
		t.Fatalf("first claim should succeed")
	}
	if ok, _ := d.Claim(ctx, "t1", "whatsapp", "m1"); ok {
		t.Fatalf("duplicate claim should fail")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := d.Claim(ctx, "t1", "whatsapp", "m1"); !ok {
		t.Fatalf("claim after TTL should succeed")
	}
}
