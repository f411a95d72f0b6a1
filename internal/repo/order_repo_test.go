package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-order-agent/internal/domain"
)

func mkOrder(id, tenant, party string, total int64, at time.Time) *domain.OrderRecord {
	return &domain.OrderRecord{
		ID:           id,
		TenantID:     tenant,
		Counterparty: party,
		LineItems:    []domain.LineItem{{Name: "Yassa", Quantity: 1, UnitPrice: total}},
		Total:        total,
		Status:       domain.OrderConfirmed,
		CreatedAt:    at,
	}
}

func TestCreateOrder_RequiresID(t *testing.T) {
	db := newRepoDB(t)
	if err := CreateOrder(context.Background(), db, &domain.OrderRecord{TenantID: "t1"}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestCreateOrder_DuplicateID(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	o := mkOrder("ord_1", "t1", "p1", 1000, time.Now().UTC())
	if err := CreateOrder(ctx, db, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	err := CreateOrder(ctx, db, mkOrder("ord_1", "t1", "p1", 1000, time.Now().UTC()))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestOrderLedger_List_NewestFirst_Filtered(t *testing.T) {
	ctx := context.Background()
	l := NewOrderLedger(newRepoDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, o := range []*domain.OrderRecord{
		mkOrder("ord_a", "t1", "p1", 1000, base),
		mkOrder("ord_b", "t1", "p2", 2000, base.Add(time.Minute)),
		mkOrder("ord_c", "t1", "p1", 3000, base.Add(2*time.Minute)),
		mkOrder("ord_d", "t2", "p1", 4000, base.Add(3*time.Minute)),
	} {
		if err := l.Create(ctx, o); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	items, total, err := l.List(ctx, "t1", "", 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("total=%d len=%d", total, len(items))
	}
	if items[0].ID != "ord_c" || items[2].ID != "ord_a" {
		t.Fatalf("order not newest first: %s..%s", items[0].ID, items[2].ID)
	}

	items, total, err = l.List(ctx, "t1", "p1", 1, 1)
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if total != 2 || len(items) != 1 || items[0].ID != "ord_a" {
		t.Fatalf("page=%+v total=%d", items, total)
	}
	if len(items[0].LineItems) != 1 || items[0].LineItems[0].Name != "Yassa" {
		t.Fatalf("line items lost: %+v", items[0].LineItems)
	}
}
