package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/services"
)

type fakeAdmin struct {
	conv    *domain.Conversation
	orders  []domain.OrderRecord
	total   int64
	item    *domain.CatalogItem
	err     error
	cleared string
	page    int
	size    int
	query   string
}

func (f *fakeAdmin) Conversation(_ context.Context, tid, cp string) (*domain.Conversation, error) {
	return f.conv, f.err
}

func (f *fakeAdmin) ClearConversation(_ context.Context, tid, cp string) error {
	if f.err == nil {
		f.cleared = tid + "/" + cp
	}
	return f.err
}

func (f *fakeAdmin) Orders(_ context.Context, tid, cp string, page, size int) ([]domain.OrderRecord, int64, error) {
	f.page, f.size = page, size
	return f.orders, f.total, f.err
}

func (f *fakeAdmin) MenuLookup(_ context.Context, tid, q string) (*domain.CatalogItem, error) {
	f.query = q
	return f.item, f.err
}

func adminRouter(a AdminService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(nil, a, WebhookConfig{})
	r := gin.New()
	r.GET("/tenants/:tenantId/conversations/:counterparty", h.GetConversation)
	r.DELETE("/tenants/:tenantId/conversations/:counterparty", h.ClearConversation)
	r.GET("/tenants/:tenantId/orders", h.ListOrders)
	r.GET("/tenants/:tenantId/menu", h.MenuLookup)
	return r
}

func do(r *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestGetConversation(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := &fakeAdmin{conv: &domain.Conversation{
		TenantID:     "t1",
		Counterparty: "22890000000",
		History:      []domain.Message{{Role: domain.RoleUser, Content: "menu?", Timestamp: at}},
		Metadata:     domain.Metadata{CustomerName: "Ama"},
		UpdatedAt:    at,
	}}
	w := do(adminRouter(a), http.MethodGet, "/tenants/t1/conversations/22890000000")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp ConversationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.History) != 1 || resp.History[0].Content != "menu?" {
		t.Fatalf("history=%+v", resp.History)
	}
	if resp.Metadata.CustomerName != "Ama" || resp.UpdatedAt == nil || !resp.UpdatedAt.Equal(at) {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestGetConversation_UnknownIsEmpty(t *testing.T) {
	w := do(adminRouter(&fakeAdmin{}), http.MethodGet, "/tenants/t1/conversations/999")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var raw map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &raw)
	h, ok := raw["history"].([]any)
	if !ok || len(h) != 0 {
		t.Fatalf("history should be an empty array: %s", w.Body.String())
	}
	if _, has := raw["updated_at"]; has {
		t.Fatalf("updated_at should be omitted: %s", w.Body.String())
	}
}

func TestAdminErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"tenant", services.ErrTenantNotFound, 404, ErrCodeTenantNotFound},
		{"counterparty", services.ErrEmptyCounterparty, 400, ErrCodeBadRequest},
		{"other", errors.New("db gone"), 500, ErrCodeReadFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(adminRouter(&fakeAdmin{err: tc.err}), http.MethodGet, "/tenants/t1/conversations/1")
			if w.Code != tc.status {
				t.Fatalf("status=%d", w.Code)
			}
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != tc.code {
				t.Fatalf("body=%s err=%v", w.Body.String(), err)
			}
		})
	}
}

func TestClearConversation(t *testing.T) {
	a := &fakeAdmin{}
	w := do(adminRouter(a), http.MethodDelete, "/tenants/t1/conversations/228")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if a.cleared != "t1/228" {
		t.Fatalf("cleared=%q", a.cleared)
	}

	w = do(adminRouter(&fakeAdmin{err: errors.New("x")}), http.MethodDelete, "/tenants/t1/conversations/228")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestListOrders_Pagination(t *testing.T) {
	a := &fakeAdmin{
		orders: []domain.OrderRecord{{ID: "o1", TenantID: "t1", Total: 2500, Status: domain.OrderConfirmed}},
		total:  45,
	}
	w := do(adminRouter(a), http.MethodGet, "/tenants/t1/orders?page=2&page_size=20")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ListOrdersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	p := resp.Pagination
	if p.Page != 2 || p.PageSize != 20 || p.Total != 45 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination=%+v", p)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].ID != "o1" {
		t.Fatalf("orders=%+v", resp.Orders)
	}

	do(adminRouter(a), http.MethodGet, "/tenants/t1/orders?page=-1&page_size=5000")
	if a.page != 1 || a.size != 100 {
		t.Fatalf("normalized page=%d size=%d", a.page, a.size)
	}
}

func TestMenuLookup(t *testing.T) {
	a := &fakeAdmin{item: &domain.CatalogItem{ID: "i1", Name: "Attiéké poisson", Price: 2000}}
	w := do(adminRouter(a), http.MethodGet, "/tenants/t1/menu?q=attieke")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp MenuLookupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Item == nil || resp.Item.ID != "i1" || a.query != "attieke" {
		t.Fatalf("resp=%+v query=%q", resp, a.query)
	}

	w = do(adminRouter(a), http.MethodGet, "/tenants/t1/menu?q=%20")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank q status=%d", w.Code)
	}
}
