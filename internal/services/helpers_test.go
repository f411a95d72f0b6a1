package services

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/llm"
	"github.com/tbourn/go-order-agent/internal/outbound"
	"github.com/tbourn/go-order-agent/internal/repo"
)

type fakeGenerator struct {
	mu    sync.Mutex
	res   *llm.GenerateResult
	err   error
	delay time.Duration
	reqs  []llm.GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	res, err, delay := g.res, g.err, g.delay
	g.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	out := *res
	return &out, nil
}

func (g *fakeGenerator) calls() []llm.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.GenerateRequest(nil), g.reqs...)
}

type sent struct {
	To, Text string
}

type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []sent
	images  []sent
	reads   []string
	fail    bool
	imgFail bool
}

func (d *fakeDispatcher) Send(_ context.Context, _ *domain.Tenant, to, text string) outbound.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{to, text})
	if d.fail {
		return outbound.Result{ErrorText: "boom", Attempts: 4}
	}
	return outbound.Result{Success: true, MessageID: "out-1", Attempts: 1}
}

func (d *fakeDispatcher) SendImage(_ context.Context, _ *domain.Tenant, to, link string) outbound.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images = append(d.images, sent{to, link})
	if d.imgFail {
		return outbound.Result{ErrorText: "no image", Attempts: 1}
	}
	return outbound.Result{Success: true, MessageID: "img-1", Attempts: 1}
}

func (d *fakeDispatcher) MarkRead(_ context.Context, _ *domain.Tenant, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads = append(d.reads, id)
	return nil
}

func (d *fakeDispatcher) all() []sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sent(nil), d.sent...)
}

func testTenant() domain.Tenant {
	return domain.Tenant{
		ID:              "t1",
		Name:            "Chez Fatou",
		Description:     "Senegalese home cooking",
		Cuisine:         "Senegalese",
		OrderingEnabled: true,
		PhoneNumberID:   "PN1",
		IsActive:        true,
		Catalog: []domain.CatalogItem{
			{ID: "i1", TenantID: "t1", Name: "Thieboudienne", Description: "rice and fish", Price: 2500, IsAvailable: true},
			{ID: "i2", TenantID: "t1", Name: "Yassa Poulet", Description: "chicken with onions", Price: 3000, IsAvailable: true},
		},
	}
}

func quote() *domain.PendingOrder {
	return &domain.PendingOrder{
		Total:        6000,
		ItemsSummary: "2x Yassa Poulet (6000 FCFA)",
		LineItems:    []domain.LineItem{{ItemID: "i2", Name: "Yassa Poulet", Quantity: 2, UnitPrice: 3000}},
	}
}

// pipeline wires a Processor over in-memory stores.
type pipeline struct {
	proc    *Processor
	store   *repo.MemoryConversationStore
	ledger  *repo.MemoryOrderLedger
	gen     *fakeGenerator
	disp    *fakeDispatcher
	tenants *repo.MemoryTenantDirectory
}

func newPipeline(tenants ...domain.Tenant) *pipeline {
	if len(tenants) == 0 {
		tenants = []domain.Tenant{testTenant()}
	}
	store := repo.NewMemoryConversationStore(50, 0)
	ledger := repo.NewMemoryOrderLedger()
	gen := &fakeGenerator{res: &llm.GenerateResult{Reply: "Hello **there**", Intent: llm.IntentGeneral, Language: "en"}}
	disp := &fakeDispatcher{}
	dir := repo.NewMemoryTenantDirectory(tenants...)
	orch := NewOrchestrator(store, gen, nil)
	orch.Timeout = 200 * time.Millisecond
	return &pipeline{
		proc: &Processor{
			Tenants:      dir,
			Store:        store,
			Orders:       NewOrderFlow(store, ledger),
			Orchestrator: orch,
			Dispatcher:   disp,
			Dedup:        repo.NewMemoryDeduper(time.Hour),
			Locks:        NewKeyedMutex(),
		},
		store: store, ledger: ledger, gen: gen, disp: disp, tenants: dir,
	}
}

func inbound(id, text string) domain.InboundMessage {
	return domain.InboundMessage{
		TenantID:   "t1",
		Provider:   domain.ProviderGraph,
		From:       "221770001234",
		MessageID:  id,
		Type:       domain.MessageText,
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}
}
