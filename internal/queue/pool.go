package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/observability"
)

// Pool is a fixed set of workers draining a bounded buffer.
type Pool struct {
	handle Handler
	jobs   chan domain.InboundMessage
	base   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines over a buffer of size messages.
func NewPool(workers, size int, h Handler) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if size <= 0 {
		size = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{handle: h, jobs: make(chan domain.InboundMessage, size), base: ctx, cancel: cancel}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

// Enqueue never blocks: a full buffer is reported as ErrQueueFull.
func (p *Pool) Enqueue(_ context.Context, msg domain.InboundMessage) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- msg:
		observability.QueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports buffered messages not yet picked up.
func (p *Pool) Len() int { return len(p.jobs) }

// Shutdown stops intake and waits for buffered work to drain. When ctx ends
// first, in-flight handlers see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("queue shutdown: %w", ctx.Err())
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for msg := range p.jobs {
		observability.QueueDepth.Set(float64(len(p.jobs)))
		p.run(msg)
	}
}

func (p *Pool) run(msg domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("tenant_id", msg.TenantID).
				Str("message_id", msg.MessageID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
		}
	}()
	p.handle(p.base, msg)
}
