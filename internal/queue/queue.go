// Package queue hands inbound messages from the webhook to background
// workers. The HTTP response never waits on processing.
package queue

import (
	"context"
	"errors"

	"github.com/tbourn/go-order-agent/internal/domain"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("queue: full")
	// ErrClosed is returned by Enqueue after Shutdown.
	ErrClosed = errors.New("queue: closed")
)

// Handler processes one message. It owns its own error handling; a returned
// value would have nowhere to go.
type Handler func(ctx context.Context, msg domain.InboundMessage)

// Queue accepts inbound messages for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, msg domain.InboundMessage) error
	Shutdown(ctx context.Context) error
}
