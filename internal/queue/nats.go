package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// JetStream is a durable Queue on a NATS work-queue stream. Messages are
// acked after the handler returns, so a crash mid-processing redelivers.
type JetStream struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	consume jetstream.ConsumeContext
	handle  Handler
	base    context.Context
	cancel  context.CancelFunc
}

// NewJetStream connects to url, ensures the stream and a durable consumer,
// and starts consuming into h.
func NewJetStream(ctx context.Context, url, stream string, h Handler) (*JetStream, error) {
	if stream == "" {
		stream = "ORDERBOT_INBOUND"
	}
	nc, err := nats.Connect(url,
		nats.Name("orderbot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	subject := strings.ToLower(stream) + ".inbound"
	if _, err := js.Stream(ctx, stream); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        stream,
			Subjects:    []string{subject},
			Retention:   jetstream.WorkQueuePolicy,
			Storage:     jetstream.FileStorage,
			MaxAge:      24 * time.Hour,
			Description: "inbound webhook messages awaiting processing",
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream: %w", err)
		}
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       "orderbot-workers",
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: subject,
		AckWait:       time.Minute,
		MaxDeliver:    5,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	q := &JetStream{nc: nc, js: js, subject: subject, handle: h, base: base, cancel: cancel}
	cc, err := cons.Consume(q.receive)
	if err != nil {
		cancel()
		nc.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.consume = cc
	return q, nil
}

// Enqueue publishes msg and waits for the stream ack.
func (q *JetStream) Enqueue(ctx context.Context, msg domain.InboundMessage) error {
	if q.nc.IsClosed() || q.nc.IsDraining() {
		return ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal inbound: %w", err)
	}
	if _, err := q.js.Publish(ctx, q.subject, data); err != nil {
		return fmt.Errorf("publish inbound: %w", err)
	}
	return nil
}

func (q *JetStream) receive(m jetstream.Msg) {
	var msg domain.InboundMessage
	if err := json.Unmarshal(m.Data(), &msg); err != nil {
		log.Error().Err(err).Msg("drop undecodable queue message")
		_ = m.Term()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tenant_id", msg.TenantID).Str("message_id", msg.MessageID).
				Interface("panic", r).Msg("worker panic recovered")
		}
		_ = m.Ack()
	}()
	q.handle(q.base, msg)
}

// Shutdown stops consuming and drains the connection.
func (q *JetStream) Shutdown(ctx context.Context) error {
	q.consume.Stop()
	defer q.cancel()
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !q.nc.IsClosed() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("queue shutdown: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
