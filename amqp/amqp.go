// Package amqp publishes bridge lifecycle events to an AMQP broker (ie RabbitMQ).
package amqp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"trtlbridge/metrics"
	"trtlbridge/types"
)

// routing keys on the bridge exchange
const (
	KeyCreated   = "bridge.created"
	KeyCompleted = "bridge.completed"
	KeyFailed    = "bridge.failed"
)

// Event is the message body of every routing key.
type Event struct {
	Type   string              `json:"type"`
	Record *types.BridgeRecord `json:"record"`
	Reason string              `json:"reason,omitempty"`
	Time   time.Time           `json:"time"`
}

// Publisher sends bridge events. Failures are reported but callers only log them.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, rec *types.BridgeRecord, reason string) error
	Close() error
}

// channel is the part of *amqp.Channel the broker uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Broker implements a connection to a broker and a channel for reuse.
type Broker struct {
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger

	mu sync.Mutex
	ch channel
	// opens a new channel when the previous one broke
	open func() (channel, error)
}

// New connects to uri and declares the durable topic exchange.
func New(uri, exchange string, logger *zap.Logger) (*Broker, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}

	b := &Broker{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With(zap.String("component", "amqp")),
		open: func() (channel, error) {
			return conn.Channel()
		},
	}
	if err = b.setup(); err != nil {
		conn.Close()
		return nil, err
	}
	b.logger.Info("connected to message broker", zap.String("exchange", exchange))
	return b, nil
}

func (b *Broker) setup() error {
	// one-use channel
	ch, err := b.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil)
}

func (b *Broker) Publish(_ context.Context, routingKey string, rec *types.BridgeRecord, reason string) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			b.logger.Warn("error sending bridge event to message broker", zap.String("key", routingKey), zap.Error(err))
		}
		metrics.EventsPublished.WithLabelValues(routingKey, result).Inc()
	}()

	jsonDoc, err := json.Marshal(Event{Type: routingKey, Record: rec, Reason: reason, Time: time.Now().UTC()})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch == nil {
		if b.ch, err = b.open(); err != nil {
			return err
		}
	}

	msg := amqp.Publishing{
		Headers:      amqp.Table{"x-source-tx": rec.SourceTxHash},
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         jsonDoc,
	}
	if err = b.ch.Publish(b.exchange, routingKey, false, false, msg); err != nil {
		// a failed channel is closed by the server, get a new one next time
		_ = b.ch.Close()
		b.ch = nil
	}
	return err
}

// Close terminates gracefully the connection to the message broker.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.ch != nil {
		if err := b.ch.Close(); err != nil {
			b.logger.Warn("error closing amqp channel", zap.Error(err))
		}
		b.ch = nil
	}
	b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// Noop is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, *types.BridgeRecord, string) error { return nil }
func (Noop) Close() error                                                       { return nil }
