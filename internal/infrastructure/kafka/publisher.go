package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"HNPulse/internal/config"
	"HNPulse/internal/ports"
	"HNPulse/pkg/logger"
)

// Publisher writes trigger messages asynchronously. Delivery outcomes are
// reported through the writer's completion callback.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher builds an async writer for the trigger topic. No connection is
// made until the first message is flushed.
func NewPublisher(cfg config.KafkaConfig, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka transport: %w", err)
	}

	p := &Publisher{logger: log.With("component", "kafka-publisher", "topic", cfg.Topic())}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic(),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Transport:    transport,
		Completion:   p.onCompletion,
		ErrorLogger:  kafkago.LoggerFunc(logger.Printf(log, "kafka-writer", slog.LevelWarn)),
	}
	return p, nil
}

func (p *Publisher) Available() bool { return true }

// Publish enqueues msg; a nil error means accepted, not delivered.
func (p *Publisher) Publish(ctx context.Context, msg ports.Message) error {
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

func (p *Publisher) onCompletion(messages []kafkago.Message, err error) {
	for _, m := range messages {
		if err != nil {
			p.logger.Error("message delivery failed", "key", string(m.Key), "error", err)
			continue
		}
		p.logger.Info("message delivered", "key", string(m.Key), "partition", m.Partition, "offset", m.Offset)
	}
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func toKafkaMessage(msg ports.Message) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return kafkago.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	}
}

// Unavailable is the publisher used when no broker is configured.
type Unavailable struct{}

var _ ports.Publisher = Unavailable{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Publish(context.Context, ports.Message) error {
	return ports.ErrPublisherUnavailable
}

func (Unavailable) Close() error { return nil }
