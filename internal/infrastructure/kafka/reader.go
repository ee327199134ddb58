package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"HNPulse/internal/config"
	"HNPulse/internal/ports"
	"HNPulse/pkg/logger"
)

// fetcher is the subset of *kafkago.Reader the adapter drives.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Reader adapts a consumer-group reader to ports.TriggerReader.
type Reader struct {
	reader      fetcher
	pollTimeout time.Duration
}

var _ ports.TriggerReader = (*Reader)(nil)

// NewReader subscribes to the trigger topic with the configured group. With
// no committed offset the group starts from the earliest message.
func NewReader(cfg config.KafkaConfig, log *slog.Logger) (*Reader, error) {
	if log == nil {
		log = slog.Default()
	}
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka dialer: %w", err)
	}

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic(),
		GroupID:     cfg.GroupID(),
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     cfg.PollTimeout,
		Dialer:      dialer,
		Logger:      kafkago.LoggerFunc(logger.Printf(log, "kafka-reader", slog.LevelDebug)),
		ErrorLogger: kafkago.LoggerFunc(logger.Printf(log, "kafka-reader", slog.LevelWarn)),
	})
	return newReader(r, cfg.PollTimeout), nil
}

func newReader(r fetcher, pollTimeout time.Duration) *Reader {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &Reader{reader: r, pollTimeout: pollTimeout}
}

// Fetch waits up to the poll timeout for one message.
func (r *Reader) Fetch(ctx context.Context) (ports.Delivery, error) {
	pollCtx, cancel := context.WithTimeout(ctx, r.pollTimeout)
	defer cancel()

	m, err := r.reader.FetchMessage(pollCtx)
	if err != nil {
		return ports.Delivery{}, classify(ctx, err)
	}

	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return ports.NewDelivery(ports.Delivery{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   headers,
	}, m), nil
}

func (r *Reader) Commit(ctx context.Context, d ports.Delivery) error {
	m, ok := d.Handle().(kafkago.Message)
	if !ok {
		return errors.New("commit: delivery was not produced by this reader")
	}
	if err := r.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

var fatalCodes = map[kafkago.Error]bool{
	kafkago.SASLAuthenticationFailed:   true,
	kafkago.TopicAuthorizationFailed:   true,
	kafkago.GroupAuthorizationFailed:   true,
	kafkago.ClusterAuthorizationFailed: true,
	kafkago.UnsupportedSASLMechanism:   true,
	kafkago.IllegalSASLState:           true,
	kafkago.InvalidTopic:               true,
}

// classify maps reader errors onto the consumer's sentinel errors. Caller
// cancellation is returned unchanged.
func classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ports.ErrNoMessage
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: reader closed: %v", ports.ErrFatal, err)
	}
	var code kafkago.Error
	if errors.As(err, &code) && fatalCodes[code] {
		return fmt.Errorf("%w: %v", ports.ErrFatal, err)
	}
	return fmt.Errorf("%w: %v", ports.ErrTransient, err)
}
