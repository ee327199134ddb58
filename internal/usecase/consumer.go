package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"HNPulse/internal/domain"
	"HNPulse/internal/ports"
)

// ConsumerState is the position of the consumer loop.
type ConsumerState string

const (
	StateConnecting ConsumerState = "CONNECTING"
	StatePolling    ConsumerState = "POLLING"
	StateProcessing ConsumerState = "PROCESSING"
	StateBackoff    ConsumerState = "BACKOFF"
	StateClosed     ConsumerState = "CLOSED"
)

const (
	defaultBackoff = 5 * time.Second
	commitTimeout  = 5 * time.Second
)

// ConsumerDeps wires the consumer loop.
type ConsumerDeps struct {
	// Connect subscribes to the trigger topic.
	Connect  func(ctx context.Context) (ports.TriggerReader, error)
	Ingestor ports.Ingestor
	Backoff  time.Duration
	Logger   *slog.Logger
	// OnResult, when set, receives every finished run.
	OnResult func(domain.RunResult)
}

// Consumer turns trigger messages into ingestion runs, one at a time.
type Consumer struct {
	connect  func(ctx context.Context) (ports.TriggerReader, error)
	ingestor ports.Ingestor
	backoff  time.Duration
	logger   *slog.Logger
	onResult func(domain.RunResult)

	state atomic.Value
	sleep func(ctx context.Context, d time.Duration)
}

func NewConsumer(deps ConsumerDeps) *Consumer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := deps.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	c := &Consumer{
		connect:  deps.Connect,
		ingestor: deps.Ingestor,
		backoff:  backoff,
		logger:   logger,
		onResult: deps.OnResult,
		sleep:    sleepContext,
	}
	c.state.Store(StateClosed)
	return c
}

// State reports the current loop state.
func (c *Consumer) State() ConsumerState {
	return c.state.Load().(ConsumerState)
}

func (c *Consumer) setState(s ConsumerState) {
	if prev := c.state.Swap(s); prev != s {
		c.logger.Debug("consumer state", "from", prev, "to", s)
	}
}

// Run consumes until ctx is cancelled or the reader reports a fatal error.
// Cancellation returns nil; fatal errors are returned wrapped.
func (c *Consumer) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	reader, err := c.connect(ctx)
	if err != nil {
		c.setState(StateClosed)
		return fmt.Errorf("connect consumer: %w", err)
	}
	c.logger.Info("consumer subscribed")

	var once sync.Once
	closeReader := func() {
		once.Do(func() {
			if cerr := reader.Close(); cerr != nil {
				c.logger.Warn("close reader", "error", cerr)
			}
		})
	}
	defer func() {
		closeReader()
		c.setState(StateClosed)
		c.logger.Info("consumer closed")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		c.setState(StatePolling)

		delivery, ferr := reader.Fetch(ctx)
		switch {
		case ferr == nil:
			c.setState(StateProcessing)
			c.process(ctx, reader, delivery)
		case errors.Is(ferr, ports.ErrNoMessage):
		case ctx.Err() != nil:
			return nil
		case errors.Is(ferr, ports.ErrFatal):
			c.logger.Error("fatal consumer error", "error", ferr)
			return ferr
		default:
			c.setState(StateBackoff)
			c.logger.Error("kafka error, backing off", "error", ferr, "backoff", c.backoff)
			c.sleep(ctx, c.backoff)
		}
	}
}

// process handles one delivery. The offset is committed whatever the
// outcome, so a poison message is dropped rather than redelivered.
func (c *Consumer) process(ctx context.Context, reader ports.TriggerReader, d ports.Delivery) {
	log := c.logger.With("topic", d.Topic, "partition", d.Partition, "offset", d.Offset, "key", string(d.Key))

	func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error("processing message panicked", "panic", p)
			}
		}()

		var msg domain.TriggerMessage
		if err := json.Unmarshal(d.Value, &msg); err != nil {
			log.Error("decode trigger payload", "payload", string(d.Value), "error", err)
			return
		}
		log.Info("processing trigger", "task_type", msg.TaskType, "timestamp", msg.Timestamp)

		result := c.ingestor.Run(ctx, domain.Trigger{
			RunID:   d.Headers[TriggerIDHeader],
			Source:  domain.SourceConsumer,
			Message: &msg,
		})
		if c.onResult != nil {
			c.onResult(result)
		}
	}()

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := reader.Commit(commitCtx, d); err != nil {
		log.Error("commit offset", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
