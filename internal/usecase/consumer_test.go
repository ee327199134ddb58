package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HNPulse/internal/domain"
	"HNPulse/internal/ports"
)

// scriptedReader replays a fixed sequence of fetch outcomes, then reports
// ErrNoMessage until the test cancels.
type scriptedReader struct {
	mu        sync.Mutex
	steps     []fetchStep
	committed []int64
	closes    int
	onEmpty   func()
}

type fetchStep struct {
	delivery ports.Delivery
	err      error
}

func (r *scriptedReader) Fetch(ctx context.Context) (ports.Delivery, error) {
	r.mu.Lock()
	if len(r.steps) == 0 {
		hook := r.onEmpty
		r.mu.Unlock()
		if hook != nil {
			hook()
		}
		if ctx.Err() != nil {
			return ports.Delivery{}, ctx.Err()
		}
		return ports.Delivery{}, ports.ErrNoMessage
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	r.mu.Unlock()
	return step.delivery, step.err
}

func (r *scriptedReader) Commit(_ context.Context, d ports.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, d.Offset)
	return nil
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

type recordingIngestor struct {
	mu       sync.Mutex
	triggers []domain.Trigger
	panicOn  int
}

func (r *recordingIngestor) Run(_ context.Context, trigger domain.Trigger) domain.RunResult {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	n := len(r.triggers)
	r.mu.Unlock()
	if n == r.panicOn {
		panic("ingest blew up")
	}
	return domain.RunResult{Status: domain.RunSuccess, RunID: trigger.RunID}
}

func message(offset int64, body string) fetchStep {
	return fetchStep{delivery: ports.Delivery{
		Topic: "fetch_stories", Offset: offset, Key: []byte("fetch_trigger"), Value: []byte(body),
		Headers: map[string]string{TriggerIDHeader: fmt.Sprintf("trigger-%d", offset)},
	}}
}

func newTestConsumer(reader ports.TriggerReader, ingestor ports.Ingestor) (*Consumer, *[]time.Duration) {
	var sleeps []time.Duration
	c := NewConsumer(ConsumerDeps{
		Connect:  func(context.Context) (ports.TriggerReader, error) { return reader, nil },
		Ingestor: ingestor,
	})
	c.sleep = func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func TestConsumerProcessesAndCommitsEverything(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &scriptedReader{
		steps: []fetchStep{
			message(1, `{"task_type":"fetch_top_stories","timestamp":"2025-01-01T00:00:00Z"}`),
			message(2, `not json`),
			message(3, `{"task_type":"fetch_top_stories"}`),
			message(4, `{"task_type":"fetch_top_stories"}`),
		},
		onEmpty: cancel,
	}
	ingestor := &recordingIngestor{panicOn: 2}

	var results []domain.RunResult
	c, _ := newTestConsumer(reader, ingestor)
	c.onResult = func(r domain.RunResult) { results = append(results, r) }

	require.NoError(t, c.Run(ctx))

	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed)
	require.Len(t, ingestor.triggers, 3)
	assert.Equal(t, "trigger-1", ingestor.triggers[0].RunID)
	assert.Equal(t, domain.SourceConsumer, ingestor.triggers[0].Source)
	require.NotNil(t, ingestor.triggers[0].Message)
	assert.Equal(t, "2025-01-01T00:00:00Z", ingestor.triggers[0].Message.Timestamp)
	// The run for offset 3 panicked, so only two results were reported.
	assert.Len(t, results, 2)
	assert.Equal(t, 1, reader.closes)
	assert.Equal(t, StateClosed, c.State())
}

func TestConsumerBacksOffOnTransientError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &scriptedReader{
		steps: []fetchStep{
			{err: fmt.Errorf("%w: broker not available", ports.ErrTransient)},
			{err: errors.New("unclassified")},
			message(5, `{"task_type":"fetch_top_stories"}`),
		},
		onEmpty: cancel,
	}
	ingestor := &recordingIngestor{}
	c, sleeps := newTestConsumer(reader, ingestor)

	require.NoError(t, c.Run(ctx))

	assert.Equal(t, []time.Duration{defaultBackoff, defaultBackoff}, *sleeps)
	assert.Len(t, ingestor.triggers, 1)
	assert.Equal(t, []int64{5}, reader.committed)
}

func TestConsumerStopsOnFatalError(t *testing.T) {
	t.Parallel()

	reader := &scriptedReader{steps: []fetchStep{
		{err: fmt.Errorf("%w: SASL authentication failed", ports.ErrFatal)},
		message(6, `{}`),
	}}
	ingestor := &recordingIngestor{}
	c, _ := newTestConsumer(reader, ingestor)

	err := c.Run(context.Background())

	require.ErrorIs(t, err, ports.ErrFatal)
	assert.Empty(t, ingestor.triggers)
	assert.Equal(t, 1, reader.closes)
	assert.Equal(t, StateClosed, c.State())
}

func TestConsumerConnectFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("no brokers")
	c := NewConsumer(ConsumerDeps{
		Connect: func(context.Context) (ports.TriggerReader, error) { return nil, boom },
	})

	assert.ErrorIs(t, c.Run(context.Background()), boom)
	assert.Equal(t, StateClosed, c.State())
}

func TestConsumerStateTransitions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []ConsumerState
	var c *Consumer
	reader := &scriptedReader{
		steps: []fetchStep{
			{err: ports.ErrNoMessage},
			message(7, `{"task_type":"fetch_top_stories"}`),
		},
	}
	reader.onEmpty = func() {
		seen = append(seen, c.State())
		cancel()
	}
	ingestor := ingestorFunc(func(context.Context, domain.Trigger) domain.RunResult {
		seen = append(seen, c.State())
		return domain.RunResult{Status: domain.RunSuccess}
	})
	c, _ = newTestConsumer(reader, ingestor)

	require.NoError(t, c.Run(ctx))

	assert.Equal(t, []ConsumerState{StateProcessing, StatePolling}, seen)
	assert.Equal(t, StateClosed, c.State())
}

func TestSleepContextReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepContext(ctx, time.Hour)
	assert.Less(t, time.Since(start), time.Second)
}

type ingestorFunc func(context.Context, domain.Trigger) domain.RunResult

func (f ingestorFunc) Run(ctx context.Context, trigger domain.Trigger) domain.RunResult {
	return f(ctx, trigger)
}
