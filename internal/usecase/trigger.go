package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"HNPulse/internal/domain"
	"HNPulse/internal/ports"
)

// TriggerKey is the message key used for every trigger.
const TriggerKey = "fetch_trigger"

// TriggerIDHeader carries the run id a consumer should reuse.
const TriggerIDHeader = "trigger-id"

// Scheduler publishes fetch triggers onto the queue, once or on a driver.
type Scheduler struct {
	publisher ports.Publisher
	driver    ports.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler returns a trigger publisher. driver may be nil when only
// one-shot triggering is needed.
func NewScheduler(publisher ports.Publisher, driver ports.Scheduler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{publisher: publisher, driver: driver, logger: logger, now: time.Now}
}

// Trigger enqueues one fetch request. It reports false when no publisher is
// available or the enqueue itself fails; there is no retry.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if s.publisher == nil || !s.publisher.Available() {
		s.logger.Warn("kafka publisher not available, trigger skipped")
		return false
	}

	body, err := json.Marshal(domain.TriggerMessage{
		TaskType:  domain.TaskFetchTopStories,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Error("encode trigger", "error", err)
		return false
	}

	id := uuid.NewString()
	err = s.publisher.Publish(ctx, ports.Message{
		Key:     TriggerKey,
		Value:   body,
		Headers: map[string]string{TriggerIDHeader: id},
	})
	if err != nil {
		s.logger.Error("publish trigger", "trigger_id", id, "error", err)
		return false
	}

	s.logger.Info("fetch trigger published", "trigger_id", id)
	return true
}

// StartPeriodic publishes a trigger now and then on every driver tick.
func (s *Scheduler) StartPeriodic(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Start(ctx, func(time.Time) {
		s.Trigger(ctx)
	})
}

// Stop halts the periodic driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
