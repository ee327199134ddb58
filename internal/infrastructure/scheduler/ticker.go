package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"HNPulse/internal/ports"
)

// TickerDriver runs a job immediately and then on every interval.
type TickerDriver struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*TickerDriver)(nil)

func NewTickerDriver(interval time.Duration) *TickerDriver {
	return &TickerDriver{interval: interval}
}

// Start begins ticking in a goroutine. Calling Start twice is a no-op.
func (d *TickerDriver) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if d.interval <= 0 {
		return errors.New("ticker interval must be positive")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	d.stop, d.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker and waits for an in-flight job, or ctx.
func (d *TickerDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the ticking goroutine exits; nil if not started.
func (d *TickerDriver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}
