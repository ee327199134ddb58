package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"HNPulse/internal/config"
	"HNPulse/internal/domain"
	"HNPulse/internal/infrastructure/cache"
	"HNPulse/internal/infrastructure/hackernews"
	"HNPulse/internal/infrastructure/kafka"
	"HNPulse/internal/infrastructure/scheduler"
	"HNPulse/internal/infrastructure/storage"
	"HNPulse/internal/keywords"
	"HNPulse/internal/logging"
	"HNPulse/internal/ports"
	"HNPulse/internal/usecase"
)

// ErrMessagingDisabled is returned by queue commands when no broker is configured.
var ErrMessagingDisabled = errors.New("kafka bootstrap servers are not configured")

// Application wires configs to adapters and use cases.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	repo        *storage.SQLRepository
	cache       ports.Cache
	invalidator *cache.ViewInvalidator
	publisher   ports.Publisher
	ingestor    *usecase.Ingestor
}

// New opens the database (applying migrations), selects the cache backend and
// decides once whether a live publisher is available.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo, err := storage.Open(ctx, cfg.Database, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, err
	}

	var viewCache ports.Cache
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		viewCache = rc
	} else {
		baseLogger.Info("no redis url configured, using in-memory cache")
		viewCache = cache.NewMemoryCache()
	}

	var publisher ports.Publisher = kafka.Unavailable{}
	if cfg.Kafka.Enabled() {
		p, err := kafka.NewPublisher(cfg.Kafka, baseLogger)
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		publisher = p
	} else {
		baseLogger.Warn("kafka bootstrap servers are not configured, publishing disabled")
	}

	source := hackernews.NewClient(hackernews.Options{
		BaseURL:           cfg.Fetcher.BaseURL,
		Timeout:           cfg.Fetcher.Timeout,
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		Logger:            baseLogger.With("component", "hackernews"),
	})
	invalidator := cache.NewViewInvalidator(viewCache, baseLogger)

	ingestor := usecase.NewIngestor(usecase.IngestorDeps{
		Source:      source,
		Classifier:  keywords.Classifier{},
		Repository:  repo,
		Invalidator: invalidator,
		Logger:      baseLogger.With("component", "ingestor"),
		Workers:     cfg.Fetcher.Workers,
		TopLimit:    cfg.Fetcher.TopLimit,
	})

	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		repo:        repo,
		cache:       viewCache,
		invalidator: invalidator,
		publisher:   publisher,
		ingestor:    ingestor,
	}, nil
}

// InitReport describes what Initialize did.
type InitReport struct {
	PatternDelete bool
	CacheErr      error
	Triggered     bool
}

// Initialize clears cached read views and, when a publisher is available,
// enqueues an initial fetch.
func (a *Application) Initialize(ctx context.Context) InitReport {
	report := InitReport{PatternDelete: cache.SupportsPatterns(a.cache)}

	if err := a.invalidator.Invalidate(ctx); err != nil {
		a.logger.Error("startup cache clear", "error", err)
		report.CacheErr = err
	}

	if !a.publisher.Available() {
		a.logger.Warn("kafka publisher not available, initial fetch not scheduled")
		return report
	}
	report.Triggered = a.scheduler(nil).Trigger(ctx)
	if !report.Triggered {
		a.logger.Warn("failed to schedule initial fetch")
	}
	return report
}

// RunOnce performs a direct ingestion run.
func (a *Application) RunOnce(ctx context.Context) domain.RunResult {
	return a.ingestor.Run(ctx, domain.Trigger{Source: domain.SourceDirect})
}

// Trigger publishes a single fetch trigger.
func (a *Application) Trigger(ctx context.Context) bool {
	return a.scheduler(nil).Trigger(ctx)
}

// Schedule publishes a trigger every interval until ctx is done.
func (a *Application) Schedule(ctx context.Context, every time.Duration) error {
	if !a.publisher.Available() {
		return ErrMessagingDisabled
	}
	if every <= 0 {
		every = a.cfg.Scheduler.Interval
	}

	s := a.scheduler(scheduler.NewTickerDriver(every))
	if err := s.StartPeriodic(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("periodic trigger started", "every", every, "topic", a.cfg.Kafka.Topic())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Stop(stopCtx)
}

// Consume runs the trigger consumer until ctx is done or a fatal error.
func (a *Application) Consume(ctx context.Context, onResult func(domain.RunResult)) error {
	if !a.cfg.Kafka.Enabled() {
		return ErrMessagingDisabled
	}

	consumer := usecase.NewConsumer(usecase.ConsumerDeps{
		Connect: func(context.Context) (ports.TriggerReader, error) {
			return kafka.NewReader(a.cfg.Kafka, a.logger)
		},
		Ingestor: a.ingestor,
		Backoff:  a.cfg.Kafka.Backoff,
		Logger:   a.logger.With("component", "consumer", "topic", a.cfg.Kafka.Topic(), "group", a.cfg.Kafka.GroupID()),
		OnResult: onResult,
	})
	return consumer.Run(ctx)
}

// SchemaVersion reports the applied migration version.
func (a *Application) SchemaVersion(ctx context.Context) (int, error) {
	return a.repo.SchemaVersion(ctx)
}

// Close flushes the publisher and releases connections.
func (a *Application) Close() error {
	var errs []error
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if c, ok := a.cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := a.repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

func (a *Application) scheduler(driver ports.Scheduler) *usecase.Scheduler {
	return usecase.NewScheduler(a.publisher, driver, a.logger.With("component", "scheduler"))
}
