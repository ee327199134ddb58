package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"HNPulse/internal/domain"
	"HNPulse/internal/ports"
)

const (
	defaultWorkers  = 10
	defaultTopLimit = 50
	fetchLogEvery   = 10
)

// IngestorDeps wires the driven adapters into the ingestion run.
type IngestorDeps struct {
	Source      ports.StorySource
	Classifier  ports.Classifier
	Repository  ports.StoryRepository
	Invalidator ports.ViewInvalidator
	Logger      *slog.Logger
	Workers     int
	TopLimit    int
}

// Ingestor fetches the current top stories, classifies them and persists the
// batch in a single transaction.
type Ingestor struct {
	source      ports.StorySource
	classifier  ports.Classifier
	repository  ports.StoryRepository
	invalidator ports.ViewInvalidator
	logger      *slog.Logger
	workers     int
	topLimit    int
	now         func() time.Time
}

var _ ports.Ingestor = (*Ingestor)(nil)

func NewIngestor(deps IngestorDeps) *Ingestor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	limit := deps.TopLimit
	if limit <= 0 {
		limit = defaultTopLimit
	}
	return &Ingestor{
		source:      deps.Source,
		classifier:  deps.Classifier,
		repository:  deps.Repository,
		invalidator: deps.Invalidator,
		logger:      logger,
		workers:     workers,
		topLimit:    limit,
		now:         time.Now,
	}
}

type fetchSlot struct {
	details domain.StoryDetails
	ok      bool
}

// Run executes one ingestion pass. It always returns a result; failures are
// reported through Status and Reason. A started run is not cancellable:
// cancellation of ctx is ignored, only its values are kept.
func (i *Ingestor) Run(ctx context.Context, trigger domain.Trigger) domain.RunResult {
	ctx = context.WithoutCancel(ctx)
	started := i.now()
	runID := trigger.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := i.logger.With("run_id", runID)
	if trigger.Source != "" {
		log = log.With("trigger", trigger.Source)
	}

	finish := func(r domain.RunResult) domain.RunResult {
		r.RunID = runID
		r.Duration = i.now().Sub(started)
		if r.Succeeded() {
			log.Info("ingestion finished", "processed", r.Processed, "new", r.New, "updated", r.Updated,
				"failed_fetches", r.FailedFetches, "keyword_mentions_created", r.MentionsCreated, "duration", r.Duration)
		} else {
			log.Error("ingestion failed", "reason", r.Reason, "failed_fetches", r.FailedFetches, "duration", r.Duration)
		}
		return r
	}

	ids := i.source.ListTop(ctx, i.topLimit)
	if len(ids) == 0 {
		return finish(domain.RunResult{Status: domain.RunFailure, Reason: "no ids retrieved"})
	}
	log.Info("fetching story details", "count", len(ids), "workers", i.workers)

	slots := i.fetchAll(ctx, log, ids)

	stories := make([]domain.ClassifiedStory, 0, len(slots))
	failed := 0
	for n, slot := range slots {
		if (n+1)%fetchLogEvery == 0 {
			log.Info("fetch progress", "done", n+1, "total", len(slots))
		}
		if !slot.ok {
			failed++
			continue
		}
		keywords := i.classifier.Classify(slot.details.Title)
		stories = append(stories, domain.ClassifiedStory{
			StoryDetails: slot.details,
			Keywords:     keywords,
			IsAIRelated:  len(keywords) > 0,
		})
	}
	if failed > 0 {
		log.Warn("some story fetches failed", "failed", failed, "total", len(ids))
	}

	stats, err := i.repository.SaveBatch(ctx, stories)
	if err != nil {
		return finish(domain.RunResult{
			Status:        domain.RunFailure,
			FailedFetches: failed,
			Reason:        fmt.Sprintf("database transaction failed: %v", err),
		})
	}

	if i.invalidator != nil {
		if err := i.invalidator.Invalidate(ctx); err != nil {
			log.Warn("cache invalidation failed", "error", err)
		}
	}

	return finish(domain.RunResult{
		Status:          domain.RunSuccess,
		Processed:       stats.Processed,
		New:             stats.New,
		Updated:         stats.Updated,
		FailedFetches:   failed,
		MentionsCreated: stats.MentionsCreated,
	})
}

// fetchAll fetches every id with bounded concurrency. Each worker writes only
// its own slot; a failed or panicking worker leaves its slot empty.
func (i *Ingestor) fetchAll(ctx context.Context, log *slog.Logger, ids []int64) []fetchSlot {
	slots := make([]fetchSlot, len(ids))

	var g errgroup.Group
	g.SetLimit(i.workers)
	for idx, id := range ids {
		idx, id := idx, id
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					log.Error("story fetch panicked", "story_id", id, "panic", p)
				}
			}()
			details, ok := i.source.GetDetails(ctx, id)
			slots[idx] = fetchSlot{details: details, ok: ok}
			return nil
		})
	}
	_ = g.Wait()
	return slots
}
