package ports

import (
	"context"
	"errors"
	"time"

	"HNPulse/internal/domain"
)

// Errors shared between trigger transports and the consumer loop.
var (
	ErrNoMessage            = errors.New("no message available")
	ErrTransient            = errors.New("transient broker error")
	ErrFatal                = errors.New("fatal broker error")
	ErrPublisherUnavailable = errors.New("publisher unavailable")
)

// StorySource is the external ranking API.
type StorySource interface {
	ListTop(ctx context.Context, limit int) []int64
	GetDetails(ctx context.Context, id int64) (domain.StoryDetails, bool)
}

// Classifier maps text to canonical keyword labels.
type Classifier interface {
	Classify(text string) []string
}

// StoryRepository persists a whole batch atomically.
type StoryRepository interface {
	SaveBatch(ctx context.Context, stories []domain.ClassifiedStory) (domain.BatchStats, error)
}

// ViewInvalidator drops cached read views after a successful batch.
type ViewInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Cache is the key-value store behind read views.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PatternDeleter is implemented by caches that can drop keys by glob pattern.
type PatternDeleter interface {
	DeletePattern(ctx context.Context, pattern string) error
}

// Message is a single keyed payload headed for the trigger topic.
type Message struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

// Publisher sends messages without waiting for delivery.
type Publisher interface {
	Available() bool
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Delivery is a received trigger message awaiting commit.
type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	handle    any
}

// NewDelivery attaches a transport-specific handle used for commits.
func NewDelivery(d Delivery, handle any) Delivery {
	d.handle = handle
	return d
}

// Handle returns the transport-specific handle.
func (d Delivery) Handle() any {
	return d.handle
}

// TriggerReader is a subscribed queue reader. Fetch returns ErrNoMessage,
// ErrTransient or ErrFatal (wrapped) for the consumer loop to act on.
type TriggerReader interface {
	Fetch(ctx context.Context) (Delivery, error)
	Commit(ctx context.Context, d Delivery) error
	Close() error
}

// Ingestor runs one ingestion pass.
type Ingestor interface {
	Run(ctx context.Context, trigger domain.Trigger) domain.RunResult
}

// Scheduler controls when periodic jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
