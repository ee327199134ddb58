package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"HNPulse/internal/ports"
)

// Read view keys served by the query API.
const (
	KeyStoriesList       = "stories_list"
	KeyAIKeywords        = "ai_keywords"
	KeyTopDomains        = "top_domains"
	PatternStoriesList   = "stories_list_*"
	PatternStory         = "story_*"
	PatternTopDomainsLim = "top_domains_limit_*"
)

var (
	exactKeys = []string{KeyStoriesList, KeyAIKeywords, KeyTopDomains}
	patterns  = []string{PatternStoriesList, PatternStory, PatternTopDomainsLim}
)

// ViewInvalidator drops every read view after a committed batch.
type ViewInvalidator struct {
	cache  ports.Cache
	logger *slog.Logger
}

var _ ports.ViewInvalidator = (*ViewInvalidator)(nil)

func NewViewInvalidator(cache ports.Cache, logger *slog.Logger) *ViewInvalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewInvalidator{cache: cache, logger: logger.With("component", "cache")}
}

// Invalidate deletes the fixed view keys, plus the parameterised ones when
// the backend can delete by pattern. Errors are joined, not short-circuited.
func (v *ViewInvalidator) Invalidate(ctx context.Context) error {
	var errs []error
	if err := v.cache.Delete(ctx, exactKeys...); err != nil {
		errs = append(errs, err)
	}

	deleter, ok := v.cache.(ports.PatternDeleter)
	if !ok {
		v.logger.Warn("cache has no pattern delete, parameterised views left to expire",
			"deleted", exactKeys)
		return errors.Join(errs...)
	}

	for _, pattern := range patterns {
		if err := deleter.DeletePattern(ctx, pattern); err != nil {
			errs = append(errs, fmt.Errorf("delete pattern %s: %w", pattern, err))
		}
	}
	if len(errs) == 0 {
		v.logger.Info("cache invalidated")
	}
	return errors.Join(errs...)
}

// SupportsPatterns reports whether the backend can delete by glob.
func SupportsPatterns(c ports.Cache) bool {
	_, ok := c.(ports.PatternDeleter)
	return ok
}
