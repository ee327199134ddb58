package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"HNPulse/internal/domain"
	"HNPulse/internal/ports"
)

const (
	// DefaultBaseURL is the public Hacker News Firebase API.
	DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"
	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 15 * time.Second
	// DefaultTopLimit is how many ranked ids a run considers.
	DefaultTopLimit = 50
)

// Client implements ports.StorySource against the Hacker News API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ports.StorySource = (*Client)(nil)

// Options tune the client; zero values fall back to defaults.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// NewClient builds a client with a fixed per-call timeout and no retries.
func NewClient(opts Options) *Client {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{baseURL: base, http: httpClient, limiter: limiter, logger: logger}
}

// item mirrors the per-item endpoint payload.
type item struct {
	Title       *string `json:"title"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	By          string  `json:"by"`
	Time        int64   `json:"time"`
}

// ListTop returns at most limit ranked ids; any failure yields an empty slice.
func (c *Client) ListTop(ctx context.Context, limit int) []int64 {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	var ids []int64
	if err := c.getJSON(ctx, "/topstories.json", &ids); err != nil {
		c.logger.Error("fetch top stories", "error", err)
		return []int64{}
	}

	c.logger.Info("fetched top story ids", "count", len(ids))
	if len(ids) > limit {
		ids = ids[:limit]
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids
}

// GetDetails fetches and normalizes one item. It reports false when the call
// fails or the item has no title.
func (c *Client) GetDetails(ctx context.Context, id int64) (domain.StoryDetails, bool) {
	var raw *item
	if err := c.getJSON(ctx, fmt.Sprintf("/item/%d.json", id), &raw); err != nil {
		c.logger.Error("fetch story", "story_id", id, "error", err)
		return domain.StoryDetails{}, false
	}
	if raw == nil || raw.Title == nil {
		return domain.StoryDetails{}, false
	}

	return normalize(id, *raw), true
}

// normalize keys the record on the requested id, whatever the body says.
func normalize(id int64, raw item) domain.StoryDetails {
	details := domain.StoryDetails{
		ID:            id,
		Title:         *raw.Title,
		URL:           raw.URL,
		Score:         raw.Score,
		CommentsCount: raw.Descendants,
		Author:        raw.By,
		PublishedAt:   time.Unix(raw.Time, 0).UTC(),
	}
	if raw.URL != "" {
		details.Domain = hostOf(raw.URL)
	}
	return details
}

// hostOf returns the network location of rawURL, or nil when it has none.
func hostOf(rawURL string) *string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	host := parsed.Host
	return &host
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "HNPulse/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
