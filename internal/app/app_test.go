package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HNPulse/internal/config"
	"HNPulse/internal/domain"
	"HNPulse/internal/infrastructure/storage"
)

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	return config.Config{
		Logging:  config.LoggingConfig{Level: "error"},
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, DSN: storage.SQLiteDSN(filepath.Join(t.TempDir(), "app.db"))},
		Fetcher: config.FetcherConfig{
			BaseURL: baseURL, Timeout: 2 * time.Second, TopLimit: 50, Workers: 4,
		},
		Kafka:     config.KafkaConfig{Brokers: []string{config.PlaceholderBrokers}, PollTimeout: time.Second, Backoff: time.Second},
		Scheduler: config.SchedulerConfig{Interval: time.Minute},
	}
}

func hnServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[1,2,3]`)
	})
	mux.HandleFunc("/item/1.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":1,"title":"Story about OpenAI","url":"https://openai.com/blog","score":5,"by":"a","time":1700000000}`)
	})
	mux.HandleFunc("/item/2.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":2,"title":"New LLM Framework Released","url":"https://github.com/x","score":7,"by":"b","time":1700000100}`)
	})
	mux.HandleFunc("/item/3.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRunOnceWithoutMessaging(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, hnServer(t).URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	result := a.RunOnce(ctx)

	require.Equal(t, domain.RunSuccess, result.Status, result.Reason)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.New)
	assert.Equal(t, 1, result.FailedFetches)

	version, err := a.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Positive(t, version)
}

func TestInitializeWithoutPublisher(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, hnServer(t).URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.cache.Set(ctx, "stories_list_page_2", []byte("stale"), 0))

	report := a.Initialize(ctx)

	assert.True(t, report.PatternDelete)
	assert.NoError(t, report.CacheErr)
	assert.False(t, report.Triggered)
	_, ok, err := a.cache.Get(ctx, "stories_list_page_2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueCommandsNeedBrokers(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, hnServer(t).URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.ErrorIs(t, a.Consume(ctx, nil), ErrMessagingDisabled)
	assert.ErrorIs(t, a.Schedule(ctx, time.Second), ErrMessagingDisabled)
	assert.False(t, a.Trigger(ctx))
}

func TestRedisCacheSelectedFromURL(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	require.NoError(t, server.Set("story_9", "cached"))

	cfg := testConfig(t, hnServer(t).URL)
	cfg.Cache.RedisURL = "redis://" + server.Addr()
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	result := a.RunOnce(ctx)

	require.True(t, result.Succeeded(), result.Reason)
	assert.False(t, server.Exists("story_9"))
}
