package kafka

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HNPulse/internal/config"
	"HNPulse/internal/ports"
)

type stubFetcher struct {
	messages  []kafkago.Message
	err       error
	committed []kafkago.Message
	closed    int
}

func (s *stubFetcher) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if s.err != nil {
		return kafkago.Message{}, s.err
	}
	if len(s.messages) == 0 {
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	m := s.messages[0]
	s.messages = s.messages[1:]
	return m, nil
}

func (s *stubFetcher) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	s.committed = append(s.committed, msgs...)
	return nil
}

func (s *stubFetcher) Close() error {
	s.closed++
	return nil
}

func TestReaderFetchAndCommit(t *testing.T) {
	t.Parallel()

	stub := &stubFetcher{messages: []kafkago.Message{{
		Topic: "fetch_stories", Partition: 2, Offset: 17,
		Key: []byte("fetch_trigger"), Value: []byte(`{"task_type":"fetch_top_stories"}`),
		Headers: []kafkago.Header{{Key: "trigger-id", Value: []byte("abc")}},
	}}}
	r := newReader(stub, 50*time.Millisecond)

	d, err := r.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fetch_trigger", string(d.Key))
	assert.Equal(t, int64(17), d.Offset)
	assert.Equal(t, "abc", d.Headers["trigger-id"])

	require.NoError(t, r.Commit(context.Background(), d))
	require.Len(t, stub.committed, 1)
	assert.Equal(t, int64(17), stub.committed[0].Offset)

	_, err = r.Fetch(context.Background())
	assert.ErrorIs(t, err, ports.ErrNoMessage)
}

func TestReaderCommitRejectsForeignDelivery(t *testing.T) {
	t.Parallel()

	r := newReader(&stubFetcher{}, time.Millisecond)
	assert.Error(t, r.Commit(context.Background(), ports.Delivery{Offset: 1}))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	bg := context.Background()
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"poll timeout", context.DeadlineExceeded, ports.ErrNoMessage},
		{"closed reader", io.EOF, ports.ErrFatal},
		{"auth failure", kafkago.SASLAuthenticationFailed, ports.ErrFatal},
		{"wrapped auth failure", fmt.Errorf("join group: %w", kafkago.TopicAuthorizationFailed), ports.ErrFatal},
		{"leader moved", kafkago.NotLeaderForPartition, ports.ErrTransient},
		{"network", errors.New("dial tcp: connection refused"), ports.ErrTransient},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, classify(bg, tc.err), tc.want)
		})
	}
}

func TestClassifyKeepsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, classify(ctx, context.Canceled), context.Canceled)
}

func TestUnavailablePublisher(t *testing.T) {
	t.Parallel()

	var p ports.Publisher = Unavailable{}
	assert.False(t, p.Available())
	assert.ErrorIs(t, p.Publish(context.Background(), ports.Message{Key: "fetch_trigger"}), ports.ErrPublisherUnavailable)
	assert.NoError(t, p.Close())
}

func TestToKafkaMessage(t *testing.T) {
	t.Parallel()

	m := toKafkaMessage(ports.Message{Key: "fetch_trigger", Value: []byte("{}"), Headers: map[string]string{"trigger-id": "x"}})
	assert.Equal(t, []byte("fetch_trigger"), m.Key)
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "trigger-id", m.Headers[0].Key)
	assert.Equal(t, []byte("x"), m.Headers[0].Value)
}

func TestCompletionLogsOutcome(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := &Publisher{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	p.onCompletion([]kafkago.Message{{Key: []byte("fetch_trigger"), Offset: 3}}, nil)
	p.onCompletion([]kafkago.Message{{Key: []byte("fetch_trigger")}}, errors.New("broker down"))

	out := buf.String()
	assert.Contains(t, out, "message delivered")
	assert.Contains(t, out, "message delivery failed")
	assert.Contains(t, out, "broker down")
}

func TestMechanismSelection(t *testing.T) {
	t.Parallel()

	mech, err := mechanism(config.KafkaConfig{SecurityProtocol: "PLAINTEXT"})
	require.NoError(t, err)
	assert.Nil(t, mech)

	mech, err = mechanism(config.KafkaConfig{SecurityProtocol: "SASL_SSL", SASLUsername: "u", SASLPassword: "p"})
	require.NoError(t, err)
	assert.Equal(t, plain.Mechanism{Username: "u", Password: "p"}, mech)

	mech, err = mechanism(config.KafkaConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "SCRAM-SHA-512", SASLUsername: "u", SASLPassword: "p"})
	require.NoError(t, err)
	assert.Equal(t, "SCRAM-SHA-512", mech.Name())

	_, err = mechanism(config.KafkaConfig{SecurityProtocol: "SASL_PLAINTEXT", SASLMechanism: "GSSAPI"})
	assert.Error(t, err)

	assert.NotNil(t, tlsConfig(config.KafkaConfig{SecurityProtocol: "SSL"}))
	assert.Nil(t, tlsConfig(config.KafkaConfig{SecurityProtocol: "SASL_PLAINTEXT"}))
}

func TestNewPublisherDoesNotDial(t *testing.T) {
	t.Parallel()

	p, err := NewPublisher(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}, TopicPrefix: "test_"}, nil)
	require.NoError(t, err)
	assert.True(t, p.Available())
	assert.Equal(t, "test_fetch_stories", p.writer.Topic)
	assert.True(t, p.writer.Async)
	assert.NoError(t, p.Close())
}
