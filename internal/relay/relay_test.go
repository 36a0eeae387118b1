package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/notify"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu       sync.Mutex
	events   []Event
	started  chan struct{}
	gate     chan struct{}
	fail     error
	closeErr error
	closed   bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, ev Event) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func event(rowid int64) Event {
	return NewEvent("conn-1", notify.RowChange{RowID: rowid, Kind: notify.Insert, Table: "people", Database: "main"},
		time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
}

func TestRelay_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	r := New(Options{Logger: quietLogger()}, sink)

	for i := int64(1); i <= 3; i++ {
		require.True(t, r.Offer(event(i)))
	}
	require.NoError(t, r.Close())

	got := sink.Events()
	require.Len(t, got, 3)
	for i, ev := range got {
		assert.Equal(t, int64(i+1), ev.RowID)
	}
	assert.True(t, sink.closed)
	assert.Equal(t, Stats{Delivered: 3}, r.Stats())
}

func TestRelay_FanOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	r := New(Options{Logger: quietLogger()}, a, b)
	r.Offer(event(7))
	require.NoError(t, r.Close())

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, int64(2), r.Stats().Delivered)
}

func TestRelay_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{started: make(chan struct{}, 4), gate: make(chan struct{})}
	r := New(Options{Buffer: 1, Logger: quietLogger()}, sink)

	require.True(t, r.Offer(event(1)))
	<-sink.started // the worker holds event 1

	assert.True(t, r.Offer(event(2)), "fills the buffer")
	assert.False(t, r.Offer(event(3)), "buffer full")

	close(sink.gate)
	require.NoError(t, r.Close())

	assert.Len(t, sink.Events(), 2)
	assert.Equal(t, int64(1), r.Stats().Dropped)
}

func TestRelay_OfferAfterClose(t *testing.T) {
	r := New(Options{Logger: quietLogger()})
	require.NoError(t, r.Close())

	assert.False(t, r.Offer(event(1)))
	assert.Equal(t, int64(1), r.Stats().Dropped)
	assert.ErrorIs(t, r.Close(), ErrClosed)
}

func TestRelay_PublishFailureCounted(t *testing.T) {
	bad := &recordingSink{fail: errors.New("broker down")}
	good := &recordingSink{}
	r := New(Options{Logger: quietLogger()}, bad, good)
	r.Offer(event(1))
	require.NoError(t, r.Close())

	assert.Equal(t, Stats{Delivered: 1, Failed: 1}, r.Stats())
	assert.Len(t, good.Events(), 1)
}

func TestRelay_CloseAggregatesSinkErrors(t *testing.T) {
	a := &recordingSink{closeErr: errors.New("a failed")}
	b := &recordingSink{closeErr: errors.New("b failed")}
	r := New(Options{Logger: quietLogger()}, a, b)

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestRelay_RateLimited(t *testing.T) {
	sink := &recordingSink{}
	r := New(Options{Rate: 200, Burst: 1, Logger: quietLogger()}, sink)

	start := time.Now()
	for i := int64(1); i <= 5; i++ {
		r.Offer(event(i))
	}
	require.NoError(t, r.Close())

	assert.Len(t, sink.Events(), 5)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestEvent_Encode(t *testing.T) {
	data, err := event(42).Encode()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "insert", got["kind"])
	assert.Equal(t, float64(42), got["rowid"])
	assert.Equal(t, "people", got["table"])
	assert.Equal(t, "2024-01-02T03:04:05Z", got["at"])
}

func TestEvent_OmitsEmptyNames(t *testing.T) {
	ev := NewEvent("c", notify.RowChange{RowID: 1, Kind: notify.Delete}, time.Unix(0, 0))
	data, err := ev.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "table")
	assert.NotContains(t, string(data), "database")
}

type fakePublisher struct {
	channel string
	message any
	err     error
	closed  bool
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.message = message
	return redis.NewIntResult(1, p.err)
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestRedisSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewRedisSink(pub, "changes")
	assert.Equal(t, "redis:changes", sink.Name())

	require.NoError(t, sink.Publish(context.Background(), event(5)))
	assert.Equal(t, "changes", pub.channel)

	data, ok := pub.message.([]byte)
	require.True(t, ok)
	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(5), got.RowID)

	pub.err = errors.New("no route")
	err := sink.Publish(context.Background(), event(6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "changes")

	require.NoError(t, sink.Close())
	assert.True(t, pub.closed)
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w, "rows")
	require.NoError(t, sink.Publish(context.Background(), event(9)))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("people"), msg.Key)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("insert"), msg.Headers[0].Value)
	assert.Contains(t, string(msg.Value), `"rowid":9`)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaWriter(t *testing.T) {
	_, err := NewKafkaWriter(KafkaConfig{Topic: "rows"})
	require.Error(t, err)
	_, err = NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)

	w, err := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "rows"})
	require.NoError(t, err)
	assert.Equal(t, "rows", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

func TestDialRedis_Validation(t *testing.T) {
	_, err := DialRedis(context.Background(), RedisConfig{Channel: "c"})
	require.Error(t, err)
	_, err = DialRedis(context.Background(), RedisConfig{Addr: "localhost:6379"})
	require.Error(t, err)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(quietLogger(), slog.LevelInfo)
	assert.Equal(t, "log", sink.Name())
	require.NoError(t, sink.Publish(context.Background(), event(1)))
	require.NoError(t, sink.Close())
}
