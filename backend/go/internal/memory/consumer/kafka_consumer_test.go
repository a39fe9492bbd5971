package consumer

import (
	"ai_mem/backend/go/internal/models"
	"ai_mem/backend/go/pkg/logger"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs       chan kafka.Message
	fetchErrs  chan error
	commitErrs chan error

	mu        sync.Mutex
	attempts  int
	committed []kafka.Message
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs)), fetchErrs: make(chan error, 4), commitErrs: make(chan error, 4)}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case err := <-r.fetchErrs:
		return kafka.Message{}, err
	default:
	}
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	select {
	case err := <-r.commitErrs:
		return err
	default:
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) commitAttempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeService struct {
	mu   sync.Mutex
	reqs []*models.MemoryCreationRequest
	// onAdd runs inside Add, before it returns.
	onAdd func()
}

func (s *fakeService) Add(_ context.Context, req *models.MemoryCreationRequest) *models.PipelineResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.onAdd != nil {
		s.onAdd()
	}
	return &models.PipelineResult{Success: true, Message: "Created 1 memories", FactsCount: 1, CreatedCount: 1,
		Created: []models.CreatedMemory{{ID: "id", Fact: "f"}}}
}

func (s *fakeService) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

type fakePublisher struct {
	mu    sync.Mutex
	users []string
}

func (p *fakePublisher) Publish(_ context.Context, userID string, _ *models.PipelineResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
	return nil
}

type memoryDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *memoryDedupe) Claim(_ context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memoryDedupe) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

func (d *memoryDedupe) has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[key]
}

func testLogger() *logger.Logger {
	base, _ := test.NewNullLogger()
	return logger.FromEntry(logrus.NewEntry(base))
}

func msg(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "memory.create", Partition: 0, Offset: offset, Value: []byte(value)}
}

func runUntil(t *testing.T, c *KafkaConsumer, r *fakeReader, commits int) {
	t.Helper()
	runUntilCond(t, c, func() bool { return r.commits() >= commits })
}

func runUntilCond(t *testing.T, c *KafkaConsumer, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumerProcessesAndCommits(t *testing.T) {
	r := newFakeReader(
		msg(1, `{"user_id":"u-1","text":"I love tea"}`),
		msg(2, `{"user_id":"u-2","text":"I live in Paris","metadata":{"source":"chat"}}`),
	)
	svc := &fakeService{}
	pub := &fakePublisher{}
	c := NewKafkaConsumer(r, svc, testLogger(), WithPublisher(pub))

	runUntil(t, c, r, 2)

	require.Equal(t, 2, svc.calls())
	assert.Equal(t, "u-1", svc.reqs[0].UserID)
	assert.Equal(t, models.DefaultApp, svc.reqs[0].App)
	assert.Equal(t, "chat", svc.reqs[1].Metadata["source"])
	assert.Equal(t, []string{"u-1", "u-2"}, pub.users)
}

func TestConsumerCommitsPoisonMessages(t *testing.T) {
	r := newFakeReader(
		msg(1, `not json`),
		msg(2, `{"text":"no user"}`),
		msg(3, `{"user_id":"u","text":"ok"}`),
	)
	svc := &fakeService{}
	c := NewKafkaConsumer(r, svc, testLogger())

	runUntil(t, c, r, 3)

	assert.Equal(t, 1, svc.calls())
}

func TestConsumerSkipsDuplicates(t *testing.T) {
	r := newFakeReader(
		msg(7, `{"user_id":"u","text":"first"}`),
		msg(7, `{"user_id":"u","text":"first"}`),
	)
	svc := &fakeService{}
	c := NewKafkaConsumer(r, svc, testLogger(), WithDeduplicator(&memoryDedupe{seen: map[string]bool{}}))

	runUntil(t, c, r, 2)

	assert.Equal(t, 1, svc.calls())
}

func TestConsumerReprocessesRedeliveryAfterFailedCommit(t *testing.T) {
	m := msg(9, `{"user_id":"u","text":"I love tea"}`)
	dedupe := &memoryDedupe{seen: map[string]bool{}}
	svc := &fakeService{}

	first := newFakeReader(m)
	first.commitErrs <- errors.New("rebalance in progress")
	runUntilCond(t, NewKafkaConsumer(first, svc, testLogger(), WithDeduplicator(dedupe)),
		func() bool { return first.commitAttempts() >= 1 })
	assert.Equal(t, 0, first.commits())
	assert.False(t, dedupe.has(MessageKey(m)))

	redelivery := newFakeReader(m)
	runUntil(t, NewKafkaConsumer(redelivery, svc, testLogger(), WithDeduplicator(dedupe)), redelivery, 1)

	assert.Equal(t, 2, svc.calls())
	assert.True(t, dedupe.has(MessageKey(m)))
}

func TestConsumerLeavesInterruptedMessageUncommitted(t *testing.T) {
	m := msg(11, `{"user_id":"u","text":"I live in Paris"}`)
	dedupe := &memoryDedupe{seen: map[string]bool{}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := &fakeService{onAdd: cancel}
	r := newFakeReader(m)
	require.NoError(t, NewKafkaConsumer(r, svc, testLogger(), WithDeduplicator(dedupe)).Run(ctx))

	assert.Equal(t, 1, svc.calls())
	assert.Equal(t, 0, r.commitAttempts())
	assert.False(t, dedupe.has(MessageKey(m)))

	svc.onAdd = nil
	redelivery := newFakeReader(m)
	runUntil(t, NewKafkaConsumer(redelivery, svc, testLogger(), WithDeduplicator(dedupe)), redelivery, 1)
	assert.Equal(t, 2, svc.calls())
}

func TestConsumerKeepsClaimOfCommittedMessage(t *testing.T) {
	m := msg(12, `{"user_id":"u","text":"t"}`)
	dedupe := &memoryDedupe{seen: map[string]bool{}}
	r := newFakeReader(m)

	runUntil(t, NewKafkaConsumer(r, &fakeService{}, testLogger(), WithDeduplicator(dedupe)), r, 1)

	assert.True(t, dedupe.has(MessageKey(m)))
}

func TestConsumerProcessesWhenDedupeFails(t *testing.T) {
	r := newFakeReader(msg(1, `{"user_id":"u","text":"t"}`))
	svc := &fakeService{}
	c := NewKafkaConsumer(r, svc, testLogger(), WithDeduplicator(&memoryDedupe{err: errors.New("redis down")}))

	runUntil(t, c, r, 1)

	assert.Equal(t, 1, svc.calls())
}

func TestConsumerRetriesFetchErrors(t *testing.T) {
	r := newFakeReader(msg(1, `{"user_id":"u","text":"t"}`))
	r.fetchErrs <- errors.New("leader not available")
	svc := &fakeService{}
	c := NewKafkaConsumer(r, svc, testLogger(), WithRetryDelay(time.Millisecond))

	runUntil(t, c, r, 1)

	assert.Equal(t, 1, svc.calls())
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "memory.create/3/42", MessageKey(kafka.Message{Topic: "memory.create", Partition: 3, Offset: 42}))
}

type fakeRedis struct {
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisDeduplicator(t *testing.T) {
	rdb := &fakeRedis{keys: map[string]time.Duration{}}
	d := NewRedisDeduplicator(rdb, "ai_mem:kafka:", time.Hour)

	first, err := d.Claim(context.Background(), "memory.create/0/1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, time.Hour, rdb.keys["ai_mem:kafka:memory.create/0/1"])

	again, err := d.Claim(context.Background(), "memory.create/0/1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Release(context.Background(), "memory.create/0/1"))
	reclaimed, err := d.Claim(context.Background(), "memory.create/0/1")
	require.NoError(t, err)
	assert.True(t, reclaimed)

	rdb.err = errors.New("connection refused")
	_, err = d.Claim(context.Background(), "memory.create/0/2")
	assert.Error(t, err)
	assert.Error(t, d.Release(context.Background(), "memory.create/0/1"))
}
