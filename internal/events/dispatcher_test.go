package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	gate   chan struct{}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, event Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(2)

	assert.True(t, d.Publish(New(TypeStockChanged, "p1", nil)))
	assert.True(t, d.Publish(New(TypeStockChanged, "p2", nil)))
	assert.False(t, d.Publish(New(TypeStockChanged, "p3", nil)))
	assert.Equal(t, 2, d.Pending())
}

func TestRunDeliversInOrderAndCloseDrains(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(16, sink)
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, d.Publish(New(TypeSaleCompleted, id, nil)))
	}

	go d.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	require.Equal(t, 3, sink.count())
	assert.Equal(t, "a", sink.events[0].EntityID)
	assert.Equal(t, "c", sink.events[2].EntityID)

	assert.False(t, d.Publish(New(TypeSaleCompleted, "late", nil)))
}

func TestFailingSinkDoesNotStopDelivery(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	healthy := &recordingSink{}
	d := NewDispatcher(4, failing, healthy)
	require.True(t, d.Publish(New(TypeSaleReturned, "s1", nil)))
	require.True(t, d.Publish(New(TypeSaleReturned, "s2", nil)))

	go d.Run(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, 2, failing.count())
	assert.Equal(t, 2, healthy.count())
}

func TestPublishDoesNotBlockOnSlowSink(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	d := NewDispatcher(1, sink)
	go d.Run(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Publish(New(TypeStockChanged, "p", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked behind a slow sink")
	}
	close(sink.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestEveryAcceptedEventIsDeliveredAcrossClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(1024, sink)
	go d.Run(context.Background())

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if d.Publish(New(TypeStockChanged, "p", nil)) {
					accepted.Add(1)
				}
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	wg.Wait()

	assert.Equal(t, int(accepted.Load()), sink.count())
	assert.False(t, d.Publish(New(TypeStockChanged, "late", nil)))
}

func TestPublishRejectedAfterRunContextEnds(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(4, sink)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(finished)
	}()
	cancel()
	<-finished

	assert.False(t, d.Publish(New(TypeSaleCompleted, "after", nil)))
	assert.Equal(t, 0, d.Pending())
}

type fakeRedis struct {
	channel string
	message any
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message = message
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestRedisSinkPublishesJSON(t *testing.T) {
	fake := &fakeRedis{}
	sink := &RedisSink{client: fake, channel: "kasirledger.events"}
	event := New(TypeCashSessionClosed, "cs-1", map[string]string{"currency": "USD"})

	require.NoError(t, sink.Deliver(context.Background(), event))
	assert.Equal(t, "kasirledger.events", fake.channel)

	var decoded Event
	require.NoError(t, json.Unmarshal(fake.message.([]byte), &decoded))
	assert.Equal(t, TypeCashSessionClosed, decoded.Type)
	assert.Equal(t, "cs-1", decoded.EntityID)
}
