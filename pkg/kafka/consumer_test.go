package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages and then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    int
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.queue) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

type fakeDLQ struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (d *fakeDLQ) Publish(_ context.Context, msg kafka.Message, _ error, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	return nil
}

func eventMessage(t *testing.T, offset int64, eventType string) kafka.Message {
	t.Helper()
	event, err := NewEvent(eventType, "p-1", "product", "inventory", map[string]int{"available": 1})
	require.NoError(t, err)
	raw, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: "angie.inventory.stock_changed", Offset: offset, Value: raw}
}

func runConsumer(t *testing.T, c *Consumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_CommitsHandledMessages(t *testing.T) {
	r := newFakeReader(eventMessage(t, 1, "inventory.stock_changed"), eventMessage(t, 2, "inventory.stock_changed"))
	var handled []string
	c := NewConsumerWithReader(r, "angie.inventory.stock_changed", "storefront", func(_ context.Context, e *Event) error {
		handled = append(handled, e.EventType)
		return nil
	}, discardLogger())

	runConsumer(t, c, r)

	assert.Len(t, handled, 2)
	assert.Equal(t, []int64{1, 2}, r.committed)
	assert.Equal(t, 1, r.closed)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	r := newFakeReader(eventMessage(t, 7, "inventory.stock_changed"))
	dlq := &fakeDLQ{}
	attempts := 0
	c := NewConsumerWithReader(r, "angie.inventory.stock_changed", "storefront", func(context.Context, *Event) error {
		attempts++
		return errors.New("redis down")
	}, discardLogger()).WithDLQ(dlq)
	c.backoff = time.Millisecond

	runConsumer(t, c, r)

	assert.Equal(t, maxHandlerRetries, attempts)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, int64(7), dlq.msgs[0].Offset)
	assert.Equal(t, []int64{7}, r.committed)
}

func TestConsumer_SkipIsNotRetried(t *testing.T) {
	r := newFakeReader(eventMessage(t, 3, "inventory.other"))
	attempts := 0
	c := NewConsumerWithReader(r, "t", "g", func(context.Context, *Event) error {
		attempts++
		return ErrSkip
	}, discardLogger())

	runConsumer(t, c, r)

	assert.Equal(t, 1, attempts)
	assert.Equal(t, []int64{3}, r.committed)
}

func TestConsumer_PoisonMessageDeadLettered(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "t", Offset: 9, Value: []byte("not json")})
	dlq := &fakeDLQ{}
	c := NewConsumerWithReader(r, "t", "g", func(context.Context, *Event) error {
		t.Fatal("handler must not run for undecodable messages")
		return nil
	}, discardLogger()).WithDLQ(dlq)

	runConsumer(t, c, r)

	assert.Len(t, dlq.msgs, 1)
	assert.Equal(t, []int64{9}, r.committed)
}
