package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.err = nil
		m.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(m.msgs) > 0 {
		msg := m.msgs[0]
		m.msgs = m.msgs[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockReader) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func encoded(t *testing.T, e Event) kafka.Message {
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(e.AggregateID), Value: raw}
}

func TestConsumer_DeliversDecodedEvents(t *testing.T) {
	confirmed := New(TypeOrderConfirmed, "d1", "dev1", map[string]any{"order_id": "o1"})
	reader := &mockReader{msgs: []kafka.Message{
		{Value: []byte("not json")},
		{Value: []byte(`{"id":"x"}`)},
		encoded(t, confirmed),
	}}

	var mu sync.Mutex
	var got []Event
	c := newConsumer(reader, func(_ context.Context, e Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return errors.New("handler errors are logged")
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, confirmed.ID, got[0].ID)
	assert.Equal(t, TypeOrderConfirmed, got[0].Type)
	assert.Equal(t, "dev1", got[0].SessionID)

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestConsumer_ReadErrorIsReturned(t *testing.T) {
	reader := &mockReader{err: errors.New("broker unavailable")}
	c := newConsumer(reader, func(context.Context, Event) error { return nil }, nil)

	assert.Error(t, c.consumeOne(context.Background()))
}
