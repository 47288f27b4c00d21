package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage("checkin.flagged", payload{ID: "rec-1", Score: 70})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"rec-1","score":70}`, string(msg.Body))

	var got payload
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, payload{ID: "rec-1", Score: 70}, got)

	bad := Message{Type: "x", Body: []byte("{")}
	assert.ErrorContains(t, bad.Decode(&got), "decode x message")
}

func TestInMemoryDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	for _, id := range []string{"a", "b", "c"} {
		msg, _ := NewMessage("t", payload{ID: id})
		require.NoError(t, q.Publish(ctx, msg))
	}
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	for _, want := range []string{"a", "b", "c"} {
		var p payload
		require.NoError(t, (<-msgs).Decode(&p))
		assert.Equal(t, want, p.ID)
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "t"}), context.DeadlineExceeded)
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed")
	}
}
