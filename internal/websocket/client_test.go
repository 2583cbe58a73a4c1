package websocket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPushQueuesPayload(t *testing.T) {
	client := NewClient(nil, nil, nil, uuid.New(), "alice")

	assert.NoError(t, client.Push([]byte("hello")))
	assert.Equal(t, []byte("hello"), <-client.Send)
}

func TestPushFailsAfterQuit(t *testing.T) {
	client := NewClient(nil, nil, nil, uuid.New(), "alice")
	close(client.quit)

	// Fill the buffer so the quit branch is the one that fires.
	for i := 0; i < sendBufferSize; i++ {
		client.Send <- []byte("fill")
	}
	assert.Error(t, client.Push([]byte("late")))
}

func TestPushFailsWhenBufferStaysFull(t *testing.T) {
	client := NewClient(nil, nil, nil, uuid.New(), "alice")

	for i := 0; i < sendBufferSize; i++ {
		assert.NoError(t, client.Push([]byte("fill")))
	}
	// No reader is draining the channel, so this push times out.
	assert.Error(t, client.Push([]byte("overflow")))
}
