package liveevents

import (
	"testing"

	"github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	hub := NewHub()
	hub.Publish(1, Event{Type: EventMessagePosted})

	sub, backlog, err := hub.Subscribe(1)
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)
}

func TestSubscribeReceivesEventsAndBacklog(t *testing.T) {
	hub := NewHub()
	first, _, err := hub.Subscribe(42)
	require.NoError(t, err)
	defer first.Close()

	msg := &domain.ChatMessage{ID: 3, SessionID: 42, SenderRole: domain.SenderRoleCustomer, Content: "hi"}
	hub.Publish(42, Event{Type: EventMessagePosted, Message: msg})
	hub.Publish(7, Event{Type: EventMessagePosted})

	got := <-first.Events()
	assert.Equal(t, EventMessagePosted, got.Type)
	assert.Equal(t, int64(3), got.Message.ID)

	second, backlog, err := hub.Subscribe(42)
	require.NoError(t, err)
	defer second.Close()
	require.Len(t, backlog, 1)
	assert.Equal(t, msg, backlog[0].Message)
}

func TestCloseRemovesEmptyStream(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe(9)
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.NotContains(t, hub.streams, int64(9))
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe(5)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < DefaultSubscriberBuffer*2; i++ {
		hub.Publish(5, Event{Type: EventSessionUpdated})
	}
	assert.Len(t, sub.Events(), DefaultSubscriberBuffer)

	_, _, err = hub.Subscribe(0)
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	var nilHub *Hub
	_, _, err = nilHub.Subscribe(1)
	assert.ErrorIs(t, err, ErrHubUnavailable)
}
