package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageStatusOrdering(t *testing.T) {
	assert.True(t, StatusSending < StatusSent)
	assert.True(t, StatusSent < StatusDelivered)
	assert.True(t, StatusDelivered < StatusRead)
}

func TestMessageStatusString(t *testing.T) {
	assert.Equal(t, "sending", StatusSending.String())
	assert.Equal(t, "sent", StatusSent.String())
	assert.Equal(t, "delivered", StatusDelivered.String())
	assert.Equal(t, "read", StatusRead.String())
	assert.Equal(t, "unknown", MessageStatus(0).String())
}

func TestMessageBetween(t *testing.T) {
	m := Message{SenderID: "alice", ReceiverID: "bob"}

	assert.True(t, m.Between("alice", "bob"))
	assert.True(t, m.Between("bob", "alice"))
	assert.False(t, m.Between("alice", "carol"))
	assert.False(t, m.Between("carol", "dave"))
}

func TestConversationIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, ConversationID("alice", "bob"), ConversationID("bob", "alice"))
	assert.Equal(t, "alice:bob", ConversationID("bob", "alice"))
}
