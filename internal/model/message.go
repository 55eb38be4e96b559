package model

import (
	"time"
)

// MessageStatus is the delivery state of a direct message. Values are
// ordered so a transition is valid only when it moves forward.
type MessageStatus int

const (
	StatusSending   MessageStatus = 1
	StatusSent      MessageStatus = 2
	StatusDelivered MessageStatus = 3
	StatusRead      MessageStatus = 4
)

func (s MessageStatus) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

// Message represents a direct message document in MongoDB. A message is
// immutable once persisted except for the read/status/deleted_for_all
// transitions.
type Message struct {
	ID            string        `json:"id" bson:"_id"`
	CreatedAt     time.Time     `json:"createdAt" bson:"created_at"`
	SenderID      string        `json:"senderId" bson:"sender_id"`
	ReceiverID    string        `json:"receiverId" bson:"receiver_id"`
	Content       string        `json:"content" bson:"content"`
	Read          bool          `json:"read" bson:"read"`
	Status        MessageStatus `json:"status" bson:"status"`
	ReplyToID     *string       `json:"replyTo,omitempty" bson:"reply_to,omitempty"`
	DeletedForAll bool          `json:"deletedForAll" bson:"deleted_for_all"`
}

// Between reports whether the message belongs to the conversation formed
// by the unordered pair (a, b).
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

// ErrorPayload represents an error response sent to a client via WebSocket
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
