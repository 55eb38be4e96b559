package event

import "encoding/json"

// Client → server events
const (
	EventMessageSend   = "message:send"
	EventMessageRead   = "message:read"
	EventMessageDelete = "message:delete"
	EventTypingStart   = "typing:start"
)

// Server → client events
const (
	// EventConversationState carries the full render-ready conversation
	// projection (timeline, typing flag, peer status). Sent after every
	// state change.
	EventConversationState = "conversation:state"

	// EventError carries a non-fatal failure the client may surface.
	EventError = "error"
)

// WsEvent is the wire envelope for every websocket frame.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendPayload is the body of message:send.
type SendPayload struct {
	Content string  `json:"content"`
	ReplyTo *string `json:"replyTo,omitempty"`
}

// ReadPayload is the body of message:read.
type ReadPayload struct {
	MessageIDs []string `json:"messageIds"`
}

// DeletePayload is the body of message:delete.
type DeletePayload struct {
	MessageID string `json:"messageId"`
}
