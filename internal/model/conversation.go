package model

import (
	"sort"
	"strings"
)

// A conversation is not persisted as its own document: it is the derived,
// unordered pair of two participant ids. Its message list is the union of
// rows where either ordering of sender/receiver matches the pair.

// ConversationID returns the deterministic identity of the pair (a, b).
// Both peers compute the same value because the ids are sorted before
// joining, so it also serves as the typing channel name suffix.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// ConversationSummary is the inbox row for one peer: a preview of the
// latest exchange plus the unread incoming count.
type ConversationSummary struct {
	PeerID      string   `json:"peerId"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int64    `json:"unreadCount"`
}
