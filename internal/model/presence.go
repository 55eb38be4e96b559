package model

import (
	"time"
)

// PresenceRecord is the ephemeral liveness announcement a client writes
// into the shared presence channel. It exists only while the owning
// session is attached and is never persisted; the durable trace is the
// profile's last_seen column, written on release.
type PresenceRecord struct {
	UserID    string    `json:"userId"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatarUrl"`
	OnlineAt  time.Time `json:"onlineAt"`
}

// PeerStatus is the composed online/last-seen view of a conversation peer.
type PeerStatus struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
