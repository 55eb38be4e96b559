package model

import (
	"time"
)

// Profile represents a user profile document in MongoDB. Only the fields
// the messaging core reads are modelled here; the rest of the profile
// (skills, plans, bio) belongs to the main application service.
type Profile struct {
	ID        string     `json:"id" bson:"_id"`
	FullName  string     `json:"fullName" bson:"full_name"`
	AvatarURL string     `json:"avatarUrl" bson:"avatar_url"`
	LastSeen  *time.Time `json:"lastSeen" bson:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt *time.Time `json:"updatedAt" bson:"updated_at,omitempty"`
}

// ProfileSnippet is the slice of a profile that travels with presence
// announcements.
type ProfileSnippet struct {
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}
