package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string           `json:"status"` // "healthy", "idle"
	Rooms       RoomStats        `json:"rooms"`
	OnlineUsers []PresenceRecord `json:"onlineUsers"`
	OnlineCount int              `json:"onlineCount"`
	Channels    int              `json:"channels"` // live pub-sub channels
}

// RoomStats holds conversation-room statistics
type RoomStats struct {
	TotalRooms       int        `json:"totalRooms"`
	TotalConnections int        `json:"totalConnections"`
	RoomDetails      []RoomInfo `json:"roomDetails"`
}

// RoomInfo contains information about a single conversation room
type RoomInfo struct {
	ConversationID string   `json:"conversationId"`
	Connections    int      `json:"connections"`
	UserIDs        []string `json:"userIds"`
}
