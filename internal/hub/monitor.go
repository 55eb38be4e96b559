package hub

import (
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	rooms := ms.getRoomStats()
	online := ms.hub.deps.Presence.Online()

	status := "healthy"
	if rooms.TotalConnections == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Rooms:       rooms,
		OnlineUsers: online,
		OnlineCount: len(online),
		Channels:    ms.hub.deps.Broker.ChannelCount(),
	}
}

// getRoomStats walks every shard and collects per-conversation counts.
func (ms *MonitorService) getRoomStats() model.RoomStats {
	stats := model.RoomStats{
		RoomDetails: make([]model.RoomInfo, 0),
	}

	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for conversationID, room := range bucket.rooms {
			users := make([]string, 0, len(room))
			for _, client := range room {
				users = append(users, client.userID)
			}

			stats.RoomDetails = append(stats.RoomDetails, model.RoomInfo{
				ConversationID: conversationID,
				Connections:    len(room),
				UserIDs:        users,
			})
			stats.TotalRooms++
			stats.TotalConnections += len(room)
		}
		bucket.RUnlock()
	}

	return stats
}
