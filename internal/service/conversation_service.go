package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/db"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/presence"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/repo"
)

// ConversationService backs the REST surface: history pages, inbox
// summaries, and peer status for users who are not currently holding a
// websocket session.
type ConversationService interface {
	History(ctx context.Context, selfID, peerID string, page int64) (*db.PaginatedResult[model.Message], error)
	Summary(ctx context.Context, selfID, peerID string) (*model.ConversationSummary, error)
	PeerStatus(ctx context.Context, userID string) (model.PeerStatus, error)
	OnlineUsers(excludeUserID string) []model.PresenceRecord
}

type conversationService struct {
	messages repo.MessageRepository
	profiles repo.ProfileRepository
	presence *presence.Service
	logger   *zap.Logger
}

func NewConversationService(messages repo.MessageRepository, profiles repo.ProfileRepository, pres *presence.Service, logger *zap.Logger) ConversationService {
	return &conversationService{
		messages: messages,
		profiles: profiles,
		presence: pres,
		logger:   logger,
	}
}

func (s *conversationService) History(ctx context.Context, selfID, peerID string, page int64) (*db.PaginatedResult[model.Message], error) {
	return s.messages.HistoryPage(ctx, selfID, peerID, page)
}

func (s *conversationService) Summary(ctx context.Context, selfID, peerID string) (*model.ConversationSummary, error) {
	last, err := s.messages.LastBetween(ctx, selfID, peerID)
	if err != nil {
		return nil, err
	}

	unread, err := s.messages.UnreadCount(ctx, selfID, peerID)
	if err != nil {
		return nil, err
	}

	return &model.ConversationSummary{
		PeerID:      peerID,
		LastMessage: last,
		UnreadCount: unread,
	}, nil
}

// PeerStatus resolves online state from the shared presence channel and
// falls back to the durable last_seen column for detached users.
func (s *conversationService) PeerStatus(ctx context.Context, userID string) (model.PeerStatus, error) {
	for _, rec := range s.presence.Online() {
		if rec.UserID == userID {
			return model.PeerStatus{UserID: userID, Online: true}, nil
		}
	}

	lastSeen, err := s.profiles.LastSeen(ctx, userID)
	if err != nil {
		return model.PeerStatus{UserID: userID}, err
	}
	return model.PeerStatus{UserID: userID, LastSeen: lastSeen}, nil
}

// OnlineUsers lists everyone currently attached, minus the requester.
func (s *conversationService) OnlineUsers(excludeUserID string) []model.PresenceRecord {
	return Filter(s.presence.Online(), func(rec model.PresenceRecord) bool {
		return rec.UserID != excludeUserID
	})
}
