// Package presence tracks who is online. One process-wide service owns
// the shared presence channel; every connected user attaches a session
// that announces its liveness and observes everyone else's.
package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/channel"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/repo"
)

// GlobalChannel is the single shared presence room. Every user session
// in the process attaches here; there is deliberately no per-conversation
// presence.
const GlobalChannel = "presence:online-users"

type Service struct {
	broker   *channel.Broker
	profiles repo.ProfileRepository
	logger   *zap.Logger
}

func NewService(broker *channel.Broker, profiles repo.ProfileRepository, logger *zap.Logger) *Service {
	return &Service{
		broker:   broker,
		profiles: profiles,
		logger:   logger,
	}
}

// Session is one user's attachment to the presence channel.
type Session struct {
	svc      *Service
	userID   string
	sub      *channel.Subscription
	onChange func()

	mu       sync.RWMutex
	online   map[string]model.PresenceRecord
	released bool
}

// Attach joins the shared channel, then announces the local user's
// presence. The announcement happens strictly after the subscription is
// live, so the session never misses its own join echo. onChange, if
// non-nil, fires after every change to the observed online set.
func (s *Service) Attach(userID string, snippet model.ProfileSnippet, onChange func()) (*Session, error) {
	sess := &Session{
		svc:      s,
		userID:   userID,
		onChange: onChange,
		online:   make(map[string]model.PresenceRecord),
	}

	ch := s.broker.Channel(GlobalChannel)
	sess.sub = ch.Subscribe(channel.Handlers{
		OnSync:  sess.resync,
		OnJoin:  sess.handleJoin,
		OnLeave: sess.handleLeave,
	})

	record := model.PresenceRecord{
		UserID:    userID,
		FullName:  snippet.FullName,
		AvatarURL: snippet.AvatarURL,
		OnlineAt:  time.Now().UTC(),
	}
	if err := sess.sub.Track(userID, record); err != nil {
		sess.sub.Unsubscribe()
		return nil, err
	}

	s.logger.Info("presence attached", zap.String("user_id", userID))
	return sess, nil
}

// Online returns the records of every currently attached user, read from
// the channel's replicated state. Usable without a session (monitoring,
// instructor directory).
func (s *Service) Online() []model.PresenceRecord {
	state := s.broker.Channel(GlobalChannel).PresenceState()

	records := make([]model.PresenceRecord, 0, len(state))
	for _, raw := range state {
		var rec model.PresenceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("skipping malformed presence record", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records
}

// OnlineCount reports the size of the online set.
func (s *Service) OnlineCount() int {
	return len(s.broker.Channel(GlobalChannel).PresenceState())
}

// resync rebuilds the full online mapping from the channel's
// authoritative state snapshot, excluding self. It must not touch
// sess.sub: the initial sync fires while Subscribe is still returning.
func (sess *Session) resync() {
	state := sess.svc.broker.Channel(GlobalChannel).PresenceState()

	next := make(map[string]model.PresenceRecord, len(state))
	for key, raw := range state {
		if key == sess.userID {
			continue
		}
		var rec model.PresenceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		next[rec.UserID] = rec
	}

	sess.mu.Lock()
	if sess.released {
		sess.mu.Unlock()
		return
	}
	sess.online = next
	sess.mu.Unlock()

	sess.notify()
}

func (sess *Session) handleJoin(key string, meta json.RawMessage) {
	if key == sess.userID {
		return
	}

	var rec model.PresenceRecord
	if err := json.Unmarshal(meta, &rec); err != nil {
		return
	}

	sess.mu.Lock()
	if sess.released {
		sess.mu.Unlock()
		return
	}
	sess.online[rec.UserID] = rec
	sess.mu.Unlock()

	sess.notify()
}

func (sess *Session) handleLeave(key string, _ json.RawMessage) {
	if key == sess.userID {
		return
	}

	sess.mu.Lock()
	if sess.released {
		sess.mu.Unlock()
		return
	}
	delete(sess.online, key)
	sess.mu.Unlock()

	sess.notify()
}

func (sess *Session) notify() {
	if sess.onChange != nil {
		sess.onChange()
	}
}

// IsOnline reports whether the given user currently has an attached
// session. Always false for the local user: self is excluded from the
// observed set by construction.
func (sess *Session) IsOnline(userID string) bool {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	_, ok := sess.online[userID]
	return ok
}

// Peers returns the observed online records, excluding self.
func (sess *Session) Peers() []model.PresenceRecord {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	out := make([]model.PresenceRecord, 0, len(sess.online))
	for _, rec := range sess.online {
		out = append(out, rec)
	}
	return out
}

// PeerStatus composes the online flag with the durable last_seen
// fallback for a user who is not currently attached.
func (sess *Session) PeerStatus(ctx context.Context, userID string) (model.PeerStatus, error) {
	if sess.IsOnline(userID) {
		return model.PeerStatus{UserID: userID, Online: true}, nil
	}

	lastSeen, err := sess.svc.profiles.LastSeen(ctx, userID)
	if err != nil {
		return model.PeerStatus{UserID: userID}, err
	}
	return model.PeerStatus{UserID: userID, Online: false, LastSeen: lastSeen}, nil
}

// Release leaves the presence channel and durably records last_seen.
// The write is best-effort: failure is logged, never surfaced, and a
// session killed without Release simply leaves last_seen stale.
func (sess *Session) Release(ctx context.Context) {
	sess.mu.Lock()
	if sess.released {
		sess.mu.Unlock()
		return
	}
	sess.released = true
	sess.mu.Unlock()

	sess.sub.Unsubscribe()

	if err := sess.svc.profiles.TouchLastSeen(ctx, sess.userID, time.Now().UTC()); err != nil {
		sess.svc.logger.Warn("last_seen write failed on release",
			zap.String("user_id", sess.userID), zap.Error(err))
	}

	sess.svc.logger.Info("presence released", zap.String("user_id", sess.userID))
}
