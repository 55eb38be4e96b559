// Package conversation composes the realtime pieces for one open
// conversation: message store, typing leases, and presence, rendered as
// a date-grouped timeline.
package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/messages"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/presence"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/typing"
)

// View is the composition root for one (self, peer) conversation. It owns
// no state of its own: every read is derived from the store, the typing
// broadcaster, and the presence session.
type View struct {
	selfID string
	peerID string

	store    *messages.Store
	typing   *typing.Broadcaster
	presence *presence.Session
	logger   *zap.Logger
}

// State is the render-ready projection pushed to the frontend.
type State struct {
	ConversationID string           `json:"conversationId"`
	Timeline       []DayGroup       `json:"timeline"`
	Loading        bool             `json:"loading"`
	Error          string           `json:"error,omitempty"`
	PeerTyping     bool             `json:"peerTyping"`
	Peer           model.PeerStatus `json:"peer"`
}

func NewView(selfID, peerID string, store *messages.Store, typer *typing.Broadcaster, pres *presence.Session, logger *zap.Logger) *View {
	return &View{
		selfID:   selfID,
		peerID:   peerID,
		store:    store,
		typing:   typer,
		presence: pres,
		logger:   logger,
	}
}

// Timeline renders the conversation as date-keyed buckets, each message
// annotated with ownership and its reply preview. Tombstoned messages
// keep their place but drop their content.
func (v *View) Timeline(now time.Time) []DayGroup {
	msgs := v.store.Messages()

	rendered := make([]TimelineMessage, 0, len(msgs))
	for _, m := range msgs {
		tm := TimelineMessage{
			Message: m,
			Mine:    m.SenderID == v.selfID,
		}
		if m.DeletedForAll {
			tm.Content = ""
		}
		if m.ReplyToID != nil {
			if ref, ok := v.store.Get(*m.ReplyToID); ok {
				content := ref.Content
				if ref.DeletedForAll {
					content = ""
				}
				tm.ReplyPreview = &ReplyPreview{
					MessageID: ref.ID,
					SenderID:  ref.SenderID,
					Content:   truncate(content, replyPreviewLimit),
				}
			}
		}
		rendered = append(rendered, tm)
	}

	return groupByDay(rendered, now)
}

// State assembles the full projection for the wire.
func (v *View) State(ctx context.Context, now time.Time) State {
	peer, err := v.presence.PeerStatus(ctx, v.peerID)
	if err != nil {
		v.logger.Warn("peer status lookup failed",
			zap.String("peer_id", v.peerID), zap.Error(err))
		peer = model.PeerStatus{UserID: v.peerID}
	}

	return State{
		ConversationID: model.ConversationID(v.selfID, v.peerID),
		Timeline:       v.Timeline(now),
		Loading:        v.store.Loading(),
		Error:          v.store.Err(),
		PeerTyping:     v.typing.IsTyping(v.peerID),
		Peer:           peer,
	}
}

// SyncReadState is the read-marking side effect: it must re-run whenever
// the visible message set changes, flipping newly visible unread incoming
// messages to read. Safe to call repeatedly; once nothing is unread it is
// a no-op, which also terminates the update → mark → update echo.
func (v *View) SyncReadState(ctx context.Context) {
	ids := v.store.UnreadIncoming()
	if len(ids) == 0 {
		return
	}

	if err := v.store.MarkAsRead(ctx, ids); err != nil {
		v.logger.Warn("read-marking effect failed",
			zap.String("peer_id", v.peerID),
			zap.Int("count", len(ids)),
			zap.Error(err),
		)
	}
}

// Send forwards to the store.
func (v *View) Send(ctx context.Context, content string, replyToID *string) error {
	return v.store.Send(ctx, content, replyToID)
}

// MarkAsRead forwards an explicit read receipt for the given ids.
func (v *View) MarkAsRead(ctx context.Context, ids []string) error {
	return v.store.MarkAsRead(ctx, ids)
}

// DeleteForAll tombstones one of the local user's own messages.
func (v *View) DeleteForAll(ctx context.Context, id string) error {
	return v.store.DeleteForAll(ctx, id)
}

// NotifyTyping forwards the local user's keystroke signal.
func (v *View) NotifyTyping() {
	v.typing.SendTyping()
}

// Close tears down the store and typing channel. The presence session is
// owned by the connection, not the view, and is released separately.
func (v *View) Close() {
	v.store.Close()
	v.typing.Close()
}
