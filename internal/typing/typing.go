// Package typing carries the ephemeral "peer is typing" signal for one
// conversation. Outgoing signals are throttled; observed peers hold a
// short lease that expires on silence, so a lost "stopped typing" packet
// resolves itself without any explicit stop message.
package typing

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/channel"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
)

// EventTyping is the broadcast event name on the conversation channel.
const EventTyping = "typing"

// tuning parameters
var (
	throttleWindow = 2 * time.Second // at most one outbound signal per window
	leaseDuration  = 3 * time.Second // observed typing expires after this much silence
)

// Signal is the broadcast payload.
type Signal struct {
	UserID string `json:"userId"`
}

// ChannelName derives the deterministic channel identity for a pair:
// both peers sort the ids and therefore compute the same name.
func ChannelName(a, b string) string {
	return "typing:" + model.ConversationID(a, b)
}

// Broadcaster is one participant's attachment to a conversation's typing
// channel.
type Broadcaster struct {
	userID   string
	sub      *channel.Subscription
	logger   *zap.Logger
	onChange func()

	mu       sync.Mutex
	lastSent time.Time
	peers    map[string]struct{}
	timers   map[string]*time.Timer
	closed   bool
}

// NewBroadcaster joins the typing channel for the (selfID, peerID)
// conversation. onChange, if non-nil, fires after the typing set changes.
func NewBroadcaster(broker *channel.Broker, selfID, peerID string, logger *zap.Logger, onChange func()) *Broadcaster {
	b := &Broadcaster{
		userID:   selfID,
		logger:   logger,
		onChange: onChange,
		peers:    make(map[string]struct{}),
		timers:   make(map[string]*time.Timer),
	}

	ch := broker.Channel(ChannelName(selfID, peerID))
	b.sub = ch.Subscribe(channel.Handlers{
		OnBroadcast: b.handleBroadcast,
	})

	return b
}

// SendTyping broadcasts a typing signal, at most once per throttle
// window. Calls inside the window are silently dropped, not queued.
func (b *Broadcaster) SendTyping() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	now := time.Now()
	if now.Sub(b.lastSent) < throttleWindow {
		b.mu.Unlock()
		return
	}
	b.lastSent = now
	b.mu.Unlock()

	if err := b.sub.Broadcast(EventTyping, Signal{UserID: b.userID}); err != nil {
		b.logger.Warn("typing broadcast failed", zap.Error(err))
	}
}

func (b *Broadcaster) handleBroadcast(event string, payload json.RawMessage) {
	if event != EventTyping {
		return
	}

	var sig Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		b.logger.Warn("malformed typing signal", zap.Error(err))
		return
	}
	if sig.UserID == "" || sig.UserID == b.userID {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	b.peers[sig.UserID] = struct{}{}

	// A fresh signal renews the lease rather than stacking a second timer.
	if t, ok := b.timers[sig.UserID]; ok {
		t.Stop()
	}
	peer := sig.UserID
	b.timers[peer] = time.AfterFunc(leaseDuration, func() {
		b.expire(peer)
	})
	b.mu.Unlock()

	b.notify()
}

func (b *Broadcaster) expire(peer string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	delete(b.peers, peer)
	delete(b.timers, peer)
	b.mu.Unlock()

	b.notify()
}

func (b *Broadcaster) notify() {
	if b.onChange != nil {
		b.onChange()
	}
}

// IsTyping reports whether the given peer holds a live typing lease.
func (b *Broadcaster) IsTyping(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.peers[userID]
	return ok
}

// Typing returns the peers currently holding a lease.
func (b *Broadcaster) Typing() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.peers))
	for peer := range b.peers {
		out = append(out, peer)
	}
	return out
}

// Close clears all pending lease timers and detaches from the channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	b.peers = nil
	b.mu.Unlock()

	b.sub.Unsubscribe()
}
