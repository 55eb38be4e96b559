// Package messages keeps one conversation's message list consistent with
// the remote collection across devices and senders: an initial snapshot
// plus three change-stream subscriptions, all funnelled through a single
// id-keyed index.
package messages

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/changefeed"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/repo"
)

// ChangeFeed is the slice of the changefeed the store consumes.
// *changefeed.Feed[model.Message] satisfies it.
type ChangeFeed interface {
	Subscribe(kind changefeed.Kind, filter string, fn func(changefeed.RowEvent[model.Message])) (func(), error)
}

// Store is the per-conversation message state machine:
// {messages, loading, error}.
type Store struct {
	selfID string
	peerID string
	repo   repo.MessageRepository
	feed   ChangeFeed
	logger *zap.Logger

	// onUpdate fires after every visible state change, outside the lock.
	onUpdate func()

	mu      sync.RWMutex
	index   *Index
	loading bool
	lastErr string
	closed  bool
	unsubs  []func()
}

// NewStore builds the adapter for the (selfID, peerID) conversation.
// Call Open to load history and begin streaming.
func NewStore(selfID, peerID string, msgRepo repo.MessageRepository, feed ChangeFeed, logger *zap.Logger, onUpdate func()) *Store {
	return &Store{
		selfID:   selfID,
		peerID:   peerID,
		repo:     msgRepo,
		feed:     feed,
		logger:   logger,
		onUpdate: onUpdate,
		index:    NewIndex(),
		loading:  true,
	}
}

// Open registers the three change-stream subscriptions, then fetches the
// history snapshot. Subscribing first means an insert that lands during
// the fetch is not lost; the index de-duplicates the overlap.
//
// Three subscriptions are required, not one: incoming inserts, the
// client's own outgoing inserts (multi-device sync), and unfiltered
// updates carrying read/status changes from either side.
func (s *Store) Open(ctx context.Context) error {
	subs := []struct {
		kind   changefeed.Kind
		filter string
	}{
		{changefeed.KindInsert, "receiver_id=eq." + s.selfID},
		{changefeed.KindInsert, "sender_id=eq." + s.selfID},
		{changefeed.KindUpdate, ""},
	}

	for _, spec := range subs {
		unsub, err := s.feed.Subscribe(spec.kind, spec.filter, s.onRow)
		if err != nil {
			s.teardownSubs()
			s.setError(err.Error())
			s.setLoading(false)
			s.notify()
			return err
		}
		s.mu.Lock()
		s.unsubs = append(s.unsubs, unsub)
		s.mu.Unlock()
	}

	history, err := s.repo.History(ctx, s.selfID, s.peerID)
	if err != nil {
		// Keep last-known messages (typically none) and surface the error.
		s.setError(err.Error())
		s.setLoading(false)
		s.notify()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for _, m := range history {
		s.index.Apply(m)
	}
	s.loading = false
	s.mu.Unlock()

	s.notify()
	return nil
}

// onRow ingests a change-stream event. Events arrive from three
// independent subscriptions with no cross-ordering guarantee, so
// everything funnels through the index's idempotent replace-by-id.
func (s *Store) onRow(ev changefeed.RowEvent[model.Message]) {
	if ev.New == nil {
		return
	}
	msg := *ev.New
	if !msg.Between(s.selfID, s.peerID) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := s.index.Apply(msg)
	s.mu.Unlock()

	if !changed {
		return
	}

	// Receiving a peer's insert is the delivery moment: flip the row to
	// delivered so the sender's ticks advance. The write runs off the
	// pump goroutine; a slow mongo round-trip must not stall event
	// delivery to every other conversation sharing the feed.
	if ev.Kind == changefeed.KindInsert && msg.SenderID == s.peerID && msg.Status < model.StatusDelivered {
		go func(id string) {
			if _, err := s.repo.MarkDelivered(context.Background(), []string{id}); err != nil {
				s.setError(err.Error())
				s.notify()
			}
		}(msg.ID)
	}

	s.notify()
}

// Send validates, optimistically appends with status=sending, then
// persists. The optimistic entry reconciles to sent on success or rolls
// back on failure. Blank content or a missing participant id is a
// caller programming error and a silent no-op, not a runtime fault.
func (s *Store) Send(ctx context.Context, content string, replyToID *string) error {
	if strings.TrimSpace(content) == "" || s.selfID == "" || s.peerID == "" {
		return nil
	}

	msg := model.Message{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		SenderID:   s.selfID,
		ReceiverID: s.peerID,
		Content:    content,
		Read:       false,
		Status:     model.StatusSending,
		ReplyToID:  replyToID,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.index.Apply(msg)
	s.mu.Unlock()
	s.notify()

	persisted := msg
	persisted.Status = model.StatusSent
	if err := s.repo.Insert(ctx, &persisted); err != nil {
		s.mu.Lock()
		s.index.Remove(msg.ID)
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.notify()
		return err
	}

	// Reconcile locally; the outgoing-insert echo applies the same row
	// again, which the index treats as a no-op.
	s.mu.Lock()
	s.index.Apply(persisted)
	s.mu.Unlock()
	s.notify()
	return nil
}

// MarkAsRead flips exactly the given ids to read. No-op on an empty
// list; a failure lands in the error state without crashing the view.
func (s *Store) MarkAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.repo.MarkRead(ctx, ids); err != nil {
		s.setError(err.Error())
		s.notify()
		return err
	}

	// Apply locally as well: the unfiltered UPDATE subscription will echo
	// the same transition, idempotently.
	s.mu.Lock()
	changed := false
	for _, id := range ids {
		if m, ok := s.index.Get(id); ok {
			m.Read = true
			m.Status = model.StatusRead
			if s.index.Apply(m) {
				changed = true
			}
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

// MarkAsDelivered advances the given ids to delivered.
func (s *Store) MarkAsDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.repo.MarkDelivered(ctx, ids); err != nil {
		s.setError(err.Error())
		s.notify()
		return err
	}
	return nil
}

// DeleteForAll tombstones one of the local user's own messages.
func (s *Store) DeleteForAll(ctx context.Context, id string) error {
	if err := s.repo.DeleteForAll(ctx, id, s.selfID); err != nil {
		s.setError(err.Error())
		s.notify()
		return err
	}

	s.mu.Lock()
	changed := false
	if m, ok := s.index.Get(id); ok {
		m.DeletedForAll = true
		changed = s.index.Apply(m)
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

// Messages returns the ordered snapshot of the conversation.
func (s *Store) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Snapshot()
}

// UnreadIncoming returns ids of peer messages not yet read, the input to
// the view's read-marking effect.
func (s *Store) UnreadIncoming() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, m := range s.index.Snapshot() {
		if m.SenderID == s.peerID && !m.Read {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Get returns one message by id.
func (s *Store) Get(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Get(id)
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last surfaced failure, empty when healthy.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Close unsubscribes from the feed and blocks further state updates;
// in-flight callbacks resolving after Close become no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.teardownSubs()
}

func (s *Store) teardownSubs() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	s.logger.Warn("store error",
		zap.String("self_id", s.selfID),
		zap.String("peer_id", s.peerID),
		zap.String("error", msg),
	)
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Store) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}
