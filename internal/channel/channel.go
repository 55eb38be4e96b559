package channel

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Handlers are a subscriber's callbacks. All are optional and are invoked
// synchronously on the goroutine that produced the event, never with a
// channel lock held.
type Handlers struct {
	// OnBroadcast receives every broadcast published to the channel,
	// including the subscriber's own.
	OnBroadcast func(event string, payload json.RawMessage)

	// OnSync fires whenever the replicated presence state changes, and
	// once immediately after subscribing.
	OnSync func()

	// OnJoin / OnLeave fire per presence key entering or leaving.
	OnJoin  func(key string, meta json.RawMessage)
	OnLeave func(key string, meta json.RawMessage)
}

// Channel is one named pub-sub room. Presence state holds one meta per
// key, refcounted across the subscriptions tracking it: the same key may
// be tracked by several subscriptions (one user, several connections) and
// the record leaves only when the last tracker releases.
type Channel struct {
	name   string
	broker *Broker

	mu       sync.RWMutex
	subs     map[int64]*Subscription
	presence map[string]*presenceEntry
	nextID   int64
}

// presenceEntry is one key's replicated meta plus the number of
// subscriptions currently tracking the key.
type presenceEntry struct {
	meta json.RawMessage
	refs int
}

func newChannel(name string, broker *Broker) *Channel {
	return &Channel{
		name:     name,
		broker:   broker,
		subs:     make(map[int64]*Subscription),
		presence: make(map[string]*presenceEntry),
	}
}

func (c *Channel) Name() string {
	return c.name
}

// Subscribe attaches handlers to the channel. The subscription is live
// once this returns; an initial sync callback delivers the current
// presence snapshot to the new subscriber.
func (c *Channel) Subscribe(h Handlers) *Subscription {
	c.mu.Lock()
	c.nextID++
	sub := &Subscription{
		id:       c.nextID,
		ch:       c,
		handlers: h,
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	if h.OnSync != nil {
		h.OnSync()
	}
	return sub
}

// PresenceState returns a snapshot of the replicated presence state.
func (c *Channel) PresenceState() map[string]json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := make(map[string]json.RawMessage, len(c.presence))
	for k, entry := range c.presence {
		state[k] = entry.meta
	}
	return state
}

func (c *Channel) empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs) == 0 && len(c.presence) == 0
}

// snapshot collects live subscriptions so callbacks run without the lock.
func (c *Channel) snapshot() []*Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	return subs
}

func (c *Channel) publish(event string, payload json.RawMessage) {
	for _, s := range c.snapshot() {
		if s.handlers.OnBroadcast != nil {
			s.handlers.OnBroadcast(event, payload)
		}
	}
}

func (c *Channel) notifyJoin(key string, meta json.RawMessage) {
	for _, s := range c.snapshot() {
		if s.handlers.OnJoin != nil {
			s.handlers.OnJoin(key, meta)
		}
	}
	c.notifySync()
}

func (c *Channel) notifyLeave(key string, meta json.RawMessage) {
	for _, s := range c.snapshot() {
		if s.handlers.OnLeave != nil {
			s.handlers.OnLeave(key, meta)
		}
	}
	c.notifySync()
}

func (c *Channel) notifySync() {
	for _, s := range c.snapshot() {
		if s.handlers.OnSync != nil {
			s.handlers.OnSync()
		}
	}
}

// Subscription is one attachment to a channel.
type Subscription struct {
	id       int64
	ch       *Channel
	handlers Handlers

	mu         sync.Mutex
	trackedKey string
	closed     bool
}

// Broadcast publishes an event to every subscriber of the channel.
func (s *Subscription) Broadcast(event string, payload any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("broadcast on closed subscription to %q", s.ch.name)
	}
	s.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast payload: %w", err)
	}

	s.ch.publish(event, raw)
	return nil
}

// Track writes this subscription's presence meta under the given key and
// announces the join. Re-tracking the same key replaces the meta; a key
// tracked by several subscriptions carries one reference per tracker.
func (s *Subscription) Track(key string, meta any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("track on closed subscription to %q", s.ch.name)
	}
	s.mu.Unlock()

	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal presence meta: %w", err)
	}

	s.mu.Lock()
	prev := s.trackedKey
	s.trackedKey = key
	s.mu.Unlock()

	if prev != "" && prev != key {
		s.dropRef(prev)
	}

	s.ch.mu.Lock()
	if entry, ok := s.ch.presence[key]; ok {
		entry.meta = raw
		if prev != key {
			entry.refs++
		}
	} else {
		s.ch.presence[key] = &presenceEntry{meta: raw, refs: 1}
	}
	s.ch.mu.Unlock()

	s.ch.notifyJoin(key, raw)
	return nil
}

// Untrack releases this subscription's reference on its presence key, if
// any. The key leaves the replicated state only when no other
// subscription still tracks it.
func (s *Subscription) Untrack() {
	s.mu.Lock()
	key := s.trackedKey
	s.trackedKey = ""
	s.mu.Unlock()

	if key == "" {
		return
	}
	s.dropRef(key)
}

func (s *Subscription) dropRef(key string) {
	s.ch.mu.Lock()
	entry, ok := s.ch.presence[key]
	if !ok {
		s.ch.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs > 0 {
		s.ch.mu.Unlock()
		return
	}
	delete(s.ch.presence, key)
	meta := entry.meta
	s.ch.mu.Unlock()

	s.ch.notifyLeave(key, meta)
}

// State returns the channel's current presence snapshot.
func (s *Subscription) State() map[string]json.RawMessage {
	return s.ch.PresenceState()
}

// Unsubscribe detaches the handlers, untracking any presence key first.
// The channel itself is dropped from the broker once empty.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Untrack()

	s.ch.mu.Lock()
	delete(s.ch.subs, s.id)
	s.ch.mu.Unlock()

	s.ch.broker.release(s.ch)
}
