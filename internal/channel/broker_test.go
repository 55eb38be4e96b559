package channel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	broadcasts []string
	syncs      int
	joins      []string
	leaves     []string
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnBroadcast: func(event string, _ json.RawMessage) {
			r.broadcasts = append(r.broadcasts, event)
		},
		OnSync: func() { r.syncs++ },
		OnJoin: func(key string, _ json.RawMessage) {
			r.joins = append(r.joins, key)
		},
		OnLeave: func(key string, _ json.RawMessage) {
			r.leaves = append(r.leaves, key)
		},
	}
}

func TestChannelGetOrCreate(t *testing.T) {
	b := NewBroker(zap.NewNop())

	ch := b.Channel("room:1")
	assert.Same(t, ch, b.Channel("room:1"))
	assert.Equal(t, "room:1", ch.Name())
	assert.Equal(t, 1, b.ChannelCount())
}

func TestBroadcastReachesAllSubscribersIncludingSender(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ch := b.Channel("room:1")

	r1, r2 := &recorder{}, &recorder{}
	s1 := ch.Subscribe(r1.handlers())
	s2 := ch.Subscribe(r2.handlers())
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	require.NoError(t, s1.Broadcast("ping", map[string]string{"from": "s1"}))

	assert.Equal(t, []string{"ping"}, r1.broadcasts, "sender hears its own broadcast")
	assert.Equal(t, []string{"ping"}, r2.broadcasts)
}

func TestSubscribeDeliversInitialSync(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ch := b.Channel("room:1")

	r := &recorder{}
	sub := ch.Subscribe(r.handlers())
	defer sub.Unsubscribe()

	assert.Equal(t, 1, r.syncs)
}

func TestTrackAnnouncesJoinAndReplicatesState(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ch := b.Channel("room:1")

	observer := &recorder{}
	obsSub := ch.Subscribe(observer.handlers())
	defer obsSub.Unsubscribe()

	sub := ch.Subscribe(Handlers{})
	require.NoError(t, sub.Track("alice", map[string]string{"name": "Alice"}))

	assert.Equal(t, []string{"alice"}, observer.joins)
	assert.Equal(t, 2, observer.syncs, "initial sync plus the join sync")

	state := ch.PresenceState()
	require.Contains(t, state, "alice")

	var meta map[string]string
	require.NoError(t, json.Unmarshal(state["alice"], &meta))
	assert.Equal(t, "Alice", meta["name"])

	sub.Unsubscribe()
	assert.Equal(t, []string{"alice"}, observer.leaves, "unsubscribe untracks first")
	assert.NotContains(t, ch.PresenceState(), "alice")
}

func TestRetrackReplacesMeta(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ch := b.Channel("room:1")

	sub := ch.Subscribe(Handlers{})
	defer sub.Unsubscribe()

	require.NoError(t, sub.Track("alice", map[string]string{"status": "away"}))
	require.NoError(t, sub.Track("alice", map[string]string{"status": "active"}))

	state := ch.PresenceState()
	require.Len(t, state, 1)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(state["alice"], &meta))
	assert.Equal(t, "active", meta["status"])
}

func TestPresenceKeyIsRefcountedAcrossSubscriptions(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ch := b.Channel("room:1")

	observer := &recorder{}
	obsSub := ch.Subscribe(observer.handlers())
	defer obsSub.Unsubscribe()

	// Two connections of the same user track the same key.
	first := ch.Subscribe(Handlers{})
	second := ch.Subscribe(Handlers{})
	require.NoError(t, first.Track("alice", map[string]string{"conn": "1"}))
	require.NoError(t, second.Track("alice", map[string]string{"conn": "2"}))

	first.Unsubscribe()
	assert.Empty(t, observer.leaves, "key stays while another tracker remains")
	assert.Contains(t, ch.PresenceState(), "alice")

	second.Unsubscribe()
	assert.Equal(t, []string{"alice"}, observer.leaves, "last tracker releases the key")
	assert.NotContains(t, ch.PresenceState(), "alice")
}

func TestTrackNewKeyReleasesPreviousKey(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ch := b.Channel("room:1")

	observer := &recorder{}
	obsSub := ch.Subscribe(observer.handlers())
	defer obsSub.Unsubscribe()

	sub := ch.Subscribe(Handlers{})
	defer sub.Unsubscribe()

	require.NoError(t, sub.Track("alice", nil))
	require.NoError(t, sub.Track("alice-2", nil))

	assert.Equal(t, []string{"alice"}, observer.leaves)
	state := ch.PresenceState()
	assert.NotContains(t, state, "alice")
	assert.Contains(t, state, "alice-2")
}

func TestUntrackWithoutTrackIsNoOp(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ch := b.Channel("room:1")

	observer := &recorder{}
	obsSub := ch.Subscribe(observer.handlers())
	defer obsSub.Unsubscribe()

	sub := ch.Subscribe(Handlers{})
	defer sub.Unsubscribe()
	sub.Untrack()

	assert.Empty(t, observer.leaves)
}

func TestEmptyChannelIsReleased(t *testing.T) {
	b := NewBroker(zap.NewNop())

	sub := b.Channel("room:1").Subscribe(Handlers{})
	require.Equal(t, 1, b.ChannelCount())

	sub.Unsubscribe()
	assert.Zero(t, b.ChannelCount())

	sub.Unsubscribe() // double unsubscribe is harmless
	assert.Zero(t, b.ChannelCount())
}

func TestClosedSubscriptionRejectsWrites(t *testing.T) {
	b := NewBroker(zap.NewNop())
	sub := b.Channel("room:1").Subscribe(Handlers{})
	sub.Unsubscribe()

	assert.Error(t, sub.Broadcast("ping", nil))
	assert.Error(t, sub.Track("alice", nil))
}
