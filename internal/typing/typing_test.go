package typing

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/channel"
)

// countingListener taps the raw channel to observe broadcast volume.
type countingListener struct {
	mu      sync.Mutex
	signals []Signal
}

func (c *countingListener) attach(broker *channel.Broker, a, b string) *channel.Subscription {
	return broker.Channel(ChannelName(a, b)).Subscribe(channel.Handlers{
		OnBroadcast: func(event string, payload json.RawMessage) {
			if event != EventTyping {
				return
			}
			var sig Signal
			if json.Unmarshal(payload, &sig) == nil {
				c.mu.Lock()
				c.signals = append(c.signals, sig)
				c.mu.Unlock()
			}
		},
	})
}

func (c *countingListener) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.signals)
}

func withTuning(t *testing.T, throttle, lease time.Duration) {
	t.Helper()
	oldThrottle, oldLease := throttleWindow, leaseDuration
	throttleWindow, leaseDuration = throttle, lease
	t.Cleanup(func() {
		throttleWindow, leaseDuration = oldThrottle, oldLease
	})
}

func TestChannelNameIsOrderIndependent(t *testing.T) {
	assert.Equal(t, ChannelName("alice", "bob"), ChannelName("bob", "alice"))
	assert.Equal(t, "typing:alice:bob", ChannelName("bob", "alice"))
}

func TestSendTypingIsThrottled(t *testing.T) {
	withTuning(t, 200*time.Millisecond, time.Minute)
	broker := channel.NewBroker(zap.NewNop())

	listener := &countingListener{}
	sub := listener.attach(broker, "alice", "bob")
	defer sub.Unsubscribe()

	b := NewBroadcaster(broker, "alice", "bob", zap.NewNop(), nil)
	defer b.Close()

	b.SendTyping()
	b.SendTyping()
	b.SendTyping()
	assert.Equal(t, 1, listener.count(), "burst collapses to one signal")

	time.Sleep(250 * time.Millisecond)
	b.SendTyping()
	assert.Equal(t, 2, listener.count(), "window elapsed, next signal goes out")
}

func TestOwnSignalIsIgnored(t *testing.T) {
	withTuning(t, 0, time.Minute)
	broker := channel.NewBroker(zap.NewNop())

	b := NewBroadcaster(broker, "alice", "bob", zap.NewNop(), nil)
	defer b.Close()

	b.SendTyping()
	assert.False(t, b.IsTyping("alice"))
	assert.Empty(t, b.Typing())
}

func TestPeerTypingLeaseExpires(t *testing.T) {
	withTuning(t, 0, 100*time.Millisecond)
	broker := channel.NewBroker(zap.NewNop())

	changes := make(chan struct{}, 16)
	alice := NewBroadcaster(broker, "alice", "bob", zap.NewNop(), func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer alice.Close()

	bob := NewBroadcaster(broker, "bob", "alice", zap.NewNop(), nil)
	defer bob.Close()

	bob.SendTyping()
	require.True(t, alice.IsTyping("bob"))

	require.Eventually(t, func() bool {
		return !alice.IsTyping("bob")
	}, time.Second, 10*time.Millisecond, "lease must lapse on silence")
	assert.NotEmpty(t, changes, "expiry notifies the observer")
}

func TestFreshSignalRenewsLease(t *testing.T) {
	withTuning(t, 0, 150*time.Millisecond)
	broker := channel.NewBroker(zap.NewNop())

	alice := NewBroadcaster(broker, "alice", "bob", zap.NewNop(), nil)
	defer alice.Close()
	bob := NewBroadcaster(broker, "bob", "alice", zap.NewNop(), nil)
	defer bob.Close()

	bob.SendTyping()
	time.Sleep(100 * time.Millisecond)
	bob.SendTyping() // renews before the first lease lapses
	time.Sleep(100 * time.Millisecond)

	assert.True(t, alice.IsTyping("bob"), "renewed lease outlives the original window")

	require.Eventually(t, func() bool {
		return !alice.IsTyping("bob")
	}, time.Second, 10*time.Millisecond)
}

func TestCloseStopsObserving(t *testing.T) {
	withTuning(t, 0, time.Minute)
	broker := channel.NewBroker(zap.NewNop())

	alice := NewBroadcaster(broker, "alice", "bob", zap.NewNop(), nil)
	bob := NewBroadcaster(broker, "bob", "alice", zap.NewNop(), nil)
	defer bob.Close()

	alice.Close()
	bob.SendTyping()

	assert.False(t, alice.IsTyping("bob"))
	alice.Close() // double close is harmless
}
