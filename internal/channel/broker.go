// Package channel implements the pub-sub channel provider the realtime
// features are built on: named channels carrying arbitrary broadcast
// events plus presence semantics (track/untrack with replicated state and
// sync/join/leave notifications). Channels are in-process; the websocket
// hub bridges them to frontend clients.
package channel

import (
	"sync"

	"go.uber.org/zap"
)

type Broker struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	logger   *zap.Logger
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		channels: make(map[string]*Channel),
		logger:   logger,
	}
}

// Channel returns the named channel, creating it on first use.
func (b *Broker) Channel(name string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[name]
	if !ok {
		ch = newChannel(name, b)
		b.channels[name] = ch
		b.logger.Debug("channel created", zap.String("channel", name))
	}
	return ch
}

// ChannelCount reports how many channels currently exist.
func (b *Broker) ChannelCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

// release drops a channel once its last subscriber is gone.
func (b *Broker) release(ch *Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.channels[ch.name]; ok && cur == ch && cur.empty() {
		delete(b.channels, ch.name)
		b.logger.Debug("channel released", zap.String("channel", ch.name))
	}
}
