package hub

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/conversation"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/event"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/messages"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/presence"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/typing"
)

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 20 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // number of workers to process inbound messages
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound messages
	registerTimeout    = 5 * time.Second        // timeout for client registration
	unregisterTimeout  = 5 * time.Second        // timeout for client unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
	releaseTimeout     = 5 * time.Second        // timeout for last_seen write on teardown
)

// Client is one websocket connection bound to one open conversation. It
// owns the realtime session for that (user, peer) pair: the message
// store, typing broadcaster, presence attachment, and the composed view.
type Client struct {
	ID             string
	userID         string
	peerID         string
	conversationID string

	conn   *websocket.Conn
	hub    *Hub
	egress chan event.WsEvent
	logger *zap.Logger

	view        *conversation.View
	presSession *presence.Session

	// ready flips once the session is fully built; presence and typing
	// callbacks that fire during construction are dropped until then.
	ready atomic.Bool

	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool
	closedMu       sync.RWMutex
}

// RegisterClient builds the conversation session for a fresh connection
// and starts its pumps.
func RegisterClient(userID, peerID string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		ID:             uuid.New().String(),
		userID:         userID,
		peerID:         peerID,
		conversationID: model.ConversationID(userID, peerID),
		conn:           conn,
		hub:            h,
		egress:         make(chan event.WsEvent, sendBufSize),
		logger:         h.deps.Logger,
		cancel:         cancel,
		ctx:            ctx,
		connClosed:     make(chan struct{}),
	}

	sess, err := h.deps.Presence.Attach(userID, h.snippetFor(ctx, userID), c.pushState)
	if err != nil {
		h.deps.Logger.Error("presence attach failed",
			zap.String("user_id", userID), zap.Error(err))
		cancel()
		conn.Close()
		return nil
	}
	c.presSession = sess

	store := messages.NewStore(userID, peerID, h.deps.Messages, h.deps.Feed, h.deps.Logger, c.onStoreUpdate)
	typer := typing.NewBroadcaster(h.deps.Broker, userID, peerID, h.deps.Logger, c.pushState)
	c.view = conversation.NewView(userID, peerID, store, typer, sess, h.deps.Logger)

	select {
	case h.register <- c:
		c.ready.Store(true)
		go c.readMessages()
		go c.writeMessages()

		// History load happens off the pumps; every state change it causes
		// flows back through onStoreUpdate.
		go func() {
			if err := store.Open(c.ctx); err != nil {
				c.logger.Warn("conversation open failed",
					zap.String("conversation_id", c.conversationID), zap.Error(err))
			}
		}()
		return c
	case <-time.After(registerTimeout):
		h.deps.Logger.Error("failed to register client: timeout", zap.String("client_id", c.ID))
		c.teardown()
		return nil
	}
}

// onStoreUpdate runs after every message-set change: re-run the
// read-marking effect, then push the fresh projection.
func (c *Client) onStoreUpdate() {
	c.view.SyncReadState(c.ctx)
	c.pushState()
}

// pushState sends the composed conversation state to the frontend.
func (c *Client) pushState() {
	if !c.ready.Load() || c.isClosed() {
		return
	}

	state := c.view.State(c.ctx, time.Now())
	payload, err := json.Marshal(state)
	if err != nil {
		c.logger.Error("state marshal failed", zap.Error(err))
		return
	}

	c.send(event.WsEvent{Event: event.EventConversationState, Payload: payload})
}

func (c *Client) sendError(code, message string) {
	payload, err := json.Marshal(model.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.send(event.WsEvent{Event: event.EventError, Payload: payload})
}

func (c *Client) isClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// send enqueues with a timeout; a persistently full egress means a dead
// or stalled consumer, so the client is kicked.
func (c *Client) send(ev event.WsEvent) {
	if c.isClosed() {
		return
	}

	select {
	case c.egress <- ev:
	case <-c.ctx.Done():
	case <-time.After(sendTimeout):
		c.logger.Warn("egress full, disconnecting client", zap.String("client_id", c.ID))
		select {
		case c.hub.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.logger.Error("failed to unregister client: timeout", zap.String("client_id", c.ID))
		}
	}
}

func (c *Client) readMessages() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.logger.Error("failed to unregister client: timeout", zap.String("client_id", c.ID))
			c.teardown()
		}
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var ev event.WsEvent

			if err := c.conn.ReadJSON(&ev); err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.logger.Info("client disconnected", zap.String("client_id", c.ID))
					return
				}

				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseInternalServerErr,
					websocket.CloseProtocolError,
				) {
					c.logger.Warn("unexpected close", zap.String("client_id", c.ID), zap.Error(err))
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.logger.Info("client timed out, closing connection", zap.String("client_id", c.ID))
					return
				}

				c.logger.Warn("read error", zap.String("client_id", c.ID), zap.Error(err))
				return
			}

			// Non-blocking send into inbound processing queue to avoid blocking reader
			select {
			case c.hub.inbound <- inboundMessage{client: c, event: ev}:
			case <-time.After(inboundSendTimeout):
				c.logger.Warn("inbound send timeout, dropping client", zap.String("client_id", c.ID))
				c.cancel()
				c.conn.Close()
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Client) writeMessages() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.teardown()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				c.logger.Debug("close write failed", zap.Error(err))
			}
			return
		case ev := <-c.egress:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Warn("write error", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// teardown releases the session exactly once: the view (store + typing
// channels) first, then the presence attachment with its durable
// last_seen write.
func (c *Client) teardown() {
	c.once.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		// egress is never closed: cancelling the context stops both the
		// producers (send selects on ctx.Done) and the write pump, so no
		// goroutine can race into a closed channel.
		c.cancel()

		if c.view != nil {
			c.view.Close()
		}
		if c.presSession != nil {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			c.presSession.Release(ctx)
			cancel()
		}

		// Wait for writeMessages to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
				c.logger.Warn("safety timeout: force closed connection", zap.String("client_id", c.ID))
			}
		}()
	})
}
