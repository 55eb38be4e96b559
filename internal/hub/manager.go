package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/channel"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/event"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/messages"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/presence"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/repo"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type clientBucket struct {
	sync.RWMutex
	rooms map[string]map[string]*Client
}

// Deps are the collaborators a hub needs to build per-connection
// conversation sessions.
type Deps struct {
	Broker         *channel.Broker
	Presence       *presence.Service
	Messages       repo.MessageRepository
	Profiles       repo.ProfileRepository
	Feed           messages.ChangeFeed
	Logger         *zap.Logger
	AllowedOrigins []string
}

// Hub owns every websocket connection: a sharded registry of
// conversation rooms, a worker pool draining inbound frames, and the
// wiring that attaches each connection to its realtime session.
type Hub struct {
	deps Deps

	shards     [shardCount]*clientBucket
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	upgrader   websocket.Upgrader
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

func NewHub(deps Deps) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		deps:       deps,
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		ctx:        ctx,
		cancel:     cancel,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &clientBucket{
			rooms: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-h.inbound:
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventMessageSend:
		var payload event.SendPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.sendError("invalid_payload", "failed to parse message:send payload")
			return
		}
		if err := c.view.Send(c.ctx, payload.Content, payload.ReplyTo); err != nil {
			c.sendError("send_failed", err.Error())
		}

	case event.EventMessageRead:
		var payload event.ReadPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.sendError("invalid_payload", "failed to parse message:read payload")
			return
		}
		if err := c.view.MarkAsRead(c.ctx, payload.MessageIDs); err != nil {
			c.sendError("mark_read_failed", err.Error())
		}

	case event.EventMessageDelete:
		var payload event.DeletePayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.sendError("invalid_payload", "failed to parse message:delete payload")
			return
		}
		if err := c.view.DeleteForAll(c.ctx, payload.MessageID); err != nil {
			c.sendError("delete_failed", err.Error())
		}

	case event.EventTypingStart:
		c.view.NotifyTyping()

	default:
		h.deps.Logger.Warn("unknown event type",
			zap.String("event", ev.Event), zap.String("client_id", c.ID))
	}
}

func getShard(conversationID string) uint32 {
	if conversationID == "" {
		return 0
	}

	sum := sha1.Sum([]byte(conversationID))
	return binary.BigEndian.Uint32(sum[:4]) % shardCount
}

func (h *Hub) addClient(c *Client) {
	sh := getShard(c.conversationID)
	b := h.shards[sh]
	b.Lock()
	defer b.Unlock()

	room, ok := b.rooms[c.conversationID]
	if !ok {
		room = make(map[string]*Client)
		b.rooms[c.conversationID] = room
	}

	room[c.ID] = c
	h.deps.Logger.Info("client registered",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.userID),
		zap.String("conversation_id", c.conversationID),
		zap.Uint32("shard", sh),
	)
}

func (h *Hub) removeClient(c *Client) {
	sh := getShard(c.conversationID)
	b := h.shards[sh]
	b.Lock()

	if room, ok := b.rooms[c.conversationID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(b.rooms, c.conversationID)
		}
	}
	b.Unlock()

	c.teardown()
	h.deps.Logger.Info("client removed",
		zap.String("client_id", c.ID),
		zap.String("conversation_id", c.conversationID),
		zap.Uint32("shard", sh),
	)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Stop shuts the hub down: every connected client is torn down and the
// worker pool drains. Safe to call more than once; both the signal path
// and the container's deferred Close reach here on shutdown.
func (h *Hub) Stop() {
	h.stopOnce.Do(h.stop)
}

func (h *Hub) stop() {
	h.cancel()

	// Close all client connections
	for _, shard := range h.shards {
		shard.RLock()
		clients := make([]*Client, 0)
		for _, room := range shard.rooms {
			for _, client := range room {
				clients = append(clients, client)
			}
		}
		shard.RUnlock()

		for _, client := range clients {
			client.teardown()
		}
	}

	// inbound stays open; workers exit via context cancellation, so a
	// racing reader can never hit a closed channel.
	h.wg.Wait()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.deps.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ServeWS upgrades the request and attaches the connection to its
// conversation session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, peerID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, peerID, conn, h)
}

// snippetFor loads the presence profile snippet, degrading to an empty
// snippet when the profile is missing or the read fails.
func (h *Hub) snippetFor(ctx context.Context, userID string) model.ProfileSnippet {
	profile, err := h.deps.Profiles.Get(ctx, userID)
	if err != nil || profile == nil {
		return model.ProfileSnippet{}
	}
	return model.ProfileSnippet{
		FullName:  profile.FullName,
		AvatarURL: profile.AvatarURL,
	}
}
