package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
	"wellness-chat/internal/observability"
)

const (
	TopicGroups = "groups"
	TopicUsers  = "users"

	writeWait = 10 * time.Second
)

func GroupTopic(groupID string) string {
	return "group:" + groupID
}

func MessagesTopic(groupID string) string {
	return "messages:" + groupID
}

// Client is one live subscription. Writes are serialized per connection.
type Client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{conn: conn, info: info}
}

func (c *Client) Info() ConnInfo {
	return c.info
}

// Send writes one payload, waiting for any in-flight snapshot.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(payload)
}

func (c *Client) write(payload []byte) error {
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Fanout relays events between service instances.
type Fanout interface {
	Publish(ctx context.Context, topic string, event models.StreamEvent) error
}

// Hub maintains live subscriptions grouped by topic.
type Hub struct {
	rooms  map[string]map[*Client]struct{}
	mu     sync.RWMutex
	fanout Fanout
	log    *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		log:   logger,
	}
}

// SetFanout routes Publish through another transport. The transport must call
// Broadcast for every event it receives, including this instance's own.
func (h *Hub) SetFanout(f Fanout) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fanout = f
}

func (h *Hub) Add(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[topic]; !ok {
		h.rooms[topic] = make(map[*Client]struct{})
	}
	h.rooms[topic][c] = struct{}{}
}

func (h *Hub) Remove(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[topic]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, topic)
		}
	}
}

func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

// Publish delivers event to every subscriber of topic on every instance.
func (h *Hub) Publish(ctx context.Context, topic string, event models.StreamEvent) {
	h.mu.RLock()
	fanout := h.fanout
	h.mu.RUnlock()

	if fanout != nil {
		err := fanout.Publish(ctx, topic, event)
		if err == nil {
			return
		}
		observability.IncFanoutFallback()
		h.log.Warn("fanout publish failed, delivering locally", zap.String("topic", topic), zap.Error(err))
	}
	h.Broadcast(topic, event)
}

// Broadcast delivers event to local subscribers of topic.
func (h *Hub) Broadcast(topic string, event models.StreamEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[topic]))
	for c := range h.rooms[topic] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode stream event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	for _, c := range clients {
		if err := c.Send(payload); err != nil {
			h.log.Debug("websocket write error", zap.String("topic", topic), zap.String("conn_id", c.info.ConnID), zap.Error(err))
			h.Remove(topic, c)
			_ = c.Close()
			publishLifecycle(context.Background(), c.info, eventError, err.Error())
		}
	}
}
