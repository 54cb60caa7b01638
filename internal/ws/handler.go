package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"wellness-chat/internal/middleware"
	"wellness-chat/internal/models"
	"wellness-chat/internal/observability"
	"wellness-chat/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const maxInboundMessage = 4096

type snapshotFunc func(ctx context.Context) (models.StreamEvent, error)

// SubscriptionHandler upgrades live subscriptions. Every subscription receives
// the current state first and then each change pushed through the hub.
type SubscriptionHandler struct {
	hub      *Hub
	groups   repositories.GroupRepository
	messages repositories.GroupMessageRepository
	users    repositories.UserRepository
	log      *zap.Logger
}

func NewSubscriptionHandler(hub *Hub, groups repositories.GroupRepository, messages repositories.GroupMessageRepository, users repositories.UserRepository, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{hub: hub, groups: groups, messages: messages, users: users, log: logger}
}

// Groups handles GET /ws/groups.
func (h *SubscriptionHandler) Groups(c *gin.Context) {
	h.serve(c, "groups", "", TopicGroups, func(ctx context.Context) (models.StreamEvent, error) {
		groups, err := h.groups.ListGroups(ctx, "")
		return models.StreamEvent{Type: models.EventGroups, Groups: groups}, err
	})
}

// Group handles GET /ws/groups/:group_id.
func (h *SubscriptionHandler) Group(c *gin.Context) {
	groupID := c.Param("group_id")
	if !h.groupExists(c, groupID) {
		return
	}
	h.serve(c, "group", groupID, GroupTopic(groupID), func(ctx context.Context) (models.StreamEvent, error) {
		group, err := h.groups.GetGroup(ctx, groupID)
		return models.StreamEvent{Type: models.EventGroup, Group: &group}, err
	})
}

// Messages handles GET /ws/groups/:group_id/messages.
func (h *SubscriptionHandler) Messages(c *gin.Context) {
	groupID := c.Param("group_id")
	if !h.groupExists(c, groupID) {
		return
	}
	h.serve(c, "messages", groupID, MessagesTopic(groupID), func(ctx context.Context) (models.StreamEvent, error) {
		msgs, err := h.messages.ListGroupMessages(ctx, groupID)
		return models.StreamEvent{Type: models.EventSnapshot, Messages: msgs}, err
	})
}

// Users handles GET /ws/users.
func (h *SubscriptionHandler) Users(c *gin.Context) {
	h.serve(c, "users", "", TopicUsers, func(ctx context.Context) (models.StreamEvent, error) {
		users, err := h.users.ListUsers(ctx)
		return models.StreamEvent{Type: models.EventUsers, Users: users}, err
	})
}

func (h *SubscriptionHandler) groupExists(c *gin.Context, groupID string) bool {
	_, err := h.groups.GetGroup(c.Request.Context(), groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return false
	}
	return true
}

func (h *SubscriptionHandler) serve(c *gin.Context, kind, resourceID, topic string, snapshot snapshotFunc) {
	ctx, span := otel.Tracer("wellness-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.String("kind", kind), zap.Error(err))
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		Kind:        kind,
		ResourceID:  resourceID,
		UserID:      c.GetString(middleware.UserIDKey),
		Request:     observability.RequestMetaFrom(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)
	// The request context ends with this handler; the subscription outlives it.
	connCtx := context.WithoutCancel(ctx)

	// Holding the write lock while registering and pushing the snapshot queues
	// concurrent broadcasts behind it, so none is lost or delivered first.
	client.mu.Lock()
	h.hub.Add(topic, client)
	err = h.pushSnapshot(ctx, client, snapshot)
	client.mu.Unlock()
	if err != nil {
		h.log.Warn("initial push failed", append(info.logFields(), zap.Error(err))...)
		h.hub.Remove(topic, client)
		_ = client.Close()
		publishLifecycle(connCtx, info, eventError, err.Error())
		return
	}

	observability.IncWSActive(kind)
	publishLifecycle(connCtx, info, eventConnect, "")
	h.log.Debug("subscription opened", info.logFields()...)

	go h.readLoop(connCtx, topic, client)
}

func (h *SubscriptionHandler) pushSnapshot(ctx context.Context, client *Client, snapshot snapshotFunc) error {
	event, err := snapshot(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return client.write(payload)
}

func (h *SubscriptionHandler) readLoop(ctx context.Context, topic string, client *Client) {
	info := client.Info()
	var closeReason string
	defer func() {
		h.hub.Remove(topic, client)
		observability.DecWSActive(info.Kind)
		publishLifecycle(ctx, info, eventDisconnect, closeReason)
		_ = client.Close()
	}()

	client.conn.SetReadLimit(maxInboundMessage)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishLifecycle(ctx, info, eventError, closeReason)
			}
			return
		}
	}
}
