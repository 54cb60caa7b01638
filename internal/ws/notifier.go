package ws

import (
	"context"

	"go.uber.org/zap"

	"wellness-chat/internal/kafka"
	"wellness-chat/internal/models"
	"wellness-chat/internal/repositories"
)

// EventSink receives domain events for downstream consumers.
type EventSink interface {
	Emit(ctx context.Context, event kafka.DomainEvent) error
}

// Notifier turns committed writes into stream events. Failures are logged and
// never reach the caller: the write itself already succeeded.
type Notifier struct {
	hub    *Hub
	groups repositories.GroupRepository
	users  repositories.UserRepository
	sink   EventSink
	log    *zap.Logger
}

func NewNotifier(hub *Hub, groups repositories.GroupRepository, users repositories.UserRepository, sink EventSink, logger *zap.Logger) *Notifier {
	return &Notifier{hub: hub, groups: groups, users: users, sink: sink, log: logger}
}

// GroupsChanged pushes the full ordered group list.
func (n *Notifier) GroupsChanged(ctx context.Context) {
	groups, err := n.groups.ListGroups(ctx, "")
	if err != nil {
		n.log.Warn("load groups for push", zap.Error(err))
		return
	}
	n.hub.Publish(ctx, TopicGroups, models.StreamEvent{Type: models.EventGroups, Groups: groups})
}

// GroupChanged pushes one group document.
func (n *Notifier) GroupChanged(ctx context.Context, groupID string) {
	group, err := n.groups.GetGroup(ctx, groupID)
	if err != nil {
		n.log.Warn("load group for push", zap.String("group_id", groupID), zap.Error(err))
		return
	}
	n.hub.Publish(ctx, GroupTopic(groupID), models.StreamEvent{Type: models.EventGroup, Group: &group})
}

func (n *Notifier) MembershipChanged(ctx context.Context, groupID, userID string, joined bool) {
	n.GroupsChanged(ctx)
	n.GroupChanged(ctx, groupID)
	n.emit(ctx, kafka.MembershipChanged(groupID, userID, joined))
}

func (n *Notifier) MessageAdded(ctx context.Context, msg models.Message) {
	n.hub.Publish(ctx, MessagesTopic(msg.GroupID), models.StreamEvent{Type: models.EventMessage, Message: &msg})
	n.emit(ctx, kafka.MessageCreated(msg))
}

func (n *Notifier) MessageRead(ctx context.Context, groupID, messageID, userID string) {
	n.hub.Publish(ctx, MessagesTopic(groupID), models.StreamEvent{Type: models.EventRead, MessageID: messageID, UserID: userID})
}

func (n *Notifier) UsersChanged(ctx context.Context) {
	users, err := n.users.ListUsers(ctx)
	if err != nil {
		n.log.Warn("load users for push", zap.Error(err))
		return
	}
	n.hub.Publish(ctx, TopicUsers, models.StreamEvent{Type: models.EventUsers, Users: users})
}

func (n *Notifier) emit(ctx context.Context, event kafka.DomainEvent) {
	if n.sink == nil {
		return
	}
	if err := n.sink.Emit(ctx, event); err != nil {
		n.log.Warn("emit domain event", zap.String("type", event.Type), zap.Error(err))
	}
}
