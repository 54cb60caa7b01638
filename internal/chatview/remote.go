package chatview

import (
	"context"

	"wellness-chat/internal/client"
	"wellness-chat/internal/models"
)

// Remote adapts *client.Client to Backend.
type Remote struct {
	*client.Client
}

func NewRemote(c *client.Client) Remote {
	return Remote{Client: c}
}

func (r Remote) SubscribeGroups(ctx context.Context, fn func([]models.Group)) (Subscription, error) {
	return wrap(r.Client.SubscribeGroups(ctx, fn))
}

func (r Remote) SubscribeGroup(ctx context.Context, groupID string, fn func(models.Group)) (Subscription, error) {
	return wrap(r.Client.SubscribeGroup(ctx, groupID, fn))
}

func (r Remote) SubscribeMessages(ctx context.Context, groupID string, fn func([]models.Message)) (Subscription, error) {
	return wrap(r.Client.SubscribeMessages(ctx, groupID, fn))
}

func (r Remote) SubscribeUsers(ctx context.Context, fn func([]models.User)) (Subscription, error) {
	return wrap(r.Client.SubscribeUsers(ctx, fn))
}

// wrap keeps a nil *client.Subscription from becoming a non-nil interface.
func wrap(sub *client.Subscription, err error) (Subscription, error) {
	if err != nil {
		return nil, err
	}
	return sub, nil
}

var _ Backend = Remote{}
