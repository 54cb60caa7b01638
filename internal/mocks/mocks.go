package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"wellness-chat/internal/models"
	"wellness-chat/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) UpsertOnline(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) SetOnline(ctx context.Context, userID string, online bool) error {
	args := m.Called(ctx, userID, online)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, creatorID string, name string) (models.Group, error) {
	args := m.Called(ctx, creatorID, name)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroups(ctx context.Context, query string) ([]models.Group, error) {
	args := m.Called(ctx, query)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID string, userID string) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID string, userID string) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID string, userID string) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) AddTyping(ctx context.Context, groupID string, email string) error {
	args := m.Called(ctx, groupID, email)
	return args.Error(0)
}

func (m *GroupRepositoryMock) RemoveTyping(ctx context.Context, groupID string, email string) (bool, error) {
	args := m.Called(ctx, groupID, email)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) ExpireTyping(ctx context.Context, ttl time.Duration) ([]string, error) {
	args := m.Called(ctx, ttl)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type GroupMessageRepositoryMock struct {
	mock.Mock
}

func (m *GroupMessageRepositoryMock) CreateGroupMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *GroupMessageRepositoryMock) ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	args := m.Called(ctx, groupID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *GroupMessageRepositoryMock) GetGroupMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *GroupMessageRepositoryMock) MarkRead(ctx context.Context, messageID string, userID string) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.GroupMessageRepository = (*GroupMessageRepositoryMock)(nil)
