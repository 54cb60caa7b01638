package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"wellness-chat/internal/models"
)

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) GroupsChanged(ctx context.Context) {
	m.Called(ctx)
}

func (m *NotifierMock) GroupChanged(ctx context.Context, groupID string) {
	m.Called(ctx, groupID)
}

func (m *NotifierMock) MembershipChanged(ctx context.Context, groupID, userID string, joined bool) {
	m.Called(ctx, groupID, userID, joined)
}

func (m *NotifierMock) MessageAdded(ctx context.Context, msg models.Message) {
	m.Called(ctx, msg)
}

func (m *NotifierMock) MessageRead(ctx context.Context, groupID, messageID, userID string) {
	m.Called(ctx, groupID, messageID, userID)
}

func (m *NotifierMock) UsersChanged(ctx context.Context) {
	m.Called(ctx)
}
