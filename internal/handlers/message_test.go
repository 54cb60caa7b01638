package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wellness-chat/internal/mocks"
	"wellness-chat/internal/models"
	"wellness-chat/internal/repositories"
)

type messageFixture struct {
	groups   *mocks.GroupRepositoryMock
	messages *mocks.GroupMessageRepositoryMock
	users    *mocks.UserRepositoryMock
	notifier *mocks.NotifierMock
	router   *gin.Engine
}

func newMessageFixture() *messageFixture {
	f := &messageFixture{
		groups:   new(mocks.GroupRepositoryMock),
		messages: new(mocks.GroupMessageRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
		notifier: new(mocks.NotifierMock),
	}
	handler := NewMessageHandler(f.groups, f.messages, f.users, f.notifier, nil, zap.NewNop())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser)
	r.GET("/groups/:group_id/messages", handler.ListMessages)
	r.POST("/groups/:group_id/messages", handler.PostMessage)
	r.POST("/groups/:group_id/messages/:message_id/read", handler.MarkRead)
	f.router = r
	return f
}

func TestListMessagesForNonMember(t *testing.T) {
	f := newMessageFixture()
	f.groups.On("GetGroup", mock.Anything, "g1").Return(models.Group{ID: "g1"}, nil).Once()
	f.messages.On("ListGroupMessages", mock.Anything, "g1").Return([]models.Message{{ID: "m1", GroupID: "g1"}}, nil).Once()

	rec := serve(f.router, http.MethodGet, "/groups/g1/messages", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"m1"`)
	f.groups.AssertNotCalled(t, "IsMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesUnknownGroup(t *testing.T) {
	f := newMessageFixture()
	f.groups.On("GetGroup", mock.Anything, "g9").Return(nil, repositories.ErrGroupNotFound).Once()

	require.Equal(t, http.StatusNotFound, serve(f.router, http.MethodGet, "/groups/g9/messages", nil).Code)
}

func TestPostMessageSuccess(t *testing.T) {
	f := newMessageFixture()
	created := time.Now()
	f.groups.On("IsMember", mock.Anything, "g1", "uid-a").Return(true, nil).Once()
	f.users.On("GetUser", mock.Anything, "uid-a").
		Return(models.User{ID: "uid-a", Email: "a@example.com", DisplayName: "Ann"}, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.GroupID == "g1" && m.Text == "hello" && m.SenderDisplayName == "Ann" && m.AttachmentURL == ""
	})).Return(models.Message{ID: "m1", GroupID: "g1", Text: "hello", SenderID: "uid-a", CreatedAt: &created, ReadBy: []string{"uid-a"}}, nil).Once()
	f.notifier.On("MessageAdded", mock.Anything, mock.AnythingOfType("models.Message")).Once()

	rec := serve(f.router, http.MethodPost, "/groups/g1/messages", bytes.NewBufferString(`{"text":" hello "}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"read_by":["uid-a"]`)
	f.messages.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestPostMessageAttachmentOnly(t *testing.T) {
	f := newMessageFixture()
	f.groups.On("IsMember", mock.Anything, "g1", "uid-a").Return(true, nil).Once()
	f.users.On("GetUser", mock.Anything, "uid-a").Return(models.User{ID: "uid-a"}, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Text == "" && m.AttachmentURL == "https://cdn/x.png"
	})).Return(models.Message{ID: "m2", GroupID: "g1"}, nil).Once()
	f.notifier.On("MessageAdded", mock.Anything, mock.Anything).Once()

	rec := serve(f.router, http.MethodPost, "/groups/g1/messages", bytes.NewBufferString(`{"text":"","attachment_url":"https://cdn/x.png"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestPostMessageRejectsEmpty(t *testing.T) {
	f := newMessageFixture()

	rec := serve(f.router, http.MethodPost, "/groups/g1/messages", bytes.NewBufferString(`{"text":"   "}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.groups.AssertNotCalled(t, "IsMember", mock.Anything, mock.Anything, mock.Anything)
	f.messages.AssertNotCalled(t, "CreateGroupMessage", mock.Anything, mock.Anything)
}

func TestPostMessageRequiresMembership(t *testing.T) {
	f := newMessageFixture()
	f.groups.On("IsMember", mock.Anything, "g1", "uid-a").Return(false, nil).Once()

	rec := serve(f.router, http.MethodPost, "/groups/g1/messages", bytes.NewBufferString(`{"text":"hi"}`))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPostMessageStoreFailure(t *testing.T) {
	f := newMessageFixture()
	f.groups.On("IsMember", mock.Anything, "g1", "uid-a").Return(true, nil).Once()
	f.users.On("GetUser", mock.Anything, "uid-a").Return(models.User{ID: "uid-a"}, nil).Once()
	f.messages.On("CreateGroupMessage", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

	rec := serve(f.router, http.MethodPost, "/groups/g1/messages", bytes.NewBufferString(`{"text":"hi"}`))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	f.notifier.AssertNotCalled(t, "MessageAdded", mock.Anything, mock.Anything)
}

func TestMarkReadIdempotent(t *testing.T) {
	f := newMessageFixture()
	f.messages.On("GetGroupMessage", mock.Anything, "m1").Return(models.Message{ID: "m1", GroupID: "g1"}, nil).Twice()
	f.messages.On("MarkRead", mock.Anything, "m1", "uid-a").Return(true, nil).Once()
	f.messages.On("MarkRead", mock.Anything, "m1", "uid-a").Return(false, nil).Once()
	f.notifier.On("MessageRead", mock.Anything, "g1", "m1", "uid-a").Once()

	require.Equal(t, http.StatusNoContent, serve(f.router, http.MethodPost, "/groups/g1/messages/m1/read", nil).Code)
	require.Equal(t, http.StatusNoContent, serve(f.router, http.MethodPost, "/groups/g1/messages/m1/read", nil).Code)

	f.notifier.AssertNumberOfCalls(t, "MessageRead", 1)
}

func TestMarkReadWrongGroup(t *testing.T) {
	f := newMessageFixture()
	f.messages.On("GetGroupMessage", mock.Anything, "m1").Return(models.Message{ID: "m1", GroupID: "other"}, nil).Once()

	require.Equal(t, http.StatusNotFound, serve(f.router, http.MethodPost, "/groups/g1/messages/m1/read", nil).Code)
	f.messages.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}
