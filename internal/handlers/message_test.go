package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/fanout"
	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "mentor-1")
		c.Set(middleware.ContextDisplayName, "Alice")
		c.Next()
	})
	r.GET("/conversations/:conversation_id/messages", handler.GetMessages)
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	r.PATCH("/conversations/:conversation_id/messages/:message_id", handler.EditMessage)
	r.DELETE("/conversations/:conversation_id/messages/:message_id", handler.DeleteMessage)
	r.POST("/conversations/:conversation_id/messages/:message_id/read", handler.MarkRead)
	r.GET("/messages/search", handler.Search)
	return r
}

func newMessageHandler(convRepo *mocks.ConversationRepositoryMock, msgRepo *mocks.MessageRepositoryMock, profileRepo *mocks.ProfileRepositoryMock) *MessageHandler {
	return NewMessageHandler(convRepo, msgRepo, profileRepo, fanout.NewBus(), nil, nil)
}

func TestGetMessagesSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, msgRepo, profileRepo))

	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()
	msgRepo.On("GetMessages", mock.Anything, "c1", 50).Return([]models.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "mentee-2", Content: "hello"},
	}, nil).Once()
	profileRepo.On("GetProfiles", mock.Anything, []string{"mentee-2"}).
		Return((map[string]models.UserProfile)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.MessageWithSender `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	// Sender resolution failure degrades to the placeholder, never an error.
	assert.Equal(t, models.UnknownUserName, resp.Messages[0].SenderName)

	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestGetMessagesNotMember(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)))

	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestGetMessagesInvalidLimit(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)))

	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/messages?limit=zero", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, msgRepo, profileRepo))

	convRepo.On("GetConversation", mock.Anything, "c1").Return(models.Conversation{ID: "c1"}, nil).Once()
	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()
	profileRepo.On("EnsureProfile", mock.Anything, "mentor-1", "Alice", "").
		Return(models.UserProfile{UserID: "mentor-1", DisplayName: "Alice"}, nil).Once()
	msgRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(input repositories.NewMessage) bool {
		return input.ConversationID == "c1" && input.SenderID == "mentor-1" && input.Content == "hi"
	})).Return(models.Message{ID: "m7", ConversationID: "c1", SenderID: "mentor-1", Content: "hi", MessageType: models.MessageTypeText}, nil).Once()
	convRepo.On("TouchLastMessage", mock.Anything, "c1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.MessageWithSender
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "m7", resp.ID)
	assert.Equal(t, "Alice", resp.SenderName)

	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
	profileRepo.AssertExpectations(t)
}

func TestPostMessageProfileBootstrapFails(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, msgRepo, profileRepo))

	convRepo.On("GetConversation", mock.Anything, "c1").Return(models.Conversation{ID: "c1"}, nil).Once()
	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()
	profileRepo.On("EnsureProfile", mock.Anything, "mentor-1", "Alice", "").
		Return(models.UserProfile{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "failed to initialize profile", resp["error"])
	// Nothing may land without a sender row.
	msgRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	profileRepo.AssertExpectations(t)
}

func TestPostMessageEmptyContent(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)))

	convRepo.On("GetConversation", mock.Anything, "c1").Return(models.Conversation{ID: "c1"}, nil).Once()
	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", bytes.NewBufferString(`{"content":"   "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageConversationGone(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)))

	convRepo.On("GetConversation", mock.Anything, "c1").
		Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestEditMessageNotOwned(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, msgRepo, new(mocks.ProfileRepositoryMock)))

	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()
	// Someone else's message reads exactly like an absent one.
	msgRepo.On("EditMessage", mock.Anything, "m1", "mentor-1", "new text").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/conversations/c1/messages/m1",
		bytes.NewBufferString(`{"content":"new text"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestEditMessageSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, msgRepo, new(mocks.ProfileRepositoryMock)))

	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()
	msgRepo.On("EditMessage", mock.Anything, "m1", "mentor-1", "new text").Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/conversations/c1/messages/m1",
		bytes.NewBufferString(`{"content":"new text"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestDeleteMessageNotOwned(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, msgRepo, new(mocks.ProfileRepositoryMock)))

	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()
	msgRepo.On("DeleteMessage", mock.Anything, "m1", "mentor-1").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/c1/messages/m1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestMarkReadSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, msgRepo, new(mocks.ProfileRepositoryMock)))

	convRepo.On("IsParticipant", mock.Anything, "c1", "mentor-1").Return(true, nil).Once()
	msgRepo.On("MarkRead", mock.Anything, "m1", "mentor-1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/messages/m1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestSearchRequiresQuery(t *testing.T) {
	router := setupMessageRouter(newMessageHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)))

	req := httptest.NewRequest(http.MethodGet, "/messages/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchScopedToMemberships(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	router := setupMessageRouter(newMessageHandler(convRepo, msgRepo, profileRepo))

	convRepo.On("ListConversations", mock.Anything, "mentor-1").Return([]models.ConversationSummary{
		{Conversation: models.Conversation{ID: "c1"}},
		{Conversation: models.Conversation{ID: "c2"}},
	}, nil).Once()
	msgRepo.On("SearchMessages", mock.Anything, []string{"c1", "c2"}, "retro", 20).
		Return([]models.Message{}, nil).Once()
	profileRepo.On("GetProfiles", mock.Anything, []string{}).
		Return(map[string]models.UserProfile{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/search?q=retro", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}
