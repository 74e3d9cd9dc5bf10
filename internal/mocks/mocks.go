package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) GetOrCreateDirectConversation(ctx context.Context, userA, userB string) (string, error) {
	args := m.Called(ctx, userA, userB)
	return args.String(0), args.Error(1)
}

func (m *ConversationRepositoryMock) CreateGroupConversation(ctx context.Context, adminID, title string, memberIDs []string, maxParticipants int) (models.Conversation, error) {
	args := m.Called(ctx, adminID, title, memberIDs, maxParticipants)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) Participants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	args := m.Called(ctx, conversationID)
	var list []models.Participant
	if val := args.Get(0); val != nil {
		list = val.([]models.Participant)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) UpdateFlags(ctx context.Context, conversationID string, flags models.ConversationFlags) error {
	args := m.Called(ctx, conversationID, flags)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) TouchLastMessage(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, input repositories.NewMessage) (models.Message, error) {
	args := m.Called(ctx, input)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID, senderID, content string) (bool, error) {
	args := m.Called(ctx, messageID, senderID, content)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID, senderID string) (bool, error) {
	args := m.Called(ctx, messageID, senderID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) SearchMessages(ctx context.Context, conversationIDs []string, query string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationIDs, query, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var profile models.UserProfile
	if val := args.Get(0); val != nil {
		profile = val.(models.UserProfile)
	}
	return profile, args.Error(1)
}

func (m *ProfileRepositoryMock) GetProfiles(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error) {
	args := m.Called(ctx, userIDs)
	var profiles map[string]models.UserProfile
	if val := args.Get(0); val != nil {
		profiles = val.(map[string]models.UserProfile)
	}
	return profiles, args.Error(1)
}

func (m *ProfileRepositoryMock) EnsureProfile(ctx context.Context, userID, displayName, email string) (models.UserProfile, error) {
	args := m.Called(ctx, userID, displayName, email)
	var profile models.UserProfile
	if val := args.Get(0); val != nil {
		profile = val.(models.UserProfile)
	}
	return profile, args.Error(1)
}

func (m *ProfileRepositoryMock) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

type PreferenceRepositoryMock struct {
	mock.Mock
}

func (m *PreferenceRepositoryMock) GetOrCreate(ctx context.Context, userID string) (models.EmailPreferences, error) {
	args := m.Called(ctx, userID)
	var prefs models.EmailPreferences
	if val := args.Get(0); val != nil {
		prefs = val.(models.EmailPreferences)
	}
	return prefs, args.Error(1)
}

func (m *PreferenceRepositoryMock) Save(ctx context.Context, prefs models.EmailPreferences) error {
	args := m.Called(ctx, prefs)
	return args.Error(0)
}

func (m *PreferenceRepositoryMock) SetUnsubscribed(ctx context.Context, userID string, unsubscribed bool) error {
	args := m.Called(ctx, userID, unsubscribed)
	return args.Error(0)
}

func (m *PreferenceRepositoryMock) LogEmail(ctx context.Context, userID, templateID, messageID string) error {
	args := m.Called(ctx, userID, templateID, messageID)
	return args.Error(0)
}
