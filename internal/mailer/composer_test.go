package mailer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type fakeProvider struct {
	mu    sync.Mutex
	sent  []OutboundEmail
	err   error
	msgID string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(ctx context.Context, email OutboundEmail) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, email)
	if p.msgID != "" {
		return p.msgID, nil
	}
	return "fake-1", nil
}

func (p *fakeProvider) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func newTestService(provider Provider, profiles *mocks.ProfileRepositoryMock, prefs *mocks.PreferenceRepositoryMock) *Service {
	return NewService(NewRegistry(), provider, profiles, prefs, []byte("test-secret"), "https://example.com")
}

func TestSendEmailSuccess(t *testing.T) {
	provider := &fakeProvider{msgID: "msg-42"}
	profiles := new(mocks.ProfileRepositoryMock)
	prefs := new(mocks.PreferenceRepositoryMock)
	svc := newTestService(provider, profiles, prefs)

	profiles.On("FindUserIDByEmail", mock.Anything, "bob@example.com").Return("user-2", nil).Once()
	prefs.On("GetOrCreate", mock.Anything, "user-2").Return(models.DefaultEmailPreferences("user-2"), nil).Once()
	prefs.On("LogEmail", mock.Anything, "user-2", "new_message", "msg-42").Return(nil).Maybe()

	result, err := svc.SendEmail(context.Background(), Options{
		To:         "bob@example.com",
		TemplateID: "new_message",
		Variables: map[string]string{
			"recipientName":    "Bob",
			"senderName":       "Alice",
			"messagePreview":   "hello",
			"conversationLink": "https://example.com/conversations/c1",
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "msg-42", result.MessageID)
	assert.Equal(t, StatusSent, result.DeliveryStatus)

	require.Equal(t, 1, provider.sentCount())
	assert.Contains(t, provider.sent[0].HTML, "https://example.com/unsubscribe?token=")
	profiles.AssertExpectations(t)
}

func TestSendEmailGatedByPreference(t *testing.T) {
	provider := &fakeProvider{}
	profiles := new(mocks.ProfileRepositoryMock)
	prefs := new(mocks.PreferenceRepositoryMock)
	svc := newTestService(provider, profiles, prefs)

	disabled := models.DefaultEmailPreferences("user-2")
	disabled.NewMessages = false
	profiles.On("FindUserIDByEmail", mock.Anything, "bob@example.com").Return("user-2", nil).Once()
	prefs.On("GetOrCreate", mock.Anything, "user-2").Return(disabled, nil).Once()

	result, err := svc.SendEmail(context.Background(), Options{To: "bob@example.com", TemplateID: "new_message"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, StatusSkipped, result.DeliveryStatus)
	assert.Zero(t, provider.sentCount())
}

func TestSendEmailGlobalUnsubscribeSupersedes(t *testing.T) {
	provider := &fakeProvider{}
	profiles := new(mocks.ProfileRepositoryMock)
	prefs := new(mocks.PreferenceRepositoryMock)
	svc := newTestService(provider, profiles, prefs)

	unsubscribed := models.DefaultEmailPreferences("user-2")
	unsubscribed.Unsubscribed = true
	profiles.On("FindUserIDByEmail", mock.Anything, "bob@example.com").Return("user-2", nil).Once()
	prefs.On("GetOrCreate", mock.Anything, "user-2").Return(unsubscribed, nil).Once()

	result, err := svc.SendEmail(context.Background(), Options{To: "bob@example.com", TemplateID: "weekly_digest"})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.DeliveryStatus)
	assert.Zero(t, provider.sentCount())
}

func TestSendEmailUnknownRecipientSkipsGating(t *testing.T) {
	provider := &fakeProvider{}
	profiles := new(mocks.ProfileRepositoryMock)
	prefs := new(mocks.PreferenceRepositoryMock)
	svc := newTestService(provider, profiles, prefs)

	profiles.On("FindUserIDByEmail", mock.Anything, "stranger@example.com").
		Return("", repositories.ErrProfileNotFound).Once()

	result, err := svc.SendEmail(context.Background(), Options{To: "stranger@example.com", TemplateID: "connection_request"})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, result.DeliveryStatus)
	require.Equal(t, 1, provider.sentCount())
	prefs.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)

	// An unsubscribe click cannot reach a preference row for an unresolved
	// recipient, so no link is offered and no tag leaks through.
	assert.NotContains(t, provider.sent[0].HTML, "unsubscribe?token=")
	assert.NotContains(t, provider.sent[0].HTML, "{{")
	assert.NotContains(t, provider.sent[0].Text, "{{")
}

func TestSendEmailUnknownTemplate(t *testing.T) {
	provider := &fakeProvider{}
	profiles := new(mocks.ProfileRepositoryMock)
	svc := newTestService(provider, profiles, new(mocks.PreferenceRepositoryMock))

	profiles.On("FindUserIDByEmail", mock.Anything, "bob@example.com").
		Return("", repositories.ErrProfileNotFound).Once()

	_, err := svc.SendEmail(context.Background(), Options{To: "bob@example.com", TemplateID: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	assert.Zero(t, provider.sentCount())
}

func TestSendEmailProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("smtp down")}
	profiles := new(mocks.ProfileRepositoryMock)
	svc := newTestService(provider, profiles, new(mocks.PreferenceRepositoryMock))

	profiles.On("FindUserIDByEmail", mock.Anything, "bob@example.com").
		Return("", repositories.ErrProfileNotFound).Once()

	_, err := svc.SendEmail(context.Background(), Options{To: "bob@example.com", TemplateID: "new_message"})
	require.Error(t, err)
}

func TestSendEmailMissingRecipient(t *testing.T) {
	svc := newTestService(&fakeProvider{}, new(mocks.ProfileRepositoryMock), new(mocks.PreferenceRepositoryMock))
	_, err := svc.SendEmail(context.Background(), Options{TemplateID: "new_message"})
	require.Error(t, err)
}

func TestNotifyNewMessageSkipsRecipientsWithoutEmail(t *testing.T) {
	provider := &fakeProvider{}
	profiles := new(mocks.ProfileRepositoryMock)
	prefs := new(mocks.PreferenceRepositoryMock)
	svc := newTestService(provider, profiles, prefs)

	email := "bob@example.com"
	profiles.On("GetProfiles", mock.Anything, []string{"user-2", "user-3"}).Return(map[string]models.UserProfile{
		"user-2": {UserID: "user-2", DisplayName: "Bob", Email: &email},
		"user-3": {UserID: "user-3", DisplayName: "Carol"},
	}, nil).Once()
	profiles.On("FindUserIDByEmail", mock.Anything, "bob@example.com").Return("user-2", nil).Once()
	prefs.On("GetOrCreate", mock.Anything, "user-2").Return(models.DefaultEmailPreferences("user-2"), nil).Once()
	prefs.On("LogEmail", mock.Anything, "user-2", "new_message", mock.Anything).Return(nil).Maybe()

	msg := models.MessageWithSender{
		Message:    models.Message{ID: "m1", ConversationID: "c1", SenderID: "user-1", Content: "hello"},
		SenderName: "Alice",
	}
	svc.NotifyNewMessage(context.Background(), msg, []string{"user-2", "user-3"})

	assert.Equal(t, 1, provider.sentCount())
	profiles.AssertExpectations(t)
}

func TestNotifyNewMessagePreviewTruncatesOnRuneBoundary(t *testing.T) {
	provider := &fakeProvider{}
	profiles := new(mocks.ProfileRepositoryMock)
	prefs := new(mocks.PreferenceRepositoryMock)
	svc := newTestService(provider, profiles, prefs)

	email := "bob@example.com"
	profiles.On("GetProfiles", mock.Anything, []string{"user-2"}).Return(map[string]models.UserProfile{
		"user-2": {UserID: "user-2", DisplayName: "Bob", Email: &email},
	}, nil).Once()
	profiles.On("FindUserIDByEmail", mock.Anything, "bob@example.com").Return("user-2", nil).Once()
	prefs.On("GetOrCreate", mock.Anything, "user-2").Return(models.DefaultEmailPreferences("user-2"), nil).Once()
	prefs.On("LogEmail", mock.Anything, "user-2", "new_message", mock.Anything).Return(nil).Maybe()

	msg := models.MessageWithSender{
		Message:    models.Message{ID: "m1", ConversationID: "c1", SenderID: "user-1", Content: strings.Repeat("界", 150)},
		SenderName: "Alice",
	}
	svc.NotifyNewMessage(context.Background(), msg, []string{"user-2"})

	require.Equal(t, 1, provider.sentCount())
	assert.True(t, utf8.ValidString(provider.sent[0].HTML))
	assert.Contains(t, provider.sent[0].HTML, strings.Repeat("界", 140)+"…")
	assert.NotContains(t, provider.sent[0].HTML, strings.Repeat("界", 141))
}

func TestUnsubscribeTokenRoundTrip(t *testing.T) {
	svc := newTestService(&fakeProvider{}, new(mocks.ProfileRepositoryMock), new(mocks.PreferenceRepositoryMock))

	link, err := svc.unsubscribeLink("user-2")
	require.NoError(t, err)
	require.Contains(t, link, "https://example.com/unsubscribe?token=")

	token := link[len("https://example.com/unsubscribe?token="):]
	userID, err := ParseUnsubscribeToken([]byte("test-secret"), token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}

func TestParseUnsubscribeTokenWrongSecret(t *testing.T) {
	svc := newTestService(&fakeProvider{}, new(mocks.ProfileRepositoryMock), new(mocks.PreferenceRepositoryMock))

	link, err := svc.unsubscribeLink("user-2")
	require.NoError(t, err)
	token := link[len("https://example.com/unsubscribe?token="):]

	_, err = ParseUnsubscribeToken([]byte("other-secret"), token)
	require.Error(t, err)
}

func TestParseUnsubscribeTokenRejectsSessionTokens(t *testing.T) {
	// A plain session token lacks the purpose claim and must not unsubscribe.
	_, err := ParseUnsubscribeToken([]byte("test-secret"), "not-a-token")
	require.Error(t, err)
}
