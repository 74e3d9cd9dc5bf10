package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

var prefTestSecret = []byte("test-secret")

func setupPreferenceRouter(handler *PreferenceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "mentor-1")
		c.Next()
	})
	r.GET("/preferences", handler.GetPreferences)
	r.PUT("/preferences", handler.PutPreferences)
	r.GET("/unsubscribe", handler.Unsubscribe)
	return r
}

func signUnsubscribeToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"purpose": "unsubscribe",
		"sub":     userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(prefTestSecret)
	require.NoError(t, err)
	return signed
}

func TestGetPreferencesCreatesDefaults(t *testing.T) {
	prefRepo := new(mocks.PreferenceRepositoryMock)
	router := setupPreferenceRouter(NewPreferenceHandler(prefRepo, prefTestSecret))

	prefRepo.On("GetOrCreate", mock.Anything, "mentor-1").
		Return(models.DefaultEmailPreferences("mentor-1"), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/preferences", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	prefRepo.AssertExpectations(t)
}

func TestPutPreferencesForcesCallerID(t *testing.T) {
	prefRepo := new(mocks.PreferenceRepositoryMock)
	router := setupPreferenceRouter(NewPreferenceHandler(prefRepo, prefTestSecret))

	prefRepo.On("GetOrCreate", mock.Anything, "mentor-1").
		Return(models.DefaultEmailPreferences("mentor-1"), nil).Once()
	prefRepo.On("Save", mock.Anything, mock.MatchedBy(func(prefs models.EmailPreferences) bool {
		return prefs.UserID == "mentor-1" && !prefs.WeeklyDigest
	})).Return(nil).Once()

	body := bytes.NewBufferString(`{"user_id":"someone-else","weekly_digest":false}`)
	req := httptest.NewRequest(http.MethodPut, "/preferences", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	prefRepo.AssertExpectations(t)
}

func TestUnsubscribeWritesCallerRow(t *testing.T) {
	prefRepo := new(mocks.PreferenceRepositoryMock)
	router := setupPreferenceRouter(NewPreferenceHandler(prefRepo, prefTestSecret))

	prefRepo.On("SetUnsubscribed", mock.Anything, "user-2", true).Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe?token="+signUnsubscribeToken(t, "user-2"), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp["unsubscribed"])
	prefRepo.AssertExpectations(t)
}

func TestUnsubscribeRejectsBadToken(t *testing.T) {
	prefRepo := new(mocks.PreferenceRepositoryMock)
	router := setupPreferenceRouter(NewPreferenceHandler(prefRepo, prefTestSecret))

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe?token=garbage", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	prefRepo.AssertNotCalled(t, "SetUnsubscribed", mock.Anything, mock.Anything, mock.Anything)
}
