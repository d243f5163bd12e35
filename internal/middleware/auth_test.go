package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestGenerateAndVerifyToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, DefaultAudience)

	token, err := v.GenerateToken("test-user-id", "test@example.com", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	userID, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "test-user-id", userID)
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, DefaultAudience)

	expired, err := v.GenerateToken("u", "", -time.Minute)
	require.NoError(t, err)

	otherSecret, err := NewJWTVerifier("another-secret-another-secret-another", DefaultAudience).GenerateToken("u", "", time.Hour)
	require.NoError(t, err)

	otherAudience, err := NewJWTVerifier(testSecret, "service_role").GenerateToken("u", "", time.Hour)
	require.NoError(t, err)

	noSubject, err := v.GenerateToken("", "", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":        expired,
		"wrong secret":   otherSecret,
		"wrong audience": otherAudience,
		"no subject":     noSubject,
		"garbage":        "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.Error(t, err)
		})
	}

	_, err = NewJWTVerifier("", "").Verify(context.Background(), expired)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	_, ok = BearerToken("abc.def")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}

func TestJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewJWTVerifier(testSecret, DefaultAudience)

	tests := []struct {
		name           string
		token          string
		expectedStatus int
	}{
		{
			name:           "Missing authorization header",
			token:          "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid token format",
			token:          "InvalidToken",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid token",
			token:          "Bearer not.a.jwt",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", tt.token)
			}
			c.Request = req

			JWTAuth(v)(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, c.IsAborted())
		})
	}
}

func TestJWTAuthWithValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewJWTVerifier(testSecret, DefaultAudience)

	userID := "test-user-id"
	token, err := v.GenerateToken(userID, "test@example.com", 1*time.Hour)
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c.Request = req

	handler := func(c *gin.Context) {
		extractedUserID, exists := GetUserID(c)
		assert.True(t, exists)
		assert.Equal(t, userID, extractedUserID)
		c.Status(http.StatusOK)
	}

	JWTAuth(v)(c)
	if !c.IsAborted() {
		handler(c)
	}

	assert.Equal(t, http.StatusOK, w.Code)
}
