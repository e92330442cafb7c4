package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(auth *APIKeyAuth) *gin.Engine {
	r := gin.New()
	r.POST("/admin", auth.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestNewAPIKeyAuth(t *testing.T) {
	t.Parallel()

	t.Run("filters out empty keys", func(t *testing.T) {
		t.Parallel()

		auth := NewAPIKeyAuth([]string{"key1", "", "key2", ""}, nil)

		require.NotNil(t, auth)
		assert.Equal(t, 2, len(auth.apiKeys))
		assert.True(t, auth.apiKeys["key1"])
		assert.True(t, auth.apiKeys["key2"])
	})

	t.Run("uses nop logger when nil", func(t *testing.T) {
		t.Parallel()

		auth := NewAPIKeyAuth([]string{"key1"}, nil)
		require.NotNil(t, auth.logger)
	})

	t.Run("uses provided logger", func(t *testing.T) {
		t.Parallel()

		logger := zap.NewExample()
		auth := NewAPIKeyAuth([]string{"key1"}, logger)
		assert.Equal(t, logger, auth.logger)
	})
}

func TestAPIKeyAuth_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		validKeys  []string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "valid X-API-Key header",
			validKeys:  []string{"secret"},
			headers:    map[string]string{"X-API-Key": "secret"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid bearer token",
			validKeys:  []string{"secret"},
			headers:    map[string]string{"Authorization": "Bearer secret"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "second of several keys",
			validKeys:  []string{"one", "two"},
			headers:    map[string]string{"X-API-Key": "two"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "X-API-Key takes precedence over bearer",
			validKeys:  []string{"secret"},
			headers:    map[string]string{"X-API-Key": "wrong", "Authorization": "Bearer secret"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing key",
			validKeys:  []string{"secret"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "basic auth scheme is ignored",
			validKeys:  []string{"secret"},
			headers:    map[string]string{"Authorization": "Basic secret"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no keys configured rejects everything",
			headers:    map[string]string{"X-API-Key": "secret"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newTestRouter(NewAPIKeyAuth(tt.validKeys, nil))

			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "Unauthorized", body["error"])
			}
		})
	}
}

func TestAPIKeyAuth_IsValidAPIKey(t *testing.T) {
	t.Parallel()

	auth := NewAPIKeyAuth([]string{"valid-key-123"}, nil)

	assert.True(t, auth.isValidAPIKey("valid-key-123"))
	assert.False(t, auth.isValidAPIKey(""))
	assert.False(t, auth.isValidAPIKey("valid-key-12"))
	assert.False(t, auth.isValidAPIKey("valid-key-1234"))
	assert.False(t, auth.isValidAPIKey("VALID-KEY-123"))
}
