package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fghsg9075-lab/aios/pkg/api"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter_SweepEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1, zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("10.0.0.1")
	now = now.Add(limiterTTL / 2)
	rl.getLimiter("10.0.0.2")

	now = now.Add(limiterTTL/2 + time.Second)
	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "10.0.0.2")
}

func TestErrorHandler(t *testing.T) {
	engine := gin.New()
	engine.Use(Identity(), ErrorHandler(zap.NewNop()))
	engine.GET("/problem", func(c *gin.Context) {
		_ = c.Error(api.NotFoundError("provider not found: x"))
	})
	engine.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/problem", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"type":"about:blank","title":"Not Found","status":404,"detail":"provider not found: x","instance":"/problem"}`, w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestIdentity(t *testing.T) {
	engine := gin.New()
	engine.Use(Identity())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c)+"|"+AppName(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	req.Header.Set(HeaderAppName, "notes-app")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "abc|notes-app", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS([]string{"https://ok.example"}))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://ok.example")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "https://ok.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
