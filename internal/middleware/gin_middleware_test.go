package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/emi-calculator/internal/logger"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return router
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name           string
		production     bool
		forwardedProto string
		expectedCode   int
		location       string
	}{
		{name: "development serves plain http", production: false, expectedCode: http.StatusOK},
		{name: "production redirects to https", production: true, expectedCode: http.StatusMovedPermanently, location: "https://example.com/health"},
		{name: "production behind tls proxy", production: true, forwardedProto: "https", expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(SecurityHeaders(tt.production))

			request := httptest.NewRequest(http.MethodGet, "http://example.com/health", nil)
			if tt.forwardedProto != "" {
				request.Header.Set("X-Forwarded-Proto", tt.forwardedProto)
			}
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, request)

			assert.Equal(t, tt.expectedCode, recorder.Code)
			assert.Equal(t, tt.location, recorder.Header().Get("Location"))
			if tt.expectedCode == http.StatusOK {
				assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
				assert.Equal(t, "DENY", recorder.Header().Get("X-Frame-Options"))
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var out bytes.Buffer
	router := newRouter(RequestID(), RequestLogger(logger.NewWithOutput("info", "json", &out)))

	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	request.Header.Set("X-Request-ID", "abc-123")
	router.ServeHTTP(httptest.NewRecorder(), request)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "HTTP Request", entry["msg"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, "/health", entry["path"])
	assert.Equal(t, "abc-123", entry["request_id"])
}

func TestRequestID_Generated(t *testing.T) {
	router := newRouter(RequestID())

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, first.Header().Get("X-Request-ID"), 36)
	assert.NotEqual(t, first.Header().Get("X-Request-ID"), second.Header().Get("X-Request-ID"))
}

func TestCORS_Preflight(t *testing.T) {
	router := newRouter(CORS())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodOptions, "/health", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Methods"), "PUT")
}
