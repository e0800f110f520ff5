package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newMiddlewareRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw...)
	router.POST("/echo", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	router.GET("/echo", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return router
}

func TestRequireJSON_RejectsWrongContentType(t *testing.T) {
	router := newMiddlewareRouter(RequireJSON())

	req := httptest.NewRequest("POST", "/echo", strings.NewReader("sid=s1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Contains(t, w.Body.String(), "UNSUPPORTED_MEDIA")
}

func TestRequireJSON_AllowsJSONAndGets(t *testing.T) {
	router := newMiddlewareRouter(RequireJSON())

	req := httptest.NewRequest("POST", "/echo", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/echo", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS_RejectsUnknownOrigin(t *testing.T) {
	router := newMiddlewareRouter(CORS([]string{"https://app.example.com"}))

	req := httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "CORS")
}

func TestCORS_AllowsListedOriginAndNoOrigin(t *testing.T) {
	router := newMiddlewareRouter(CORS([]string{"https://app.example.com"}))

	req := httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	// curl / health checks send no Origin at all.
	req = httptest.NewRequest("GET", "/echo", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	router := newMiddlewareRouter(RateLimit(2))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/echo", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest("GET", "/echo", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}
