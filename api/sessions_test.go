package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bellafleur/benly/internal/domain"
	"github.com/bellafleur/benly/internal/service/session"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockSessionUseCase is a mock implementation of session.SessionUseCase
type MockSessionUseCase struct {
	mock.Mock
}

func (m *MockSessionUseCase) StartAuth(ctx context.Context, in session.StartAuthInput) (json.RawMessage, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockSessionUseCase) Status(ctx context.Context, sid string) (*session.StatusResponse, error) {
	args := m.Called(ctx, sid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.StatusResponse), args.Error(1)
}

func (m *MockSessionUseCase) HandleCallback(ctx context.Context, in session.CallbackInput) (*session.CallbackResponse, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.CallbackResponse), args.Error(1)
}

func (m *MockSessionUseCase) RenewLink(ctx context.Context, sid, fallbackUA string) (*session.AuthResponse, error) {
	args := m.Called(ctx, sid, fallbackUA)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.AuthResponse), args.Error(1)
}

func (m *MockSessionUseCase) Hint(ua string) domain.OpenHint {
	args := m.Called(ua)
	return args.Get(0).(domain.OpenHint)
}

func (m *MockSessionUseCase) LiffID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSessionUseCase) ListSessions(ctx context.Context) (*session.SessionList, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.SessionList), args.Error(1)
}

func (m *MockSessionUseCase) GetSession(ctx context.Context, sid string) (*domain.Session, error) {
	args := m.Called(ctx, sid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionUseCase) DeleteSession(ctx context.Context, sid string) error {
	args := m.Called(ctx, sid)
	return args.Error(0)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRouter(svc session.SessionUseCase, dev bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewSessionHandler(svc, testLogger())
	handler.Register(router)
	if dev {
		handler.RegisterDev(router)
	}
	return router
}

func postJSON(router *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStartAuth_OK(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	payload := json.RawMessage(`{"ok":true,"sid":"s1","status":"AUTHING","step":2}`)
	mockService.On("StartAuth", mock.Anything, mock.MatchedBy(func(in session.StartAuthInput) bool {
		return in.SID == "s1" && in.IdempotencyKey == "key-1"
	})).Return(payload, nil)

	w := postJSON(router, "/start-auth", gin.H{"sid": "s1"}, map[string]string{"Idempotency-Key": "key-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, string(payload), w.Body.String())
	mockService.AssertExpectations(t)
}

func TestStartAuth_ClickTokenFallsBackAsIdempotencyKey(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	mockService.On("StartAuth", mock.Anything, mock.MatchedBy(func(in session.StartAuthInput) bool {
		return in.IdempotencyKey == "tok-9" && in.ClickToken == "tok-9"
	})).Return(json.RawMessage(`{"ok":true}`), nil)

	w := postJSON(router, "/start-auth", gin.H{"sid": "s1", "click_token": "tok-9"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestStartAuth_MissingSID(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	mockService.On("StartAuth", mock.Anything, mock.Anything).Return(nil, domain.ErrMissingSID)

	w := postJSON(router, "/start-auth", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SID")
}

func TestStatus_UnknownSIDIsSoft(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	mockService.On("Status", mock.Anything, "nope").Return(nil, domain.ErrUnknownSession)

	req := httptest.NewRequest("GET", "/status?sid=nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "unknown sid is not an HTTP error on polling")
	var body map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "INVALID_SID", body["error"])
}

func TestStatus_OK(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	ttl := int64(90)
	mockService.On("Status", mock.Anything, "s1").Return(&session.StatusResponse{
		OK: true, SID: "s1", Status: domain.StatusAuthing, Step: 2, TTL: &ttl,
	}, nil)

	req := httptest.NewRequest("GET", "/status?sid=s1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp session.StatusResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusAuthing, resp.Status)
	assert.Equal(t, int64(90), *resp.TTL)
}

func TestCallback_TxMismatch(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	mockService.On("HandleCallback", mock.Anything, mock.Anything).Return(nil, domain.ErrTxMismatch)

	w := postJSON(router, "/dlt/callback", gin.H{"sid": "s1", "txID": "stale"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "TX_MISMATCH")
}

func TestCallback_UnknownSessionIs404(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	mockService.On("HandleCallback", mock.Anything, mock.Anything).Return(nil, domain.ErrUnknownSession)

	w := postJSON(router, "/dlt/callback", gin.H{"sid": "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestCallback_MissingSID(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	w := postJSON(router, "/dlt/callback", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "HandleCallback")
}

func TestRenewLink_CannotRenew(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	mockService.On("RenewLink", mock.Anything, "s1", mock.Anything).Return(nil, domain.ErrCannotRenew)

	w := postJSON(router, "/renew-link", gin.H{"sid": "s1"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "CANNOT_RENEW")
}

func TestRenewLink_OK(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	mockService.On("RenewLink", mock.Anything, "s1", mock.Anything).Return(&session.AuthResponse{
		OK: true, SID: "s1", Status: domain.StatusAuthing, Step: 2,
		Auth: session.AuthBlock{TxID: "tx-2", DeepLink: "https://example/?txID=tx-2", ExpiresIn: 180},
	}, nil)

	w := postJSON(router, "/renew-link", gin.H{"sid": "s1"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp session.AuthResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "tx-2", resp.Auth.TxID)
}

func TestConfig(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	liff := "liff-123"
	mockService.On("Hint", "Line/13.5.0").Return(domain.OpenHint{
		InLine: true, OpenStrategy: domain.OpenLiffExternal, LiffID: &liff,
	})

	req := httptest.NewRequest("GET", "/config", nil)
	req.Header.Set("User-Agent", "Line/13.5.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "liff-123", body["liff_id"])
	hint := body["hint"].(map[string]any)
	assert.Equal(t, "liff_external", hint["open_strategy"])
}

func TestHealth(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "up")
}

func TestDevRoutes_NotRegisteredByDefault(t *testing.T) {
	mockService := &MockSessionUseCase{}
	router := newTestRouter(mockService, false)

	req := httptest.NewRequest("GET", "/sessions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
