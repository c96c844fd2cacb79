package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/auth"
	"upbit-trading-bot/internal/events"
)

type stubBot struct {
	running bool
}

func (b *stubBot) Start() error {
	if b.running {
		return errors.New("already running")
	}
	b.running = true
	return nil
}

func (b *stubBot) Stop() error {
	if !b.running {
		return errors.New("not running")
	}
	b.running = false
	return nil
}

func (b *stubBot) Status() map[string]any {
	return map[string]any{"running": b.running, "ticker": "KRW-BTC"}
}

func (b *stubBot) TriggerTick() error { return nil }

func newTestServer(t *testing.T, authSvc *auth.Service) (*Server, *stubBot) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bot := &stubBot{}
	srv := NewServer(Config{Port: 0}, nil, events.NewBus(), bot, nil, authSvc, zerolog.Nop())
	return srv, bot
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthWithoutDatabase(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp["status"])
	require.Equal(t, "disabled", resp["database"])
}

func TestBotStartStopLifecycle(t *testing.T) {
	srv, bot := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/bot/start", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, bot.running)

	rec = doJSON(t, srv, http.MethodPost, "/api/bot/start", nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/bot/stop", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, bot.running)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	hash, err := auth.HashPassword("dashboard-pw")
	require.NoError(t, err)
	authSvc := auth.NewService(auth.Config{
		Username:     "operator",
		PasswordHash: hash,
		JWTSecret:    "api-test-secret",
	})
	srv, _ := newTestServer(t, authSvc)

	rec := doJSON(t, srv, http.MethodGet, "/api/bot/status", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "operator",
		"password": "dashboard-pw",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	require.NotEmpty(t, pair.AccessToken)

	rec = doJSON(t, srv, http.MethodGet, "/api/bot/status", nil, map[string]string{
		"Authorization": "Bearer " + pair.AccessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "KRW-BTC", status["ticker"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	hash, err := auth.HashPassword("dashboard-pw")
	require.NoError(t, err)
	authSvc := auth.NewService(auth.Config{
		Username:     "operator",
		PasswordHash: hash,
		JWTSecret:    "api-test-secret",
	})
	srv, _ := newTestServer(t, authSvc)

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "operator",
		"password": "nope",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHistoryEndpointsWithoutDatabase(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/api/trades", "/api/ticks", "/api/scans"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil, nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}
