package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaani-voice/backend/config"
	"github.com/vaani-voice/backend/internal/contact"
	"github.com/vaani-voice/backend/internal/livekit"
	"github.com/vaani-voice/backend/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fullRouter(lk config.LiveKitConfig) *gin.Engine {
	svc := contact.NewService(contact.NewMemoryStore(), nil, nil)
	return NewRouter(Deps{
		Contact:        contact.NewHandler(svc, nil),
		LiveKit:        livekit.NewHandler(livekit.NewIssuer(lk, nil), nil),
		AllowedOrigins: "*",
		Now:            func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestHealthWithoutIssuerConfig(t *testing.T) {
	r := fullRouter(config.LiveKitConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body HealthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", body.Timestamp)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestHealthWithNoOtherRoutes(t *testing.T) {
	r := NewRouter(Deps{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConnectionDetailsMisconfigured(t *testing.T) {
	r := fullRouter(config.LiveKitConfig{APIKey: "key"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connection-details", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Server misconfigured"}`, w.Body.String())
}

func TestConnectionDetailsIssued(t *testing.T) {
	r := fullRouter(config.LiveKitConfig{APIKey: "key", APISecret: "secret", URL: "wss://rtc.example"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connection-details", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var cred livekit.Credential
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cred))
	assert.Equal(t, "wss://rtc.example", cred.ServerURL)

	claims, err := livekit.NewVerifier("key", "secret").Verify(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, cred.RoomName, claims.Video.Room)
	assert.Equal(t, cred.ParticipantName, claims.Identity())
}

func TestContactRoute(t *testing.T) {
	r := fullRouter(config.LiveKitConfig{})

	body := `{"name":"Ada","email":"ada@example.com","companyName":"Analytical"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{"name":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Email is required","field":"email"}`, w.Body.String())
}

func TestRelayNotMountedByDefault(t *testing.T) {
	r := NewRouter(Deps{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rtc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
