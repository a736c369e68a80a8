package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/services"
	"streamfy/internal/infrastructure/middleware"
	"streamfy/internal/infrastructure/repositories/memory"
	"streamfy/pkg/distributed"
	rlog "streamfy/pkg/logger"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router *gin.Engine
	auth   services.AuthService
	token  string
}

type staticLive []domain.ChannelID

func (s staticLive) LiveChannels() []domain.ChannelID { return s }

func newTestAPI(t *testing.T, settings domain.DJSettings) *testAPI {
	t.Helper()
	logger := zap.NewNop().Sugar()
	auth := services.NewAuthService("test-secret", time.Hour)
	dj := services.NewDJService(memory.NewMemoryDJRepository(), distributed.NewKeyedMutex(), settings, nil, logger)

	presence := memory.NewPresenceStore()
	_, err := presence.Join("conn-1", "stream-1", "alice")
	require.NoError(t, err)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(rlog.NewContextLogger(logger)))
	NewDJHandler(dj).SetupRoutes(router, middleware.AuthMiddleware(auth))
	NewRoomHandler(presence, staticLive{"stream-1"}, []webrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}}).SetupRoutes(router)
	NewAuthHandler(auth, true).SetupRoutes(router)

	token, err := auth.GenerateToken("u-alice", "alice")
	require.NoError(t, err)
	return &testAPI{router: router, auth: auth, token: token}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, authed bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func djField(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	dj, ok := body["dj"].(map[string]interface{})
	require.True(t, ok, "response has no dj object: %v", body)
	return dj
}

func TestDJHandler_Lifecycle(t *testing.T) {
	api := newTestAPI(t, domain.DefaultDJSettings())

	w, body := api.do(t, http.MethodGet, "/api/v1/dj/stream-1", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["error"])

	w, body = api.do(t, http.MethodPost, "/api/v1/dj/stream-1/init", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	dj := djField(t, body)
	assert.Equal(t, "idle", dj["state"])
	assert.Equal(t, float64(1), dj["version"])

	w, body = api.do(t, http.MethodPost, "/api/v1/dj/stream-1/queue", map[string]string{"title": "Song", "artist": "Band"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	queue := djField(t, body)["queue"].([]interface{})
	require.Len(t, queue, 1)
	track := queue[0].(map[string]interface{})
	assert.Equal(t, "u-alice", track["submitted_by"])
	assert.Equal(t, "alice", track["submitter_name"])

	w, body = api.do(t, http.MethodPost, "/api/v1/dj/stream-1/vote/0", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	track = djField(t, body)["queue"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(1), track["votes"])

	w, body = api.do(t, http.MethodPost, "/api/v1/dj/stream-1/next", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "playing", djField(t, body)["state"])

	w, _ = api.do(t, http.MethodPost, "/api/v1/dj/stream-1/next", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = api.do(t, http.MethodPost, "/api/v1/dj/stream-1/skip", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	dj = djField(t, body)
	assert.Equal(t, "idle", dj["state"])
	assert.Len(t, dj["played_tracks"], 1)

	w, body = api.do(t, http.MethodGet, "/api/v1/dj", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"stream-1"}, body["channels"])
}

func TestDJHandler_WritesRequireAuth(t *testing.T) {
	api := newTestAPI(t, domain.DefaultDJSettings())

	w, body := api.do(t, http.MethodPost, "/api/v1/dj/stream-1/init", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])
}

func TestDJHandler_ErrorMapping(t *testing.T) {
	api := newTestAPI(t, domain.DJSettings{AllowViewerRequests: false, MaxQueueSize: 1, VotingEnabled: true})
	w, _ := api.do(t, http.MethodPost, "/api/v1/dj/stream-1/init", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := api.do(t, http.MethodPost, "/api/v1/dj/stream-1/queue", map[string]string{"title": "Song"}, true)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "CAPABILITY_DISABLED", body["error"])

	w, _ = api.do(t, http.MethodPut, "/api/v1/dj/stream-1/settings", map[string]bool{"allow_viewer_requests": true}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/dj/stream-1/queue", map[string]string{"title": "Song"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	w, body = api.do(t, http.MethodPost, "/api/v1/dj/stream-1/queue", map[string]string{"title": "Another"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "QUEUE_FULL", body["error"])

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"vote out of range", http.MethodPost, "/api/v1/dj/stream-1/vote/7", nil, http.StatusNotFound},
		{"non-numeric index", http.MethodDelete, "/api/v1/dj/stream-1/queue/abc", nil, http.StatusBadRequest},
		{"remove out of range", http.MethodDelete, "/api/v1/dj/stream-1/queue/3", nil, http.StatusNotFound},
		{"missing title", http.MethodPost, "/api/v1/dj/stream-1/queue", map[string]string{"artist": "x"}, http.StatusBadRequest},
		{"bad url", http.MethodPost, "/api/v1/dj/stream-1/queue", map[string]string{"title": "x", "url": "ftp://x"}, http.StatusBadRequest},
		{"invalid settings", http.MethodPut, "/api/v1/dj/stream-1/settings", map[string]int{"max_queue_size": 0}, http.StatusBadRequest},
		{"invalid channel", http.MethodPost, "/api/v1/dj/bad%20id/skip", nil, http.StatusBadRequest},
		{"unknown channel", http.MethodPost, "/api/v1/dj/other/skip", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := api.do(t, tc.method, tc.path, tc.body, true)
			assert.Equal(t, tc.status, w.Code)
			assert.NotEmpty(t, body["message"])
		})
	}

	w, body = api.do(t, http.MethodDelete, "/api/v1/dj/stream-1/queue", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, djField(t, body)["queue"])
}

func TestToAppError_StoreUnavailable(t *testing.T) {
	appErr := toAppError(domain.ErrStoreUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)

	lockErr := fmt.Errorf("lock dj session ch: %w: %w", domain.ErrStoreUnavailable, assert.AnError)
	appErr = toAppError(lockErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)

	appErr = toAppError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
}

func TestRoomHandler(t *testing.T) {
	api := newTestAPI(t, domain.DefaultDJSettings())

	w, body := api.do(t, http.MethodGet, "/api/v1/rooms/stream-1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
	members := body["members"].([]interface{})
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].(map[string]interface{})["display_name"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/rooms/empty-room", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(t, http.MethodGet, "/api/v1/channels/live", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"stream-1"}, body["channels"])

	w, body = api.do(t, http.MethodGet, "/api/v1/ice-servers", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	servers := body["ice_servers"].([]interface{})
	require.Len(t, servers, 1)
	assert.Equal(t, []interface{}{"stun:stun.example.org:3478"}, servers[0].(map[string]interface{})["urls"])
}

func TestAuthHandler_IssueToken(t *testing.T) {
	api := newTestAPI(t, domain.DefaultDJSettings())

	w, body := api.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"username": "bob_99", "user_id": "u-bob"}, false)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u-bob", body["user_id"])

	claims, err := api.auth.ValidateToken(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{UserID: "u-bob", DisplayName: "bob_99"}, claims.Identity())

	w, _ = api.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"username": "no spaces!"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(rlog.NewContextLogger(zap.NewNop().Sugar())))
	NewAuthHandler(services.NewAuthService("s", time.Hour), false).SetupRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader([]byte(`{"username":"bob"}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
