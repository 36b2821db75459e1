package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/code-review-quest/internal/achievements"
	"github.com/terra-clan/code-review-quest/internal/catalog"
	"github.com/terra-clan/code-review-quest/internal/config"
	"github.com/terra-clan/code-review-quest/internal/game"
	"github.com/terra-clan/code-review-quest/internal/guest"
	"github.com/terra-clan/code-review-quest/internal/identity"
	"github.com/terra-clan/code-review-quest/internal/models"
	"github.com/terra-clan/code-review-quest/internal/storage"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type testServer struct {
	*httptest.Server
	guests *guest.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithHealth(t, nil)
}

func newTestServerWithHealth(t *testing.T, health HealthChecker) *testServer {
	t.Helper()

	loader := catalog.NewLoader()
	require.NoError(t, loader.Add(&models.Problem{
		ID:         "avg",
		Title:      "Average of a list",
		Difficulty: models.DifficultyBeginner,
		Category:   "logic",
		Code:       "def avg(xs):\n    total = 0\n    for i in range(len(xs) - 1):\n        total += xs[i]\n    return total / len(xs)\n",
		Defects: []models.Defect{
			{Line: 3, Type: "off_by_one", Description: "skips the last element"},
			{Line: 5, Type: "division_by_zero", Description: "empty list"},
		},
	}))

	repo, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	engine := achievements.NewEngine(loader)
	guests := guest.NewService(guest.NewMemoryStore(), engine, time.Hour)
	manager := game.NewManager(game.Options{
		Problems:      loader,
		Repo:          repo,
		GuestSessions: guest.NewMemorySessionStore(time.Hour),
		Guests:        guests,
		Achievements:  engine,
		ProblemStats:  repo,
	})

	srv := NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		config.SessionConfig{DefaultTimeLimit: 900, MinTimeLimit: 300, MaxTimeLimit: 1800},
		manager,
		guests,
		loader,
		identity.NewResolver(identity.NewJWTVerifier(testSecret), guests),
	).WithCountdownInterval(10 * time.Millisecond)
	if health != nil {
		srv = srv.WithHealthChecks(health)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, guests: guests}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := identity.IssueToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, env = ts.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

type fakeHealth map[string]error

func (f fakeHealth) HealthCheckAll(context.Context) map[string]error { return f }

func TestReady_UnhealthyService(t *testing.T) {
	ts := newTestServerWithHealth(t, fakeHealth{
		"redis":    errors.New("connection refused"),
		"rabbitmq": nil,
	})

	status, env := ts.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_ready", env.Error.Code)
	assert.Equal(t, "unhealthy: redis", env.Error.Message)
}

func TestSessionFlow_User(t *testing.T) {
	ts := newTestServer(t)
	auth := bearer(t, "u1")

	status, env := ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]interface{}{"difficulty": "beginner"}, auth)
	require.Equal(t, http.StatusCreated, status)
	started := decode[models.StartSessionResponse](t, env)
	assert.True(t, started.Persisted)
	assert.Equal(t, 900, started.TimeLimit)
	assert.Equal(t, 2, started.Problem.DefectCount)
	assert.NotContains(t, string(env.Data), "skips the last element")

	status, env = ts.do(t, http.MethodGet, "/api/v1/sessions/"+started.SessionID, nil, auth)
	require.Equal(t, http.StatusOK, status)
	st := decode[models.SessionStatusResponse](t, env)
	assert.Equal(t, models.SessionActive, st.Session.Status)

	// another user cannot see it
	status, env = ts.do(t, http.MethodGet, "/api/v1/sessions/"+started.SessionID, nil, bearer(t, "u2"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "session_not_found", env.Error.Code)

	submit := map[string]interface{}{"bugs": []map[string]interface{}{
		{"line_number": 3, "description": "range stops early"},
		{"line_number": 9},
	}}
	status, env = ts.do(t, http.MethodPost, "/api/v1/sessions/"+started.SessionID+"/submit", submit, auth)
	require.Equal(t, http.StatusOK, status)
	result := decode[map[string]interface{}](t, env)
	assert.Equal(t, float64(40), result["score"])
	assert.Equal(t, float64(100), result["max_score"])
	assert.NotEmpty(t, result["summary"])
	assert.NotEmpty(t, result["newly_earned_badges"])

	status, env = ts.do(t, http.MethodPost, "/api/v1/sessions/"+started.SessionID+"/submit", submit, auth)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "session_not_active", env.Error.Code)

	status, env = ts.do(t, http.MethodGet, "/api/v1/profile", nil, auth)
	require.Equal(t, http.StatusOK, status)
	profile := decode[game.Profile](t, env)
	require.NotNil(t, profile.User)
	assert.Equal(t, 1, profile.User.Stats.SessionsPlayed)

	status, env = ts.do(t, http.MethodGet, "/api/v1/leaderboard?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"user_id":"u1"`)
}

func TestStartSession_Validation(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]interface{}{"difficulty": "beginner", "time_limit": 60}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)

	status, env = ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]interface{}{"difficulty": "expert"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)

	status, env = ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]interface{}{"difficulty": "advanced"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no_problems_available", env.Error.Code)
}

func TestAnonymousSession(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodPost, "/api/v1/sessions", nil, nil)
	require.Equal(t, http.StatusCreated, status)
	started := decode[models.StartSessionResponse](t, env)
	assert.False(t, started.Persisted)

	status, env = ts.do(t, http.MethodPost, "/api/v1/sessions/"+started.SessionID+"/submit",
		map[string]interface{}{"bugs": []map[string]int{{"line_number": 3}}}, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "session_not_found", env.Error.Code)

	status, env = ts.do(t, http.MethodGet, "/api/v1/profile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", env.Error.Code)
}

func TestInvalidReport(t *testing.T) {
	ts := newTestServer(t)
	auth := bearer(t, "u1")

	_, env := ts.do(t, http.MethodPost, "/api/v1/sessions", nil, auth)
	started := decode[models.StartSessionResponse](t, env)

	status, env := ts.do(t, http.MethodPost, "/api/v1/sessions/"+started.SessionID+"/submit",
		map[string]interface{}{"bugs": []map[string]int{{"line_number": 0}}}, auth)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestGuestLifecycle(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodPost, "/api/v1/guests", map[string]string{"nickname": "bughunter"}, nil)
	require.Equal(t, http.StatusCreated, status)
	created := decode[models.CreateGuestResponse](t, env)
	assert.True(t, strings.HasPrefix(created.Handle, guest.HandlePrefix))
	assert.Equal(t, "bughunter", created.Nickname)

	headers := map[string]string{GuestHeader: created.Handle}

	status, env = ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"difficulty": "beginner"}, headers)
	require.Equal(t, http.StatusCreated, status)
	started := decode[models.StartSessionResponse](t, env)

	status, _ = ts.do(t, http.MethodPost, "/api/v1/sessions/"+started.SessionID+"/submit",
		map[string]interface{}{"bugs": []map[string]int{{"line_number": 3}, {"line_number": 5}}}, headers)
	require.Equal(t, http.StatusOK, status)

	status, env = ts.do(t, http.MethodGet, "/api/v1/guests/"+created.Handle+"/profile", nil, nil)
	require.Equal(t, http.StatusOK, status)
	profile := decode[models.GuestProfile](t, env)
	assert.Equal(t, 1, profile.SessionsPlayed)
	assert.Equal(t, 100, profile.TotalScore)

	// explanation unlocks with the completed session
	status, env = ts.do(t, http.MethodGet, "/api/v1/problems/avg/explanation?session_id="+started.SessionID, nil, headers)
	require.Equal(t, http.StatusOK, status)
	exp := decode[game.Explanation](t, env)
	assert.False(t, exp.Locked)
	assert.Len(t, exp.Bugs, 2)

	status, env = ts.do(t, http.MethodPut, "/api/v1/guests/"+created.Handle,
		map[string]interface{}{"nickname": "renamed", "bugs_found": -1}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)

	status, _ = ts.do(t, http.MethodPut, "/api/v1/guests/"+created.Handle, map[string]interface{}{"nickname": "renamed"}, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = ts.do(t, http.MethodGet, "/api/v1/guests/"+created.Handle+"/convert", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"nickname":"renamed"`)

	status, env = ts.do(t, http.MethodDelete, "/api/v1/guests/"+created.Handle, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "final_stats")

	status, env = ts.do(t, http.MethodGet, "/api/v1/guests/"+created.Handle, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "guest_not_found", env.Error.Code)

	// a stale guest header fails identity resolution
	status, env = ts.do(t, http.MethodGet, "/api/v1/profile", nil, headers)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "guest_not_found", env.Error.Code)
}

func TestStaleGuestHeader_PublicRoutes(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodPost, "/api/v1/guests", nil, nil)
	require.Equal(t, http.StatusCreated, status)
	created := decode[models.CreateGuestResponse](t, env)

	status, _ = ts.do(t, http.MethodDelete, "/api/v1/guests/"+created.Handle, nil, nil)
	require.Equal(t, http.StatusOK, status)

	stale := map[string]string{GuestHeader: created.Handle}

	status, env = ts.do(t, http.MethodPost, "/api/v1/guests", nil, stale)
	require.Equal(t, http.StatusCreated, status)
	replacement := decode[models.CreateGuestResponse](t, env)
	assert.NotEqual(t, created.Handle, replacement.Handle)

	for _, path := range []string{"/api/v1/problems", "/api/v1/problems/stats", "/api/v1/badges", "/api/v1/leaderboard"} {
		status, _ = ts.do(t, http.MethodGet, path, nil, stale)
		assert.Equal(t, http.StatusOK, status, path)
	}

	// routes acting for the caller still reject it
	status, env = ts.do(t, http.MethodPost, "/api/v1/sessions", nil, stale)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "guest_not_found", env.Error.Code)
}

func TestProblemsAndBadges(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodGet, "/api/v1/problems", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"total":1`)
	assert.NotContains(t, string(env.Data), "fix_suggestion")

	status, env = ts.do(t, http.MethodGet, "/api/v1/problems?difficulty=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = ts.do(t, http.MethodGet, "/api/v1/problems/avg/explanation", nil, nil)
	require.Equal(t, http.StatusOK, status)
	exp := decode[game.Explanation](t, env)
	assert.True(t, exp.Locked)
	assert.Empty(t, exp.Bugs)

	status, env = ts.do(t, http.MethodGet, "/api/v1/problems/missing/explanation", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "problem_not_found", env.Error.Code)

	status, env = ts.do(t, http.MethodGet, "/api/v1/problems/stats", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"by_difficulty"`)

	status, env = ts.do(t, http.MethodGet, "/api/v1/badges", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "first_bug")
}

func TestSessionWebSocket(t *testing.T) {
	ts := newTestServer(t)
	auth := bearer(t, "u1")

	_, env := ts.do(t, http.MethodPost, "/api/v1/sessions", nil, auth)
	started := decode[models.StartSessionResponse](t, env)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + started.SessionID + "/ws"
	header := http.Header{}
	header.Set("Authorization", auth["Authorization"])

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
	resp.Body.Close()

	var msg CountdownMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, CountdownTick, msg.Type)
	assert.Equal(t, started.SessionID, msg.SessionID)
	assert.Greater(t, msg.RemainingSeconds, 800)

	status, _ := ts.do(t, http.MethodPost, "/api/v1/sessions/"+started.SessionID+"/submit", nil, auth)
	require.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == CountdownCompleted {
			break
		}
	}
	assert.Equal(t, CountdownCompleted, msg.Type)
	assert.Equal(t, string(models.SessionCompleted), msg.Status)
}

func TestSessionWebSocket_NotFound(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
