package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/nutrilog/internal/metrics"
	"github.com/mamadbah2/nutrilog/internal/repository/memory"
	"github.com/mamadbah2/nutrilog/internal/server/handlers"
	"github.com/mamadbah2/nutrilog/internal/service/dailymeals"
	"github.com/mamadbah2/nutrilog/internal/session"
)

type stack struct {
	server   *httptest.Server
	view     *dailymeals.Service
	provider *session.Provider
}

func newStack(t *testing.T) *stack {
	t.Helper()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	provider := session.NewProvider(session.LocalAuthenticator{UserID: "u1"}, nil)
	view := dailymeals.NewService(memory.NewStore(nil), provider, time.Local, nil, dailymeals.WithRecorder(collector))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = view.Run(ctx)
	}()

	engine := New(handlers.NewMealHandler(view, provider, nil), metrics.Handler(reg), nil)
	srv := httptest.NewServer(engine)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return &stack{server: srv, view: view, provider: provider}
}

func (s *stack) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *stack) today(t *testing.T) dailymeals.State {
	t.Helper()
	resp := s.do(t, http.MethodGet, "/api/today", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state dailymeals.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func TestHealthz(t *testing.T) {
	s := newStack(t)

	resp := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMealLifecycleOverHTTP(t *testing.T) {
	s := newStack(t)

	resp := s.do(t, http.MethodPost, "/api/meals", `{"name":"early"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, err := s.provider.SignInAnonymously(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.today(t).Status == dailymeals.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	resp = s.do(t, http.MethodPost, "/api/meals", `{"name":"lunch","calories":"500","protein":"30","carbs":"50","fat":"10"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = s.do(t, http.MethodPost, "/api/meals", `{"name":"snack","calories":"300","protein":"20","carbs":"20","fat":"5"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var state dailymeals.State
	require.Eventually(t, func() bool {
		state = s.today(t)
		return len(state.Meals) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 800, state.Totals.Calories)
	assert.Equal(t, 50, state.Totals.Protein)
	assert.Equal(t, 70, state.Totals.Carbs)
	assert.Equal(t, 15, state.Totals.Fat)

	id := state.Meals[0].ID
	assert.Equal(t, http.StatusAccepted, s.do(t, http.MethodDelete, "/api/meals/"+id, "").StatusCode)
	assert.Equal(t, http.StatusAccepted, s.do(t, http.MethodDelete, "/api/meals/"+id, "").StatusCode)

	require.Eventually(t, func() bool {
		state = s.today(t)
		return len(state.Meals) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 300, state.Totals.Calories)

	resp = s.do(t, http.MethodGet, "/metrics", "")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `nutrilog_meal_writes_total{op="add",result="ok"} 2`)
}

func TestLiveStreamPushesFrames(t *testing.T) {
	s := newStack(t)

	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/today/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame dailymeals.State
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, dailymeals.StatusLoading, frame.Status)

	_, err = s.provider.SignInAnonymously(context.Background())
	require.NoError(t, err)

	for frame.Status != dailymeals.StatusReady {
		require.NoError(t, conn.ReadJSON(&frame))
	}
	assert.Equal(t, "u1", frame.UserID)

	resp := s.do(t, http.MethodPost, "/api/meals", `{"name":"tea","calories":"5"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	for len(frame.Meals) == 0 {
		require.NoError(t, conn.ReadJSON(&frame))
	}
	assert.Equal(t, "tea", frame.Meals[0].Name)
	assert.Equal(t, 5, frame.Totals.Calories)
}
