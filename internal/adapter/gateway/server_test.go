package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"webchat/internal/domain"
	"webchat/internal/infra/config"
	"webchat/internal/infra/metrics"
	"webchat/internal/usecase"
)

// --- test doubles ---

// scriptedStreamer replays deltas for every turn. When gate is set each
// turn signals started and waits for gate before replaying.
type scriptedStreamer struct {
	deltas  []domain.StreamDelta
	gate    chan struct{}
	started chan struct{}
}

func (s *scriptedStreamer) StreamChat(ctx context.Context, _ []domain.Message, _ string, _ float64) <-chan domain.StreamDelta {
	out := make(chan domain.StreamDelta)
	go func() {
		defer close(out)
		if s.gate != nil {
			s.started <- struct{}{}
			select {
			case <-s.gate:
			case <-ctx.Done():
				return
			}
		}
		for _, d := range s.deltas {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

var testSettings = domain.Settings{Model: "gpt-4o-mini", Temperature: 0.7, SystemPrompt: "You are a helpful assistant."}

type testEnv struct {
	srv      *Server
	http     *httptest.Server
	sessions *usecase.SessionManager
	metrics  *metrics.Collector
}

func newTestEnv(t *testing.T, cfg config.ServerConfig, streamer usecase.Streamer) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := usecase.NewSessionManager(testSettings, cfg.MaxSessions)
	collector := metrics.New()
	srv := NewServer(cfg, "/metrics", Deps{
		Sessions:   sessions,
		Controller: usecase.NewController(streamer, logger, usecase.WithObserver(collector)),
		Metrics:    collector,
		Logger:     logger,
		Status:     StatusInfo{Version: "test", Provider: "openai", Model: testSettings.Model},
	})

	ctx, cancel := context.WithCancel(context.Background())
	hs := httptest.NewServer(srv.Handler(ctx))
	t.Cleanup(func() {
		hs.Close()
		cancel()
	})
	return &testEnv{srv: srv, http: hs, sessions: sessions, metrics: collector}
}

func (e *testEnv) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err, "dial")
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var f Frame
	require.NoError(t, wsjson.Read(ctx, ws, &f))
	return f
}

// connect dials and consumes the session.ready event.
func connect(t *testing.T, e *testEnv) (*websocket.Conn, sessionInfo) {
	t.Helper()
	ws := dialWS(t, e.wsURL(""))
	f := readFrame(t, ws)
	require.Equal(t, FrameTypeEvent, f.Type)
	require.Equal(t, EventSessionReady, f.Event)
	var info sessionInfo
	require.NoError(t, json.Unmarshal(f.Payload, &info))
	return ws, info
}

func call(t *testing.T, ws *websocket.Conn, id uint64, method string, payload any) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	require.NoError(t, wsjson.Write(context.Background(), ws, Frame{
		Type: FrameTypeRequest, ID: id, Method: method, Payload: raw,
	}))
}

// --- tests ---

func TestServerLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, "", Deps{
		Sessions:   usecase.NewSessionManager(testSettings, 0),
		Controller: usecase.NewController(&scriptedStreamer{}, logger),
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.BoundAddr() != "" }, 3*time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + srv.BoundAddr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerAuthReject(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{
		Auth: config.AuthConfig{Tokens: []config.TokenConfig{{Token: "test-token", Name: "tester"}}},
	}, &scriptedStreamer{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := websocket.Dial(ctx, e.wsURL("token=bad-token"), nil)
	require.Error(t, err)
	assert.Equal(t, 0, e.sessions.Count())

	ws := dialWS(t, e.wsURL("token=test-token"))
	f := readFrame(t, ws)
	assert.Equal(t, EventSessionReady, f.Event)
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{}, &scriptedStreamer{})

	ws, info := connect(t, e)
	assert.Len(t, info.SessionID, 26)
	assert.Equal(t, testSettings, info.Settings)
	assert.Equal(t, 0, info.MessageCount)
	assert.Equal(t, 1, e.sessions.Count())

	ws.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return e.sessions.Count() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestSessionsIsolated(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{}, &scriptedStreamer{})

	a, infoA := connect(t, e)
	_, infoB := connect(t, e)
	assert.NotEqual(t, infoA.SessionID, infoB.SessionID)

	call(t, a, 1, "settings.update", map[string]any{"model": "gpt-4o"})
	readFrame(t, a)

	sb, err := e.sessions.Get(infoB.SessionID)
	require.NoError(t, err)
	assert.Equal(t, testSettings.Model, sb.Settings().Model)
}

func TestSessionLimit(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{MaxSessions: 1}, &scriptedStreamer{})
	connect(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, e.wsURL(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerUnknownMethod(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{}, &scriptedStreamer{})
	ws, _ := connect(t, e)

	call(t, ws, 2, "nonexistent", nil)
	resp := readFrame(t, ws)
	assert.Equal(t, FrameTypeResponse, resp.Type)
	assert.Equal(t, uint64(2), resp.ID)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, string(domain.CodeRPCMethodNotFound), resp.Code)
}

func TestServerRegisterHandler(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{}, &scriptedStreamer{})
	e.srv.RegisterHandler("echo", func(_ context.Context, _ *Client, payload json.RawMessage) (json.RawMessage, error) {
		return payload, nil
	})
	ws, _ := connect(t, e)

	call(t, ws, 1, "echo", map[string]string{"msg": "hello"})
	resp := readFrame(t, ws)
	assert.Equal(t, uint64(1), resp.ID)
	assert.Empty(t, resp.Error)
	assert.JSONEq(t, `{"msg":"hello"}`, string(resp.Payload))
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{}, &scriptedStreamer{})
	resp, err := http.Get(e.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestStatusEndpoint(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{
		Auth: config.AuthConfig{Tokens: []config.TokenConfig{{Token: "tok"}}},
	}, &scriptedStreamer{})

	resp, err := http.Get(e.http.URL + "/api/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, e.http.URL+"/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "webchat", st.Service.Name)
	assert.Equal(t, "test", st.Service.Version)
	assert.Equal(t, "openai", st.LLM.Provider)
	assert.Equal(t, 0, st.Sessions.Active)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{}, &scriptedStreamer{})
	connect(t, e)

	resp, err := http.Get(e.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "webchat_sessions_active 1")
}

func TestStaticPage(t *testing.T) {
	e := newTestEnv(t, config.ServerConfig{}, &scriptedStreamer{})

	resp, err := http.Get(e.http.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `/static/app.js`)

	resp, err = http.Get(e.http.URL + "/static/app.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
