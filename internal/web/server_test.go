package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/agent"
	"github.com/tripwise/tripwise/internal/llm/llmtest"
	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/planner"
	"github.com/tripwise/tripwise/internal/router"
	"github.com/tripwise/tripwise/internal/session"
	"github.com/tripwise/tripwise/internal/tool"
	"github.com/tripwise/tripwise/internal/turn"
)

func newTestServer(t *testing.T, p *llmtest.Provider, store session.Store) *httptest.Server {
	t.Helper()
	m := metrics.New()
	r := router.New(p, m, router.Config{LightweightEnabled: true, ClassifierTimeout: time.Second})
	d := turn.NewDriver(store, r, planner.New(p, m), agent.New(p, tool.NewRegistry(), m), m, turn.Config{})

	s := NewServer(":0", d, m, store)
	srv := httptest.NewServer(s.httpSrv.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func newStore(t *testing.T) *session.MemoryStore {
	t.Helper()
	s := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { s.Close() })
	return s
}

func postChat(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatHappyPath(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"route":"packing","confidence":0.9}`), // planner
		llmtest.Text("Pack light layers."),                   // actor
	}}
	srv := newTestServer(t, p, newStore(t))

	resp := postChat(t, srv, `{"message":"what should I pack?","threadId":"th-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out turn.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Pack light layers.", out.Reply)
	assert.Equal(t, "th-1", out.ThreadID)
}

func TestChatRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, &llmtest.Provider{}, newStore(t))

	cases := map[string]string{
		"invalid JSON":     `{"message":`,
		"empty message":    `{"message":""}`,
		"oversize message": `{"message":"` + strings.Repeat("x", maxMessageRunes+1) + `"}`,
		"long threadId":    `{"message":"hi","threadId":"` + strings.Repeat("t", maxThreadIDLen+1) + `"}`,
	}
	for name, body := range cases {
		resp := postChat(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestChatRequiresPost(t *testing.T) {
	srv := newTestServer(t, &llmtest.Provider{}, newStore(t))
	resp, err := http.Get(srv.URL + "/chat")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"route":"packing","confidence":0.9}`),
		llmtest.Text("Pack light layers."),
	}}
	srv := newTestServer(t, p, newStore(t))
	postChat(t, srv, `{"message":"what should I pack?"}`)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.MessagesTotal)
	assert.Equal(t, int64(1), snap.ChatTurns["packing"])
}

func TestHealthzWithMemoryStore(t *testing.T) {
	srv := newTestServer(t, &llmtest.Provider{}, newStore(t))
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// pingFailStore reports an unreachable backend through the health probe.
type pingFailStore struct {
	*session.MemoryStore
}

func (p *pingFailStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthzReportsUnreachableBackend(t *testing.T) {
	srv := newTestServer(t, &llmtest.Provider{}, &pingFailStore{newStore(t)})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var out struct {
		OK         bool              `json:"ok"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.OK)
	assert.Equal(t, "unreachable", out.Components["session"])
}
