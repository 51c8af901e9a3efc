package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/httpx"
)

func TestSearchToolExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "key", req.APIKey)
		assert.Equal(t, "basic", req.SearchDepth)
		assert.Equal(t, searchMaxResults, req.MaxResults)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"Summer festivals run June-August.","results":[
			{"title":"Festivals","url":"https://example.com/fest","content":"All the festivals."},
			{"title":"Guide","url":"https://example.com/guide","content":"A guide."}
		]}`))
	}))
	defer srv.Close()

	tool := NewSearchTool(httpx.New(), "key")
	tool.baseURL = srv.URL

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"festivals in Lisbon"}`))
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Summary, "Summer festivals")
	assert.Contains(t, res.Summary, "[1] Festivals")
	assert.Equal(t, []string{"https://example.com/fest", "https://example.com/guide"}, res.Citations)
}

func TestDeepResearchUsesAdvancedDepth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "advanced", req.SearchDepth)
		assert.Equal(t, deepMaxResults, req.MaxResults)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"title":"T","url":"https://a","content":"c"}]}`))
	}))
	defer srv.Close()

	tool := NewDeepResearchTool(httpx.New(), "key")
	tool.baseURL = srv.URL

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"multi city trip"}`))
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestSearchToolWithoutKey(t *testing.T) {
	tool := NewSearchTool(httpx.New(), "")
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"anything"}`))
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "not configured")
}

func TestSearchToolNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	tool := NewSearchTool(httpx.New(), "key")
	tool.baseURL = srv.URL

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.NoError(t, err)
	assert.False(t, res.OK)
}
