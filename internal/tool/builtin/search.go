package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tripwise/tripwise/internal/httpx"
	"github.com/tripwise/tripwise/internal/tool"
	"github.com/tripwise/tripwise/internal/util"
)

const (
	tavilyAPIURL       = "https://api.tavily.com/search"
	searchTimeout      = 9 * time.Second
	deepTimeout        = 15 * time.Second
	searchMaxResults   = 5
	deepMaxResults     = 8
	searchSnippetRunes = 400
)

// tavilyRequest is the Tavily API request body.
type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// String keeps the API key out of fmt/log output.
func (r tavilyRequest) String() string {
	return fmt.Sprintf("tavilyRequest{Query: %q, Depth: %q, MaxResults: %d}", r.Query, r.SearchDepth, r.MaxResults)
}

type tavilyResponse struct {
	Answer  string `json:"answer,omitempty"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// tavilySearch runs one Tavily query and formats the response as a Result.
func tavilySearch(ctx context.Context, client *httpx.Client, baseURL, apiKey, query, depth string, maxResults int) (tool.Result, error) {
	if apiKey == "" {
		return tool.Fail("web search provider is not configured"), nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return tool.Fail("query is required"), nil
	}

	req := tavilyRequest{
		APIKey:        apiKey,
		Query:         query,
		SearchDepth:   depth,
		MaxResults:    maxResults,
		IncludeAnswer: true,
	}
	var resp tavilyResponse
	if err := client.PostJSON(ctx, "search", baseURL, nil, req, &resp); err != nil {
		return tool.Result{}, fmt.Errorf("tavily search: %w", err)
	}
	if len(resp.Results) == 0 && resp.Answer == "" {
		return tool.Fail(fmt.Sprintf("no results for %q", query)), nil
	}

	var sb strings.Builder
	if resp.Answer != "" {
		sb.WriteString(resp.Answer)
	}
	var citations []string
	for i, r := range resp.Results {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "[%d] %s: %s", i+1, r.Title, util.TruncateRunes(r.Content, searchSnippetRunes))
		if r.URL != "" {
			citations = append(citations, r.URL)
		}
	}

	return tool.Result{
		OK:        true,
		Summary:   sb.String(),
		Source:    "tavily.com",
		Citations: citations,
	}, nil
}

// SearchTool is quick web search (Tavily basic depth).
type SearchTool struct {
	http    *httpx.Client
	apiKey  string
	baseURL string // injectable for tests
}

func (t *SearchTool) String() string {
	return fmt.Sprintf("SearchTool{baseURL: %q}", t.baseURL)
}

func NewSearchTool(client *httpx.Client, apiKey string) *SearchTool {
	return &SearchTool{http: client, apiKey: apiKey, baseURL: tavilyAPIURL}
}

func (t *SearchTool) Name() string { return "search" }
func (t *SearchTool) Description() string {
	return "Search the web for current travel information: events, prices, openings, news. Returns titles, URLs and snippets."
}
func (t *SearchTool) Timeout() time.Duration { return searchTimeout }

func (t *SearchTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "query", Type: "string", Description: "Search query", Required: true},
	)
}

func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return tavilySearch(ctx, t.http, t.baseURL, t.apiKey, a.Query, "basic", searchMaxResults)
}

// DeepResearchTool is the expensive advanced-depth search. It sits behind the
// consent gate for complex queries and is disabled unless configured on.
type DeepResearchTool struct {
	http    *httpx.Client
	apiKey  string
	baseURL string // injectable for tests
}

func (t *DeepResearchTool) String() string {
	return fmt.Sprintf("DeepResearchTool{baseURL: %q}", t.baseURL)
}

func NewDeepResearchTool(client *httpx.Client, apiKey string) *DeepResearchTool {
	return &DeepResearchTool{http: client, apiKey: apiKey, baseURL: tavilyAPIURL}
}

func (t *DeepResearchTool) Name() string { return "deepResearch" }
func (t *DeepResearchTool) Description() string {
	return "In-depth web research for complex multi-part travel questions. Slower and more thorough than search; only use when the user has agreed to deep research."
}
func (t *DeepResearchTool) Timeout() time.Duration { return deepTimeout }

func (t *DeepResearchTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "query", Type: "string", Description: "Research question", Required: true},
	)
}

func (t *DeepResearchTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return tavilySearch(ctx, t.http, t.baseURL, t.apiKey, a.Query, "advanced", deepMaxResults)
}
