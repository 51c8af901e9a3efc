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
	vectaraAPIURL       = "https://api.vectara.io/v2/corpora/%s/query"
	vectaraTimeout      = 9 * time.Second
	vectaraMaxResults   = 5
	vectaraSnippetRunes = 500
)

// VectaraTool queries a curated visa/policy knowledge corpus hosted on
// Vectara. Preferred over open web search for visa questions because the
// corpus is vetted.
type VectaraTool struct {
	http      *httpx.Client
	apiKey    string
	corpusKey string
	baseURL   string // injectable for tests; %s is the corpus key
}

// String keeps the API key out of log output.
func (t *VectaraTool) String() string {
	return fmt.Sprintf("VectaraTool{corpus: %q}", t.corpusKey)
}

func NewVectaraTool(client *httpx.Client, apiKey, corpusKey string) *VectaraTool {
	return &VectaraTool{http: client, apiKey: apiKey, corpusKey: corpusKey, baseURL: vectaraAPIURL}
}

func (t *VectaraTool) Name() string { return "vectaraQuery" }
func (t *VectaraTool) Description() string {
	return "Query the curated visa and entry-policy knowledge base. Use first for visa requirement questions before falling back to web search."
}
func (t *VectaraTool) Timeout() time.Duration { return vectaraTimeout }

func (t *VectaraTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "query", Type: "string", Description: "Policy question, e.g. \"Japanese passport visa for China\"", Required: true},
	)
}

type vectaraQueryRequest struct {
	Query  string `json:"query"`
	Search struct {
		Limit int `json:"limit"`
	} `json:"search"`
}

type vectaraQueryResponse struct {
	SearchResults []struct {
		Text           string         `json:"text"`
		Score          float64        `json:"score"`
		DocumentID     string         `json:"document_id"`
		DocumentMetadata map[string]any `json:"document_metadata"`
	} `json:"search_results"`
}

func (t *VectaraTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	query := strings.TrimSpace(a.Query)
	if query == "" {
		return tool.Fail("query is required"), nil
	}
	if t.apiKey == "" || t.corpusKey == "" {
		return tool.Fail("policy knowledge base is not configured"), nil
	}

	req := vectaraQueryRequest{Query: query}
	req.Search.Limit = vectaraMaxResults

	var resp vectaraQueryResponse
	url := fmt.Sprintf(t.baseURL, t.corpusKey)
	headers := map[string]string{"x-api-key": t.apiKey}
	if err := t.http.PostJSON(ctx, "vectara", url, headers, req, &resp); err != nil {
		return tool.Result{}, fmt.Errorf("vectara query: %w", err)
	}
	if len(resp.SearchResults) == 0 {
		return tool.Fail(fmt.Sprintf("no policy entries found for %q", query)), nil
	}

	var sb strings.Builder
	var citations []string
	for i, r := range resp.SearchResults {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, util.TruncateRunes(strings.TrimSpace(r.Text), vectaraSnippetRunes))
		if src, ok := r.DocumentMetadata["url"].(string); ok && src != "" {
			citations = append(citations, src)
		} else if r.DocumentID != "" {
			citations = append(citations, "vectara:"+r.DocumentID)
		}
	}

	return tool.Result{
		OK:        true,
		Summary:   sb.String(),
		Source:    "vectara knowledge base",
		Citations: citations,
	}, nil
}
