package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/tripwise/tripwise/internal/httpx"
	"github.com/tripwise/tripwise/internal/tool"
)

const (
	policyMaxRunes     = 8000 // truncated to keep the LLM context bounded
	policyMinTimeout   = 2 * time.Second
	policyMaxTimeout   = 90 * time.Second
	policyDefTimeout   = 15 * time.Second
	policySnippetRunes = 6000
)

// PolicyExtractTool fetches an airline or government policy page and extracts
// its readable text. The timeout is operator-configurable because policy
// pages vary wildly in weight.
type PolicyExtractTool struct {
	http    *httpx.Client
	timeout time.Duration
}

// NewPolicyExtractTool builds the extractor with a configured timeout,
// clamped to [2s, 90s]. Zero means the default.
func NewPolicyExtractTool(client *httpx.Client, timeout time.Duration) *PolicyExtractTool {
	switch {
	case timeout <= 0:
		timeout = policyDefTimeout
	case timeout < policyMinTimeout:
		timeout = policyMinTimeout
	case timeout > policyMaxTimeout:
		timeout = policyMaxTimeout
	}
	return &PolicyExtractTool{http: client, timeout: timeout}
}

func (t *PolicyExtractTool) Name() string { return "extractPolicyWithCrawlee" }
func (t *PolicyExtractTool) Description() string {
	return "Fetch a specific policy web page (airline baggage rules, embassy visa page) and return its readable text. Requires a full URL, usually found via search first."
}
func (t *PolicyExtractTool) Timeout() time.Duration { return t.timeout }

func (t *PolicyExtractTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "url", Type: "string", Description: "Page URL (http:// or https://)", Required: true},
	)
}

func (t *PolicyExtractTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	pageURL := strings.TrimSpace(a.URL)
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return tool.Fail("url must start with http:// or https://"), nil
	}

	body, contentType, err := t.http.GetRaw(ctx, "policy", pageURL, map[string]string{
		"Accept": "text/html,application/xhtml+xml",
	})
	if err != nil {
		return tool.Result{}, fmt.Errorf("fetch policy page: %w", err)
	}

	// Transcode to UTF-8 based on the declared charset; fall back to the raw
	// bytes when the label is unknown.
	var reader io.Reader = bytes.NewReader(body)
	if utf8Reader, cerr := charset.NewReaderLabel(charsetFromContentType(contentType), bytes.NewReader(body)); cerr == nil {
		reader = utf8Reader
	}

	title, content, err := extractPageText(reader)
	if err != nil {
		return tool.Fail(fmt.Sprintf("could not parse page: %v", err)), nil
	}
	if content == "" {
		return tool.Fail("no readable text found on page"), nil
	}

	runes := []rune(content)
	if len(runes) > policyMaxRunes {
		content = string(runes[:policyMaxRunes]) + " …(truncated)"
	}

	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "%s. ", title)
	}
	sb.WriteString(content)

	return tool.Result{
		OK:        true,
		Summary:   sb.String(),
		Source:    pageURL,
		Citations: []string{pageURL},
		Payload:   map[string]any{"title": title},
	}, nil
}

// charsetFromContentType pulls the charset label out of a Content-Type
// header, e.g. "text/html; charset=gbk" → "gbk". Empty means UTF-8.
func charsetFromContentType(contentType string) string {
	for _, part := range strings.Split(contentType, ";") {
		part = strings.ToLower(strings.TrimSpace(part))
		if strings.HasPrefix(part, "charset=") {
			return strings.TrimPrefix(part, "charset=")
		}
	}
	return ""
}

// extractPageText parses HTML and returns the <title> and the body text,
// skipping script/style/navigation chrome.
func extractPageText(r io.Reader) (title, content string, err error) {
	tokenizer := html.NewTokenizer(r)

	skipTags := map[string]bool{
		"script": true, "style": true, "noscript": true,
		"nav": true, "footer": true, "header": true,
		"aside": true, "iframe": true, "svg": true,
	}

	var sb strings.Builder
	var inTitle bool
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			terr := tokenizer.Err()
			result := strings.Join(strings.Fields(sb.String()), " ")
			if terr == io.EOF {
				return title, result, nil
			}
			return title, result, terr

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "title" {
				inTitle = true
			}
			if skipTags[tag] {
				skipDepth++
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "title" {
				inTitle = false
			}
			if skipTags[tag] && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if inTitle {
				if title == "" {
					title = text
				}
				continue
			}
			if skipDepth == 0 {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
	}
}
