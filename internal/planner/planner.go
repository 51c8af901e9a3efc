// Package planner runs the single control-plane LLM call that precedes the
// actor loop. Its output is advisory: a failed or malformed plan never
// blocks the turn.
package planner

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/tripwise/tripwise/internal/llm"
	"github.com/tripwise/tripwise/internal/metrics"
)

const (
	maxBudget   = 5 * time.Second
	floorBudget = 1500 * time.Millisecond
)

// Consent is an optional consent requirement surfaced by the plan.
type Consent struct {
	Kind  string `json:"kind"`
	Query string `json:"query"`
}

// CallHint is one suggested tool invocation.
type CallHint struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// Plan is the planner's control block.
type Plan struct {
	Route      string     `json:"route"`
	Confidence float64    `json:"confidence"`
	Missing    []string   `json:"missing"`
	Consent    *Consent   `json:"consent,omitempty"`
	Calls      []CallHint `json:"calls"`
	Blend      string     `json:"blend"`
	Verify     string     `json:"verify"`
}

const systemPrompt = `You are the planning stage of a travel assistant. You never execute tools and never write prose for the user.
Given the user message, output a single strict JSON control block:
{"route": "weather|packing|attractions|destinations|flights|policy|web_search|unknown",
 "confidence": 0.0-1.0,
 "missing": ["slot names still required"],
 "consent": {"kind": "...", "query": "..."} or omit,
 "calls": [{"tool": "name", "args": {...}}],
 "blend": "one sentence of guidance for composing the answer",
 "verify": "one sentence on what to double-check"}
JSON only. No markdown, no explanation.`

// Planner produces plans.
type Planner struct {
	llm     llm.Provider
	metrics *metrics.Registry
}

func New(provider llm.Provider, m *metrics.Registry) *Planner {
	return &Planner{llm: provider, metrics: m}
}

// Plan makes one planning call inside min(5s, half the remaining turn
// budget), floor 1.5s. nil means "no plan": parse failures and timeouts are
// absorbed here.
func (p *Planner) Plan(ctx context.Context, message string, slots map[string]string, complexitySummary string) *Plan {
	budget := maxBudget
	if deadline, ok := ctx.Deadline(); ok {
		if half := time.Until(deadline) / 2; half < budget {
			budget = half
		}
	}
	if budget < floorBudget {
		budget = floorBudget
	}

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	if complexitySummary != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: "Complexity assessment: " + complexitySummary})
	}
	if len(slots) > 0 {
		snapshot, _ := json.Marshal(slots)
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: "Context: " + string(snapshot)})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	opts := &llm.Options{Timeout: budget, ResponseFormat: llm.FormatJSON}
	resp, err := p.llm.CallLLM(ctx, msgs, opts)
	if err != nil {
		log.Printf("[Planner] Plan call failed, proceeding without plan: %v", err)
		return nil
	}

	plan := parsePlan(resp.Content)
	if plan == nil {
		log.Printf("[Planner] Unparseable plan output, proceeding without plan")
		return nil
	}
	if plan.Route != "" && plan.Confidence > 0 && plan.Confidence <= 1 {
		p.metrics.IncPlanRoute(plan.Route)
	}
	return plan
}

// parsePlan accepts strict JSON or the first balanced {…} substring.
func parsePlan(s string) *Plan {
	var plan Plan
	if err := json.Unmarshal([]byte(s), &plan); err == nil {
		return &plan
	}
	raw := firstBalancedObject(s)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil
	}
	return &plan
}

// Echo renders the plan as the assistant-side note the actor reads.
func (p *Plan) Echo() string {
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return "Plan: " + string(raw)
}

func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
