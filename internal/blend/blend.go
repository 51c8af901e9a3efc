// Package blend assembles the final turn result: deduplicated citations,
// extracted facts, decision trail and a self-check verdict for receipts.
package blend

import (
	"strings"

	"github.com/tripwise/tripwise/internal/agent"
)

const maxCitations = 8

// Verdict is the self-check outcome recorded in receipts. It never alters
// the user-facing reply.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// Result is the blended turn outcome.
type Result struct {
	Reply     string       `json:"reply"`
	Citations []string     `json:"citations,omitempty"`
	Facts     []agent.Fact `json:"facts,omitempty"`
	Decisions []string     `json:"decisions,omitempty"`
	Verdict   Verdict      `json:"verdict"`
}

// Blend combines the actor output with the routing decision trail.
func Blend(out agent.Output, routeDecisions []string) Result {
	r := Result{
		Reply:     out.Reply,
		Citations: dedupeCitations(out.Citations),
		Facts:     out.Facts,
	}
	r.Decisions = append(r.Decisions, routeDecisions...)
	r.Decisions = append(r.Decisions, out.Decisions...)
	r.Verdict = selfCheck(r)
	return r
}

// dedupeCitations keeps first-seen order, caps at maxCitations.
func dedupeCitations(citations []string) []string {
	seen := make(map[string]bool, len(citations))
	var out []string
	for _, c := range citations {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == maxCitations {
			break
		}
	}
	return out
}

// selfCheck grades the result: fail without a reply, warn when external
// facts back the reply but no citation survived, pass otherwise.
func selfCheck(r Result) Verdict {
	if strings.TrimSpace(r.Reply) == "" {
		return VerdictFail
	}
	external := false
	for _, f := range r.Facts {
		if f.Source != "" {
			external = true
			break
		}
	}
	if external && len(r.Citations) == 0 {
		return VerdictWarn
	}
	return VerdictPass
}
