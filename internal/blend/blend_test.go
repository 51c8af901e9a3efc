package blend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tripwise/tripwise/internal/agent"
)

func TestBlendCombinesDecisionTrails(t *testing.T) {
	out := agent.Output{
		Reply:     "It is sunny in Rome.",
		Facts:     []agent.Fact{{Key: "weather", Value: "Sunny, 25°C", Source: "open-meteo"}},
		Citations: []string{"https://open-meteo.com"},
		Decisions: []string{"actor:done"},
	}
	r := Blend(out, []string{"route:weather"})

	assert.Equal(t, "It is sunny in Rome.", r.Reply)
	assert.Equal(t, []string{"route:weather", "actor:done"}, r.Decisions)
	assert.Equal(t, VerdictPass, r.Verdict)
}

func TestDedupeCitations(t *testing.T) {
	out := dedupeCitations([]string{"https://a", "  https://b ", "https://a", "", "https://b"})
	assert.Equal(t, []string{"https://a", "https://b"}, out)
}

func TestDedupeCitationsCap(t *testing.T) {
	var many []string
	for i := 0; i < 20; i++ {
		many = append(many, fmt.Sprintf("https://example.com/%d", i))
	}
	assert.Len(t, dedupeCitations(many), maxCitations)
}

func TestSelfCheckVerdicts(t *testing.T) {
	assert.Equal(t, VerdictFail, selfCheck(Result{Reply: "  "}))

	warn := Result{
		Reply: "answer",
		Facts: []agent.Fact{{Key: "search", Value: "something", Source: "tavily"}},
	}
	assert.Equal(t, VerdictWarn, selfCheck(warn), "sourced facts but no citations")

	warn.Citations = []string{"https://a"}
	assert.Equal(t, VerdictPass, selfCheck(warn))

	local := Result{
		Reply: "pack layers",
		Facts: []agent.Fact{{Key: "packingBand", Value: "mild"}},
	}
	assert.Equal(t, VerdictPass, selfCheck(local), "unsourced facts need no citations")
}
