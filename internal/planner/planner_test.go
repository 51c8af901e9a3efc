package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/llm/llmtest"
	"github.com/tripwise/tripwise/internal/metrics"
)

func TestPlanParsesStrictJSON(t *testing.T) {
	p := New(&llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"route":"weather","confidence":0.9,"missing":["city"],
			"calls":[{"tool":"weather","args":{"city":"Rome"}}],
			"blend":"lead with the forecast","verify":"temperature matches the tool output"}`),
	}}, metrics.New())

	plan := p.Plan(context.Background(), "weather in Rome?", nil, "")
	require.NotNil(t, plan)
	assert.Equal(t, "weather", plan.Route)
	assert.InDelta(t, 0.9, plan.Confidence, 0.001)
	assert.Equal(t, []string{"city"}, plan.Missing)
	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "weather", plan.Calls[0].Tool)
	assert.Equal(t, "lead with the forecast", plan.Blend)
}

func TestPlanExtractsEmbeddedObject(t *testing.T) {
	p := New(&llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`Sure, here is the plan: {"route":"packing","confidence":0.8} hope that helps`),
	}}, metrics.New())

	plan := p.Plan(context.Background(), "what to pack", nil, "")
	require.NotNil(t, plan)
	assert.Equal(t, "packing", plan.Route)
}

func TestPlanCallFailureReturnsNil(t *testing.T) {
	p := New(&llmtest.Provider{}, metrics.New()) // empty script: the call errors
	assert.Nil(t, p.Plan(context.Background(), "hi", nil, ""))
}

func TestPlanUnparseableReturnsNil(t *testing.T) {
	p := New(&llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text("I cannot produce a plan for that."),
	}}, metrics.New())
	assert.Nil(t, p.Plan(context.Background(), "hi", nil, ""))
}

func TestPlanEcho(t *testing.T) {
	plan := &Plan{Route: "flights", Confidence: 0.7}
	echo := plan.Echo()
	assert.Contains(t, echo, "Plan: ")
	assert.Contains(t, echo, `"route":"flights"`)
}

func TestFirstBalancedObject(t *testing.T) {
	assert.Equal(t, `{"a":{"b":1}}`, firstBalancedObject(`noise {"a":{"b":1}} trailing`))
	assert.Equal(t, `{"s":"br}ace"}`, firstBalancedObject(`{"s":"br}ace"}`), "braces inside strings ignored")
	assert.Empty(t, firstBalancedObject("no object here"))
	assert.Empty(t, firstBalancedObject(`{"never":"closed"`))
}
