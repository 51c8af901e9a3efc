package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/llm/llmtest"
	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/session"
)

func newTestRouter(p *llmtest.Provider, gate, lightweight bool) *Router {
	return New(p, metrics.New(), Config{
		ComplexityGateEnabled: gate,
		LightweightEnabled:    lightweight,
		ClassifierTimeout:     time.Second,
	})
}

func TestRouteEmptyGuard(t *testing.T) {
	r := newTestRouter(&llmtest.Provider{}, true, true)
	res := r.Route(context.Background(), "   ", nil)
	assert.Equal(t, "unknown", res.Intent)
	assert.InDelta(t, 0.1, res.Confidence, 0.001)
}

func TestRouteFlightFastPath(t *testing.T) {
	p := &llmtest.Provider{}
	r := newTestRouter(p, true, true)

	res := r.Route(context.Background(), "find me flights from NYC to London tomorrow", nil)
	assert.Equal(t, "flights", res.Intent)
	assert.True(t, res.NeedExternal)
	assert.Equal(t, "NYC", res.Slots[session.SlotOriginCity])
	assert.Equal(t, "London", res.Slots[session.SlotDestinationCity])
	assert.Equal(t, "tomorrow", res.Slots[session.SlotDepartureDate], "temporal token kept verbatim")
	assert.Zero(t, p.CallCount(), "fast path needs no LLM")
}

func TestRouteConsentGateParks(t *testing.T) {
	p := &llmtest.Provider{}
	r := newTestRouter(p, true, true)

	msg := "plan a cheap two week trip for my family from Boston to Japan in June, we need vegan food"
	res := r.Route(context.Background(), msg, nil)

	assert.Equal(t, "system", res.Intent)
	assert.Equal(t, session.ConsentDeepResearch, res.ConsentKind)
	assert.Equal(t, msg, res.PendingQuery)
	assert.GreaterOrEqual(t, res.Confidence, 0.75)
	assert.NotEmpty(t, res.Slots[session.SlotComplexityReasoning])
	assert.Zero(t, p.CallCount(), "heuristic was conclusive")
}

func TestRouteConsentAnswerYes(t *testing.T) {
	p := &llmtest.Provider{}
	r := newTestRouter(p, true, true)

	prev := map[string]string{
		session.AwaitingConsentKey(session.ConsentDeepResearch): "true",
		session.PendingQueryKey(session.ConsentDeepResearch):    "the big trip",
	}
	res := r.Route(context.Background(), "yes please", prev)
	assert.Equal(t, "system", res.Intent)
	assert.Equal(t, "yes", res.ConsentAnswer)
	assert.Zero(t, p.CallCount(), "obvious answers skip the classifier")
}

func TestRouteConsentAnswerUnclearClearsAndProceeds(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"answer":"unclear"}`),
	}}
	r := newTestRouter(p, false, true)

	prev := map[string]string{
		session.AwaitingConsentKey(session.ConsentDeepResearch): "true",
		session.PendingQueryKey(session.ConsentDeepResearch):    "q",
	}
	res := r.Route(context.Background(), "actually what's the weather in Rome", prev)
	assert.Empty(t, res.ConsentAnswer)
	assert.Equal(t, "weather", res.Intent, "message routed normally after clearing")
	assert.Contains(t, res.ResetKeys, session.AwaitingConsentKey(session.ConsentDeepResearch))
	assert.Contains(t, res.ResetKeys, session.PendingQueryKey(session.ConsentDeepResearch))
}

func TestRouteFlightClarificationDirect(t *testing.T) {
	p := &llmtest.Provider{}
	r := newTestRouter(p, true, true)

	prev := map[string]string{
		session.AwaitingConsentKey(session.ConsentFlightClarification): "true",
		session.PendingQueryKey(session.ConsentFlightClarification):    "flights to tokyo",
	}
	res := r.Route(context.Background(), "just search directly", prev)
	assert.Equal(t, "flights", res.Intent)
	assert.Contains(t, res.ResetKeys, session.AwaitingConsentKey(session.ConsentFlightClarification))
	assert.Zero(t, p.CallCount())
}

func TestRouteFlightClarificationWebResearch(t *testing.T) {
	r := newTestRouter(&llmtest.Provider{}, true, true)

	prev := map[string]string{
		session.AwaitingConsentKey(session.ConsentFlightClarification): "true",
		session.PendingQueryKey(session.ConsentFlightClarification):    "q",
	}
	res := r.Route(context.Background(), "I'd rather research on the web first", prev)
	assert.Equal(t, "web_search", res.Intent)
	assert.NotEmpty(t, res.Slots[session.SlotSearchQuery])
}

func TestRouteLightweightClassifier(t *testing.T) {
	p := &llmtest.Provider{}
	r := newTestRouter(p, false, true)

	res := r.Route(context.Background(), "what should I pack?", map[string]string{
		session.SlotCity: "Paris", session.SlotMonth: "June",
	})
	assert.Equal(t, "packing", res.Intent)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
	assert.Zero(t, p.CallCount())
	// Stale-guard: no fresh time signal, so the stored month is reset.
	assert.Contains(t, res.ResetKeys, session.SlotMonth)
	assert.NotContains(t, res.ResetKeys, session.SlotCity)
}

func TestRouteContextSwitchResets(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"intent":"weather","needExternal":true,"slots":{"city":"Tokyo"},"confidence":0.9}`),
	}}
	r := newTestRouter(p, false, false)

	prev := map[string]string{session.SlotCity: "Paris", session.SlotMonth: "June"}
	res := r.Route(context.Background(), "what about Tokyo?", prev)

	assert.Equal(t, "weather", res.Intent)
	assert.Equal(t, "Tokyo", res.Slots[session.SlotCity])
	assert.Contains(t, res.ResetKeys, session.SlotCity)
	assert.Contains(t, res.ResetKeys, session.SlotMonth)
}

func TestRouteDiacriticsInsensitiveNoSwitch(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"intent":"attractions","needExternal":true,"slots":{"city":"Sao Paulo"},"confidence":0.9}`),
	}}
	r := newTestRouter(p, false, false)

	prev := map[string]string{session.SlotCity: "São Paulo"}
	res := r.Route(context.Background(), "things to do in Sao Paulo", prev)
	assert.NotContains(t, res.ResetKeys, session.SlotCity, "same place modulo diacritics")
}

func TestRouteDropsHallucinatedCity(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"intent":"attractions","needExternal":true,"slots":{"city":"Paris"},"confidence":0.9}`),
		llmtest.Text(`{"city":""}`), // city-parse does not confirm
	}}
	r := newTestRouter(p, false, false)

	res := r.Route(context.Background(), "what are some nice museums?", nil)
	_, ok := res.Slots[session.SlotCity]
	assert.False(t, ok)
	assert.Contains(t, res.Decisions, "guard:city_dropped")
}

func TestRouteWeatherOverride(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"intent":"flights","needExternal":true,"slots":{"city":"Rome"},"confidence":0.9}`),
	}}
	r := newTestRouter(p, false, false)

	res := r.Route(context.Background(), "will it rain in Rome this weekend?", nil)
	assert.Equal(t, "weather", res.Intent)
	assert.Contains(t, res.Decisions, "override:flights_to_weather")
}

func TestRouteCorrectionPass(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"intent":"unknown","needExternal":false,"slots":{},"confidence":0.2}`),
		llmtest.Text(`{"intent":"destinations","confidence":0.8}`),
	}}
	r := newTestRouter(p, false, false)

	res := r.Route(context.Background(), "somewhere nice and warm maybe", nil)
	assert.Equal(t, "destinations", res.Intent)
	assert.InDelta(t, 0.8, res.Confidence, 0.001)
	assert.Contains(t, res.Decisions, "route:corrected")
}

func TestRouteQuerySynthesis(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"intent":"web_search","needExternal":true,"slots":{},"confidence":0.9}`),
		llmtest.Text(`{"query":"Lisbon events June 2026"}`),
	}}
	r := newTestRouter(p, false, false)

	res := r.Route(context.Background(), "anything happening in Lisbon in June?", nil)
	require.Equal(t, "web_search", res.Intent)
	assert.Equal(t, "Lisbon events June 2026", res.Slots[session.SlotSearchQuery])
}

func TestRouteLLMFailureFallsBackToUnknown(t *testing.T) {
	p := &llmtest.Provider{} // empty script: every call errors
	r := newTestRouter(p, false, false)

	res := r.Route(context.Background(), "zxcvbn", nil)
	assert.Equal(t, "unknown", res.Intent)
	assert.Less(t, res.Confidence, 0.2)
}

func TestComplexityHeuristic(t *testing.T) {
	c, conclusive := classifyComplexityHeuristic("weather in Paris")
	assert.True(t, conclusive)
	assert.False(t, c.IsComplex)

	c, conclusive = classifyComplexityHeuristic(
		"cheap family trip from Boston to Japan in June with vegan food")
	assert.True(t, conclusive)
	assert.True(t, c.IsComplex)
	assert.Equal(t, 0.95, c.Confidence, "capped")
}

func TestInterpretFlightClarification(t *testing.T) {
	assert.Equal(t, "direct_search", interpretFlightClarification("book it"))
	assert.Equal(t, "web_research", interpretFlightClarification("compare on the web"))
	assert.Equal(t, "ambiguous", interpretFlightClarification("hmm not sure"))
	assert.Equal(t, "ambiguous", interpretFlightClarification("search the web"), "both cue sets present")
}

func TestExtractFlightSlots(t *testing.T) {
	slots := extractFlightSlots("flights from New York to Paris on 2026-09-01")
	assert.Equal(t, "New York", slots[session.SlotOriginCity])
	assert.Equal(t, "Paris", slots[session.SlotDestinationCity])
	assert.Equal(t, "2026-09-01", slots[session.SlotDepartureDate])

	slots = extractFlightSlots("fly to Tokyo next week")
	assert.Equal(t, "Tokyo", slots[session.SlotDestinationCity])
	assert.Equal(t, "next week", slots[session.SlotDepartureDate])
}

func TestSamePlace(t *testing.T) {
	assert.True(t, samePlace("São Paulo", "sao paulo"))
	assert.True(t, samePlace("  ZÜRICH ", "zurich"))
	assert.False(t, samePlace("Paris", "Tokyo"))
}
