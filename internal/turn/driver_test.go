package turn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/agent"
	"github.com/tripwise/tripwise/internal/llm"
	"github.com/tripwise/tripwise/internal/llm/llmtest"
	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/planner"
	"github.com/tripwise/tripwise/internal/router"
	"github.com/tripwise/tripwise/internal/session"
	"github.com/tripwise/tripwise/internal/tool"
)

type stubTool struct {
	name   string
	result tool.Result
	calls  int
}

func (s *stubTool) Name() string                 { return s.name }
func (s *stubTool) Description() string          { return "test double" }
func (s *stubTool) InputSchema() json.RawMessage { return nil }
func (s *stubTool) Timeout() time.Duration       { return time.Second }
func (s *stubTool) Execute(context.Context, json.RawMessage) (tool.Result, error) {
	s.calls++
	return s.result, nil
}

func newTestDriver(p *llmtest.Provider, store session.Store, gate bool, tools ...tool.Tool) *Driver {
	m := metrics.New()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		reg.Register(tl)
	}
	r := router.New(p, m, router.Config{
		ComplexityGateEnabled: gate,
		LightweightEnabled:    true,
		ClassifierTimeout:     time.Second,
	})
	return NewDriver(store, r, planner.New(p, m), agent.New(p, reg, m), m, Config{})
}

func newMemStore(t *testing.T) *session.MemoryStore {
	t.Helper()
	s := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHandleMintsThreadIDAndPersistsHistory(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"route":"packing","confidence":0.9,"blend":"short list","verify":"band"}`), // planner
		llmtest.Text("Pack light layers and a rain shell."),                                       // actor
	}}
	store := newMemStore(t)
	d := newTestDriver(p, store, false)

	resp := d.Handle(context.Background(), Request{Message: "what should I pack?", Receipts: true})

	assert.NotEmpty(t, resp.ThreadID, "thread ID minted when absent")
	assert.Equal(t, "Pack light layers and a rain shell.", resp.Reply)
	assert.Contains(t, resp.Decisions, "route:packing")
	assert.Contains(t, resp.Decisions, "plan:packing")
	require.NotNil(t, resp.Receipts)
	assert.NotEmpty(t, resp.Receipts.Verdict)
	assert.Equal(t, "packing", resp.Receipts.PlanRoute)

	msgs, err := store.GetMsgs(context.Background(), resp.ThreadID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, resp.Reply, msgs[1].Content)
}

func TestHandleRedirectsUnroutableMessages(t *testing.T) {
	p := &llmtest.Provider{} // router and correction LLM calls both fail
	d := newTestDriver(p, newMemStore(t), false)

	resp := d.Handle(context.Background(), Request{Message: "qwertyuiop"})

	assert.Equal(t, redirectReply, resp.Reply)
	assert.Contains(t, resp.Decisions, "driver:redirect")
}

func TestHandleConsentParkThenYes(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		// Turn 2 only: the park itself needs no LLM.
		llmtest.Text(`{"route":"web_search","confidence":0.9}`), // planner
		llmtest.Text("Here is a two-week Japan plan on a budget."),
	}}
	store := newMemStore(t)
	d := newTestDriver(p, store, true)

	complex := "plan a cheap two week trip for my family from Boston to Japan in June, we need vegan food"
	first := d.Handle(context.Background(), Request{Message: complex, ThreadID: "th-1"})

	assert.Equal(t, consentPromptText, first.Reply)
	assert.Zero(t, p.CallCount())

	slots, err := store.GetSlots(context.Background(), "th-1")
	require.NoError(t, err)
	assert.Equal(t, "true", slots[session.AwaitingConsentKey(session.ConsentDeepResearch)])
	assert.Equal(t, complex, slots[session.PendingQueryKey(session.ConsentDeepResearch)])

	second := d.Handle(context.Background(), Request{Message: "yes please", ThreadID: "th-1"})
	assert.Equal(t, "Here is a two-week Japan plan on a budget.", second.Reply)
	assert.Contains(t, second.Decisions, "consent:yes")
	assert.Contains(t, second.Decisions, "prefer:deepResearch")

	slots, err = store.GetSlots(context.Background(), "th-1")
	require.NoError(t, err)
	assert.NotContains(t, slots, session.AwaitingConsentKey(session.ConsentDeepResearch))
	assert.NotContains(t, slots, session.PendingQueryKey(session.ConsentDeepResearch))
	assert.NotContains(t, slots, session.SlotComplexityReasoning)
}

func TestHandleConsentNoExcludesResearchTools(t *testing.T) {
	search := &stubTool{name: "search", result: tool.Result{OK: true, Summary: "found"}}
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"route":"web_search","confidence":0.8}`), // planner on the resume turn
		llmtest.Calls(llm.ToolCall{ID: "1", Name: "search", Arguments: json.RawMessage(`{"query":"japan trip"}`)}),
		llmtest.Text("Here is a quick answer without the deep dive."),
	}}
	store := newMemStore(t)
	d := newTestDriver(p, store, true, search)

	complex := "plan a cheap two week trip for my family from Boston to Japan in June, we need vegan food"
	d.Handle(context.Background(), Request{Message: complex, ThreadID: "th-2"})

	resp := d.Handle(context.Background(), Request{Message: "no thanks", ThreadID: "th-2"})

	assert.Equal(t, "Here is a quick answer without the deep dive.", resp.Reply)
	assert.Contains(t, resp.Decisions, "consent:no")
	assert.Contains(t, resp.Decisions, "gated:search", "research tools sit out declined turns")
	assert.Zero(t, search.calls)
}

func TestHandleConsentYesWithLostQueryRedirects(t *testing.T) {
	store := newMemStore(t)
	// Awaiting flag present but the pending query is gone.
	require.NoError(t, store.SetSlots(context.Background(), "th-3", map[string]string{
		session.AwaitingConsentKey(session.ConsentDeepResearch): "true",
	}, nil))

	d := newTestDriver(&llmtest.Provider{}, store, true)
	resp := d.Handle(context.Background(), Request{Message: "yes", ThreadID: "th-3"})

	assert.Equal(t, redirectReply, resp.Reply)
	assert.Contains(t, resp.Decisions, "driver:consent_no_pending")
}

func TestHandleContextSwitchRewritesSlots(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"intent":"weather","needExternal":true,"slots":{"city":"Tokyo"},"confidence":0.9}`), // router
		llmtest.Text(`{"route":"weather","confidence":0.9}`),                                              // planner
		llmtest.Text("Tokyo looks clear this week."),
	}}
	store := newMemStore(t)
	require.NoError(t, store.SetSlots(context.Background(), "th-4", map[string]string{
		session.SlotCity: "Paris", session.SlotMonth: "June",
	}, nil))

	m := metrics.New()
	r := router.New(p, m, router.Config{ClassifierTimeout: time.Second}) // no lightweight: force the LLM route
	d := NewDriver(store, r, planner.New(p, m), agent.New(p, tool.NewRegistry(), m), m, Config{})

	resp := d.Handle(context.Background(), Request{Message: "what about Tokyo?", ThreadID: "th-4"})
	assert.Equal(t, "Tokyo looks clear this week.", resp.Reply)

	slots, err := store.GetSlots(context.Background(), "th-4")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", slots[session.SlotCity])
	assert.NotContains(t, slots, session.SlotMonth, "stale month cleared on switch")
}

// faultyStore simulates a down session backend for reads.
type faultyStore struct {
	*session.MemoryStore
}

func (f *faultyStore) GetSlots(context.Context, string) (map[string]string, error) {
	return nil, errors.New("backend down")
}

func TestHandleSurvivesStoreFailure(t *testing.T) {
	p := &llmtest.Provider{Script: []llmtest.Responder{
		llmtest.Text(`{"route":"packing","confidence":0.9}`),
		llmtest.Text("Pack for mild weather."),
	}}
	store := &faultyStore{newMemStore(t)}
	d := newTestDriver(p, store, false)

	resp := d.Handle(context.Background(), Request{Message: "what should I pack?", ThreadID: "th-5"})
	assert.Equal(t, "Pack for mild weather.", resp.Reply, "turn degrades to empty state, never fails")
}

func TestCurrentSlots(t *testing.T) {
	prev := map[string]string{"a": "1", "b": "2"}
	out := currentSlots(prev, []string{"b"}, map[string]string{"c": "3"})
	assert.Equal(t, map[string]string{"a": "1", "c": "3"}, out)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, prev, "prev untouched")
}
