// Package agent is the actor stage: the multi-step function-calling loop
// that executes tools and produces the draft reply.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tripwise/tripwise/internal/httpx"
	"github.com/tripwise/tripwise/internal/ledger"
	"github.com/tripwise/tripwise/internal/llm"
	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/tool"
)

const (
	defaultMaxSteps = 6
	hardMaxSteps    = 12

	minStepBudget = 1500 * time.Millisecond
	maxStepBudget = 15 * time.Second
	stepMargin    = 500 * time.Millisecond

	fallbackReply = "I need a city or destination to help. Where are you thinking of going?"
)

const systemPrompt = `You are TripWise, a travel assistant. Answer using the tools available; never invent flight prices, weather numbers or visa rules.
Call tools for any external fact, then compose one concise, friendly reply. Mention sources when the information came from a tool.`

// Fact is one extracted claim from a successful tool result.
type Fact struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source,omitempty"`
}

// Output is what one actor run produced.
type Output struct {
	Reply     string
	Facts     []Fact
	Citations []string
	Decisions []string
}

// Input parameterizes one actor run.
type Input struct {
	Message      string
	Route        string
	Slots        map[string]string
	PlanEcho     string   // assistant-side plan note, empty when no plan
	ExcludeTools []string // removed from the active set (consent=no turns)
	MaxSteps     int      // 0 means default
}

// Actor runs the function-calling loop.
type Actor struct {
	llm      llm.Provider
	registry *tool.Registry
	metrics  *metrics.Registry
}

func New(provider llm.Provider, registry *tool.Registry, m *metrics.Registry) *Actor {
	return &Actor{llm: provider, registry: registry, metrics: m}
}

// Run executes the loop until the LLM answers in prose, the step limit is
// reached, or the turn budget runs out. Tool failures are reported back to
// the LLM as tool-role payloads and never abort the turn.
func (a *Actor) Run(ctx context.Context, led *ledger.Ledger, in Input) Output {
	maxSteps := in.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if maxSteps > hardMaxSteps {
		maxSteps = hardMaxSteps
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	if len(in.Slots) > 0 {
		snapshot, _ := json.Marshal(in.Slots)
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: "Known context: " + string(snapshot)})
	}
	if in.PlanEcho != "" {
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: in.PlanEcho})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.Message})

	active := a.registry.ActiveFor(in.Route, in.ExcludeTools)
	activeNames := make(map[string]bool, len(active))
	for _, t := range active {
		activeNames[t.Name()] = true
	}
	defs := tool.Definitions(active)

	var out Output
	seen := make(map[string]bool) // within-turn dedupe, stricter than the ledger

	for step := 0; step < maxSteps; step++ {
		budget := stepBudget(ctx)
		if budget <= 0 {
			out.Decisions = append(out.Decisions, "actor:budget_exhausted")
			break
		}

		resp, err := a.llm.CallLLMWithTools(ctx, messages, defs, &llm.Options{Timeout: budget})
		if err != nil {
			log.Printf("[Actor] Step %d LLM call failed: %v", step+1, err)
			a.metrics.IncFallback("actor_step")
			out.Decisions = append(out.Decisions, "actor:step_failed")
			break
		}

		if len(resp.ToolCalls) == 0 {
			out.Reply = resp.Content
			return out
		}

		messages = append(messages, llm.Message{
			Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls,
		})

		results := a.executeBatch(ctx, led, seen, activeNames, resp.ToolCalls, &out)
		messages = append(messages, results...)
	}

	// No prose reply emerged: weather questions get one direct fallback
	// call, everything else a redirect.
	if weatherFallbackCues(in.Message) {
		if reply, ok := a.weatherFallback(ctx, led, seen, in, &out); ok {
			out.Reply = reply
			out.Decisions = append(out.Decisions, "actor:weather_fallback")
			return out
		}
	}
	a.metrics.IncFallback("actor_no_reply")
	out.Reply = fallbackReply
	out.Decisions = append(out.Decisions, "actor:generic_fallback")
	return out
}

// stepBudget clamps the per-step LLM timeout to the remaining turn budget.
// Zero means the turn is out of time.
func stepBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return maxStepBudget
	}
	remaining := time.Until(deadline)
	if remaining < minStepBudget {
		return 0
	}
	budget := remaining - stepMargin
	if budget < minStepBudget {
		budget = minStepBudget
	}
	if budget > maxStepBudget {
		budget = maxStepBudget
	}
	return budget
}

// executeBatch runs one function-call batch. Calls execute concurrently but
// results are appended in the order the LLM emitted the calls. Gating,
// dedupe and ledger checks happen up front in call order so that two
// identical calls in one batch deterministically dedupe the second.
func (a *Actor) executeBatch(ctx context.Context, led *ledger.Ledger, seen map[string]bool,
	activeNames map[string]bool, calls []llm.ToolCall, out *Output) []llm.Message {

	type pending struct {
		index int
		call  llm.ToolCall
		args  json.RawMessage
	}
	results := make([]llm.Message, len(calls))
	var runnable []pending

	for i, call := range calls {
		if _, known := a.registry.Get(call.Name); !known {
			results[i] = toolErrorMessage(call, "unknown_tool")
			continue
		}

		args := call.Arguments
		if len(args) == 0 || !json.Valid(args) {
			a.metrics.IncArgParseFail()
			args = json.RawMessage("{}")
		}

		if !activeNames[call.Name] {
			a.metrics.IncGatedSkip(call.Name)
			out.Decisions = append(out.Decisions, "gated:"+call.Name)
			results[i] = toolErrorMessage(call, "gated_by_route")
			continue
		}

		key := ledger.Key(call.Name, args)
		if seen[key] {
			results[i] = toolErrorMessage(call, "duplicate_in_turn")
			continue
		}
		if led.ShouldSkip(call.Name, args) {
			out.Decisions = append(out.Decisions, "ledger_skip:"+call.Name)
			results[i] = toolErrorMessage(call, "skipped_by_ledger")
			continue
		}
		seen[key] = true
		runnable = append(runnable, pending{index: i, call: call, args: args})
	}

	type done struct {
		index  int
		call   llm.ToolCall
		args   json.RawMessage
		result tool.Result
		err    error
	}
	doneCh := make(chan done, len(runnable))
	var wg sync.WaitGroup
	for _, p := range runnable {
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			res, err := a.registry.Invoke(ctx, p.call.Name, p.args)
			doneCh <- done{index: p.index, call: p.call, args: p.args, result: res, err: err}
		}(p)
	}
	wg.Wait()
	close(doneCh)

	for d := range doneCh {
		if d.err != nil {
			class, reason := classifyToolError(d.err)
			led.Finish(d.call.Name, d.args, ledger.Outcome{Class: class, HTTPStatus: httpStatusOf(d.err)})
			results[d.index] = toolErrorMessage(d.call, reason)
			continue
		}
		led.Finish(d.call.Name, d.args, ledger.Outcome{OK: d.result.OK})
		payload, merr := json.Marshal(d.result)
		if merr != nil {
			payload = []byte(`{"ok":false,"reason":"unencodable result"}`)
		}
		results[d.index] = llm.Message{
			Role: llm.RoleTool, Name: d.call.Name, ToolCallID: d.call.ID, Content: string(payload),
		}
		if d.result.OK {
			a.collect(d.call.Name, d.result, out)
		}
	}
	return results
}

// collect extracts facts and citations from one successful result.
func (a *Actor) collect(toolName string, res tool.Result, out *Output) {
	if res.Summary != "" {
		out.Facts = append(out.Facts, Fact{Key: toolName, Value: res.Summary, Source: res.Source})
	}
	out.Citations = append(out.Citations, res.Citations...)

	// Packing payloads become their own facts so the reply can be verified
	// against the band later.
	if toolName == "packingSuggest" {
		for _, k := range []string{"packingBand", "packingItemsBase", "packingItemsSpecial"} {
			if v, ok := res.Payload[k]; ok {
				out.Facts = append(out.Facts, Fact{Key: k, Value: fmt.Sprintf("%v", v)})
			}
		}
	}
}

// classifyToolError buckets a registry error for the ledger and picks the
// reason string shown to the LLM.
func classifyToolError(err error) (ledger.Class, string) {
	switch {
	case errors.Is(err, tool.ErrSchema):
		return ledger.ClassSchema, "invalid_arguments"
	case errors.Is(err, context.DeadlineExceeded):
		return ledger.ClassTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return ledger.ClassTimeout, "cancelled"
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return ledger.Classify(se.Code), fmt.Sprintf("provider_http_%d", se.Code)
	}
	return ledger.ClassOther, "tool_failed"
}

func httpStatusOf(err error) int {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func toolErrorMessage(call llm.ToolCall, reason string) llm.Message {
	payload, _ := json.Marshal(map[string]any{"ok": false, "error": reason})
	return llm.Message{Role: llm.RoleTool, Name: call.Name, ToolCallID: call.ID, Content: string(payload)}
}

// weatherFallbackCues mirrors the router's weather cue set; kept local so
// the fallback works even when routing chose another intent.
func weatherFallbackCues(message string) bool {
	lower := strings.ToLower(message)
	for _, cue := range []string{"weather", "temperature", "forecast", "rain", "snow", "sunny", "degrees"} {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// weatherFallback makes one direct weather call using the best known city.
func (a *Actor) weatherFallback(ctx context.Context, led *ledger.Ledger, seen map[string]bool, in Input, out *Output) (string, bool) {
	city := in.Slots["city"]
	if city == "" {
		city = in.Slots["destinationCity"]
	}
	if city == "" {
		return "", false
	}
	args, _ := json.Marshal(map[string]string{"city": city})
	key := ledger.Key("weather", json.RawMessage(args))
	if seen[key] || led.ShouldSkip("weather", json.RawMessage(args)) {
		return "", false
	}
	seen[key] = true

	res, err := a.registry.Invoke(ctx, "weather", args)
	if err != nil || !res.OK {
		if err != nil {
			class, _ := classifyToolError(err)
			led.Finish("weather", json.RawMessage(args), ledger.Outcome{Class: class})
		}
		return "", false
	}
	led.Finish("weather", json.RawMessage(args), ledger.Outcome{OK: true})
	a.collect("weather", res, out)
	return res.Summary, true
}
