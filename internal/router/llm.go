package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/tripwise/tripwise/internal/llm"
)

// validIntents is the closed routing vocabulary. LLM outputs outside it are
// rejected.
var validIntents = map[string]bool{
	"weather": true, "packing": true, "attractions": true,
	"destinations": true, "flights": true, "policy": true,
	"web_search": true, "system": true, "unknown": true,
}

const routerPrompt = `You route travel-assistant messages. Classify the user message into exactly one intent:
weather, packing, attractions, destinations, flights, policy, web_search, unknown.
Extract any slots mentioned: city, destinationCity, originCity, country, region, month, dates, departureDate, travelerProfile, groupType, budgetLevel, activityType.
Keep relative dates like "tomorrow" or "next week" exactly as written.
Respond with strict JSON only:
{"intent": "...", "needExternal": bool, "slots": {"key": "value"}, "confidence": 0.0-1.0}`

// llmRouterResult mirrors the router JSON contract.
type llmRouterResult struct {
	Intent       string            `json:"intent"`
	NeedExternal bool              `json:"needExternal"`
	Slots        map[string]string `json:"slots"`
	Confidence   float64           `json:"confidence"`
}

// routeWithLLM is the last pipeline stage: one JSON-returning call,
// schema-checked. An error means the caller should fall back to unknown.
func (r *Router) routeWithLLM(ctx context.Context, message string, prev map[string]string) (llmRouterResult, error) {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: routerPrompt}}
	if len(prev) > 0 {
		snapshot, _ := json.Marshal(prev)
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: "Known context: " + string(snapshot)})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	opts := &llm.Options{Timeout: r.cfg.ClassifierTimeout, ResponseFormat: llm.FormatJSON}
	resp, err := r.llm.CallLLM(ctx, msgs, opts)
	if err != nil {
		return llmRouterResult{}, fmt.Errorf("llm route: %w", err)
	}

	var result llmRouterResult
	if err := json.Unmarshal(extractJSON(resp.Content), &result); err != nil {
		return llmRouterResult{}, fmt.Errorf("llm route: malformed JSON: %w", err)
	}
	if !validIntents[result.Intent] {
		return llmRouterResult{}, fmt.Errorf("llm route: intent %q not in vocabulary", result.Intent)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return llmRouterResult{}, fmt.Errorf("llm route: confidence %v out of range", result.Confidence)
	}
	return result, nil
}

const consentPrompt = `The assistant asked the user for permission to run deep research. Classify the user's reply as consent or refusal.
Respond with strict JSON only: {"answer": "yes"|"no"|"unclear"}`

// classifyConsent interprets a reply to a pending consent prompt. Failures
// degrade to "unclear" so the turn proceeds as a normal message.
func (r *Router) classifyConsent(ctx context.Context, message string) string {
	// Obvious answers skip the LLM round-trip.
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "yes", "y", "yes please", "sure", "ok", "okay", "go ahead", "do it", "please do":
		return "yes"
	case "no", "n", "no thanks", "nope", "don't", "skip it", "not now":
		return "no"
	}

	opts := &llm.Options{Timeout: r.cfg.ClassifierTimeout, ResponseFormat: llm.FormatJSON}
	resp, err := r.llm.CallLLM(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: consentPrompt},
		{Role: llm.RoleUser, Content: message},
	}, opts)
	if err != nil {
		log.Printf("[Router] Consent classifier failed, treating as unclear: %v", err)
		return "unclear"
	}
	var out struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(extractJSON(resp.Content), &out); err != nil {
		return "unclear"
	}
	switch out.Answer {
	case "yes", "no":
		return out.Answer
	}
	return "unclear"
}

const contextSwitchPrompt = `Two travel questions are given. Decide whether the second is about a DIFFERENT place or trip than the first, or a follow-up about the SAME one.
Respond with strict JSON only: {"verdict": "DIFFERENT"|"SAME"}`

// classifyContextSwitch asks the LLM whether the new message changes topic
// relative to the prior location. Failure means "same" (no reset).
func (r *Router) classifyContextSwitch(ctx context.Context, priorLocation, message string) bool {
	opts := &llm.Options{Timeout: r.cfg.ClassifierTimeout, ResponseFormat: llm.FormatJSON}
	resp, err := r.llm.CallLLM(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: contextSwitchPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("First: about %s\nSecond: %s", priorLocation, message)},
	}, opts)
	if err != nil {
		return false
	}
	var out struct {
		Verdict string `json:"verdict"`
	}
	if err := json.Unmarshal(extractJSON(resp.Content), &out); err != nil {
		return false
	}
	return out.Verdict == "DIFFERENT"
}

const cityParsePrompt = `Does the user message explicitly name a city? Respond with strict JSON only:
{"city": "name or empty string"}`

// parseExplicitCity confirms whether the message itself names a city.
// Used to drop router-hallucinated cities.
func (r *Router) parseExplicitCity(ctx context.Context, message string) string {
	opts := &llm.Options{Timeout: r.cfg.ClassifierTimeout, ResponseFormat: llm.FormatJSON}
	resp, err := r.llm.CallLLM(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: cityParsePrompt},
		{Role: llm.RoleUser, Content: message},
	}, opts)
	if err != nil {
		return ""
	}
	var out struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal(extractJSON(resp.Content), &out); err != nil {
		return ""
	}
	return strings.TrimSpace(out.City)
}

const correctionPrompt = `Re-classify this travel message into one intent:
weather, packing, attractions, destinations, flights, policy, web_search, unknown.
Respond with strict JSON only: {"intent": "...", "confidence": 0.0-1.0}`

// correctIntent is the second-opinion classifier for low-confidence routes.
// The result is only accepted at or above the given floor.
func (r *Router) correctIntent(ctx context.Context, message string, floor float64) (string, float64, bool) {
	opts := &llm.Options{Timeout: r.cfg.ClassifierTimeout, ResponseFormat: llm.FormatJSON}
	resp, err := r.llm.CallLLM(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: correctionPrompt},
		{Role: llm.RoleUser, Content: message},
	}, opts)
	if err != nil {
		return "", 0, false
	}
	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(extractJSON(resp.Content), &out); err != nil {
		return "", 0, false
	}
	if !validIntents[out.Intent] || out.Intent == "unknown" || out.Confidence < floor {
		return "", 0, false
	}
	return out.Intent, out.Confidence, true
}

const queryOptimizerPrompt = `Turn the user's travel question into one concise web search query.
Respond with strict JSON only: {"query": "..."}`

// synthesizeQuery builds a search query for web_search turns. On failure
// the raw message serves as the query.
func (r *Router) synthesizeQuery(ctx context.Context, message string) string {
	opts := &llm.Options{Timeout: r.cfg.ClassifierTimeout, ResponseFormat: llm.FormatJSON}
	resp, err := r.llm.CallLLM(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: queryOptimizerPrompt},
		{Role: llm.RoleUser, Content: message},
	}, opts)
	if err != nil {
		return message
	}
	var out struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(extractJSON(resp.Content), &out); err != nil || strings.TrimSpace(out.Query) == "" {
		return message
	}
	return strings.TrimSpace(out.Query)
}

// extractJSON returns the first balanced {…} substring, tolerating prose or
// code fences around the JSON body.
func extractJSON(s string) []byte {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return []byte(s)
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
					return []byte(s[start : i+1])
				}
			}
		}
	}
	return []byte(s[start:])
}
