// Package router classifies each user message into an intent and a slot
// delta. It never writes session state itself: slot changes and key resets
// travel back to the turn driver, which is the only writer.
package router

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/tripwise/tripwise/internal/llm"
	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/session"
)

const (
	lightweightFloor = 0.7
	correctionFloor  = 0.75
	lowConfidence    = 0.6
	consentGateFloor = 0.75
)

// Config holds the router knobs.
type Config struct {
	// ComplexityGateEnabled turns the deep-research consent gate on.
	ComplexityGateEnabled bool
	// LightweightEnabled turns the local cue classifier on (skips the LLM
	// router when it is confident).
	LightweightEnabled bool
	// ClassifierTimeout bounds each helper LLM call.
	ClassifierTimeout time.Duration
}

// Result is the routing outcome for one message.
type Result struct {
	Intent       string
	NeedExternal bool
	Slots        map[string]string // delta; the driver merges and persists
	Confidence   float64

	// ResetKeys are slot keys the driver must delete before merging Slots.
	ResetKeys []string

	// ConsentAnswer is set when the turn answers a pending consent prompt:
	// "yes" or "no", handled by the driver. Unclear answers never surface
	// here; the router clears consent and routes the message normally.
	ConsentAnswer string

	// ConsentKind is set with Intent "system" when the router parks the
	// turn awaiting consent; the driver stores the pending query and sends
	// the prompt.
	ConsentKind  string
	PendingQuery string

	Decisions []string
}

// Router is the message-classification pipeline.
type Router struct {
	llm     llm.Provider
	metrics *metrics.Registry
	cfg     Config
}

func New(provider llm.Provider, m *metrics.Registry, cfg Config) *Router {
	if cfg.ClassifierTimeout <= 0 {
		cfg.ClassifierTimeout = 3 * time.Second
	}
	return &Router{llm: provider, metrics: m, cfg: cfg}
}

// Route classifies one message against the prior slot state. The first
// pipeline stage that produces a decision wins; the LLM router is the last
// resort, followed by post-passes that clean up its output.
func (r *Router) Route(ctx context.Context, message string, prev map[string]string) Result {
	message = strings.TrimSpace(message)

	// 1. Empty guard.
	if message == "" {
		return Result{Intent: "unknown", Confidence: 0.1, Decisions: []string{"route:empty"}}
	}

	// 2. Pending deep-research consent: classify the answer. Yes/no go back
	// to the driver untouched; unclear clears consent and falls through.
	var decisions []string
	var resetKeys []string
	if prev[session.AwaitingConsentKey(session.ConsentDeepResearch)] == "true" {
		switch answer := r.classifyConsent(ctx, message); answer {
		case "yes", "no":
			return Result{
				Intent:        "system",
				ConsentAnswer: answer,
				Confidence:    0.95,
				Decisions:     []string{"consent:" + answer},
			}
		default:
			resetKeys = append(resetKeys, session.ConsentStateKeys(prev)...)
			decisions = append(decisions, "consent:unclear_cleared")
		}
	}

	// 3. Pending flight clarification: keyword interpretation, flag cleared
	// either way.
	if prev[session.AwaitingConsentKey(session.ConsentFlightClarification)] == "true" {
		resetKeys = append(resetKeys, session.ConsentStateKeys(prev)...)
		switch interpretFlightClarification(message) {
		case "direct_search":
			slots := session.NormalizeSlots(prev, extractFlightSlots(message), "flights")
			return Result{
				Intent: "flights", NeedExternal: true, Slots: slots,
				Confidence: 0.9, ResetKeys: resetKeys,
				Decisions: append(decisions, "flight_clarification:direct_search"),
			}
		case "web_research":
			return Result{
				Intent: "web_search", NeedExternal: true,
				Slots:      map[string]string{session.SlotSearchQuery: message},
				Confidence: 0.9, ResetKeys: resetKeys,
				Decisions: append(decisions, "flight_clarification:web_research"),
			}
		default:
			decisions = append(decisions, "flight_clarification:ambiguous")
		}
	}

	// 4. Flight fast-path.
	if m := flightFastPath.FindStringSubmatch(message); m != nil {
		slots := session.NormalizeSlots(prev, extractFlightSlots(message), "flights")
		return Result{
			Intent: "flights", NeedExternal: true, Slots: slots,
			Confidence: 0.95, ResetKeys: resetKeys,
			Decisions: append(decisions, "route:flight_fastpath"),
		}
	}

	// 5. Complexity gate.
	if r.cfg.ComplexityGateEnabled {
		if c := r.classifyComplexity(ctx, message); c.IsComplex && c.Confidence >= consentGateFloor {
			return Result{
				Intent:       "system",
				ConsentKind:  session.ConsentDeepResearch,
				PendingQuery: message,
				Confidence:   c.Confidence,
				Slots: map[string]string{
					session.SlotComplexityScore:     formatConfidence(c.Confidence),
					session.SlotComplexityReasoning: c.Reasoning,
				},
				ResetKeys: resetKeys,
				Decisions: append(decisions, "route:consent_gate"),
			}
		}
	}

	// 6. Lightweight classifier.
	var result Result
	routed := false
	if r.cfg.LightweightEnabled {
		if intent, conf, external := classifyLightweight(message); conf >= lightweightFloor {
			result = Result{Intent: intent, NeedExternal: external, Confidence: conf,
				Slots: make(map[string]string)}
			decisions = append(decisions, "route:lightweight")
			routed = true
		}
	}

	// 7. LLM router.
	if !routed {
		lr, err := r.routeWithLLM(ctx, message, prev)
		if err != nil {
			log.Printf("[Router] LLM routing failed: %v", err)
			r.metrics.IncFallback("router_llm")
			result = Result{Intent: "unknown", Confidence: 0.1, Slots: make(map[string]string)}
		} else {
			result = Result{
				Intent:       lr.Intent,
				NeedExternal: lr.NeedExternal,
				Confidence:   lr.Confidence,
				Slots:        lr.Slots,
			}
			decisions = append(decisions, "route:llm")
		}
		if result.Slots == nil {
			result.Slots = make(map[string]string)
		}
	}

	result.Decisions = append(decisions, result.Decisions...)
	result.ResetKeys = resetKeys
	r.postProcess(ctx, message, prev, &result)
	return result
}

var (
	clarifyDirectCues = regexp.MustCompile(`(?i)\b(direct(?:ly)?|book|search|option 1)\b`)
	clarifyWebCues    = regexp.MustCompile(`(?i)\b(research|web|compare|browse|option 2)\b`)
)

// interpretFlightClarification buckets a reply to the "search directly or
// research on the web?" prompt. Word boundaries matter: "research" must not
// light up the "search" cue.
func interpretFlightClarification(message string) string {
	direct := clarifyDirectCues.MatchString(message)
	web := clarifyWebCues.MatchString(message)
	switch {
	case direct && !web:
		return "direct_search"
	case web && !direct:
		return "web_research"
	default:
		return "ambiguous"
	}
}

// postProcess runs the after-LLM passes: context-switch reset, explicit-city
// guard, weather override, flight slot enhancement, correction pass, and
// search-query synthesis.
func (r *Router) postProcess(ctx context.Context, message string, prev map[string]string, result *Result) {
	// Context switch: a new concrete location that differs from the stored
	// one resets location/time/profile/consent state.
	priorLoc := primaryLocation(prev)
	newLoc := primaryLocation(result.Slots)
	switched := false
	if priorLoc != "" && newLoc != "" && !samePlace(priorLoc, newLoc) {
		switched = true
	} else if priorLoc != "" && newLoc == "" && messageMentionsNewTopic(message) {
		switched = r.classifyContextSwitch(ctx, priorLoc, message)
	}
	if switched {
		result.ResetKeys = append(result.ResetKeys, session.ContextResetKeys(prev)...)
		result.Decisions = append(result.Decisions, "context:switch_reset")
	} else {
		// Stale-guard: prior time/profile slots don't survive a turn that
		// carries no fresh time/profile signal.
		if !hasTimeSignal(message) {
			result.ResetKeys = append(result.ResetKeys, presentKeys(prev, session.TimeKeys)...)
		}
		if !hasProfileSignal(message) {
			result.ResetKeys = append(result.ResetKeys, presentKeys(prev, session.ProfileKeys)...)
		}
	}

	// Explicit-city guard: drop a city the LLM invented.
	if city := result.Slots[session.SlotCity]; city != "" {
		confirmed := messageMentions(message, city) || samePlace(prev[session.SlotCity], city)
		if !confirmed {
			if parsed := r.parseExplicitCity(ctx, message); parsed == "" || !samePlace(parsed, city) {
				delete(result.Slots, session.SlotCity)
				result.Decisions = append(result.Decisions, "guard:city_dropped")
			}
		}
	}

	// Weather cue override.
	if result.Intent == "flights" && weatherCues.MatchString(message) && !flightCues.MatchString(message) {
		result.Intent = "weather"
		result.Decisions = append(result.Decisions, "override:flights_to_weather")
	}

	// Flight slot enhancement: the dedicated extractor wins over the LLM's
	// slot guesses; temporal tokens stay verbatim.
	if result.Intent == "flights" {
		for k, v := range extractFlightSlots(message) {
			result.Slots[k] = v
		}
	}

	// Correction pass for weak routes.
	if result.Confidence < lowConfidence || result.Intent == "unknown" {
		r.metrics.IncLowConfidence(result.Intent)
		if intent, conf, ok := r.correctIntent(ctx, message, correctionFloor); ok {
			result.Intent = intent
			result.Confidence = conf
			result.NeedExternal = intent != "unknown" && intent != "system"
			result.Decisions = append(result.Decisions, "route:corrected")
		}
	}

	// Query synthesis for web_search turns.
	if result.Intent == "web_search" && result.Slots[session.SlotSearchQuery] == "" {
		result.Slots[session.SlotSearchQuery] = r.synthesizeQuery(ctx, message)
	}

	result.Slots = session.NormalizeSlots(prev, result.Slots, result.Intent)
}

// primaryLocation picks the highest-precedence concrete location in a slot
// map.
func primaryLocation(slots map[string]string) string {
	for _, k := range session.LocationKeys {
		if v := slots[k]; v != "" && !session.IsPlaceholder(v) {
			return v
		}
	}
	return ""
}

// messageMentionsNewTopic is a cheap pre-filter before the LLM
// context-switch classifier: "what about X", "and in X", a bare place name.
func messageMentionsNewTopic(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "what about") ||
		strings.Contains(lower, "how about") ||
		strings.Contains(lower, "instead")
}

func presentKeys(slots map[string]string, keys []string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := slots[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func formatConfidence(c float64) string {
	switch {
	case c >= 0.9:
		return "high"
	case c >= 0.75:
		return "medium"
	default:
		return "low"
	}
}
