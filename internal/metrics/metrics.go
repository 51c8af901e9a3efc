// Package metrics is a process-wide counter registry serving the JSON
// snapshot exposed at GET /metrics. The snapshot schema is bespoke (nested
// label maps), so counters are kept directly in the shape they are served.
package metrics

import (
	"sync"
)

// Registry holds all counters. The zero value is not usable; call New.
type Registry struct {
	mu sync.Mutex

	messagesTotal        int64
	answersWithCitations int64

	chatTurns       map[string]int64 // intent → count
	routerLowConf   map[string]int64 // intent → count
	clarifyRequests map[string]int64 // key → count
	fallbacks       map[string]int64 // kind → count
	gatedSkips      map[string]int64 // tool → count
	planRoutes      map[string]int64 // route → count
	argParseFails   int64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		chatTurns:       make(map[string]int64),
		routerLowConf:   make(map[string]int64),
		clarifyRequests: make(map[string]int64),
		fallbacks:       make(map[string]int64),
		gatedSkips:      make(map[string]int64),
		planRoutes:      make(map[string]int64),
	}
}

// IncMessages counts one inbound user message.
func (r *Registry) IncMessages() {
	r.mu.Lock()
	r.messagesTotal++
	r.mu.Unlock()
}

// IncTurn counts one completed turn for the routed intent.
func (r *Registry) IncTurn(intent string) {
	r.mu.Lock()
	r.chatTurns[intent]++
	r.mu.Unlock()
}

// IncLowConfidence counts a router result below the confidence floor.
func (r *Registry) IncLowConfidence(intent string) {
	r.mu.Lock()
	r.routerLowConf[intent]++
	r.mu.Unlock()
}

// IncClarify counts a clarification/consent prompt sent to the user.
func (r *Registry) IncClarify(key string) {
	r.mu.Lock()
	r.clarifyRequests[key]++
	r.mu.Unlock()
}

// IncFallback counts a fallback reply of the given kind.
func (r *Registry) IncFallback(kind string) {
	r.mu.Lock()
	r.fallbacks[kind]++
	r.mu.Unlock()
}

// IncGatedSkip counts a tool call short-circuited by route gating.
func (r *Registry) IncGatedSkip(toolName string) {
	r.mu.Lock()
	r.gatedSkips[toolName]++
	r.mu.Unlock()
}

// IncPlanRoute records a well-formed planner route.
func (r *Registry) IncPlanRoute(route string) {
	r.mu.Lock()
	r.planRoutes[route]++
	r.mu.Unlock()
}

// IncArgParseFail counts a tool-call argument JSON parse failure.
func (r *Registry) IncArgParseFail() {
	r.mu.Lock()
	r.argParseFails++
	r.mu.Unlock()
}

// IncAnswerWithCitations counts a reply that carried at least one citation.
func (r *Registry) IncAnswerWithCitations() {
	r.mu.Lock()
	r.answersWithCitations++
	r.mu.Unlock()
}

// Snapshot is the JSON shape served at /metrics.
type Snapshot struct {
	MessagesTotal             int64            `json:"messages_total"`
	ChatTurns                 map[string]int64 `json:"chat_turns"`
	RouterLowConf             map[string]int64 `json:"router_low_conf"`
	ClarifyRequests           map[string]int64 `json:"clarify_requests"`
	Fallbacks                 map[string]int64 `json:"fallbacks"`
	AnswersWithCitationsTotal int64            `json:"answers_with_citations_total"`
	GatedSkips                map[string]int64 `json:"gated_skips"`
	PlanRoutes                map[string]int64 `json:"plan_routes"`
	ArgParseFailuresTotal     int64            `json:"arg_parse_failures_total"`
}

// Snapshot returns a copy of all counters.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		MessagesTotal:             r.messagesTotal,
		ChatTurns:                 copyMap(r.chatTurns),
		RouterLowConf:             copyMap(r.routerLowConf),
		ClarifyRequests:           copyMap(r.clarifyRequests),
		Fallbacks:                 copyMap(r.fallbacks),
		AnswersWithCitationsTotal: r.answersWithCitations,
		GatedSkips:                copyMap(r.gatedSkips),
		PlanRoutes:                copyMap(r.planRoutes),
		ArgParseFailuresTotal:     r.argParseFails,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
