// Package turn is the driver: it owns the per-turn lifecycle, is the sole
// writer of session state, and serializes turns per thread.
package turn

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripwise/tripwise/internal/agent"
	"github.com/tripwise/tripwise/internal/blend"
	"github.com/tripwise/tripwise/internal/ledger"
	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/planner"
	"github.com/tripwise/tripwise/internal/router"
	"github.com/tripwise/tripwise/internal/session"
)

const (
	defaultTurnTimeout = 20 * time.Second

	redirectFloor = 0.3

	consentPromptText = "That's a rich question — I can run a deeper research pass across several sources, which takes a bit longer. Want me to go ahead?"
	redirectReply     = "I can help with weather, packing, flights, visas, attractions and destination ideas. What trip are you planning?"
	failureReply      = "Something went wrong on my side putting that answer together. Mind trying again?"
)

// researchTools are excluded from the actor when the user declined deep
// research.
var researchTools = []string{"deepResearch", "search"}

// Request is one inbound turn.
type Request struct {
	Message  string
	ThreadID string
	Receipts bool
}

// Receipts is the optional structured trail returned on request.
type Receipts struct {
	Verdict   blend.Verdict             `json:"verdict"`
	Ledger    map[string]ledger.Outcome `json:"ledger,omitempty"`
	PlanRoute string                    `json:"planRoute,omitempty"`
}

// Response is the completed turn.
type Response struct {
	Reply     string       `json:"reply"`
	ThreadID  string       `json:"threadId"`
	Citations []string     `json:"citations,omitempty"`
	Facts     []agent.Fact `json:"facts,omitempty"`
	Decisions []string     `json:"decisions,omitempty"`
	Receipts  *Receipts    `json:"receipts,omitempty"`
}

// Config tunes the driver.
type Config struct {
	TurnTimeout time.Duration
	LedgerTTLs  ledger.TTLConfig
	MsgCap      int
}

// Driver orchestrates router → planner → actor → blend for each turn.
type Driver struct {
	store   session.Store
	router  *router.Router
	planner *planner.Planner
	actor   *agent.Actor
	metrics *metrics.Registry
	cfg     Config

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

func NewDriver(store session.Store, r *router.Router, p *planner.Planner, a *agent.Actor, m *metrics.Registry, cfg Config) *Driver {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.LedgerTTLs == (ledger.TTLConfig{}) {
		cfg.LedgerTTLs = ledger.DefaultTTLs
	}
	if cfg.MsgCap <= 0 {
		cfg.MsgCap = session.DefaultMsgCap
	}
	return &Driver{
		store: store, router: r, planner: p, actor: a, metrics: m,
		cfg: cfg, threads: make(map[string]*sync.Mutex),
	}
}

// threadLock returns the mutex serializing turns on one thread, so a second
// request observes the first one's persisted state only after it returns.
func (d *Driver) threadLock(threadID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.threads[threadID]
	if !ok {
		l = &sync.Mutex{}
		d.threads[threadID] = l
	}
	return l
}

// Handle runs one turn under the turn deadline.
func (d *Driver) Handle(ctx context.Context, req Request) Response {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	lock := d.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.TurnTimeout)
	defer cancel()

	d.metrics.IncMessages()

	// Session reads are best-effort: a slow or down backend degrades to an
	// empty-state turn, never a failed one.
	slots, err := d.store.GetSlots(ctx, threadID)
	if err != nil {
		log.Printf("[Driver] Slot load failed for %s, continuing empty: %v", threadID, err)
		slots = map[string]string{}
	}

	if err := d.store.AppendMsg(ctx, threadID, session.Message{Role: "user", Content: req.Message}, d.cfg.MsgCap); err != nil {
		log.Printf("[Driver] History append failed for %s: %v", threadID, err)
	}

	route := d.router.Route(ctx, req.Message, slots)

	// Consent answers resolve the parked question before any routing of the
	// current message text.
	if route.ConsentAnswer != "" {
		result, trace := d.resumeConsent(ctx, threadID, slots, route.ConsentAnswer)
		return d.finish(ctx, threadID, req, result, trace)
	}

	// Park the turn awaiting consent.
	if route.ConsentKind != "" {
		d.applySlots(ctx, threadID, slots, route.ResetKeys, mergeConsent(route.Slots, route.ConsentKind, route.PendingQuery))
		d.metrics.IncClarify(route.ConsentKind)
		d.metrics.IncTurn("system")
		return d.finish(ctx, threadID, req, blend.Result{
			Reply:     consentPromptText,
			Decisions: append(route.Decisions, "driver:consent_prompt"),
			Verdict:   blend.VerdictPass,
		}, execTrace{})
	}

	d.applySlots(ctx, threadID, slots, route.ResetKeys, route.Slots)

	if route.Intent == "unknown" && route.Confidence < redirectFloor {
		d.metrics.IncFallback("redirect")
		d.metrics.IncTurn("unknown")
		return d.finish(ctx, threadID, req, blend.Result{
			Reply:     redirectReply,
			Decisions: append(route.Decisions, "driver:redirect"),
			Verdict:   blend.VerdictPass,
		}, execTrace{})
	}

	merged := currentSlots(slots, route.ResetKeys, route.Slots)
	result, trace := d.execute(ctx, req.Message, route.Intent, merged, route.Decisions, nil)
	d.metrics.IncTurn(route.Intent)
	return d.finish(ctx, threadID, req, result, trace)
}

// execTrace carries the per-turn audit data surfaced in receipts.
type execTrace struct {
	ledger    map[string]ledger.Outcome
	planRoute string
}

// execute runs planner → actor → blend for an already-routed message.
func (d *Driver) execute(ctx context.Context, message, intent string, slots map[string]string, decisions []string, exclude []string) (blend.Result, execTrace) {
	var planEcho, planRoute string
	complexity := slots[session.SlotComplexityReasoning]
	if plan := d.planner.Plan(ctx, message, slots, complexity); plan != nil {
		planEcho = plan.Echo()
		if plan.Route != "" {
			planRoute = plan.Route
			decisions = append(decisions, "plan:"+plan.Route)
		}
	}

	route := intent
	if planRoute != "" {
		route = planRoute
	}

	led := ledger.New(d.cfg.LedgerTTLs)
	out := d.actor.Run(ctx, led, agent.Input{
		Message:      message,
		Route:        route,
		Slots:        slots,
		PlanEcho:     planEcho,
		ExcludeTools: exclude,
	})
	if out.Reply == "" {
		out.Reply = failureReply
	}

	result := blend.Blend(out, decisions)
	result.Decisions = append([]string{"route:" + route}, result.Decisions...)
	return result, execTrace{ledger: led.Outcomes(), planRoute: planRoute}
}

// resumeConsent handles the turn after a consent prompt: yes re-runs the
// parked query preferring deep research, no answers it without research
// tools. Consent state clears either way.
func (d *Driver) resumeConsent(ctx context.Context, threadID string, slots map[string]string, answer string) (blend.Result, execTrace) {
	pending := slots[session.PendingQueryKey(session.ConsentDeepResearch)]
	reset := session.ConsentStateKeys(slots)
	d.applySlots(ctx, threadID, slots, reset, nil)
	remaining := currentSlots(slots, reset, nil)

	if pending == "" {
		d.metrics.IncFallback("consent_lost_query")
		return blend.Result{Reply: redirectReply, Decisions: []string{"driver:consent_no_pending"}, Verdict: blend.VerdictPass}, execTrace{}
	}

	d.metrics.IncTurn("web_search")
	if answer == "no" {
		return d.execute(ctx, pending, "web_search", remaining, []string{"consent:no"}, researchTools)
	}
	return d.execute(ctx, pending, "web_search", remaining, []string{"consent:yes", "prefer:deepResearch"}, nil)
}

// applySlots deletes reset keys and merges the put delta in one store call.
func (d *Driver) applySlots(ctx context.Context, threadID string, prev map[string]string, del []string, put map[string]string) {
	if len(del) == 0 && len(put) == 0 {
		return
	}
	if err := d.store.SetSlots(ctx, threadID, put, del); err != nil {
		log.Printf("[Driver] Slot persist failed for %s: %v", threadID, err)
	}
}

// finish appends the assistant reply to history and shapes the response.
func (d *Driver) finish(ctx context.Context, threadID string, req Request, result blend.Result, trace execTrace) Response {
	if err := d.store.AppendMsg(ctx, threadID, session.Message{Role: "assistant", Content: result.Reply}, d.cfg.MsgCap); err != nil {
		log.Printf("[Driver] Reply append failed for %s: %v", threadID, err)
	}
	if len(result.Citations) > 0 {
		d.metrics.IncAnswerWithCitations()
	}

	resp := Response{
		Reply:     result.Reply,
		ThreadID:  threadID,
		Citations: result.Citations,
		Facts:     result.Facts,
		Decisions: result.Decisions,
	}
	if req.Receipts {
		resp.Receipts = &Receipts{
			Verdict:   result.Verdict,
			Ledger:    trace.ledger,
			PlanRoute: trace.planRoute,
		}
	}
	return resp
}

// currentSlots computes the post-merge slot view without re-reading the
// store: prev minus deletions plus the delta.
func currentSlots(prev map[string]string, del []string, put map[string]string) map[string]string {
	out := make(map[string]string, len(prev)+len(put))
	for k, v := range prev {
		out[k] = v
	}
	for _, k := range del {
		delete(out, k)
	}
	for k, v := range put {
		out[k] = v
	}
	return out
}

// mergeConsent adds the awaiting/pending pair to the router's slot delta.
func mergeConsent(slots map[string]string, kind, query string) map[string]string {
	out := make(map[string]string, len(slots)+2)
	for k, v := range slots {
		out[k] = v
	}
	out[session.AwaitingConsentKey(kind)] = "true"
	out[session.PendingQueryKey(kind)] = query
	return out
}
