// Package ledger records tool invocation outcomes for one turn: it dedupes
// repeat calls and suppresses retries of recently failed calls with
// kind-specific TTLs.
package ledger

import (
	"time"
)

// Class buckets an outcome for TTL selection.
type Class string

const (
	ClassSuccess   Class = "success"
	ClassHTTPBlock Class = "http_block" // 403/429 from the provider
	ClassSchema    Class = "schema"     // input validation failure
	ClassTimeout   Class = "timeout"
	ClassOther     Class = "other"
)

// Outcome is one recorded invocation result.
type Outcome struct {
	OK         bool
	HTTPStatus int
	Class      Class
	At         time.Time
}

// TTLConfig holds the suppression windows per outcome class.
type TTLConfig struct {
	Success   time.Duration
	HTTPBlock time.Duration
	Schema    time.Duration
	Fail      time.Duration // timeouts and everything else
}

// DefaultTTLs matches the documented defaults.
var DefaultTTLs = TTLConfig{
	Success:   300 * time.Second,
	HTTPBlock: 900 * time.Second,
	Schema:    300 * time.Second,
	Fail:      120 * time.Second,
}

func (c TTLConfig) ttlFor(o Outcome) time.Duration {
	if o.OK {
		return c.Success
	}
	switch o.Class {
	case ClassHTTPBlock:
		return c.HTTPBlock
	case ClassSchema:
		return c.Schema
	default:
		return c.Fail
	}
}

// Classify buckets an error-side outcome from its HTTP status. Schema and
// timeout classes are assigned by the caller, which knows the error type.
func Classify(httpStatus int) Class {
	switch {
	case httpStatus == 403 || httpStatus == 429:
		return ClassHTTPBlock
	default:
		return ClassOther
	}
}

// Ledger is a per-turn, single-owner record of tool outcomes. It is created
// by the driver, written only by the actor, and discarded after the turn, so
// it needs no locking.
type Ledger struct {
	ttls    TTLConfig
	entries map[string]Outcome
	now     func() time.Time
}

// New creates a ledger with the given TTL configuration.
func New(ttls TTLConfig) *Ledger {
	return &Ledger{
		ttls:    ttls,
		entries: make(map[string]Outcome),
		now:     time.Now,
	}
}

// ShouldSkip reports whether a prior outcome for (tool, args) is present
// and still inside its suppression window.
func (l *Ledger) ShouldSkip(toolName string, args any) bool {
	o, ok := l.entries[Key(toolName, args)]
	if !ok {
		return false
	}
	return l.now().Sub(o.At) < l.ttls.ttlFor(o)
}

// Finish records the outcome for (tool, args) with the current timestamp.
func (l *Ledger) Finish(toolName string, args any, o Outcome) {
	o.At = l.now()
	l.entries[Key(toolName, args)] = o
}

// Outcomes returns a copy of all recorded entries, for receipts.
func (l *Ledger) Outcomes() map[string]Outcome {
	out := make(map[string]Outcome, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}
