package tool

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Tool is the unified interface for all tools in the catalog.
type Tool interface {
	// Name returns the tool identifier (LLM uses this name to invoke the tool).
	Name() string

	// Description returns a natural-language description for LLM function specs.
	Description() string

	// InputSchema returns a standard JSON Schema defining the tool's
	// parameters, compatible with OpenAI Function Calling.
	InputSchema() json.RawMessage

	// Timeout returns the tool's default per-call deadline. The effective
	// deadline is min(Timeout, remaining turn budget).
	Timeout() time.Duration

	// Execute runs the tool with JSON-encoded arguments. Failures the LLM
	// should see are returned inside Result (ok=false); returned errors are
	// transport-level and classified by the caller.
	Execute(ctx context.Context, args json.RawMessage) (Result, error)
}

// ErrSchema reports that arguments failed validation against the tool's
// input schema. Terminal for the call; never retried.
var ErrSchema = errors.New("tool: arguments failed schema validation")

// ErrUnknownTool reports a call to a name not present in the registry.
var ErrUnknownTool = errors.New("tool: unknown tool")

// Result is a tool execution outcome as presented to the LLM.
// On the wire it is a flat object: ok/summary/source/citations/reason plus
// every payload key spread at the top level.
type Result struct {
	OK        bool
	Summary   string
	Source    string
	Citations []string
	Reason    string // failure reason when OK is false
	Payload   map[string]any
}

// Fail builds an ok:false result with the given reason.
func Fail(reason string) Result {
	return Result{Reason: reason}
}

// MarshalJSON flattens Payload into the top-level object. Reserved field
// names in the payload are skipped rather than overriding the envelope.
func (r Result) MarshalJSON() ([]byte, error) {
	obj := map[string]any{"ok": r.OK}
	if r.Summary != "" {
		obj["summary"] = r.Summary
	}
	if r.Source != "" {
		obj["source"] = r.Source
	}
	if len(r.Citations) > 0 {
		obj["citations"] = r.Citations
	}
	if r.Reason != "" {
		obj["reason"] = r.Reason
	}
	for k, v := range r.Payload {
		if _, reserved := obj[k]; reserved {
			continue
		}
		switch k {
		case "ok", "summary", "source", "citations", "reason":
			continue
		}
		obj[k] = v
	}
	return json.Marshal(obj)
}

// SchemaParam describes a single parameter for the BuildSchema helper.
type SchemaParam struct {
	Name        string
	Type        string // "string", "integer", "boolean", "number"
	Description string
	Required    bool
	Enum        []string
}

// BuildSchema generates a standard JSON Schema object from a list of
// SchemaParams so tools avoid hand-writing JSON strings.
func BuildSchema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any)
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, _ := json.Marshal(schema)
	return data
}
