package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tripwise/tripwise/internal/llm"
)

// deadlineMargin is reserved out of the remaining turn budget so the tool's
// deadline never outlives the turn itself.
const deadlineMargin = 100 * time.Millisecond

// Registry manages the static tool catalog with thread-safe access.
// Input schemas are compiled once at registration and enforced on every
// Invoke.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry. If a tool with the same name already
// exists, it is overwritten and a warning is logged. A schema that fails to
// compile disables validation for that tool but keeps it callable.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		log.Printf("[Registry] WARNING: overwriting existing tool %q", t.Name())
	}
	r.tools[t.Name()] = t

	if raw := t.InputSchema(); len(raw) > 0 {
		schema, err := jsonschema.CompileString(t.Name()+".schema.json", string(raw))
		if err != nil {
			log.Printf("[Registry] Schema compile failed for %q, validation disabled: %v", t.Name(), err)
			return
		}
		r.schemas[t.Name()] = schema
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// AllowedForRoute reports whether a tool may run for the given route:
// research-style routes never touch the flight-search provider, and packing
// never escalates to deep research.
func AllowedForRoute(route, toolName string) bool {
	switch route {
	case "destinations", "web", "web_search", "policy", "visas":
		return !strings.HasPrefix(toolName, "amadeus")
	case "packing":
		return toolName != "deepResearch"
	default:
		return true
	}
}

// ActiveFor returns the tools allowed for the route, minus any explicitly
// excluded names, sorted by name.
func (r *Registry) ActiveFor(route string, exclude []string) []Tool {
	excluded := make(map[string]bool, len(exclude))
	for _, n := range exclude {
		excluded[n] = true
	}
	var result []Tool
	for _, t := range r.List() {
		if !AllowedForRoute(route, t.Name()) || excluded[t.Name()] {
			continue
		}
		result = append(result, t)
	}
	return result
}

// Definitions converts tools into LLM function-calling specs.
func Definitions(tools []Tool) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.InputSchema(),
		}
	}
	return defs
}

// Invoke validates args against the tool's schema and executes it under a
// deadline of min(tool default, remaining budget − margin). Schema
// violations return ErrSchema; deadline overruns surface as the context
// error from Execute.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if schema != nil {
		var decoded any
		if err := json.Unmarshal(args, &decoded); err != nil {
			return Result{}, fmt.Errorf("%w: %s: invalid JSON: %v", ErrSchema, name, err)
		}
		if err := schema.Validate(decoded); err != nil {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrSchema, name, err)
		}
	}

	timeout := t.Timeout()
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline) - deadlineMargin
		if remaining <= 0 {
			return Result{}, context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return t.Execute(callCtx, args)
}
