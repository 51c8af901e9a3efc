// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/tripwise/tripwise/internal/llm"
)

// Responder produces one reply for a given call. Returning an error
// simulates a transport failure.
type Responder func(messages []llm.Message, tools []llm.ToolDefinition) (llm.Message, error)

// Provider replays scripted responses in order. When the script runs out it
// falls back to Default (or an error when Default is nil). Safe for
// concurrent use.
type Provider struct {
	mu      sync.Mutex
	Script  []Responder
	Default Responder
	Calls   [][]llm.Message // every message list this provider was called with
}

// Text builds a responder that returns a plain assistant message.
func Text(content string) Responder {
	return func([]llm.Message, []llm.ToolDefinition) (llm.Message, error) {
		return llm.Message{Role: llm.RoleAssistant, Content: content}, nil
	}
}

// Calls builds a responder that returns the given tool calls.
func Calls(calls ...llm.ToolCall) Responder {
	return func([]llm.Message, []llm.ToolDefinition) (llm.Message, error) {
		return llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}, nil
	}
}

// Err builds a responder that fails with the given error.
func Err(err error) Responder {
	return func([]llm.Message, []llm.ToolDefinition) (llm.Message, error) {
		return llm.Message{}, err
	}
}

func (p *Provider) next(messages []llm.Message, tools []llm.ToolDefinition) (llm.Message, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, messages)
	var r Responder
	if len(p.Script) > 0 {
		r = p.Script[0]
		p.Script = p.Script[1:]
	} else {
		r = p.Default
	}
	p.mu.Unlock()

	if r == nil {
		return llm.Message{}, fmt.Errorf("llmtest: script exhausted after %d calls", len(p.Calls))
	}
	return r(messages, tools)
}

// CallLLM implements llm.Provider.
func (p *Provider) CallLLM(ctx context.Context, messages []llm.Message, _ *llm.Options) (llm.Message, error) {
	if err := ctx.Err(); err != nil {
		return llm.Message{}, err
	}
	return p.next(messages, nil)
}

// CallLLMWithTools implements llm.Provider.
func (p *Provider) CallLLMWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, _ *llm.Options) (llm.Message, error) {
	if err := ctx.Err(); err != nil {
		return llm.Message{}, err
	}
	return p.next(messages, tools)
}

// CallCount returns how many LLM calls were made.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
