package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Message represents a chat message for LLM communication.
type Message struct {
	Role       string     `json:"role"`                   // "user", "assistant", "system", "tool"
	Content    string     `json:"content"`                // The message text
	Name       string     `json:"name,omitempty"`         // FC: function name when role="tool"
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // FC: tool calls returned by model
	ToolCallID string     `json:"tool_call_id,omitempty"` // FC: when role="tool", the ID of the call this responds to
}

// ToolDefinition describes a tool for Function Calling.
// Parameters follows OpenAI JSON Schema format.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ToolCall represents a single tool call returned by the model.
type ToolCall struct {
	ID        string          `json:"id"` // OpenAI uses this to correlate tool results
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Options tunes a single LLM call. The zero value means provider defaults.
type Options struct {
	// Timeout bounds this call. Zero means the caller's context deadline
	// (or the provider's HTTP timeout) applies alone.
	Timeout time.Duration
	// ResponseFormat is "text" or "json". "json" asks the endpoint for a
	// JSON-object response when the model supports it.
	ResponseFormat string
	// Temperature overrides the provider default when non-nil.
	Temperature *float32
}

// Provider defines the interface for all LLM implementations.
// Any OpenAI-compatible endpoint (litellm, Ollama, Azure, vLLM, etc.)
// can be used by implementing this interface.
type Provider interface {
	// CallLLM sends messages to the LLM and returns the complete response.
	CallLLM(ctx context.Context, messages []Message, opts *Options) (Message, error)

	// CallLLMWithTools sends messages with tool definitions for Function
	// Calling. The model may return tool_calls in the response or a direct
	// text answer.
	CallLLMWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, opts *Options) (Message, error)
}

// Role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Response format hints.
const (
	FormatText = "text"
	FormatJSON = "json"
)
