package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/tripwise/tripwise/internal/llm"
)

// Client implements llm.Provider using the OpenAI-compatible protocol.
// Works with any endpoint that supports the OpenAI chat completions API.
type Client struct {
	client *openailib.Client
	config *Config
}

// GetConfig returns the client's configuration.
func (c *Client) GetConfig() *Config {
	return c.config
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clientConfig := openailib.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Client{
		client: openailib.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// NewClientFromEnv creates a client using environment variables.
func NewClientFromEnv() (*Client, error) {
	config, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	return NewClient(config)
}

// callCtx derives the request context from opts. The per-call timeout always
// wins over the config-level HTTP timeout when both are set.
func (c *Client) callCtx(ctx context.Context, opts *llm.Options) (context.Context, context.CancelFunc) {
	timeout := c.config.HTTPTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// buildRequest converts messages and options into the wire request.
func (c *Client) buildRequest(messages []llm.Message, opts *llm.Options) openailib.ChatCompletionRequest {
	openaiMsgs := make([]openailib.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		m := openailib.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openailib.ToolCall{
				ID:   tc.ID,
				Type: openailib.ToolTypeFunction,
				Function: openailib.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		openaiMsgs[i] = m
	}

	req := openailib.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: openaiMsgs,
	}
	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if opts != nil && opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	if opts != nil && opts.ResponseFormat == llm.FormatJSON {
		req.ResponseFormat = &openailib.ChatCompletionResponseFormat{
			Type: openailib.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

// doWithRetry executes the request, retrying transient failures with the
// teacher-grade linear backoff. Cancellation aborts the wait immediately.
func (c *Client) doWithRetry(ctx context.Context, req openailib.ChatCompletionRequest) (openailib.ChatCompletionResponse, error) {
	var resp openailib.ChatCompletionResponse
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, req)
		if lastErr == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
		if attempt < c.config.MaxRetries {
			wait := time.Duration(attempt+1) * time.Second
			log.Printf("[LLM] Retry %d/%d after %v, error: %v", attempt+1, c.config.MaxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return resp, ctx.Err()
			}
		}
	}
	return resp, fmt.Errorf("LLM call failed after %d retries: %w", c.config.MaxRetries, lastErr)
}

// CallLLM sends messages to the LLM and returns the response.
func (c *Client) CallLLM(ctx context.Context, messages []llm.Message, opts *llm.Options) (llm.Message, error) {
	if len(messages) == 0 {
		return llm.Message{}, fmt.Errorf("no messages to send")
	}

	callCtx, cancel := c.callCtx(ctx, opts)
	defer cancel()

	resp, err := c.doWithRetry(callCtx, c.buildRequest(messages, opts))
	if err != nil {
		return llm.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("no choices returned from LLM")
	}

	return llm.Message{
		Role:    llm.RoleAssistant,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

// CallLLMWithTools sends messages with tool definitions for Function Calling.
// The model may return tool_calls in the response or a direct text answer.
// Always non-streaming.
func (c *Client) CallLLMWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts *llm.Options) (llm.Message, error) {
	if len(messages) == 0 {
		return llm.Message{}, fmt.Errorf("no messages to send")
	}

	req := c.buildRequest(messages, opts)
	for _, t := range tools {
		req.Tools = append(req.Tools, openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	callCtx, cancel := c.callCtx(ctx, opts)
	defer cancel()

	resp, err := c.doWithRetry(callCtx, req)
	if err != nil {
		return llm.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("no choices returned from LLM")
	}

	choice := resp.Choices[0].Message
	out := llm.Message{
		Role:    llm.RoleAssistant,
		Content: choice.Content,
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// GetName returns the provider name.
func (c *Client) GetName() string {
	return fmt.Sprintf("openai-compatible (%s)", c.config.Model)
}
