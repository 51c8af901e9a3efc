package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTool is a minimal Tool for registry tests.
type stubTool struct {
	name    string
	schema  json.RawMessage
	timeout time.Duration
	execute func(ctx context.Context, args json.RawMessage) (Result, error)
}

func (s *stubTool) Name() string                 { return s.name }
func (s *stubTool) Description() string          { return "stub" }
func (s *stubTool) InputSchema() json.RawMessage { return s.schema }
func (s *stubTool) Timeout() time.Duration {
	if s.timeout == 0 {
		return time.Second
	}
	return s.timeout
}
func (s *stubTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	if s.execute != nil {
		return s.execute(ctx, args)
	}
	return Result{OK: true, Summary: "done"}, nil
}

func citySchema() json.RawMessage {
	return BuildSchema(SchemaParam{Name: "city", Type: "string", Required: true})
}

func TestRegistryInvokeValidatesSchema(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "weather", schema: citySchema()})

	_, err := r.Invoke(context.Background(), "weather", json.RawMessage(`{"city":123}`))
	assert.ErrorIs(t, err, ErrSchema)

	_, err = r.Invoke(context.Background(), "weather", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrSchema, "missing required field")

	_, err = r.Invoke(context.Background(), "weather", json.RawMessage(`{"city":"Paris","extra":1}`))
	assert.ErrorIs(t, err, ErrSchema, "additionalProperties rejected")

	res, err := r.Invoke(context.Background(), "weather", json.RawMessage(`{"city":"Paris"}`))
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestRegistryInvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "nope", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistryInvokeRespectsDeadline(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		name: "slow", schema: json.RawMessage(nil), timeout: 10 * time.Second,
		execute: func(ctx context.Context, _ json.RawMessage) (Result, error) {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			// Effective deadline must track the turn budget, not the 10s default.
			assert.LessOrEqual(t, time.Until(deadline), 500*time.Millisecond)
			return Result{OK: true}, nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := r.Invoke(ctx, "slow", json.RawMessage(`{}`))
	require.NoError(t, err)

	// Expired budget short-circuits without executing.
	expired, cancel2 := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel2()
	time.Sleep(5 * time.Millisecond)
	_, err = r.Invoke(expired, "slow", json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAllowedForRoute(t *testing.T) {
	for _, route := range []string{"destinations", "web", "web_search", "policy", "visas"} {
		assert.False(t, AllowedForRoute(route, "amadeusResolveCity"), route)
		assert.False(t, AllowedForRoute(route, "amadeusSearchFlights"), route)
		assert.True(t, AllowedForRoute(route, "search"), route)
	}
	assert.False(t, AllowedForRoute("packing", "deepResearch"))
	assert.True(t, AllowedForRoute("packing", "weather"))
	assert.True(t, AllowedForRoute("flights", "amadeusSearchFlights"))
	assert.True(t, AllowedForRoute("weather", "deepResearch"))
}

func TestActiveForFiltersAndSorts(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "weather"})
	r.Register(&stubTool{name: "amadeusResolveCity"})
	r.Register(&stubTool{name: "deepResearch"})
	r.Register(&stubTool{name: "search"})

	var names []string
	for _, tl := range r.ActiveFor("policy", []string{"search"}) {
		names = append(names, tl.Name())
	}
	assert.Equal(t, []string{"deepResearch", "weather"}, names)
}

func TestResultMarshalFlattensPayload(t *testing.T) {
	res := Result{
		OK:        true,
		Summary:   "sum",
		Source:    "src",
		Citations: []string{"https://a"},
		Payload:   map[string]any{"cityCode": "NYC", "summary": "must not override"},
	}
	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, "sum", m["summary"], "envelope wins over payload")
	assert.Equal(t, "NYC", m["cityCode"])
}

func TestFail(t *testing.T) {
	raw, err := json.Marshal(Fail("nope"))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, false, m["ok"])
	assert.Equal(t, "nope", m["reason"])
}
