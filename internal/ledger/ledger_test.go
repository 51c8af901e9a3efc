package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalKeyOrderInsensitive(t *testing.T) {
	a := json.RawMessage(`{"city":"Paris","month":"June"}`)
	b := json.RawMessage(`{"month":"June","city":"Paris"}`)
	assert.Equal(t, Canonical(a), Canonical(b))
	assert.Equal(t, Key("weather", a), Key("weather", b))
}

func TestCanonicalNestedAndArrays(t *testing.T) {
	a := json.RawMessage(`{"b":{"y":2,"x":1},"a":[1,2]}`)
	b := json.RawMessage(`{"a":[1,2],"b":{"x":1,"y":2}}`)
	assert.Equal(t, `{"a":[1,2],"b":{"x":1,"y":2}}`, Canonical(a))
	assert.Equal(t, Canonical(a), Canonical(b))

	// Array order is significant.
	c := json.RawMessage(`{"a":[2,1],"b":{"x":1,"y":2}}`)
	assert.NotEqual(t, Canonical(a), Canonical(c))
}

func TestCanonicalNonObjectPassthrough(t *testing.T) {
	assert.Equal(t, `"plain"`, Canonical(json.RawMessage(`"plain"`)))
	assert.Equal(t, "raw string", Canonical("raw string"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassHTTPBlock, Classify(403))
	assert.Equal(t, ClassHTTPBlock, Classify(429))
	assert.Equal(t, ClassOther, Classify(500))
	assert.Equal(t, ClassOther, Classify(404))
}

func TestShouldSkipRespectsClassTTLs(t *testing.T) {
	now := time.Now()
	l := New(DefaultTTLs)
	l.now = func() time.Time { return now }

	args := json.RawMessage(`{"city":"Rome"}`)

	require.False(t, l.ShouldSkip("weather", args), "empty ledger never skips")

	l.Finish("weather", args, Outcome{OK: true})
	assert.True(t, l.ShouldSkip("weather", args))

	// Success TTL is 300s: still suppressed at 299s, free at 301s.
	l.now = func() time.Time { return now.Add(299 * time.Second) }
	assert.True(t, l.ShouldSkip("weather", args))
	l.now = func() time.Time { return now.Add(301 * time.Second) }
	assert.False(t, l.ShouldSkip("weather", args))
}

func TestShouldSkipHTTPBlockLongerThanFailure(t *testing.T) {
	now := time.Now()
	l := New(DefaultTTLs)
	l.now = func() time.Time { return now }

	blocked := json.RawMessage(`{"query":"a"}`)
	failed := json.RawMessage(`{"query":"b"}`)
	l.Finish("search", blocked, Outcome{Class: ClassHTTPBlock, HTTPStatus: 429})
	l.Finish("search", failed, Outcome{Class: ClassOther, HTTPStatus: 500})

	// At 5 minutes the generic failure has expired, the 429 block has not.
	l.now = func() time.Time { return now.Add(5 * time.Minute) }
	assert.True(t, l.ShouldSkip("search", blocked))
	assert.False(t, l.ShouldSkip("search", failed))

	l.now = func() time.Time { return now.Add(16 * time.Minute) }
	assert.False(t, l.ShouldSkip("search", blocked))
}

func TestOutcomesCopy(t *testing.T) {
	l := New(DefaultTTLs)
	l.Finish("weather", json.RawMessage(`{}`), Outcome{OK: true})

	out := l.Outcomes()
	require.Len(t, out, 1)
	for k := range out {
		delete(out, k)
	}
	assert.Len(t, l.Outcomes(), 1, "mutating the copy must not touch the ledger")
}
