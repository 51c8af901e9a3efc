package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMessageRoundtrip(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.AppendMsg(ctx, "t1", Message{Role: "user", Content: "hi"}, 0))
	require.NoError(t, s.AppendMsg(ctx, "t1", Message{Role: "assistant", Content: "hello"}, 0))

	msgs, err := s.GetMsgs(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content, "oldest first")
	assert.Equal(t, "hello", msgs[1].Content)

	// Unknown threads read as empty, not as errors.
	msgs, err = s.GetMsgs(ctx, "nope", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStoreCapDropsOldest(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMsg(ctx, "t1", Message{Role: "user", Content: string(rune('a' + i))}, 3))
	}
	msgs, err := s.GetMsgs(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, "e", msgs[2].Content)
}

func TestMemoryStoreSlots(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SetSlots(ctx, "t1", map[string]string{"city": "Paris", "month": "June"}, nil))
	require.NoError(t, s.SetSlots(ctx, "t1", map[string]string{"city": "Tokyo", "empty": ""}, []string{"month"}))

	slots, err := s.GetSlots(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"city": "Tokyo"}, slots, "deletes applied, empty values never stored")
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.SetSlots(ctx, "t1", map[string]string{"city": "Rome"}, nil))

	// Within TTL the thread survives and reads refresh it.
	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	slots, err := s.GetSlots(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Rome", slots["city"])

	// Past TTL (measured from the refreshed access) it is gone.
	s.now = func() time.Time { return base.Add(30*time.Minute + 61*time.Minute) }
	slots, err = s.GetSlots(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.Equal(t, 0, s.Count())
}

func TestMemoryStoreJSONBlobs(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	type blob struct {
		N int `json:"n"`
	}
	var out blob
	found, err := s.GetJSON(ctx, "kind", "t1", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetJSON(ctx, "kind", "t1", blob{N: 7}))
	found, err = s.GetJSON(ctx, "kind", "t1", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, out.N)
}

func TestMemoryStoreClear(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.AppendMsg(ctx, "t1", Message{Role: "user", Content: "hi"}, 0))
	require.NoError(t, s.Clear(ctx, "t1"))
	msgs, err := s.GetMsgs(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
