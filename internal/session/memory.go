package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// minCleanupInterval is the smallest allowed TTL to prevent degenerate ticker intervals.
const minCleanupInterval = time.Millisecond

// thread holds all in-memory state for one threadID.
type thread struct {
	msgs     []Message // oldest-first
	slots    map[string]string
	kv       map[string]json.RawMessage
	ttl      time.Duration
	lastUsed time.Time
}

func (t *thread) expired(now time.Time) bool {
	return now.Sub(t.lastUsed) > t.ttl
}

// MemoryStore is a thread-safe in-memory Store with TTL eviction.
// NOT designed for multi-replica deployments; use the Redis backend there.
type MemoryStore struct {
	mu      sync.Mutex
	threads map[string]*thread
	ttl     time.Duration
	done    chan struct{} // closed by Close() to stop the cleanup goroutine
	now     func() time.Time
}

// NewMemoryStore creates a store with the given default TTL per thread.
// A background goroutine periodically evicts expired threads; call Close()
// when the store is no longer needed.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl < minCleanupInterval {
		ttl = minCleanupInterval
	}
	s := &MemoryStore{
		threads: make(map[string]*thread),
		ttl:     ttl,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go s.cleanupLoop()
	return s
}

// get returns the live thread, creating it when create is set. Expired
// threads are dropped on access. Callers hold s.mu.
func (s *MemoryStore) get(threadID string, create bool) *thread {
	now := s.now()
	t, ok := s.threads[threadID]
	if ok && t.expired(now) {
		delete(s.threads, threadID)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		t = &thread{
			slots: make(map[string]string),
			kv:    make(map[string]json.RawMessage),
			ttl:   s.ttl,
		}
		s.threads[threadID] = t
	}
	t.lastUsed = now // every access refreshes the TTL
	return t
}

// GetMsgs implements Store.
func (s *MemoryStore) GetMsgs(_ context.Context, threadID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.get(threadID, false)
	if t == nil {
		return nil, nil
	}
	msgs := t.msgs
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendMsg implements Store. Append, trim, and TTL refresh happen under
// one lock acquisition.
func (s *MemoryStore) AppendMsg(_ context.Context, threadID string, m Message, msgCap int) error {
	if msgCap <= 0 {
		msgCap = DefaultMsgCap
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.get(threadID, true)
	t.msgs = append(t.msgs, m)
	if len(t.msgs) > msgCap {
		t.msgs = t.msgs[len(t.msgs)-msgCap:]
	}
	return nil
}

// GetSlots implements Store.
func (s *MemoryStore) GetSlots(_ context.Context, threadID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	t := s.get(threadID, false)
	if t == nil {
		return out, nil
	}
	for k, v := range t.slots {
		out[k] = v
	}
	return out, nil
}

// SetSlots implements Store.
func (s *MemoryStore) SetSlots(_ context.Context, threadID string, put map[string]string, del []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.get(threadID, true)
	for _, k := range del {
		delete(t.slots, k)
	}
	for k, v := range put {
		if v == "" {
			continue // absent means unknown; empty values are never stored
		}
		t.slots[k] = v
	}
	return nil
}

// GetJSON implements Store.
func (s *MemoryStore) GetJSON(_ context.Context, kind, threadID string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.get(threadID, false)
	if t == nil {
		return false, nil
	}
	raw, ok := t.kv[kind]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s blob: %w", kind, err)
	}
	return true, nil
}

// SetJSON implements Store.
func (s *MemoryStore) SetJSON(_ context.Context, kind, threadID string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s blob: %w", kind, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.get(threadID, true)
	t.kv[kind] = raw
	return nil
}

// Expire implements Store.
func (s *MemoryStore) Expire(_ context.Context, threadID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.get(threadID, false); t != nil {
		t.ttl = ttl
	}
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Count returns the number of live threads.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for _, t := range s.threads {
		if !t.expired(now) {
			n++
		}
	}
	return n
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	select {
	case <-s.done:
		// already closed
	default:
		close(s.done)
	}
	return nil
}

// cleanupLoop periodically removes threads that have exceeded their TTL.
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for id, t := range s.threads {
				if t.expired(now) {
					delete(s.threads, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
