package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store on a remote Redis KV.
//
// Key layout per thread T:
//
//	chat:T:msgs      — list of JSON-encoded messages, newest-first
//	chat:T:slots     — hash of slot-key → string
//	chat:T:kv:<kind> — arbitrary JSON blob
//	chat:T:kinds     — set of kind names, so Expire/Clear can cover kv keys
//
// All keys share the configured TTL, refreshed on every read or write.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	opTime time.Duration // per-operation timeout
}

// NewRedisStore connects to the given redis URL (redis://host:port/db) and
// verifies connectivity before returning.
func NewRedisStore(url string, ttl, opTimeout time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if opTimeout <= 0 {
		opTimeout = 1500 * time.Millisecond
	}
	return &RedisStore{client: client, ttl: ttl, opTime: opTimeout}, nil
}

// Ping checks backend connectivity; used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.wrapErr("ping", err)
	}
	return nil
}

func keyMsgs(t string) string     { return "chat:" + t + ":msgs" }
func keySlots(t string) string    { return "chat:" + t + ":slots" }
func keyKV(t, kind string) string { return "chat:" + t + ":kv:" + kind }
func keyKinds(t string) string    { return "chat:" + t + ":kinds" }

// opCtx bounds a single backend operation. Deadline overruns surface as
// ErrTimeout so the driver can degrade to empty state instead of failing
// the turn.
func (s *RedisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTime)
}

func (s *RedisStore) wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// touch refreshes the TTL of every key family belonging to the thread.
func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, threadID string) {
	pipe.Expire(ctx, keyMsgs(threadID), s.ttl)
	pipe.Expire(ctx, keySlots(threadID), s.ttl)
	pipe.Expire(ctx, keyKinds(threadID), s.ttl)
}

// GetMsgs implements Store. Messages are stored newest-first internally and
// reversed before returning, per the oldest-first contract.
func (s *RedisStore) GetMsgs(ctx context.Context, threadID string, limit int) ([]Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	pipe := s.client.Pipeline()
	lrange := pipe.LRange(ctx, keyMsgs(threadID), 0, stop)
	s.touch(ctx, pipe, threadID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, s.wrapErr("get msgs", err)
	}

	raw := lrange.Val()
	msgs := make([]Message, 0, len(raw))
	// Reverse: index 0 is the newest element.
	for i := len(raw) - 1; i >= 0; i-- {
		var m Message
		if err := json.Unmarshal([]byte(raw[i]), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// AppendMsg implements Store. Push, trim, and TTL refresh run in one
// pipeline so the unit is atomic from the caller's perspective.
func (s *RedisStore) AppendMsg(ctx context.Context, threadID string, m Message, msgCap int) error {
	if msgCap <= 0 {
		msgCap = DefaultMsgCap
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyMsgs(threadID), raw)
	pipe.LTrim(ctx, keyMsgs(threadID), 0, int64(msgCap)-1)
	s.touch(ctx, pipe, threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.wrapErr("append msg", err)
	}
	return nil
}

// GetSlots implements Store.
func (s *RedisStore) GetSlots(ctx context.Context, threadID string) (map[string]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	hgetall := pipe.HGetAll(ctx, keySlots(threadID))
	s.touch(ctx, pipe, threadID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, s.wrapErr("get slots", err)
	}

	out := make(map[string]string)
	for k, v := range hgetall.Val() {
		out[k] = v
	}
	return out, nil
}

// SetSlots implements Store.
func (s *RedisStore) SetSlots(ctx context.Context, threadID string, put map[string]string, del []string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	if len(del) > 0 {
		pipe.HDel(ctx, keySlots(threadID), del...)
	}
	fields := make(map[string]interface{}, len(put))
	for k, v := range put {
		if v == "" {
			continue // empty values are never stored
		}
		fields[k] = v
	}
	if len(fields) > 0 {
		pipe.HSet(ctx, keySlots(threadID), fields)
	}
	s.touch(ctx, pipe, threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.wrapErr("set slots", err)
	}
	return nil
}

// GetJSON implements Store.
func (s *RedisStore) GetJSON(ctx context.Context, kind, threadID string, v any) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, keyKV(threadID, kind))
	pipe.Expire(ctx, keyKV(threadID, kind), s.ttl)
	s.touch(ctx, pipe, threadID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, s.wrapErr("get json", err)
	}

	raw, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, s.wrapErr("get json", err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s blob: %w", kind, err)
	}
	return true, nil
}

// SetJSON implements Store.
func (s *RedisStore) SetJSON(ctx context.Context, kind, threadID string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s blob: %w", kind, err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyKV(threadID, kind), raw, s.ttl)
	pipe.SAdd(ctx, keyKinds(threadID), kind)
	s.touch(ctx, pipe, threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.wrapErr("set json", err)
	}
	return nil
}

// Expire implements Store, covering every key family of the thread.
func (s *RedisStore) Expire(ctx context.Context, threadID string, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	kinds, err := s.client.SMembers(ctx, keyKinds(threadID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return s.wrapErr("expire", err)
	}

	pipe := s.client.Pipeline()
	pipe.Expire(ctx, keyMsgs(threadID), ttl)
	pipe.Expire(ctx, keySlots(threadID), ttl)
	pipe.Expire(ctx, keyKinds(threadID), ttl)
	for _, kind := range kinds {
		pipe.Expire(ctx, keyKV(threadID, kind), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return s.wrapErr("expire", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, threadID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	kinds, err := s.client.SMembers(ctx, keyKinds(threadID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return s.wrapErr("clear", err)
	}

	keys := []string{keyMsgs(threadID), keySlots(threadID), keyKinds(threadID)}
	for _, kind := range kinds {
		keys = append(keys, keyKV(threadID, kind))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return s.wrapErr("clear", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
