package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/badbeats/pickgen/internal/models"
)

// RedisClient is the subset of *redis.Client used by RedisStateStore.
type RedisClient interface {
	redis.Scripter
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSetNX(ctx context.Context, key, field string, value interface{}) *redis.BoolCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// transitionScript swaps the state hash only if its current status (pending
// when absent) is one of the allowed from values, and keeps the failed set
// in sync.
//
// KEYS[1] state hash, KEYS[2] failed set
// ARGV: next status, attempts, last error, updated at, ttl seconds, game id, from...
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then cur = 'pending' end
local allowed = false
for i = 7, #ARGV do
	if ARGV[i] == cur then allowed = true break end
end
if not allowed then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'attempts', ARGV[2], 'last_error', ARGV[3], 'updated_at', ARGV[4])
if tonumber(ARGV[5]) > 0 then redis.call('EXPIRE', KEYS[1], ARGV[5]) end
if ARGV[1] == 'failed' then
	redis.call('SADD', KEYS[2], ARGV[6])
else
	redis.call('SREM', KEYS[2], ARGV[6])
end
return 1
`)

// RedisStateStore keeps generation state in Redis hashes so every replica
// sees the same claims.
type RedisStateStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisStateStore creates a state store. Keys expire ttl after their
// last transition; zero disables expiry.
func NewRedisStateStore(client RedisClient, prefix string, ttl time.Duration) *RedisStateStore {
	if prefix == "" {
		prefix = "pickgen"
	}
	return &RedisStateStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStateStore) stateKey(agentID, gameID string) string {
	return fmt.Sprintf("%s:state:%s:%s", r.prefix, agentID, gameID)
}

func (r *RedisStateStore) failedKey(agentID string) string {
	return fmt.Sprintf("%s:failed:%s", r.prefix, agentID)
}

func (r *RedisStateStore) Get(ctx context.Context, agentID, gameID string) (models.GenerationState, error) {
	fields, err := r.client.HGetAll(ctx, r.stateKey(agentID, gameID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.GenerationState{}, fmt.Errorf("get state %s/%s: %w", agentID, gameID, err)
	}
	return decodeState(agentID, gameID, fields), nil
}

func (r *RedisStateStore) Snapshot(ctx context.Context, agentID string, gameIDs []string) (map[string]models.GenerationState, error) {
	out := make(map[string]models.GenerationState, len(gameIDs))
	for _, id := range gameIDs {
		st, err := r.Get(ctx, agentID, id)
		if err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, nil
}

func (r *RedisStateStore) Transition(ctx context.Context, from []models.GenerationStatus, next models.GenerationState) (bool, error) {
	args := []interface{}{
		string(next.Status),
		next.Attempts,
		next.LastError,
		next.UpdatedAt.UTC().Format(time.RFC3339Nano),
		int64(r.ttl / time.Second),
		next.GameID,
	}
	for _, f := range from {
		args = append(args, string(f))
	}

	n, err := transitionScript.Run(ctx, r.client,
		[]string{r.stateKey(next.AgentID, next.GameID), r.failedKey(next.AgentID)},
		args...,
	).Int()
	if err != nil {
		return false, fmt.Errorf("transition %s/%s to %s: %w", next.AgentID, next.GameID, next.Status, err)
	}
	return n == 1, nil
}

func (r *RedisStateStore) ReserveEmergency(ctx context.Context, agentID, gameID string) (bool, error) {
	key := r.stateKey(agentID, gameID)
	ok, err := r.client.HSetNX(ctx, key, "emergency", "1").Result()
	if err != nil {
		return false, fmt.Errorf("reserve emergency %s/%s: %w", agentID, gameID, err)
	}
	if ok && r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return true, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return ok, nil
}

func (r *RedisStateStore) ListFailed(ctx context.Context, agentID string) ([]models.GenerationState, error) {
	ids, err := r.client.SMembers(ctx, r.failedKey(agentID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list failed %s: %w", agentID, err)
	}
	sort.Strings(ids)

	out := make([]models.GenerationState, 0, len(ids))
	for _, id := range ids {
		st, err := r.Get(ctx, agentID, id)
		if err != nil {
			return nil, err
		}
		// the hash may have expired while the set entry remains
		if st.Status != models.StatusFailed {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func decodeState(agentID, gameID string, fields map[string]string) models.GenerationState {
	st := models.GenerationState{
		AgentID: agentID,
		GameID:  gameID,
		Status:  models.StatusPending,
	}
	if s := fields["status"]; s != "" {
		st.Status = models.GenerationStatus(s)
	}
	if n, err := strconv.Atoi(fields["attempts"]); err == nil {
		st.Attempts = n
	}
	st.Emergency = fields["emergency"] == "1"
	st.LastError = fields["last_error"]
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		st.UpdatedAt = t
	}
	return st
}
