package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/badbeats/pickgen/internal/models"
)

// fakeRedis records script calls and serves hashes from memory.
type fakeRedis struct {
	redis.Scripter
	hashes   map[string]map[string]string
	members  map[string][]string
	evalKeys []string
	evalArgs []interface{}
	evalRet  int64
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	f.evalKeys, f.evalArgs = keys, args
	return redis.NewCmdResult(f.evalRet, nil)
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	return redis.NewMapStringStringResult(f.hashes[key], nil)
}

func (f *fakeRedis) HSetNX(ctx context.Context, key, field string, value interface{}) *redis.BoolCmd {
	h := f.hashes[key]
	if h == nil {
		h = map[string]string{}
		f.hashes[key] = h
	}
	if _, ok := h[field]; ok {
		return redis.NewBoolResult(false, nil)
	}
	h[field] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(f.members[key], nil)
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: map[string]map[string]string{}, members: map[string][]string{}}
}

func TestDecodeState(t *testing.T) {
	st := decodeState("a", "g1", nil)
	if st.Status != models.StatusPending || st.Attempts != 0 {
		t.Errorf("empty hash should decode as pending, got %+v", st)
	}

	st = decodeState("a", "g1", map[string]string{
		"status":     "failed",
		"attempts":   "3",
		"emergency":  "1",
		"last_error": "engine timeout",
		"updated_at": "2026-01-09T22:00:00Z",
	})
	if st.Status != models.StatusFailed || st.Attempts != 3 || !st.Emergency || st.LastError != "engine timeout" {
		t.Errorf("unexpected state %+v", st)
	}
	if st.UpdatedAt.IsZero() {
		t.Error("updated_at not parsed")
	}
}

func TestRedisTransitionArgs(t *testing.T) {
	f := newFakeRedis()
	f.evalRet = 1
	s := NewRedisStateStore(f, "pickgen", time.Hour)

	ok, err := s.Transition(context.Background(),
		[]models.GenerationStatus{models.StatusDue, models.StatusFailed},
		models.GenerationState{AgentID: "a", GameID: "g1", Status: models.StatusInProgress, Attempts: 2})
	if err != nil || !ok {
		t.Fatalf("Transition = %v, %v", ok, err)
	}

	if f.evalKeys[0] != "pickgen:state:a:g1" || f.evalKeys[1] != "pickgen:failed:a" {
		t.Errorf("unexpected keys %v", f.evalKeys)
	}
	if len(f.evalArgs) != 8 || f.evalArgs[0] != "in_progress" || f.evalArgs[4] != int64(3600) {
		t.Errorf("unexpected args %v", f.evalArgs)
	}
	if f.evalArgs[6] != "due" || f.evalArgs[7] != "failed" {
		t.Errorf("from states not passed: %v", f.evalArgs[6:])
	}

	f.evalRet = 0
	ok, err = s.Transition(context.Background(), []models.GenerationStatus{models.StatusDue},
		models.GenerationState{AgentID: "a", GameID: "g1", Status: models.StatusInProgress})
	if err != nil || ok {
		t.Errorf("expected rejected swap, got %v, %v", ok, err)
	}
}

func TestRedisReserveEmergencyAndListFailed(t *testing.T) {
	f := newFakeRedis()
	s := NewRedisStateStore(f, "", 0)
	ctx := context.Background()

	if ok, _ := s.ReserveEmergency(ctx, "a", "g1"); !ok {
		t.Fatal("first reservation should succeed")
	}
	if ok, _ := s.ReserveEmergency(ctx, "a", "g1"); ok {
		t.Fatal("second reservation must fail")
	}

	f.hashes["pickgen:state:a:g2"] = map[string]string{"status": "failed", "attempts": "3"}
	f.members["pickgen:failed:a"] = []string{"g2", "g3"}

	failed, err := s.ListFailed(ctx, "a")
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	// g3 has no hash left and is skipped.
	if len(failed) != 1 || failed[0].GameID != "g2" || failed[0].Attempts != 3 {
		t.Errorf("unexpected failed list %+v", failed)
	}
}
