package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/badbeats/pickgen/internal/models"
)

// MemoryStateStore keeps generation state in process memory. It is used in
// tests and when running a single replica without Redis.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[stateKey]models.GenerationState
}

type stateKey struct {
	agent string
	game  string
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[stateKey]models.GenerationState)}
}

func (m *MemoryStateStore) Get(_ context.Context, agentID, gameID string) (models.GenerationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(agentID, gameID), nil
}

func (m *MemoryStateStore) Snapshot(_ context.Context, agentID string, gameIDs []string) (map[string]models.GenerationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.GenerationState, len(gameIDs))
	for _, id := range gameIDs {
		out[id] = m.load(agentID, id)
	}
	return out, nil
}

func (m *MemoryStateStore) Transition(_ context.Context, from []models.GenerationStatus, next models.GenerationState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.load(next.AgentID, next.GameID)
	if !slices.Contains(from, cur.Status) {
		return false, nil
	}
	next.Emergency = cur.Emergency
	m.states[stateKey{next.AgentID, next.GameID}] = next
	return true, nil
}

func (m *MemoryStateStore) ReserveEmergency(_ context.Context, agentID, gameID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.load(agentID, gameID)
	if cur.Emergency {
		return false, nil
	}
	cur.Emergency = true
	m.states[stateKey{agentID, gameID}] = cur
	return true, nil
}

func (m *MemoryStateStore) ListFailed(_ context.Context, agentID string) ([]models.GenerationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.GenerationState
	for k, st := range m.states {
		if k.agent == agentID && st.Status == models.StatusFailed {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}

// load must be called with mu held.
func (m *MemoryStateStore) load(agentID, gameID string) models.GenerationState {
	st, ok := m.states[stateKey{agentID, gameID}]
	if !ok {
		return models.GenerationState{AgentID: agentID, GameID: gameID, Status: models.StatusPending}
	}
	return st
}
