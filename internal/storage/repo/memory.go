package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/equicurve/internal/core"
)

// MemoryStore is an in-memory repository.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]core.User
	batches     map[string]core.Batch
	runs        map[string]core.RunRecord
	usage       map[string]core.Usage
	feedback    []core.Feedback
	maxFeedback int
}

// NewMemoryStore creates an empty store. maxFeedback caps retained feedback
// entries, oldest dropped first.
func NewMemoryStore(maxFeedback int) *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]core.User),
		batches:     make(map[string]core.Batch),
		runs:        make(map[string]core.RunRecord),
		usage:       make(map[string]core.Usage),
		maxFeedback: maxFeedback,
	}
}

func (m *MemoryStore) UpsertUser(ctx context.Context, id, plan string) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		u = core.User{ID: id, Plan: plan, CreatedAt: time.Now().UTC()}
	} else if u.Plan != plan {
		u.Plan = plan
	}
	m.users[id] = u
	return u, nil
}

func (m *MemoryStore) CreateBatch(ctx context.Context, batch core.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch.Files = append([]core.FileRecord(nil), batch.Files...)
	m.batches[batch.ID] = batch
	return nil
}

func (m *MemoryStore) GetBatch(ctx context.Context, id string) (*core.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, core.ErrBatchNotFound
	}
	b.Files = append([]core.FileRecord(nil), b.Files...)
	return &b, nil
}

func (m *MemoryStore) SaveRun(ctx context.Context, run core.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, id string) (*core.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, core.ErrRunNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, batchID string) ([]core.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []core.RunRecord{}
	for _, r := range m.runs {
		if r.BatchID == batchID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func usageKey(userID, day string) string {
	return userID + "|" + day
}

func (m *MemoryStore) UpdateUsage(ctx context.Context, userID, day string, fn func(*core.Usage) error) (core.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := usageKey(userID, day)
	u, ok := m.usage[key]
	if !ok {
		u = core.Usage{UserID: userID, Day: day}
	}
	if err := fn(&u); err != nil {
		return u, err
	}
	m.usage[key] = u
	return u, nil
}

func (m *MemoryStore) SaveFeedback(ctx context.Context, fb core.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.feedback = append(m.feedback, fb)

	// Trim if over capacity (remove oldest)
	if m.maxFeedback > 0 && len(m.feedback) > m.maxFeedback {
		m.feedback = m.feedback[len(m.feedback)-m.maxFeedback:]
	}
	return nil
}

func (m *MemoryStore) ListFeedback(ctx context.Context, limit int) ([]core.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.feedback
	if limit > 0 && limit < len(result) {
		result = result[len(result)-limit:]
	}
	return append([]core.Feedback(nil), result...), nil
}
