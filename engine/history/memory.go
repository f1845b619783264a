package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// MemoryBackend keeps history in process.
type MemoryBackend struct {
	mu   sync.RWMutex
	logs map[string][]domain.HistoricalResilienceScore
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{logs: make(map[string][]domain.HistoricalResilienceScore)}
}

// Append implements Backend.
func (m *MemoryBackend) Append(ctx context.Context, rec domain.HistoricalResilienceScore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.logs[rec.EntityID] = append(m.logs[rec.EntityID], rec)
	m.mu.Unlock()
	return nil
}

// Since implements Backend. Records with equal timestamps come back newest
// append first.
func (m *MemoryBackend) Since(ctx context.Context, entityID string, since time.Time) ([]domain.HistoricalResilienceScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	log := m.logs[entityID]
	var out []domain.HistoricalResilienceScore
	for i := len(log) - 1; i >= 0; i-- {
		if !log[i].RecordedAt.Before(since) {
			out = append(out, log[i])
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

// Len returns the number of records held for entityID.
func (m *MemoryBackend) Len(entityID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs[entityID])
}
