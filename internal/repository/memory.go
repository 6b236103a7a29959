package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// MemoryLogRepository is a LogStore kept in memory, used when no database is
// configured and in tests.
type MemoryLogRepository struct {
	mu    sync.RWMutex
	items []model.LogItem
}

// NewMemoryLogRepository constructs an empty repository.
func NewMemoryLogRepository() *MemoryLogRepository {
	return &MemoryLogRepository{}
}

// Add appends entries, as a worker would.
func (m *MemoryLogRepository) Add(items ...model.LogItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

func (m *MemoryLogRepository) Query(_ context.Context, f query.LogFilter) ([]model.LogItem, error) {
	m.mu.RLock()
	var out []model.LogItem
	for _, item := range m.items {
		if f.Matches(item) {
			out = append(out, item)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CorrelationID != out[j].CorrelationID {
			return out[i].CorrelationID < out[j].CorrelationID
		}
		return out[i].BlobSequence < out[j].BlobSequence
	})
	if f.Skip > 0 {
		if f.Skip >= len(out) {
			return nil, nil
		}
		out = out[f.Skip:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryLogRepository) ListCorrelationIDs(_ context.Context, logItemType model.LogItemType) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	for _, item := range m.items {
		if logItemType == "" || item.LogItemType == logItemType {
			seen[item.CorrelationID] = true
		}
	}
	return sortedKeys(seen), nil
}

func (m *MemoryLogRepository) ListCatalogers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	for _, item := range m.items {
		if item.Cataloger != "" {
			seen[item.Cataloger] = true
		}
	}
	return sortedKeys(seen), nil
}

func (m *MemoryLogRepository) ListExpanded(_ context.Context, f query.LogListFilter) ([]model.LogListEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct {
		id        string
		t         model.LogItemType
		cataloger string
	}
	groups := map[key]*model.LogListEntry{}
	var order []key
	for _, item := range m.items {
		if !typeIn(item.LogItemType, f.LogItemTypes) || !stringIn(item.Cataloger, f.Catalogers) {
			continue
		}
		if item.CreationTime.Before(f.DateAfter) || item.CreationTime.After(f.DateBefore) {
			continue
		}
		k := key{item.CorrelationID, item.LogItemType, item.Cataloger}
		e, ok := groups[k]
		if !ok {
			e = &model.LogListEntry{CorrelationID: k.id, LogItemType: k.t, Cataloger: k.cataloger, CreationTime: item.CreationTime}
			groups[k] = e
			order = append(order, k)
		}
		e.LogCount++
		if item.CreationTime.Before(e.CreationTime) {
			e.CreationTime = item.CreationTime
		}
	}

	out := make([]model.LogListEntry, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreationTime.Before(out[j].CreationTime) })
	return out, nil
}

func (m *MemoryLogRepository) Protect(_ context.Context, correlationID string, blobSequence int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.items {
		item := &m.items[i]
		if item.CorrelationID != correlationID || (blobSequence > 0 && item.BlobSequence != blobSequence) {
			continue
		}
		item.Protected = !item.Protected
		n++
	}
	return n, nil
}

func (m *MemoryLogRepository) Remove(_ context.Context, correlationID string, force bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	var n int64
	for _, item := range m.items {
		if item.CorrelationID == correlationID && (force || !item.Protected) {
			n++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	return n, nil
}

func typeIn(t model.LogItemType, types []model.LogItemType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// stringIn treats an empty set as matching everything.
func stringIn(s string, set []string) bool {
	if len(set) == 0 {
		return true
	}
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
