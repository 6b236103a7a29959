package storage

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// MemoryStore keeps queue items in a map guarded by an RWMutex: many
// concurrent pollers read while handlers and workers write one item at a time.
// Every read hands out a clone so callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*model.QueueItem
	opts  Options
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*model.QueueItem),
		opts:  opts,
	}
}

// Create inserts a new item.
func (m *MemoryStore) Create(_ context.Context, item *model.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.CorrelationID]; ok {
		return ErrExists
	}
	now := m.opts.now()
	stored := item.Clone()
	stored.CreationTime = now
	stored.ModificationTime = now
	m.items[item.CorrelationID] = stored
	item.CreationTime, item.ModificationTime = now, now
	return nil
}

// QueryByID returns a copy of the item.
func (m *MemoryStore) QueryByID(_ context.Context, correlationID string, checkModTime bool) (*model.QueueItem, error) {
	if checkModTime {
		m.mu.Lock()
		defer m.mu.Unlock()
	} else {
		m.mu.RLock()
		defer m.mu.RUnlock()
	}
	item, ok := m.items[correlationID]
	if !ok {
		return nil, ErrNotFound
	}
	if checkModTime {
		if now := m.opts.now(); m.opts.isStale(item, now) {
			item.QueueItemState = model.StateAbort
			item.ErrorStatus = http.StatusRequestTimeout
			item.ErrorMessage = TimeoutMessage
			item.ModificationTime = now
		}
	}
	return item.Clone(), nil
}

// Query lists matching items.
func (m *MemoryStore) Query(_ context.Context, f query.Filter, p query.Projection) ([]*model.QueueItem, error) {
	m.mu.RLock()
	var matched []*model.QueueItem
	for _, item := range m.items {
		if f.Matches(item) {
			matched = append(matched, item.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreationTime.Equal(matched[j].CreationTime) {
			return matched[i].CorrelationID < matched[j].CorrelationID
		}
		return matched[i].CreationTime.Before(matched[j].CreationTime)
	})
	if f.Skip > 0 {
		if f.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Skip:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	out := make([]*model.QueueItem, 0, len(matched))
	for _, item := range matched {
		p.Apply(item)
		out = append(out, item)
	}
	return out, nil
}

// SetState moves an item to state.
func (m *MemoryStore) SetState(_ context.Context, correlationID string, state model.QueueItemState) (*model.QueueItem, error) {
	return m.update(correlationID, func(item *model.QueueItem) {
		item.QueueItemState = state
	})
}

// SetError moves an item to ERROR.
func (m *MemoryStore) SetError(_ context.Context, correlationID string, status int, message string) (*model.QueueItem, error) {
	return m.update(correlationID, func(item *model.QueueItem) {
		item.QueueItemState = model.StateError
		item.ErrorStatus = status
		item.ErrorMessage = message
	})
}

// Update applies fn to the stored item. Workers own most transitions; this
// lets in-process tests and the memory backend play that role.
func (m *MemoryStore) Update(correlationID string, fn func(item *model.QueueItem)) error {
	_, err := m.update(correlationID, fn)
	return err
}

func (m *MemoryStore) update(correlationID string, fn func(item *model.QueueItem)) (*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[correlationID]
	if !ok {
		return nil, ErrNotFound
	}
	fn(item)
	item.ModificationTime = m.opts.now()
	return item.Clone(), nil
}

// AddBlobSize increments blobSize of a waiting item.
func (m *MemoryStore) AddBlobSize(_ context.Context, correlationID string, n int) (*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[correlationID]
	if !ok || item.QueueItemState != model.StateWaitingForRecords {
		return nil, nil
	}
	prev := item.Clone()
	item.BlobSize += n
	item.ModificationTime = m.opts.now()
	return prev, nil
}

// Remove deletes an item.
func (m *MemoryStore) Remove(_ context.Context, correlationID, oCatalogerIn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[correlationID]
	if !ok || (oCatalogerIn != "" && item.OCatalogerIn != oCatalogerIn) {
		return ErrNotFound
	}
	delete(m.items, correlationID)
	return nil
}
