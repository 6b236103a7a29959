package storage

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoContent is returned when a job has no persisted content.
var ErrNoContent = errors.New("content not found")

type blob struct {
	contentType string
	data        []byte
}

// MemoryContent keeps bulk job content in memory, keyed by correlation id.
type MemoryContent struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewMemoryContent constructs an empty content store.
func NewMemoryContent() *MemoryContent {
	return &MemoryContent{blobs: make(map[string]blob)}
}

// Put stores the whole of r under correlationID.
func (m *MemoryContent) Put(_ context.Context, correlationID, contentType string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "read content for %s", correlationID)
	}
	m.mu.Lock()
	m.blobs[correlationID] = blob{contentType: contentType, data: data}
	m.mu.Unlock()
	return nil
}

// Get returns a reader over the stored content and its content type.
func (m *MemoryContent) Get(_ context.Context, correlationID string) (io.ReadCloser, string, error) {
	m.mu.RLock()
	b, ok := m.blobs[correlationID]
	m.mu.RUnlock()
	if !ok {
		return nil, "", ErrNoContent
	}
	return io.NopCloser(bytes.NewReader(b.data)), b.contentType, nil
}

// Remove deletes the stored content.
func (m *MemoryContent) Remove(_ context.Context, correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[correlationID]; !ok {
		return ErrNoContent
	}
	delete(m.blobs, correlationID)
	return nil
}
