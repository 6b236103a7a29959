package queue

import (
	"context"
	"sync"
)

// MemoryBroker records published messages in memory. It backs the memory
// deployment mode and stands in for Redis in tests.
type MemoryBroker struct {
	mu      sync.Mutex
	queues  map[string][]Message
	removed []string
	// FailAfter, when positive, makes every send after that many successful
	// ones fail with ErrSend.
	FailAfter int
	sent      int
}

// ErrSend is returned by a MemoryBroker configured to fail.
var ErrSend = errorString("send failed")

type errorString string

func (e errorString) Error() string { return string(e) }

// NewMemoryBroker constructs an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string][]Message)}
}

func (b *MemoryBroker) SendToQueue(_ context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailAfter > 0 && b.sent >= b.FailAfter {
		return ErrSend
	}
	b.sent++
	msg.Data = append([]byte(nil), msg.Data...)
	b.queues[msg.Queue] = append(b.queues[msg.Queue], msg)
	return nil
}

func (b *MemoryBroker) RemoveQueue(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, name)
	b.removed = append(b.removed, name)
	return nil
}

// Messages returns a copy of what is queued under name.
func (b *MemoryBroker) Messages(name string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.queues[name]...)
}

// Total counts messages across all queues.
func (b *MemoryBroker) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, msgs := range b.queues {
		n += len(msgs)
	}
	return n
}

// Removed lists the queues deleted so far, in order.
func (b *MemoryBroker) Removed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.removed...)
}
