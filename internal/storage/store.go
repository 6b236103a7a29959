// Package storage persists queue items. The gateway keeps priority and bulk
// jobs in two collections of the same shape; each Store serves one of them.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// Collection names.
const (
	CollectionPrio = "prio"
	CollectionBulk = "bulk"
)

// TimeoutMessage is the error message of items aborted for inactivity.
const TimeoutMessage = "Request timeout, try again later"

var (
	// ErrNotFound is returned when no queue item matches.
	ErrNotFound = errors.New("queue item not found")
	// ErrExists is returned when creating an item whose correlation id is taken.
	ErrExists = errors.New("queue item already exists")
)

// Store is the queue item document store.
type Store interface {
	// Create inserts a new item. Creation and modification times are set by
	// the store.
	Create(ctx context.Context, item *model.QueueItem) error
	// QueryByID returns the item with the given correlation id. With
	// checkModTime set, a non-terminal item that has not been modified within
	// the stale window is first moved to ABORT.
	QueryByID(ctx context.Context, correlationID string, checkModTime bool) (*model.QueueItem, error)
	// Query lists items matching f, ordered by creation time.
	Query(ctx context.Context, f query.Filter, p query.Projection) ([]*model.QueueItem, error)
	// SetState moves an item to state and returns the updated item.
	SetState(ctx context.Context, correlationID string, state model.QueueItemState) (*model.QueueItem, error)
	// SetError moves an item to ERROR with the given status and message.
	SetError(ctx context.Context, correlationID string, status int, message string) (*model.QueueItem, error)
	// AddBlobSize atomically increments blobSize by n if the item is in
	// WAITING_FOR_RECORDS and returns the item as it was before the
	// increment. It returns nil, nil when no waiting item matches.
	AddBlobSize(ctx context.Context, correlationID string, n int) (*model.QueueItem, error)
	// Remove deletes an item. A non-empty oCatalogerIn restricts the delete to
	// items created by that user.
	Remove(ctx context.Context, correlationID, oCatalogerIn string) error
}

// Options tune store behaviour shared by the implementations.
type Options struct {
	// StaleAfter is the inactivity window after which checkModTime aborts a
	// job. Zero disables the check.
	StaleAfter time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// isStale reports whether item should be aborted for inactivity at now.
func (o Options) isStale(item *model.QueueItem, now time.Time) bool {
	if o.StaleAfter <= 0 || item.QueueItemState.Terminal() {
		return false
	}
	return now.Sub(item.ModificationTime) > o.StaleAfter
}
