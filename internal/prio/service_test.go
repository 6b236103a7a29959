package prio

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/queue"
	"github.com/dharsanguruparan/RecordGate/internal/sru"
	"github.com/dharsanguruparan/RecordGate/internal/storage"
)

// countingStore counts the reads made by the poll loop.
type countingStore struct {
	storage.Store
	polls int
}

func (c *countingStore) QueryByID(ctx context.Context, id string, checkModTime bool) (*model.QueueItem, error) {
	if checkModTime {
		c.polls++
	}
	return c.Store.QueryByID(ctx, id, checkModTime)
}

type fakeRecords map[string]*sru.Record

func (f fakeRecords) Read(_ context.Context, id string) (*sru.Record, error) {
	return f[id], nil
}

type fixture struct {
	mem    *storage.MemoryStore
	store  *countingStore
	broker *queue.MemoryBroker
	svc    *Service
	now    time.Time
	sleeps int
	// worker runs after every sleep with the number of sleeps so far.
	worker func(correlationID string, sleeps int)
}

func newFixture(t *testing.T, maxWait time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		mem:    storage.NewMemoryStore(storage.Options{}),
		broker: queue.NewMemoryBroker(),
		now:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.store = &countingStore{Store: f.mem}
	records := fakeRecords{"000123456": {
		Leader:        "00000cam a2200000 i 4500",
		ControlFields: []sru.ControlField{{Tag: "001", Value: "000123456"}},
	}}
	f.svc = NewService(f.store, f.broker, records, Options{
		PollWaitTime:    400 * time.Millisecond,
		PollMaxDuration: maxWait,
		Now:             func() time.Time { return f.now },
		Sleep: func(_ context.Context, d time.Duration) error {
			f.now = f.now.Add(d)
			f.sleeps++
			if f.worker != nil {
				f.worker(f.correlationID(t), f.sleeps)
			}
			return nil
		},
	})
	return f
}

func (f *fixture) correlationID(t *testing.T) string {
	msgs := f.broker.Messages(queue.RequestsQueue)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].CorrelationID
}

// finishAfter makes the worker move the job to state after n polls.
func (f *fixture) finishAfter(t *testing.T, n int, fn func(item *model.QueueItem)) {
	f.worker = func(id string, sleeps int) {
		if sleeps == n {
			require.NoError(t, f.mem.Update(id, fn))
		}
	}
}

func createRequest() Request {
	return Request{
		Format:       model.FormatJSON,
		ContentType:  "application/json",
		Cataloger:    model.Cataloger{ID: "LOAD"},
		OCatalogerIn: "LOAD",
		Settings:     model.OperationSettings{Unique: true, Validate: true},
		Data:         []byte(`{"leader":"","fields":[]}`),
	}
}

func apiError(t *testing.T, err error) *apierr.Error {
	t.Helper()
	var e *apierr.Error
	require.True(t, errors.As(err, &e), "expected *apierr.Error, got %v", err)
	return e
}

func TestPollReadsUntilTerminal(t *testing.T) {
	f := newFixture(t, 0)
	const n = 3
	f.finishAfter(t, n, func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.Records = []model.RecordResult{{RecordStatus: model.RecordCreated, DatabaseID: "000123456"}}
	})

	_, err := f.svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, n+1, f.store.polls)
	assert.Equal(t, n, f.sleeps)
}

func TestCreateCreated(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.Records = []model.RecordResult{{RecordStatus: model.RecordCreated, DatabaseID: "000123456"}}
	})

	res, err := f.svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, model.RecordCreated, res.Status)
	assert.Equal(t, "000123456", res.ID)

	id := f.correlationID(t)
	msg := f.broker.Messages(queue.RequestsQueue)[0]
	assert.Equal(t, model.OperationCreate, msg.Headers.Operation)
	assert.Equal(t, model.FormatJSON, msg.Headers.Format)
	assert.Equal(t, "LOAD", msg.Headers.Cataloger)
	assert.True(t, msg.Headers.OperationSettings.Prio)
	assert.True(t, msg.Headers.OperationSettings.Unique)
	assert.Equal(t, createRequest().Data, msg.Data)

	_, err = f.mem.QueryByID(context.Background(), id, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{id}, f.broker.Removed())
}

func TestCreateAbortedIsRequestTimeout(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 2, func(item *model.QueueItem) {
		item.QueueItemState = model.StateAbort
	})

	_, err := f.svc.Create(context.Background(), createRequest())
	e := apiError(t, err)
	assert.Equal(t, http.StatusRequestTimeout, e.Status)
	assert.Equal(t, storage.TimeoutMessage, e.Payload)

	item, err := f.mem.QueryByID(context.Background(), f.correlationID(t), false)
	require.NoError(t, err)
	assert.Equal(t, model.StateAbort, item.QueueItemState)
	assert.Empty(t, f.broker.Removed())
}

func TestAbortKeepsWorkerMessage(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateAbort
		item.ErrorMessage = "Validator timed out"
	})

	_, err := f.svc.Create(context.Background(), createRequest())
	assert.Equal(t, "Validator timed out", apiError(t, err).Payload)
}

func TestPollCeiling(t *testing.T) {
	f := newFixture(t, time.Second)

	_, err := f.svc.Create(context.Background(), createRequest())
	e := apiError(t, err)
	assert.Equal(t, http.StatusRequestTimeout, e.Status)
	assert.Equal(t, 4, f.store.polls)

	item, err := f.mem.QueryByID(context.Background(), f.correlationID(t), false)
	require.NoError(t, err)
	assert.Equal(t, model.StatePendingValidation, item.QueueItemState)
}

func TestPollStopsOnCancel(t *testing.T) {
	mem := storage.NewMemoryStore(storage.Options{})
	svc := NewService(mem, queue.NewMemoryBroker(), nil, Options{PollWaitTime: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Create(ctx, createRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateMergedIsSuccess(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.Records = []model.RecordResult{{RecordStatus: model.RecordUpdated, DatabaseID: "000000042"}}
	})

	res, err := f.svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, model.RecordUpdated, res.Status)
	assert.Equal(t, "000000042", res.ID)
}

func TestNoopCreateWithoutRecords(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
	})
	req := createRequest()
	req.Settings.Noop = true

	res, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RecordCreated, res.Status)
	assert.Empty(t, res.ID)
}

func TestUpdateRejectsChangedOperation(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.Records = []model.RecordResult{{RecordStatus: model.RecordCreated, DatabaseID: "000000043"}}
	})
	req := createRequest()
	req.ID = "000123456"

	_, err := f.svc.Update(context.Background(), req)
	e := apiError(t, err)
	assert.Equal(t, http.StatusConflict, e.Status)
	assert.Equal(t, model.RecordResult{RecordStatus: model.RecordCreated, DatabaseID: "000000043"}, e.Payload)

	_, err = f.mem.QueryByID(context.Background(), f.correlationID(t), false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestErrorWithFailedRecord(t *testing.T) {
	f := newFixture(t, 0)
	failed := model.RecordResult{RecordStatus: model.RecordInvalid, Message: "Missing 245"}
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateError
		item.Records = []model.RecordResult{failed}
	})

	_, err := f.svc.Create(context.Background(), createRequest())
	e := apiError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, e.Status)
	assert.Equal(t, failed, e.Payload)

	// Non-conflict errors stay for inspection.
	_, err = f.mem.QueryByID(context.Background(), f.correlationID(t), false)
	assert.NoError(t, err)
}

func TestErrorConflictIsCleanedUp(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateError
		item.ErrorStatus = http.StatusConflict
		item.ErrorMessage = "Duplicate in database"
	})

	_, err := f.svc.Create(context.Background(), createRequest())
	e := apiError(t, err)
	assert.Equal(t, http.StatusConflict, e.Status)
	assert.Equal(t, errorPayload{Message: "Duplicate in database", Status: http.StatusConflict}, e.Payload)

	_, err = f.mem.QueryByID(context.Background(), f.correlationID(t), false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// heldPool keeps submitted jobs until the test runs them.
type heldPool struct {
	jobs []func(ctx context.Context) error
	full bool
}

func (p *heldPool) Submit(_ string, run func(ctx context.Context) error) bool {
	if p.full {
		return false
	}
	p.jobs = append(p.jobs, run)
	return true
}

func TestCleanupRunsOnPool(t *testing.T) {
	f := newFixture(t, 0)
	pool := &heldPool{}
	f.svc.pool = pool
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.Records = []model.RecordResult{{RecordStatus: model.RecordCreated, DatabaseID: "000123456"}}
	})

	_, err := f.svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	id := f.correlationID(t)

	// Nothing is removed before the pool runs the job.
	_, err = f.mem.QueryByID(context.Background(), id, false)
	require.NoError(t, err)
	assert.Empty(t, f.broker.Removed())
	require.Len(t, pool.jobs, 1)

	require.NoError(t, pool.jobs[0](context.Background()))
	_, err = f.mem.QueryByID(context.Background(), id, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{id}, f.broker.Removed())
}

func TestCleanupInlineWhenPoolFull(t *testing.T) {
	f := newFixture(t, 0)
	f.svc.pool = &heldPool{full: true}
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.Records = []model.RecordResult{{RecordStatus: model.RecordCreated, DatabaseID: "000123456"}}
	})

	_, err := f.svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = f.mem.QueryByID(context.Background(), f.correlationID(t), false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestErrorWithoutDetails(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateError
	})

	_, err := f.svc.Create(context.Background(), createRequest())
	e := apiError(t, err)
	assert.Equal(t, http.StatusInternalServerError, e.Status)
	assert.Equal(t, errorPayload{Message: "unknown error", Status: http.StatusInternalServerError}, e.Payload)
}

func TestTranslateFallsBackToIDLists(t *testing.T) {
	res, err := translate(&model.QueueItem{
		Operation:      model.OperationUpdate,
		QueueItemState: model.StateDone,
		HandledIDs:     []string{"000000007"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.RecordUpdated, res.Status)
	assert.Equal(t, "000000007", res.ID)

	_, err = translate(&model.QueueItem{
		Operation:      model.OperationCreate,
		QueueItemState: model.StateDone,
		RejectedIDs:    []string{"000000008"},
	})
	e := apiError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, e.Status)
	assert.Equal(t, "000000008", e.Payload)
}

func TestFix(t *testing.T) {
	f := newFixture(t, 0)
	f.finishAfter(t, 1, func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.Records = []model.RecordResult{{RecordStatus: model.RecordFixed, DatabaseID: "000123456"}}
	})
	req := Request{ID: "000123456", Cataloger: model.Cataloger{ID: "LOAD"}, Settings: model.OperationSettings{FixType: "UNDEL", Validate: true}, Data: []byte("ignored")}

	res, err := f.svc.Fix(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RecordFixed, res.Status)

	msg := f.broker.Messages(queue.RequestsQueue)[0]
	assert.Equal(t, model.OperationFix, msg.Headers.Operation)
	assert.Equal(t, "000123456", msg.Headers.ID)
	assert.Equal(t, "UNDEL", msg.Headers.OperationSettings.FixType)
	assert.Empty(t, msg.Data)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	req := createRequest()
	req.ID = "12345"
	_, err := f.svc.Update(ctx, req)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	_, err = f.svc.Fix(ctx, Request{ID: "000123456"})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	assert.Zero(t, f.broker.Total())
}

func TestRead(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	out, err := f.svc.Read(ctx, "000123456", model.FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"leader":"00000cam a2200000 i 4500","fields":[{"tag":"001","value":"000123456"}]}`, string(out))

	_, err = f.svc.Read(ctx, "000000001", model.FormatJSON)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	_, err = f.svc.Read(ctx, "abc", model.FormatJSON)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestQueryListsPrioJobs(t *testing.T) {
	f := newFixture(t, time.Second)
	_, _ = f.svc.Create(context.Background(), createRequest())

	reports, err := f.svc.Query(context.Background(), url.Values{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, model.OperationCreate, reports[0].Operation)
}
