package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RecordGate/internal/auth"
	"github.com/dharsanguruparan/RecordGate/internal/bulk"
	"github.com/dharsanguruparan/RecordGate/internal/logs"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/prio"
	"github.com/dharsanguruparan/RecordGate/internal/queue"
	"github.com/dharsanguruparan/RecordGate/internal/repository"
	"github.com/dharsanguruparan/RecordGate/internal/settings"
	"github.com/dharsanguruparan/RecordGate/internal/sru"
	"github.com/dharsanguruparan/RecordGate/internal/storage"
)

const logJob = "3e4f5a6b-7c8d-4e9f-8a0b-1c2d3e4f5a6b"

type records map[string]*sru.Record

func (r records) Read(_ context.Context, id string) (*sru.Record, error) {
	return r[id], nil
}

type env struct {
	store   *storage.MemoryStore
	broker  *queue.MemoryBroker
	handler http.Handler
	// outcome is what the simulated worker writes to the newest priority job.
	outcome func(item *model.QueueItem)
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	e := &env{
		store:  storage.NewMemoryStore(storage.Options{}),
		broker: queue.NewMemoryBroker(),
	}
	authn, err := auth.Parse("load:secret,other:secret,admin:secret:KVP")
	require.NoError(t, err)

	prioSvc := prio.NewService(e.store, e.broker, records{"000123456": {
		Leader:        "00000cam a2200000 i 4500",
		ControlFields: []sru.ControlField{{Tag: "001", Value: "000123456"}},
	}}, prio.Options{
		PollWaitTime: time.Millisecond,
		Sleep: func(context.Context, time.Duration) error {
			msgs := e.broker.Messages(queue.RequestsQueue)
			if len(msgs) > 0 && e.outcome != nil {
				_ = e.store.Update(msgs[len(msgs)-1].CorrelationID, e.outcome)
			}
			return nil
		},
	})

	logRepo := repository.NewMemoryLogRepository()
	logRepo.Add(model.LogItem{CorrelationID: logJob, LogItemType: model.LogMerge, BlobSequence: 1, CreationTime: time.Now()})

	e.handler = New(Deps{
		Prio:     prioSvc,
		Bulk:     bulk.NewService(e.store, e.broker, storage.NewMemoryContent(), 2, nil),
		Logs:     logs.NewService(logRepo, nil, nil),
		Auth:     authn,
		Resolver: settings.Resolver{RecordType: "bib", FixTypes: []string{"DELET", "UNDEL"}},
		Options:  opts,
	})
	return e
}

func (e *env) do(method, target, user, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != "" {
		req.SetBasicAuth(user, "secret")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func created(item *model.QueueItem) {
	item.QueueItemState = model.StateDone
	item.Records = []model.RecordResult{{RecordStatus: model.RecordCreated, DatabaseID: "000000042"}}
}

func TestHealth(t *testing.T) {
	e := newEnv(t, Options{})
	rec := e.do(http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMalformedQueryParams(t *testing.T) {
	e := newEnv(t, Options{})
	rec := e.do(http.MethodGet, "/bulk/?skip=abc&id=x", "load", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error        string   `json:"error"`
		FailedParams []string `json:"failedParams"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"id", "skip"}, body.FailedParams)
}

func TestPrioCreate(t *testing.T) {
	e := newEnv(t, Options{})
	e.outcome = created

	rec := e.do(http.MethodPost, "/", "load", "application/json", `{"leader":"","fields":[]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "000000042", rec.Header().Get("Record-ID"))
	assert.JSONEq(t, `[]`, rec.Body.String())

	msgs := e.broker.Messages(queue.RequestsQueue)
	require.Len(t, msgs, 1)
	assert.Equal(t, "load", msgs[0].Headers.Cataloger)
	assert.True(t, msgs[0].Headers.OperationSettings.Unique)
}

func TestPrioNoopCreateHasNoRecordID(t *testing.T) {
	e := newEnv(t, Options{})
	e.outcome = func(item *model.QueueItem) { item.QueueItemState = model.StateDone }

	rec := e.do(http.MethodPost, "/?noop=1", "load", "application/json", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Record-ID"))
}

func TestPrioMergedCreate(t *testing.T) {
	e := newEnv(t, Options{})
	e.outcome = func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.Records = []model.RecordResult{{RecordStatus: model.RecordUpdated, DatabaseID: "000000007"}}
	}

	rec := e.do(http.MethodPost, "/?merge=1", "load", "application/json", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "000000007", rec.Header().Get("Record-ID"))
}

func TestPrioUpdateAndFix(t *testing.T) {
	e := newEnv(t, Options{})
	e.outcome = func(item *model.QueueItem) {
		item.QueueItemState = model.StateDone
		item.HandledIDs = []string{"000000042"}
	}

	rec := e.do(http.MethodPost, "/000000042", "load", "application/xml", `<record/>`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "000000042", rec.Header().Get("Record-ID"))

	rec = e.do(http.MethodPost, "/fix/000000042?fixType=UNDEL", "load", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msgs := e.broker.Messages(queue.RequestsQueue)
	assert.Equal(t, model.OperationFix, msgs[len(msgs)-1].Headers.Operation)
	assert.Equal(t, "UNDEL", msgs[len(msgs)-1].Headers.OperationSettings.FixType)

	rec = e.do(http.MethodPost, "/fix/000000042?fixType=BOGUS", "load", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrioWriteRejections(t *testing.T) {
	e := newEnv(t, Options{})

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/", "", "application/json", `{}`).Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, e.do(http.MethodPost, "/", "load", "text/plain", `x`).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/?cataloger=IMP", "load", "application/json", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/?unique=0&merge=1", "load", "application/json", `{}`).Code)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.SetBasicAuth("load", "wrong")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, e.broker.Total())
}

func TestPrioRequireKVPForWrite(t *testing.T) {
	e := newEnv(t, Options{RequireKVPForWrite: true})
	e.outcome = created

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/", "load", "application/json", `{}`).Code)
	assert.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/?cataloger=IMP", "admin", "application/json", `{}`).Code)
	assert.Equal(t, "IMP", e.broker.Messages(queue.RequestsQueue)[0].Headers.Cataloger)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/000123456", "", "", "").Code)
}

func TestPrioRead(t *testing.T) {
	e := newEnv(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/000123456", nil)
	req.Header.Set("Accept", "*/*")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"leader":"00000cam a2200000 i 4500"`)

	req = httptest.NewRequest(http.MethodGet, "/000123456", nil)
	req.Header.Set("Accept", "application/alephseq")
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/000000001", "", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/abc", "", "", "").Code)
}

func TestPrioListingIsKVPOnly(t *testing.T) {
	e := newEnv(t, Options{})
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/prio/", "load", "", "").Code)
	rec := e.do(http.MethodGet, "/prio/", "admin", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBulkChunkedFlow(t *testing.T) {
	e := newEnv(t, Options{})

	rec := e.do(http.MethodPost, "/bulk/?pOldNew=NEW&pActiveLibrary=FIN01&noStream=1", "load", "application/json", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item model.QueueItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, model.StateWaitingForRecords, item.QueueItemState)
	assert.Equal(t, model.OperationCreate, item.Operation)
	id := item.CorrelationID

	rec = e.do(http.MethodPost, "/bulk/records/"+id, "load", "application/json", `[{},{},{}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, e.broker.Total())

	rec = e.do(http.MethodPost, "/bulk/records/"+id, "load", "application/json", `[{},{}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"correlationId":"`+id+`","blobSequences":[1,2],"blobSize":2}`, rec.Body.String())

	rec = e.do(http.MethodPost, "/bulk/record/"+id, "load", "application/xml", `<record/>`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"blobSequences":[3]`)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/bulk/record/"+id, "other", "application/xml", `<record/>`).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/bulk/records/"+id, "other", "application/json", `[{}]`).Code)

	rec = e.do(http.MethodGet, "/bulk/state/"+id, "load", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queueItemState":"WAITING_FOR_RECORDS"`)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/bulk/state/"+id, "other", "", "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/bulk/state/"+id, "admin", "", "").Code)

	rec = e.do(http.MethodPut, "/bulk/state/"+id+"?status=PENDING_QUEUING", "load", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/bulk/record/"+id, "load", "application/json", `{}`).Code)

	rec = e.do(http.MethodGet, "/bulk/", "other", "", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = e.do(http.MethodDelete, "/bulk/?id="+id, "load", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result"`)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/bulk/state/"+id, "load", "", "").Code)
}

func TestBulkStreamedContent(t *testing.T) {
	e := newEnv(t, Options{})

	rec := e.do(http.MethodPost, "/bulk/?pOldNew=OLD&pActiveLibrary=FIN01", "load", "application/marc", "00026nam")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item model.QueueItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, model.StatePendingQueuing, item.QueueItemState)
	assert.Equal(t, model.OperationUpdate, item.Operation)

	rec = e.do(http.MethodGet, "/bulk/content/"+item.CorrelationID, "load", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/marc", rec.Header().Get("Content-Type"))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "00026nam", string(body))

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/bulk/content/"+item.CorrelationID, "load", "", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/bulk/content/"+item.CorrelationID, "load", "", "").Code)
}

func TestBulkRemoveByPath(t *testing.T) {
	e := newEnv(t, Options{})

	rec := e.do(http.MethodPost, "/bulk/?pOldNew=NEW&pActiveLibrary=FIN01&noStream=1", "load", "application/json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var item model.QueueItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodDelete, "/bulk/", "load", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodDelete, "/bulk/not-an-id", "load", "", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/bulk/"+item.CorrelationID, "other", "", "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/bulk/"+item.CorrelationID, "load", "", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/bulk/state/"+item.CorrelationID, "admin", "", "").Code)
}

func TestBulkCreateValidation(t *testing.T) {
	e := newEnv(t, Options{AllowedLibs: []string{"FIN01"}})

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/bulk/?pActiveLibrary=FIN01", "load", "application/json", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/bulk/?pOldNew=NEW&pActiveLibrary=FIN02", "load", "application/json", "").Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, e.do(http.MethodPost, "/bulk/?pOldNew=NEW&pActiveLibrary=FIN01", "load", "text/csv", "a,b").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/bulk/", "", "", "").Code)
}

func TestLogs(t *testing.T) {
	e := newEnv(t, Options{})

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/logs/", "load", "", "").Code)

	rec := e.do(http.MethodGet, "/logs/"+logJob, "admin", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), logJob)

	rec = e.do(http.MethodGet, "/logs/list?logItemType=MERGE_LOG", "admin", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["`+logJob+`"]`, rec.Body.String())

	rec = e.do(http.MethodGet, "/logs/list?expanded=1", "admin", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"logCount":1`)

	assert.Equal(t, http.StatusOK, e.do(http.MethodPut, "/logs/"+logJob, "admin", "", "").Code)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodDelete, "/logs/"+logJob, "admin", "", "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/logs/"+logJob+"?force=1", "admin", "", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/logs/"+logJob, "admin", "", "").Code)
}
