package logs

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/repository"
)

const (
	jobA    = "5c6d7e8f-0a1b-4c2d-9e3f-4a5b6c7d8e90"
	jobB    = "6d7e8f90-1a2b-4c3d-8e4f-5a6b7c8d9e01"
	unknown = "7e8f9001-2a3b-4c4d-ae5f-6a7b8c9d0e12"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newService() (*Service, *repository.MemoryLogRepository) {
	repo := repository.NewMemoryLogRepository()
	repo.Add(
		model.LogItem{CorrelationID: jobA, LogItemType: model.LogMerge, BlobSequence: 1, Cataloger: "LOAD", CreationTime: now.AddDate(0, -1, 0)},
		model.LogItem{CorrelationID: jobA, LogItemType: model.LogMerge, BlobSequence: 2, Cataloger: "LOAD", CreationTime: now.AddDate(0, -1, 0)},
		model.LogItem{CorrelationID: jobA, LogItemType: model.LogMatch, BlobSequence: 2, Cataloger: "LOAD", CreationTime: now.AddDate(0, -1, 0)},
		model.LogItem{CorrelationID: jobB, LogItemType: model.LogMatch, BlobSequence: 1, Cataloger: "IMP", CreationTime: now.AddDate(0, 0, -1), DatabaseID: "000123456"},
	)
	return NewService(repo, nil, func() time.Time { return now }), repo
}

func TestGetLogs(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	items, err := svc.GetLogs(ctx, jobA)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	_, err = svc.GetLogs(ctx, unknown)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	_, err = svc.GetLogs(ctx, "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestDoLogsQuery(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	items, err := svc.DoLogsQuery(ctx, url.Values{"logItemType": {"MATCH_LOG"}})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = svc.DoLogsQuery(ctx, url.Values{"correlationId": {jobA}, "blobSequence": {"2"}})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = svc.DoLogsQuery(ctx, url.Values{"databaseId": {"000123456"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, jobB, items[0].CorrelationID)

	items, err = svc.DoLogsQuery(ctx, url.Values{"correlationId": {unknown}})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)

	_, err = svc.DoLogsQuery(ctx, url.Values{"logItemType": {"NOPE"}})
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestLists(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	ids, err := svc.GetListOfLogs(ctx, "MERGE_LOG")
	require.NoError(t, err)
	assert.Equal(t, []string{jobA}, ids)

	ids, err = svc.CorrelationIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{jobA, jobB}, ids)

	_, err = svc.GetListOfLogs(ctx, "BAD")
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))

	catalogers, err := svc.Catalogers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"IMP", "LOAD"}, catalogers)
}

func TestExpandedList(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	entries, err := svc.GetExpandedListOfLogs(ctx, url.Values{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, jobA, entries[0].CorrelationID)
	assert.Equal(t, 2, entries[0].LogCount)

	entries, err = svc.GetExpandedListOfLogs(ctx, url.Values{"logItemTypes": {"MATCH_LOG"}, "catalogers": {"IMP"}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, jobB, entries[0].CorrelationID)

	entries, err = svc.GetExpandedListOfLogs(ctx, url.Values{"logItemTypes": {"MATCH_LOG"}, "creationTime": {`["2024-05-30","2024-06-01"]`}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, jobB, entries[0].CorrelationID)
}

func TestProtectAndRemove(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	n, err := svc.ProtectLog(ctx, jobA, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = svc.RemoveLog(ctx, jobA, false)
	assert.Equal(t, http.StatusConflict, apierr.StatusOf(err))
	items, err := svc.GetLogs(ctx, jobA)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	n, err = svc.RemoveLog(ctx, jobA, true)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = svc.RemoveLog(ctx, jobB, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = svc.RemoveLog(ctx, jobB, false)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	_, err = svc.ProtectLog(ctx, unknown, 0)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	ids, err := repo.ListCorrelationIDs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
