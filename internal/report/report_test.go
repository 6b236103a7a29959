package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RecordGate/internal/model"
)

func job() *model.QueueItem {
	return &model.QueueItem{
		CorrelationID:  "2ba8c5a0-54d1-4e5b-9c35-0c5b8f3b7c11",
		QueueItemState: model.StateDone,
		Records: []model.RecordResult{
			{RecordStatus: model.RecordCreated, DatabaseID: "000000001"},
			{RecordStatus: model.RecordCreated, DatabaseID: "000000002"},
			{RecordStatus: model.RecordInvalid, Message: "bad leader"},
		},
		HandledIDs:  []string{"000000001", "000000002"},
		RejectedIDs: []string{"3"},
	}
}

func allFlags() []Flags {
	var out []Flags
	for _, r := range []bool{false, true} {
		for _, rr := range []bool{false, true} {
			for _, ri := range []bool{false, true} {
				out = append(out, Flags{Report: r, RemoveRecords: rr, RemoveIDs: ri})
			}
		}
	}
	return out
}

func TestCreateRecordReportShapes(t *testing.T) {
	for _, f := range allFlags() {
		out := CreateRecordReport(New(job()), f)

		if f.RemoveRecords {
			assert.Nil(t, out.Records, "%+v", f)
		} else {
			assert.Len(t, out.Records, 3, "%+v", f)
		}
		if f.RemoveIDs {
			assert.Nil(t, out.HandledIDs, "%+v", f)
			assert.Nil(t, out.RejectedIDs, "%+v", f)
		} else {
			assert.Len(t, out.HandledIDs, 2, "%+v", f)
		}
		if f.Report {
			require.NotNil(t, out.RecordReport, "%+v", f)
			assert.Equal(t, 3, out.RecordReport.RecordAmount)
			assert.Equal(t, map[model.RecordStatus]int{model.RecordCreated: 2, model.RecordInvalid: 1}, out.RecordReport.RecordStatuses)
		} else {
			assert.Nil(t, out.RecordReport, "%+v", f)
		}
	}
}

func TestCreateRecordReportIsIdempotent(t *testing.T) {
	for _, f := range allFlags() {
		once := CreateRecordReport(New(job()), f)
		twice := CreateRecordReport(once, f)
		assert.Equal(t, once, twice, "%+v", f)
	}
}

func TestCreateRecordReportDoesNotMutateInput(t *testing.T) {
	in := New(job())
	_ = CreateRecordReport(in, Flags{Report: true, RemoveRecords: true, RemoveIDs: true})
	assert.Len(t, in.Records, 3)
	assert.Len(t, in.HandledIDs, 2)
}

func TestReportWithoutRecords(t *testing.T) {
	item := job()
	item.Records = nil
	out := CreateRecordReport(New(item), Flags{Report: true})
	require.NotNil(t, out.RecordReport)
	assert.Zero(t, out.RecordReport.RecordAmount)
	assert.Empty(t, out.RecordReport.RecordStatuses)
}

func TestReportJSONShape(t *testing.T) {
	out := CreateRecordReport(New(job()), Flags{Report: true, RemoveRecords: true})
	data, err := json.Marshal(out)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "2ba8c5a0-54d1-4e5b-9c35-0c5b8f3b7c11", m["correlationId"])
	assert.NotContains(t, m, "records")
	assert.Contains(t, m, "recordReport")
	assert.Contains(t, m, "handledIds")
}
