// Package report shapes stored queue items into client-facing job reports.
package report

import (
	"context"
	"net/url"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// RecordReport summarizes per-record outcomes.
type RecordReport struct {
	RecordAmount   int                        `json:"recordAmount"`
	RecordStatuses map[model.RecordStatus]int `json:"recordStatuses"`
}

// Report is a queue item as returned to clients.
type Report struct {
	model.QueueItem
	RecordReport *RecordReport `json:"recordReport,omitempty"`
}

// Flags select the shape of a Report. The three axes are independent.
type Flags struct {
	// Report adds a RecordReport summary built from the records.
	Report bool
	// RemoveRecords drops the raw records.
	RemoveRecords bool
	// RemoveIDs drops the handled and rejected id lists.
	RemoveIDs bool
}

// FlagsFromParams reads recordsAsReport, noRecords and noIds.
func FlagsFromParams(params url.Values) (Flags, error) {
	var f Flags
	for name, dst := range map[string]*bool{
		"recordsAsReport": &f.Report,
		"noRecords":       &f.RemoveRecords,
		"noIds":           &f.RemoveIDs,
	} {
		v, ok := query.BoolParam(params, name)
		if !ok {
			return Flags{}, apierr.BadRequest("Invalid %s", name)
		}
		*dst = v.True()
	}
	return f, nil
}

// New wraps a copy of item without any shaping.
func New(item *model.QueueItem) Report {
	return Report{QueueItem: *item.Clone()}
}

// CreateRecordReport applies the flags to r. Applying it again to its own
// output with the same flags changes nothing: a summary is only rebuilt when
// raw records are still present.
func CreateRecordReport(r Report, f Flags) Report {
	out := Report{QueueItem: *r.QueueItem.Clone(), RecordReport: r.RecordReport}

	if f.Report && (out.Records != nil || out.RecordReport == nil) {
		out.RecordReport = summarize(out.Records)
	}
	if f.RemoveRecords {
		out.Records = nil
	}
	if f.RemoveIDs {
		out.HandledIDs = nil
		out.RejectedIDs = nil
	}
	return out
}

func summarize(records []model.RecordResult) *RecordReport {
	rr := &RecordReport{
		RecordAmount:   len(records),
		RecordStatuses: make(map[model.RecordStatus]int),
	}
	for _, rec := range records {
		status := rec.RecordStatus
		if status == "" {
			status = model.RecordUnknown
		}
		rr.RecordStatuses[status]++
	}
	return rr
}

// Lister is the read side of a queue item store.
type Lister interface {
	Query(ctx context.Context, f query.Filter, p query.Projection) ([]*model.QueueItem, error)
}

// List runs a client query against store and shapes every result. A non-empty
// oCatalogerIn restricts the listing to jobs created by that user.
func List(ctx context.Context, store Lister, params url.Values, oCatalogerIn string) ([]Report, error) {
	filter, err := query.Build(params)
	if err != nil {
		return nil, err
	}
	if oCatalogerIn != "" {
		filter.OCatalogerIn = oCatalogerIn
	}
	projection, err := query.ShowParams(params)
	if err != nil {
		return nil, err
	}
	flags, err := FlagsFromParams(params)
	if err != nil {
		return nil, err
	}

	items, err := store.Query(ctx, filter, projection)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0, len(items))
	for _, item := range items {
		out = append(out, CreateRecordReport(New(item), flags))
	}
	return out, nil
}
