package query

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
)

// LogFilter selects audit log entries. BlobSequenceStart and
// BlobSequenceEnd are inclusive; an exact blobSequence sets both.
type LogFilter struct {
	CorrelationID      string
	LogItemType        model.LogItemType
	BlobSequenceStart  int
	BlobSequenceEnd    int
	StandardIdentifier string
	DatabaseID         string
	SourceID           string
	Skip               int
	Limit              int
}

// Matches reports whether item satisfies the filter.
func (f LogFilter) Matches(item model.LogItem) bool {
	if f.CorrelationID != "" && item.CorrelationID != f.CorrelationID {
		return false
	}
	if f.LogItemType != "" && item.LogItemType != f.LogItemType {
		return false
	}
	if f.BlobSequenceStart > 0 && item.BlobSequence < f.BlobSequenceStart {
		return false
	}
	if f.BlobSequenceEnd > 0 && item.BlobSequence > f.BlobSequenceEnd {
		return false
	}
	if f.StandardIdentifier != "" && !contains(item.StandardIdentifiers, f.StandardIdentifier) {
		return false
	}
	if f.DatabaseID != "" && item.DatabaseID != f.DatabaseID {
		return false
	}
	if f.SourceID != "" && !contains(item.SourceIDs, f.SourceID) {
		return false
	}
	return true
}

// BuildLogFilter maps the log query parameters onto a LogFilter.
func BuildLogFilter(params url.Values) (LogFilter, error) {
	var f LogFilter
	id, err := CorrelationIDParam(params)
	if err != nil {
		return LogFilter{}, err
	}
	f.CorrelationID = id

	if raw := params.Get("logItemType"); raw != "" {
		t, ok := model.ParseLogItemType(raw)
		if !ok {
			return LogFilter{}, apierr.BadRequest("Invalid logItemType")
		}
		f.LogItemType = t
	}

	seq := func(name string) (int, error) {
		raw := params.Get(name)
		if raw == "" {
			return 0, nil
		}
		if !blobSequencePattern.MatchString(raw) {
			return 0, apierr.BadRequest("Invalid %s", name)
		}
		return strconv.Atoi(raw)
	}
	exact, err := seq("blobSequence")
	if err != nil {
		return LogFilter{}, err
	}
	if exact > 0 {
		f.BlobSequenceStart, f.BlobSequenceEnd = exact, exact
	} else {
		if f.BlobSequenceStart, err = seq("blobSequenceStart"); err != nil {
			return LogFilter{}, err
		}
		if f.BlobSequenceEnd, err = seq("blobSequenceEnd"); err != nil {
			return LogFilter{}, err
		}
	}

	f.StandardIdentifier = params.Get("standardIdentifiers")
	f.DatabaseID = params.Get("databaseId")
	f.SourceID = params.Get("sourceIds")

	skip, _, ok := IntParam(params, "skip")
	if !ok {
		return LogFilter{}, apierr.BadRequest("Invalid skip")
	}
	limit, _, ok := IntParam(params, "limit")
	if !ok {
		return LogFilter{}, apierr.BadRequest("Invalid limit")
	}
	f.Skip, f.Limit = skip, limit
	return f, nil
}

// LogListFilter selects rows of the cross-job log listing.
type LogListFilter struct {
	LogItemTypes []model.LogItemType
	Catalogers   []string
	DateAfter    time.Time
	DateBefore   time.Time
}

// DefaultDateAfter is the lower bound used when no creationTime is given.
var DefaultDateAfter = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// BuildLogListFilter reads logItemTypes (falling back to logItemType, then
// MERGE_LOG), catalogers and creationTime. now bounds open ranges.
func BuildLogListFilter(params url.Values, now time.Time) (LogListFilter, error) {
	f := LogListFilter{DateAfter: DefaultDateAfter, DateBefore: now.UTC()}

	types := params.Get("logItemTypes")
	if types == "" {
		types = params.Get("logItemType")
	}
	if types == "" {
		types = string(model.LogMerge)
	}
	for _, raw := range strings.Split(types, ",") {
		t, ok := model.ParseLogItemType(raw)
		if !ok {
			return LogListFilter{}, apierr.BadRequest("Invalid logItemType")
		}
		f.LogItemTypes = append(f.LogItemTypes, t)
	}

	if raw := params.Get("catalogers"); raw != "" {
		if !catalogersPattern.MatchString(raw) {
			return LogListFilter{}, apierr.BadRequest("Invalid catalogers")
		}
		f.Catalogers = strings.Split(raw, ",")
	}

	if raw := params.Get("creationTime"); raw != "" {
		r, err := ParseTimeRange(raw)
		if err != nil {
			return LogListFilter{}, apierr.BadRequest("Invalid creationTime: %v", err)
		}
		f.DateAfter = r.From
		if r.To.After(r.From) {
			f.DateBefore = r.To
		}
	}
	return f, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
