// Package query turns client filter parameters into store-agnostic filters
// and projections for queue items and audit logs.
package query

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
)

// TimeRange is an inclusive UTC interval. An exact match has From == To.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies within the range.
func (r TimeRange) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.From) && !t.After(r.To)
}

// Filter selects queue items.
type Filter struct {
	CorrelationID    string
	OCatalogerIn     string
	State            model.QueueItemState
	CreationTime     *TimeRange
	ModificationTime *TimeRange
	Skip             int
	Limit            int
}

// Matches reports whether item satisfies every populated criterion.
func (f Filter) Matches(item *model.QueueItem) bool {
	if f.CorrelationID != "" && item.CorrelationID != f.CorrelationID {
		return false
	}
	if f.OCatalogerIn != "" && item.OCatalogerIn != f.OCatalogerIn {
		return false
	}
	if f.State != "" && item.QueueItemState != f.State {
		return false
	}
	if f.CreationTime != nil && !f.CreationTime.Contains(item.CreationTime) {
		return false
	}
	if f.ModificationTime != nil && !f.ModificationTime.Contains(item.ModificationTime) {
		return false
	}
	return true
}

// Build maps the queue item filter parameters onto a Filter.
func Build(params url.Values) (Filter, error) {
	var f Filter

	id, err := CorrelationIDParam(params)
	if err != nil {
		return Filter{}, err
	}
	f.CorrelationID = id

	if raw := params.Get("queueItemState"); raw != "" {
		state, ok := model.ParseState(raw)
		if !ok {
			return Filter{}, apierr.BadRequest("Invalid queueItemState %q", raw)
		}
		f.State = state
	}

	if f.CreationTime, err = timeRangeParam(params, "creationTime"); err != nil {
		return Filter{}, err
	}
	if f.ModificationTime, err = timeRangeParam(params, "modificationTime"); err != nil {
		return Filter{}, err
	}

	skip, _, ok := IntParam(params, "skip")
	if !ok {
		return Filter{}, apierr.BadRequest("Invalid skip")
	}
	limit, _, ok := IntParam(params, "limit")
	if !ok {
		return Filter{}, apierr.BadRequest("Invalid limit")
	}
	f.Skip, f.Limit = skip, limit
	return f, nil
}

// CorrelationIDParam reads id and correlationId, which name the same field.
// Giving both with different values is an error.
func CorrelationIDParam(params url.Values) (string, error) {
	id := params.Get("id")
	correlationID := params.Get("correlationId")
	if id != "" && correlationID != "" && id != correlationID {
		return "", apierr.BadRequest("Conflicting id and correlationId")
	}
	if correlationID == "" {
		correlationID = id
	}
	if correlationID == "" {
		return "", nil
	}
	if !IsCorrelationID(correlationID) {
		return "", apierr.BadRequest("Malformed correlation id")
	}
	return correlationID, nil
}

// IsCorrelationID reports whether s is a version 4 UUID. Anything else,
// including strings carrying store operators, is rejected here.
func IsCorrelationID(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil || len(s) != 36 {
		return false
	}
	return id.Version() == 4
}

func timeRangeParam(params url.Values, name string) (*TimeRange, error) {
	raw := params.Get(name)
	if raw == "" {
		return nil, nil
	}
	r, err := ParseTimeRange(raw)
	if err != nil {
		return nil, apierr.BadRequest("Invalid %s: %v", name, err)
	}
	return r, nil
}

// ParseTimeRange parses a JSON array of one (exact) or two (inclusive range)
// timestamps given as YYYY-MM-DD or ISO 8601.
func ParseTimeRange(raw string) (*TimeRange, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return nil, errNotArray
	}
	var stamps []string
	if err := json.Unmarshal([]byte(raw), &stamps); err != nil {
		return nil, err
	}
	if len(stamps) < 1 || len(stamps) > 2 {
		return nil, errArrayLength
	}
	times := make([]time.Time, 0, len(stamps))
	for _, s := range stamps {
		t, err := ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	if len(times) == 1 {
		return &TimeRange{From: times[0], To: times[0]}, nil
	}
	if times[1].Before(times[0]) {
		return nil, errReversedRange
	}
	return &TimeRange{From: times[0], To: times[1]}, nil
}

// localTimestamp is an ISO 8601 timestamp without a zone offset.
const localTimestamp = "2006-01-02T15:04:05.999999999"

// ParseTimestamp accepts a date or a full ISO 8601 timestamp, returned in UTC.
// Timestamps without an offset are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(localTimestamp, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

type parseError string

func (e parseError) Error() string { return string(e) }

const (
	errNotArray      = parseError("expected a JSON array")
	errArrayLength   = parseError("expected one or two timestamps")
	errReversedRange = parseError("range end precedes range start")
)
