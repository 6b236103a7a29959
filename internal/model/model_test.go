package model

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
)

func TestSanitizeCataloger(t *testing.T) {
	kvp := Cataloger{ID: "ADMIN", Authorization: []string{AuthKVP}}
	plain := Cataloger{ID: "LOAD"}

	got, err := SanitizeCataloger(kvp, "OTHER", true)
	require.NoError(t, err)
	assert.Equal(t, "OTHER", got.ID)
	assert.True(t, got.Has(AuthKVP))

	got, err = SanitizeCataloger(kvp, "", true)
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", got.ID)

	got, err = SanitizeCataloger(plain, "", false)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	_, err = SanitizeCataloger(plain, "OTHER", true)
	assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))
}

func TestLookupContentType(t *testing.T) {
	ct, ok := LookupContentType("application/json; charset=utf-8")
	require.True(t, ok)
	assert.Equal(t, FormatJSON, ct.Format)
	assert.True(t, ct.AllowAddRecords)

	ct, ok = LookupContentType("application/alephseq")
	require.True(t, ok)
	assert.False(t, ct.AllowPrio)
	assert.True(t, ct.AllowBulk)

	_, ok = LookupContentType("")
	assert.False(t, ok)
	_, ok = LookupContentType("text/csv")
	assert.False(t, ok)
}

func TestParseState(t *testing.T) {
	st, ok := ParseState("WAITING_FOR_RECORDS")
	require.True(t, ok)
	assert.Equal(t, StateWaitingForRecords, st)

	_, ok = ParseState("waiting_for_records")
	assert.False(t, ok)
	_, ok = ParseState("")
	assert.False(t, ok)

	assert.Len(t, KnownStates(), 11)
}

func TestTerminal(t *testing.T) {
	for _, st := range []QueueItemState{StateDone, StateError, StateAbort} {
		assert.True(t, st.Terminal(), st)
	}
	for _, st := range []QueueItemState{StateUploading, StatePendingValidation, StateImporting} {
		assert.False(t, st.Terminal(), st)
	}
}

func TestRecordStatus(t *testing.T) {
	cases := map[RecordStatus]int{
		RecordCreated:       http.StatusCreated,
		RecordUpdated:       http.StatusOK,
		RecordSkipped:       http.StatusOK,
		RecordConflict:      http.StatusConflict,
		RecordDuplicate:     http.StatusConflict,
		RecordInvalid:       http.StatusUnprocessableEntity,
		RecordUnprocessable: http.StatusUnprocessableEntity,
		RecordError:         http.StatusInternalServerError,
		RecordUnknown:       http.StatusInternalServerError,
	}
	for status, code := range cases {
		assert.Equal(t, code, status.HTTPStatus(), status)
	}
	assert.False(t, RecordFixed.Failed())
	assert.True(t, RecordInvalid.Failed())
}

func TestParseLogItemType(t *testing.T) {
	lt, ok := ParseLogItemType("MATCH_LOG")
	require.True(t, ok)
	assert.Equal(t, LogMatch, lt)
	_, ok = ParseLogItemType("FOO_LOG")
	assert.False(t, ok)
}
