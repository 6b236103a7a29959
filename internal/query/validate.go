package query

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/dharsanguruparan/RecordGate/internal/model"
)

var (
	skipLimitPattern    = regexp.MustCompile(`^\d{1,7}$`)
	oldNewPattern       = regexp.MustCompile(`^(?:NEW|OLD)$`)
	libraryPattern      = regexp.MustCompile(`^FIN\d\d$`)
	fileNamePattern     = regexp.MustCompile(`^[a-zA-Z0-9/._-]{0,100}$`)
	catalogerInPattern  = regexp.MustCompile(`^(?:0|false|undefined|[A-Z0-9_-]{0,10})$`)
	blobSequencePattern = regexp.MustCompile(`^[0-9]{1,5}$`)
	identifierPattern   = regexp.MustCompile(`^[a-zA-Z0-9/._-]{0,50}$`)
	databaseIDPattern   = regexp.MustCompile(`^[0-9]{9}$`)
	sourceIDPattern     = regexp.MustCompile(`^\([A-Z0-9_-]{0,10}\)[A-Z0-9_-]{0,20}$`)
	catalogersPattern   = regexp.MustCompile(`(?i)^[A-Z0-9_-]{1,10}(?:,[A-Z0-9_-]{1,10})*$`)
)

var boolParams = []string{
	"noStream", "noop", "unique", "merge", "validate", "failOnError", "skipNoChangeUpdates",
	"force", "expanded",
	"showAll", "showOperations", "showOperationSettings", "showRecordLoadParams", "showImportJobState",
	"recordsAsReport", "noRecords", "noIds",
}

type paramCheck struct {
	name  string
	valid func(string) bool
}

var paramChecks = []paramCheck{
	{"id", IsCorrelationID},
	{"correlationId", IsCorrelationID},
	{"pOldNew", oldNewPattern.MatchString},
	{"pActiveLibrary", libraryPattern.MatchString},
	{"pRejectFile", fileNamePattern.MatchString},
	{"pLogFile", fileNamePattern.MatchString},
	{"pCatalogerIn", catalogerInPattern.MatchString},
	{"creationTime", validTimeRange},
	{"modificationTime", validTimeRange},
	{"queueItemState", func(s string) bool { _, ok := model.ParseState(s); return ok }},
	{"logItemType", func(s string) bool { _, ok := model.ParseLogItemType(s); return ok }},
	{"logItemTypes", validLogItemTypes},
	{"blobSequence", blobSequencePattern.MatchString},
	{"blobSequenceStart", blobSequencePattern.MatchString},
	{"blobSequenceEnd", blobSequencePattern.MatchString},
	{"standardIdentifiers", identifierPattern.MatchString},
	{"databaseId", databaseIDPattern.MatchString},
	{"sourceIds", sourceIDPattern.MatchString},
	{"catalogers", catalogersPattern.MatchString},
	{"skip", skipLimitPattern.MatchString},
	{"limit", skipLimitPattern.MatchString},
}

// CheckResult lists the parameters that failed validation.
type CheckResult struct {
	Error               string   `json:"error"`
	FailedParams        []string `json:"failedParams"`
	NonCompatibleParams []string `json:"nonCompatibleParams"`
}

// OK reports whether every parameter passed.
func (r CheckResult) OK() bool {
	return len(r.FailedParams) == 0 && len(r.NonCompatibleParams) == 0
}

// CheckParams validates the format of every known query parameter. Unknown
// parameters are ignored; empty values are treated as absent.
func CheckParams(params url.Values) CheckResult {
	res := CheckResult{Error: "BAD query params", FailedParams: []string{}, NonCompatibleParams: []string{}}
	for _, c := range paramChecks {
		if v := params.Get(c.name); v != "" && !c.valid(v) {
			res.FailedParams = append(res.FailedParams, c.name)
		}
	}
	for _, name := range boolParams {
		if v := params.Get(name); v != "" && !boolPattern.MatchString(v) {
			res.FailedParams = append(res.FailedParams, name)
		}
	}
	id, correlationID := params.Get("id"), params.Get("correlationId")
	if id != "" && correlationID != "" && id != correlationID {
		res.NonCompatibleParams = append(res.NonCompatibleParams, "correlationId", "id")
	}
	return res
}

func validTimeRange(s string) bool {
	_, err := ParseTimeRange(s)
	return err == nil
}

func validLogItemTypes(s string) bool {
	for _, t := range strings.Split(s, ",") {
		if _, ok := model.ParseLogItemType(t); !ok {
			return false
		}
	}
	return true
}
