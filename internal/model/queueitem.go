// Package model contains the documents and enums shared by the gateway
// services, the store adapters and the HTTP layer.
package model

import (
	"time"
)

// Operation is the kind of change a job asks the workers to perform.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationFix    Operation = "FIX"
)

// QueueItemState describes where a job is in the worker pipeline. Only the
// initial states are written by the gateway; everything after
// PENDING_VALIDATION belongs to the workers.
type QueueItemState string

const (
	StateUploading         QueueItemState = "UPLOADING"
	StateWaitingForRecords QueueItemState = "WAITING_FOR_RECORDS"
	StatePendingQueuing    QueueItemState = "PENDING_QUEUING"
	StateQueuingInProgress QueueItemState = "QUEUING_IN_PROGRESS"
	StatePendingValidation QueueItemState = "PENDING_VALIDATION"
	StateValidating        QueueItemState = "VALIDATING"
	StateInQueue           QueueItemState = "IN_QUEUE"
	StateImporting         QueueItemState = "IMPORTING"
	StateDone              QueueItemState = "DONE"
	StateError             QueueItemState = "ERROR"
	StateAbort             QueueItemState = "ABORT"
)

var validatorStates = []QueueItemState{
	StateUploading,
	StateWaitingForRecords,
	StatePendingQueuing,
	StateQueuingInProgress,
	StatePendingValidation,
	StateValidating,
}

var importerStates = []QueueItemState{
	StateInQueue,
	StateImporting,
}

// KnownStates lists every state a queue item may be filtered by.
func KnownStates() []QueueItemState {
	out := make([]QueueItemState, 0, len(validatorStates)+len(importerStates)+3)
	out = append(out, validatorStates...)
	out = append(out, importerStates...)
	return append(out, StateDone, StateError, StateAbort)
}

// ParseState returns the state named s if it is one of KnownStates.
func ParseState(s string) (QueueItemState, bool) {
	for _, st := range KnownStates() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no further worker transition follows s.
func (s QueueItemState) Terminal() bool {
	return s == StateDone || s == StateError || s == StateAbort
}

// OperationSettings are the resolved flags a job is submitted with.
type OperationSettings struct {
	Noop                bool   `json:"noop" bson:"noop"`
	Unique              bool   `json:"unique" bson:"unique"`
	Merge               bool   `json:"merge" bson:"merge"`
	Validate            bool   `json:"validate" bson:"validate"`
	FailOnError         bool   `json:"failOnError" bson:"failOnError"`
	SkipNoChangeUpdates bool   `json:"skipNoChangeUpdates" bson:"skipNoChangeUpdates"`
	FixType             string `json:"fixType,omitempty" bson:"fixType,omitempty"`
	Prio                bool   `json:"prio" bson:"prio"`
}

// RecordLoadParams are the positional parameters of the legacy record loader.
// The gateway only passes them through.
type RecordLoadParams struct {
	PActiveLibrary string `json:"pActiveLibrary" bson:"pActiveLibrary"`
	POldNew        string `json:"pOldNew" bson:"pOldNew"`
	PRejectFile    string `json:"pRejectFile,omitempty" bson:"pRejectFile,omitempty"`
	PLogFile       string `json:"pLogFile,omitempty" bson:"pLogFile,omitempty"`
	PCatalogerIn   string `json:"pCatalogerIn,omitempty" bson:"pCatalogerIn,omitempty"`
}

// QueueItem is the shared job document. The gateway creates it, workers move
// it through its states and fill in the outcome.
type QueueItem struct {
	CorrelationID     string             `json:"correlationId" bson:"correlationId"`
	Cataloger         string             `json:"cataloger" bson:"cataloger"`
	OCatalogerIn      string             `json:"oCatalogerIn" bson:"oCatalogerIn"`
	Operation         Operation          `json:"operation" bson:"operation"`
	Operations        []Operation        `json:"operations,omitempty" bson:"operations,omitempty"`
	OperationSettings *OperationSettings `json:"operationSettings,omitempty" bson:"operationSettings,omitempty"`
	RecordLoadParams  *RecordLoadParams  `json:"recordLoadParams,omitempty" bson:"recordLoadParams,omitempty"`
	ImportJobState    map[string]string  `json:"importJobState,omitempty" bson:"importJobState,omitempty"`
	ContentType       string             `json:"contentType,omitempty" bson:"contentType,omitempty"`
	QueueItemState    QueueItemState     `json:"queueItemState" bson:"queueItemState"`
	BlobSize          int                `json:"blobSize" bson:"blobSize"`
	Records           []RecordResult     `json:"records,omitempty" bson:"records,omitempty"`
	HandledIDs        []string           `json:"handledIds,omitempty" bson:"handledIds,omitempty"`
	RejectedIDs       []string           `json:"rejectedIds,omitempty" bson:"rejectedIds,omitempty"`
	ErrorStatus       int                `json:"errorStatus,omitempty" bson:"errorStatus,omitempty"`
	ErrorMessage      string             `json:"errorMessage,omitempty" bson:"errorMessage,omitempty"`
	CreationTime      time.Time          `json:"creationTime" bson:"creationTime"`
	ModificationTime  time.Time          `json:"modificationTime" bson:"modificationTime"`
}

// Settings returns the operation settings, or the zero value when they were
// projected out.
func (q *QueueItem) Settings() OperationSettings {
	if q.OperationSettings == nil {
		return OperationSettings{}
	}
	return *q.OperationSettings
}

// Clone returns a deep copy so in-memory stores never hand out shared slices.
func (q *QueueItem) Clone() *QueueItem {
	if q == nil {
		return nil
	}
	c := *q
	if q.OperationSettings != nil {
		settings := *q.OperationSettings
		c.OperationSettings = &settings
	}
	if q.Operations != nil {
		c.Operations = append([]Operation(nil), q.Operations...)
	}
	if q.RecordLoadParams != nil {
		p := *q.RecordLoadParams
		c.RecordLoadParams = &p
	}
	if q.ImportJobState != nil {
		c.ImportJobState = make(map[string]string, len(q.ImportJobState))
		for k, v := range q.ImportJobState {
			c.ImportJobState[k] = v
		}
	}
	if q.Records != nil {
		c.Records = append([]RecordResult(nil), q.Records...)
	}
	if q.HandledIDs != nil {
		c.HandledIDs = append([]string(nil), q.HandledIDs...)
	}
	if q.RejectedIDs != nil {
		c.RejectedIDs = append([]string(nil), q.RejectedIDs...)
	}
	return &c
}
