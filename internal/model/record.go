package model

import "net/http"

// RecordStatus is the per-record outcome reported by the workers.
type RecordStatus string

const (
	RecordCreated       RecordStatus = "CREATED"
	RecordUpdated       RecordStatus = "UPDATED"
	RecordFixed         RecordStatus = "FIXED"
	RecordSkipped       RecordStatus = "SKIPPED"
	RecordInvalid       RecordStatus = "INVALID"
	RecordConflict      RecordStatus = "CONFLICT"
	RecordDuplicate     RecordStatus = "DUPLICATE"
	RecordUnprocessable RecordStatus = "UNPROCESSABLE_ENTITY"
	RecordError         RecordStatus = "ERROR"
	RecordUnknown       RecordStatus = "UNKNOWN"
)

// RecordResult is one entry of QueueItem.Records.
type RecordResult struct {
	RecordStatus RecordStatus `json:"recordStatus" bson:"recordStatus"`
	DatabaseID   string       `json:"databaseId,omitempty" bson:"databaseId,omitempty"`
	Message      string       `json:"message,omitempty" bson:"message,omitempty"`
	BlobSequence int          `json:"blobSequence,omitempty" bson:"blobSequence,omitempty"`
}

// Failed reports whether the status describes a record that was not written.
func (s RecordStatus) Failed() bool {
	switch s {
	case RecordCreated, RecordUpdated, RecordFixed, RecordSkipped:
		return false
	}
	return true
}

// HTTPStatus maps a record outcome to the status code a priority caller sees.
func (s RecordStatus) HTTPStatus() int {
	switch s {
	case RecordCreated:
		return http.StatusCreated
	case RecordUpdated, RecordFixed, RecordSkipped:
		return http.StatusOK
	case RecordConflict, RecordDuplicate:
		return http.StatusConflict
	case RecordInvalid, RecordUnprocessable:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
