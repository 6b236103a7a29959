package model

import (
	"encoding/json"
	"time"
)

// LogItemType classifies the audit entries written by workers.
type LogItemType string

const (
	LogMerge       LogItemType = "MERGE_LOG"
	LogMatch       LogItemType = "MATCH_LOG"
	LogSplitter    LogItemType = "SPLITTER_LOG"
	LogInputRecord LogItemType = "INPUT_RECORD_LOG"
)

// ParseLogItemType returns the type named s if it is known.
func ParseLogItemType(s string) (LogItemType, bool) {
	switch t := LogItemType(s); t {
	case LogMerge, LogMatch, LogSplitter, LogInputRecord:
		return t, true
	}
	return "", false
}

// LogItem is an append-only audit entry. The gateway never writes one; it
// only lists, protects and removes them.
type LogItem struct {
	CorrelationID       string          `json:"correlationId"`
	LogItemType         LogItemType     `json:"logItemType"`
	BlobSequence        int             `json:"blobSequence"`
	StandardIdentifiers []string        `json:"standardIdentifiers,omitempty"`
	DatabaseID          string          `json:"databaseId,omitempty"`
	SourceIDs           []string        `json:"sourceIds,omitempty"`
	Cataloger           string          `json:"cataloger,omitempty"`
	Protected           bool            `json:"protected"`
	Content             json.RawMessage `json:"content,omitempty"`
	CreationTime        time.Time       `json:"creationTime"`
	ModificationTime    time.Time       `json:"modificationTime"`
}

// LogListEntry is one row of the cross-job log listing.
type LogListEntry struct {
	CorrelationID string      `json:"correlationId"`
	LogItemType   LogItemType `json:"logItemType"`
	Cataloger     string      `json:"cataloger,omitempty"`
	LogCount      int         `json:"logCount"`
	CreationTime  time.Time   `json:"creationTime"`
}
