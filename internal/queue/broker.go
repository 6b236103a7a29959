// Package queue publishes jobs to the worker pipeline. Priority jobs share the
// REQUESTS queue; every chunked bulk job gets its own validation queue.
package queue

import (
	"context"

	"github.com/dharsanguruparan/RecordGate/internal/model"
)

// RequestsQueue receives every priority job.
const RequestsQueue = "REQUESTS"

// ValidationQueue names the per-job queue chunked bulk records go to.
func ValidationQueue(correlationID string) string {
	return string(model.StatePendingValidation) + "." + correlationID
}

// RecordMetadata locates a record within a bulk job.
type RecordMetadata struct {
	BlobSequence int `json:"blobSequence"`
}

// Headers describe the job a message belongs to.
type Headers struct {
	Operation         model.Operation         `json:"operation"`
	Format            model.ConversionFormat  `json:"format,omitempty"`
	ID                string                  `json:"id,omitempty"`
	Cataloger         string                  `json:"cataloger"`
	OperationSettings model.OperationSettings `json:"operationSettings"`
	RecordMetadata    *RecordMetadata         `json:"recordMetadata,omitempty"`
}

// Message is one record sent to a queue.
type Message struct {
	Queue         string  `json:"queue"`
	CorrelationID string  `json:"correlationId"`
	Headers       Headers `json:"headers"`
	Data          []byte  `json:"data,omitempty"`
}

// Broker is the message broker the gateway publishes to.
type Broker interface {
	SendToQueue(ctx context.Context, msg Message) error
	// RemoveQueue deletes a queue and anything left in it. Removing a queue
	// that does not exist is not an error.
	RemoveQueue(ctx context.Context, name string) error
}
