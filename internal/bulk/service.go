// Package bulk accepts multi-record jobs. Content is either streamed at
// creation or added afterwards one record or one chunk at a time.
package bulk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/metrics"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/queue"
	"github.com/dharsanguruparan/RecordGate/internal/report"
	"github.com/dharsanguruparan/RecordGate/internal/storage"
)

// ContentStore persists the streamed body of a bulk job.
type ContentStore interface {
	Put(ctx context.Context, correlationID, contentType string, r io.Reader, size int64) error
	Get(ctx context.Context, correlationID string) (io.ReadCloser, string, error)
	Remove(ctx context.Context, correlationID string) error
}

// CreateRequest describes a new bulk job. A nil Body starts a job that waits
// for records.
type CreateRequest struct {
	Operation        model.Operation
	Cataloger        model.Cataloger
	OCatalogerIn     string
	ContentType      string
	RecordLoadParams *model.RecordLoadParams
	Settings         model.OperationSettings
	Body             io.Reader
	// Size is the body length, or -1 when unknown.
	Size int64
}

// AddRequest carries records for a waiting job. A non-empty OCatalogerIn
// restricts it to that user's jobs.
type AddRequest struct {
	CorrelationID string
	OCatalogerIn  string
	ContentType   string
	Data          []byte
}

// Added reports the sequences assigned to ingested records.
type Added struct {
	CorrelationID string `json:"correlationId"`
	BlobSequences []int  `json:"blobSequences"`
	BlobSize      int    `json:"blobSize"`
}

// State is the compact state view of a job.
type State struct {
	CorrelationID    string               `json:"correlationId"`
	QueueItemState   model.QueueItemState `json:"queueItemState"`
	ModificationTime time.Time            `json:"modificationTime"`
}

// Service is the bulk ingestion service.
type Service struct {
	store     storage.Store
	broker    queue.Broker
	content   ContentStore
	chunkSize int
	logger    *log.Entry
}

// NewService builds a Service. chunkSize bounds AddRecords.
func NewService(store storage.Store, broker queue.Broker, content ContentStore, chunkSize int, logger *log.Entry) *Service {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	if logger == nil {
		logger = log.WithField("component", "bulk")
	}
	return &Service{store: store, broker: broker, content: content, chunkSize: chunkSize, logger: logger}
}

// Create persists a new job. Streamed content moves it to PENDING_QUEUING;
// without a stream it stays WAITING_FOR_RECORDS.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.QueueItem, error) {
	ct, ok := model.LookupContentType(req.ContentType)
	if !ok || !ct.AllowBulk {
		return nil, apierr.UnsupportedMediaType("Invalid content-type")
	}
	if req.Operation != model.OperationCreate && req.Operation != model.OperationUpdate {
		return nil, apierr.BadRequest("Invalid operation")
	}

	settings := req.Settings
	settings.Prio = false
	item := &model.QueueItem{
		CorrelationID:     uuid.NewString(),
		Cataloger:         req.Cataloger.ID,
		OCatalogerIn:      req.OCatalogerIn,
		Operation:         req.Operation,
		OperationSettings: &settings,
		RecordLoadParams:  req.RecordLoadParams,
		ContentType:       ct.MediaType,
		QueueItemState:    model.StateWaitingForRecords,
	}
	if req.Body != nil {
		item.QueueItemState = model.StateUploading
	}
	logger := s.logger.WithFields(log.Fields{"correlationId": item.CorrelationID, "operation": item.Operation})

	if err := s.store.Create(ctx, item); err != nil {
		return nil, errors.Wrap(err, "create queue item")
	}
	if req.Body == nil {
		logger.Info("bulk job waiting for records")
		return item, nil
	}

	if err := s.content.Put(ctx, item.CorrelationID, ct.MediaType, req.Body, req.Size); err != nil {
		if _, serr := s.store.SetError(ctx, item.CorrelationID, http.StatusInternalServerError, "Content upload failed"); serr != nil {
			logger.WithError(serr).Warn("could not mark failed upload")
		}
		return nil, err
	}
	logger.Info("bulk content uploaded")
	return s.store.SetState(ctx, item.CorrelationID, model.StatePendingQueuing)
}

// AddRecord ingests a single record into a waiting job.
func (s *Service) AddRecord(ctx context.Context, req AddRequest) (Added, error) {
	ct, ok := model.LookupContentType(req.ContentType)
	if !ok || !ct.AllowBulk {
		return Added{}, apierr.UnsupportedMediaType("Invalid content-type")
	}
	if len(req.Data) == 0 {
		return Added{}, apierr.BadRequest("No record data")
	}
	if _, err := s.owned(ctx, req.CorrelationID, req.OCatalogerIn); err != nil {
		return Added{}, err
	}

	prev, err := s.store.AddBlobSize(ctx, req.CorrelationID, 1)
	if err != nil {
		return Added{}, err
	}
	if prev == nil {
		return Added{}, s.notWaiting(ctx, req.CorrelationID)
	}
	return s.publish(ctx, prev, ct.Format, [][]byte{req.Data})
}

// AddRecords ingests a JSON array of records into a waiting job. The array
// may hold at most the configured chunk size.
func (s *Service) AddRecords(ctx context.Context, req AddRequest) (Added, error) {
	ct, ok := model.LookupContentType(req.ContentType)
	if !ok {
		return Added{}, apierr.UnsupportedMediaType("Invalid content-type")
	}
	if !ct.AllowAddRecords {
		return Added{}, apierr.BadRequest("Content-type %s is not supported for adding records", ct.MediaType)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(req.Data, &raw); err != nil {
		return Added{}, apierr.BadRequest("Invalid records: expected a JSON array")
	}
	if len(raw) == 0 {
		return Added{}, apierr.BadRequest("No record data")
	}
	if len(raw) > s.chunkSize {
		return Added{}, apierr.BadRequest("Too many records: %d, maximum is %d", len(raw), s.chunkSize)
	}

	item, err := s.owned(ctx, req.CorrelationID, req.OCatalogerIn)
	if err != nil {
		return Added{}, err
	}
	if item.QueueItemState != model.StateWaitingForRecords {
		return Added{}, wrongState(item)
	}

	prev, err := s.store.AddBlobSize(ctx, req.CorrelationID, len(raw))
	if err != nil {
		return Added{}, err
	}
	if prev == nil {
		return Added{}, s.notWaiting(ctx, req.CorrelationID)
	}

	records := make([][]byte, len(raw))
	for i, r := range raw {
		records[i] = r
	}
	return s.publish(ctx, prev, ct.Format, records)
}

// publish sends records with the sequences reserved after prev. The counter
// is already committed, so a failure leaves a gap, never a duplicate.
func (s *Service) publish(ctx context.Context, prev *model.QueueItem, format model.ConversionFormat, records [][]byte) (Added, error) {
	out := Added{CorrelationID: prev.CorrelationID, BlobSize: prev.BlobSize + len(records)}
	name := queue.ValidationQueue(prev.CorrelationID)
	for i, data := range records {
		seq := prev.BlobSize + i + 1
		msg := queue.Message{
			Queue:         name,
			CorrelationID: prev.CorrelationID,
			Headers: queue.Headers{
				Operation:         prev.Operation,
				Format:            format,
				Cataloger:         prev.Cataloger,
				OperationSettings: prev.Settings(),
				RecordMetadata:    &queue.RecordMetadata{BlobSequence: seq},
			},
			Data: data,
		}
		if err := s.broker.SendToQueue(ctx, msg); err != nil {
			metrics.RecordPublished(metrics.QueueValidation, len(out.BlobSequences))
			s.logger.WithError(err).WithFields(log.Fields{
				"correlationId": prev.CorrelationID,
				"blobSequence":  seq,
			}).Error("publishing record failed")
			return out, errors.Wrapf(err, "publish record %d", seq)
		}
		out.BlobSequences = append(out.BlobSequences, seq)
	}
	metrics.RecordPublished(metrics.QueueValidation, len(records))
	return out, nil
}

// notWaiting explains why a guarded increment matched nothing.
func (s *Service) notWaiting(ctx context.Context, correlationID string) error {
	item, err := s.store.QueryByID(ctx, correlationID, false)
	if err != nil {
		return notFound(err, correlationID)
	}
	return wrongState(item)
}

func wrongState(item *model.QueueItem) error {
	return apierr.BadRequest("Invalid queueItemState %s for adding records, expected %s",
		item.QueueItemState, model.StateWaitingForRecords)
}

func notFound(err error, correlationID string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apierr.NotFound("No waiting queue item %s", correlationID)
	}
	return err
}

// GetState returns the state of a job owned by oCatalogerIn, or of any job
// when oCatalogerIn is empty.
func (s *Service) GetState(ctx context.Context, correlationID, oCatalogerIn string) (State, error) {
	item, err := s.owned(ctx, correlationID, oCatalogerIn)
	if err != nil {
		return State{}, err
	}
	if item.QueueItemState == "" {
		return State{}, apierr.NotFound("Queue item %s has no state", correlationID)
	}
	return stateOf(item), nil
}

// UpdateState moves a job to state. Terminal jobs cannot be reopened.
func (s *Service) UpdateState(ctx context.Context, correlationID, oCatalogerIn, state string) (State, error) {
	next, ok := model.ParseState(state)
	if !ok {
		return State{}, apierr.BadRequest("Invalid queueItemState %s", state)
	}
	item, err := s.owned(ctx, correlationID, oCatalogerIn)
	if err != nil {
		return State{}, err
	}
	if item.QueueItemState.Terminal() && !next.Terminal() {
		return State{}, apierr.BadRequest("Queue item %s is already %s", correlationID, item.QueueItemState)
	}
	updated, err := s.store.SetState(ctx, correlationID, next)
	if err != nil {
		return State{}, notFound(err, correlationID)
	}
	s.logger.WithFields(log.Fields{"correlationId": correlationID, "queueItemState": next}).Info("bulk job state set")
	return stateOf(updated), nil
}

// DoQuery lists jobs, restricted to oCatalogerIn when it is non-empty.
func (s *Service) DoQuery(ctx context.Context, params url.Values, oCatalogerIn string) ([]report.Report, error) {
	return report.List(ctx, s.store, params, oCatalogerIn)
}

// Remove deletes a job together with its content and validation queue.
func (s *Service) Remove(ctx context.Context, correlationID, oCatalogerIn string) error {
	if correlationID == "" {
		return apierr.BadRequest("Missing correlation id")
	}
	if err := s.store.Remove(ctx, correlationID, oCatalogerIn); err != nil {
		return notFound(err, correlationID)
	}
	logger := s.logger.WithField("correlationId", correlationID)
	if err := s.content.Remove(ctx, correlationID); err != nil && !errors.Is(err, storage.ErrNoContent) {
		logger.WithError(err).Warn("could not remove content")
	}
	if err := s.broker.RemoveQueue(ctx, queue.ValidationQueue(correlationID)); err != nil {
		logger.WithError(err).Warn("could not remove validation queue")
	}
	logger.Info("bulk job removed")
	return nil
}

// RemoveContent deletes only the persisted content of a job.
func (s *Service) RemoveContent(ctx context.Context, correlationID, oCatalogerIn string) error {
	if correlationID == "" {
		return apierr.BadRequest("Missing correlation id")
	}
	if _, err := s.owned(ctx, correlationID, oCatalogerIn); err != nil {
		return err
	}
	if err := s.content.Remove(ctx, correlationID); err != nil {
		if errors.Is(err, storage.ErrNoContent) {
			return apierr.NotFound("No content for %s", correlationID)
		}
		return err
	}
	return nil
}

// ReadContent opens the persisted content of a job. The caller closes it.
func (s *Service) ReadContent(ctx context.Context, correlationID, oCatalogerIn string) (io.ReadCloser, string, error) {
	if correlationID == "" {
		return nil, "", apierr.BadRequest("Missing correlation id")
	}
	if _, err := s.owned(ctx, correlationID, oCatalogerIn); err != nil {
		return nil, "", err
	}
	rc, contentType, err := s.content.Get(ctx, correlationID)
	if errors.Is(err, storage.ErrNoContent) {
		return nil, "", apierr.NotFound("No content for %s", correlationID)
	}
	return rc, contentType, err
}

func (s *Service) owned(ctx context.Context, correlationID, oCatalogerIn string) (*model.QueueItem, error) {
	item, err := s.store.QueryByID(ctx, correlationID, false)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apierr.NotFound("Queue item %s not found", correlationID)
		}
		return nil, err
	}
	if oCatalogerIn != "" && item.OCatalogerIn != oCatalogerIn {
		return nil, apierr.NotFound("Queue item %s not found", correlationID)
	}
	return item, nil
}

func stateOf(item *model.QueueItem) State {
	return State{CorrelationID: item.CorrelationID, QueueItemState: item.QueueItemState, ModificationTime: item.ModificationTime}
}
