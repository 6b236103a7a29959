// Package prio submits single-record jobs and waits for the worker pipeline to
// finish them, so callers see a synchronous outcome.
package prio

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/metrics"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/queue"
	"github.com/dharsanguruparan/RecordGate/internal/report"
	"github.com/dharsanguruparan/RecordGate/internal/sru"
	"github.com/dharsanguruparan/RecordGate/internal/storage"
)

var databaseIDPattern = regexp.MustCompile(`^[0-9]{9}$`)

// RecordReader fetches a stored record by database id, returning nil when
// there is none.
type RecordReader interface {
	Read(ctx context.Context, id string) (*sru.Record, error)
}

// Submitter runs best-effort background work.
type Submitter interface {
	Submit(name string, run func(ctx context.Context) error) bool
}

// Result is the outcome of a successful job.
type Result struct {
	Status   model.RecordStatus
	ID       string
	Messages []string
	Record   *model.RecordResult
}

// Request describes a record submitted for create or update.
type Request struct {
	// ID is the database id of the record to update or fix.
	ID           string
	Format       model.ConversionFormat
	ContentType  string
	Cataloger    model.Cataloger
	OCatalogerIn string
	Settings     model.OperationSettings
	Data         []byte
}

// Options tune the poll loop. Zero values select the defaults.
type Options struct {
	PollWaitTime    time.Duration
	PollMaxDuration time.Duration
	Sleep           func(ctx context.Context, d time.Duration) error
	Now             func() time.Time
	Pool            Submitter
	Logger          *log.Entry
}

// Service is the priority bridge.
type Service struct {
	store   storage.Store
	broker  queue.Broker
	records RecordReader
	pool    Submitter
	logger  *log.Entry

	pollWait time.Duration
	maxWait  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewService builds a Service.
func NewService(store storage.Store, broker queue.Broker, records RecordReader, opts Options) *Service {
	s := &Service{
		store:    store,
		broker:   broker,
		records:  records,
		pool:     opts.Pool,
		logger:   opts.Logger,
		pollWait: opts.PollWaitTime,
		maxWait:  opts.PollMaxDuration,
		sleep:    opts.Sleep,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "prio")
	}
	if s.pollWait <= 0 {
		s.pollWait = 100 * time.Millisecond
	}
	if s.sleep == nil {
		s.sleep = SleepContext
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Read returns the record with the given database id serialized in format.
func (s *Service) Read(ctx context.Context, id string, format model.ConversionFormat) ([]byte, error) {
	if err := validateRequestID(id); err != nil {
		return nil, err
	}
	s.logger.WithField("id", id).Info("reading record")
	if s.records == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "Record search is not configured")
	}
	rec, err := s.records.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apierr.NotFound("Record not found")
	}
	return sru.Serialize(rec, format)
}

// Create submits a new record. The workers may answer CREATED, or UPDATED or
// SKIPPED when the record was merged into an existing one.
func (s *Service) Create(ctx context.Context, req Request) (Result, error) {
	return s.submit(ctx, model.OperationCreate, req, model.RecordCreated, model.RecordUpdated, model.RecordSkipped)
}

// Update submits a changed version of record req.ID.
func (s *Service) Update(ctx context.Context, req Request) (Result, error) {
	if err := validateRequestID(req.ID); err != nil {
		return Result{}, err
	}
	return s.submit(ctx, model.OperationUpdate, req, model.RecordUpdated, model.RecordSkipped)
}

// Fix asks the workers to apply req.Settings.FixType to record req.ID. No
// record body is sent.
func (s *Service) Fix(ctx context.Context, req Request) (Result, error) {
	if err := validateRequestID(req.ID); err != nil {
		return Result{}, err
	}
	if req.Settings.FixType == "" {
		return Result{}, apierr.BadRequest("Fix requests require fixType.")
	}
	req.Data = nil
	return s.submit(ctx, model.OperationFix, req, model.RecordFixed, model.RecordSkipped)
}

// Query lists priority jobs.
func (s *Service) Query(ctx context.Context, params url.Values) ([]report.Report, error) {
	return report.List(ctx, s.store, params, "")
}

func (s *Service) submit(ctx context.Context, op model.Operation, req Request, allowed ...model.RecordStatus) (Result, error) {
	correlationID := uuid.NewString()
	logger := s.logger.WithFields(log.Fields{"correlationId": correlationID, "operation": op})
	logger.Info("submitting priority job")

	settings := req.Settings
	settings.Prio = true
	item := &model.QueueItem{
		CorrelationID:     correlationID,
		Cataloger:         req.Cataloger.ID,
		OCatalogerIn:      req.OCatalogerIn,
		Operation:         op,
		OperationSettings: &settings,
		ContentType:       req.ContentType,
		QueueItemState:    model.StatePendingValidation,
	}
	if err := s.store.Create(ctx, item); err != nil {
		return Result{}, errors.Wrap(err, "create queue item")
	}

	msg := queue.Message{
		Queue:         queue.RequestsQueue,
		CorrelationID: correlationID,
		Headers: queue.Headers{
			Operation:         op,
			Format:            req.Format,
			ID:                req.ID,
			Cataloger:         req.Cataloger.ID,
			OperationSettings: settings,
		},
		Data: req.Data,
	}
	if err := s.broker.SendToQueue(ctx, msg); err != nil {
		if _, serr := s.store.SetError(ctx, correlationID, http.StatusInternalServerError, "Could not queue the request"); serr != nil {
			logger.WithError(serr).Warn("could not mark unqueued job failed")
		}
		return Result{}, errors.Wrap(err, "publish priority job")
	}
	metrics.RecordPublished(metrics.QueueRequests, 1)

	result, err := s.check(ctx, correlationID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, apierr.NotFound("Queue item %s disappeared", correlationID)
	}
	if err != nil && (apierr.Is(err, http.StatusRequestTimeout) || ctx.Err() != nil) {
		return Result{}, err
	}

	s.cleanup(ctx, correlationID)
	if err != nil {
		return Result{}, err
	}

	logger.WithFields(log.Fields{"recordStatus": result.Status, "id": result.ID}).Info("priority job finished")
	for _, ok := range allowed {
		if result.Status == ok {
			return result, nil
		}
	}
	return Result{}, unexpectedStatus(result)
}

// unexpectedStatus reports an outcome the requested operation does not allow,
// such as a create the validator turned into an update of a different kind.
func unexpectedStatus(r Result) error {
	status := r.Status.HTTPStatus()
	if status < http.StatusBadRequest {
		status = http.StatusConflict
	}
	if r.Record != nil {
		return apierr.New(status, *r.Record)
	}
	return apierr.New(status, model.RecordResult{RecordStatus: r.Status, DatabaseID: r.ID})
}

// cleanup hands removal of a finished job to the pool. It runs inline only
// when there is no pool or the pool is full.
func (s *Service) cleanup(ctx context.Context, correlationID string) {
	job := func(ctx context.Context) error {
		s.removeFinished(ctx, correlationID)
		return nil
	}
	if s.pool != nil && s.pool.Submit("cleanup "+correlationID, job) {
		return
	}
	s.removeFinished(ctx, correlationID)
}

// removeFinished deletes a DONE or conflicting job from the store and drops
// its reply queue. Failures are logged only.
func (s *Service) removeFinished(ctx context.Context, correlationID string) {
	logger := s.logger.WithField("correlationId", correlationID)

	item, err := s.store.QueryByID(ctx, correlationID, false)
	switch {
	case err != nil:
		logger.WithError(err).Warn("cleanup read failed")
		metrics.RecordCleanup(metrics.CleanupFailed)
	case item.QueueItemState == model.StateDone,
		item.QueueItemState == model.StateError && item.ErrorStatus == http.StatusConflict:
		if err := s.store.Remove(ctx, correlationID, ""); err != nil {
			logger.WithError(err).Warn("cleanup remove failed")
			metrics.RecordCleanup(metrics.CleanupFailed)
		} else {
			metrics.RecordCleanup(metrics.CleanupRemoved)
		}
	default:
		metrics.RecordCleanup(metrics.CleanupKept)
	}

	if err := s.broker.RemoveQueue(ctx, correlationID); err != nil {
		logger.WithError(err).Warn("could not remove reply queue")
	}
}

func validateRequestID(id string) error {
	if !databaseIDPattern.MatchString(id) {
		return apierr.BadRequest("Invalid request id %s", id)
	}
	return nil
}
