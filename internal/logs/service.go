// Package logs serves the audit log the workers write for every job.
package logs

import (
	"context"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
	"github.com/dharsanguruparan/RecordGate/internal/repository"
)

// Service is the log query service.
type Service struct {
	store  repository.LogStore
	logger *log.Entry
	now    func() time.Time
}

// NewService builds a Service. A nil now uses the wall clock.
func NewService(store repository.LogStore, logger *log.Entry, now func() time.Time) *Service {
	if logger == nil {
		logger = log.WithField("component", "logs")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, logger: logger, now: now}
}

// GetLogs returns every entry of a job.
func (s *Service) GetLogs(ctx context.Context, correlationID string) ([]model.LogItem, error) {
	if err := validateID(correlationID); err != nil {
		return nil, err
	}
	items, err := s.store.Query(ctx, query.LogFilter{CorrelationID: correlationID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apierr.NotFound("No logs for %s", correlationID)
	}
	return items, nil
}

// DoLogsQuery lists entries matching the query parameters.
func (s *Service) DoLogsQuery(ctx context.Context, params url.Values) ([]model.LogItem, error) {
	f, err := query.BuildLogFilter(params)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.LogItem{}
	}
	return items, nil
}

// GetListOfLogs lists the jobs that have entries of logItemType, or of any
// type when it is empty.
func (s *Service) GetListOfLogs(ctx context.Context, logItemType string) ([]string, error) {
	var t model.LogItemType
	if logItemType != "" {
		var ok bool
		if t, ok = model.ParseLogItemType(logItemType); !ok {
			return nil, apierr.BadRequest("Invalid logItemType")
		}
	}
	return nonNil(s.store.ListCorrelationIDs(ctx, t))
}

// GetExpandedListOfLogs aggregates entries per job, type and cataloger.
func (s *Service) GetExpandedListOfLogs(ctx context.Context, params url.Values) ([]model.LogListEntry, error) {
	f, err := query.BuildLogListFilter(params, s.now())
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListExpanded(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.LogListEntry{}
	}
	return entries, nil
}

// Catalogers lists the catalogers that appear in the log.
func (s *Service) Catalogers(ctx context.Context) ([]string, error) {
	return nonNil(s.store.ListCatalogers(ctx))
}

// CorrelationIDs lists every job with log entries.
func (s *Service) CorrelationIDs(ctx context.Context) ([]string, error) {
	return nonNil(s.store.ListCorrelationIDs(ctx, ""))
}

// ProtectLog toggles protection of a job's entries, or of one entry when
// blobSequence is positive. It returns the number of entries changed.
func (s *Service) ProtectLog(ctx context.Context, correlationID string, blobSequence int) (int64, error) {
	if err := validateID(correlationID); err != nil {
		return 0, err
	}
	n, err := s.store.Protect(ctx, correlationID, blobSequence)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, apierr.NotFound("No logs for %s", correlationID)
	}
	s.logger.WithFields(log.Fields{"correlationId": correlationID, "blobSequence": blobSequence, "count": n}).Info("log protection toggled")
	return n, nil
}

// RemoveLog deletes a job's entries. While any of them is protected nothing
// is deleted unless force is set.
func (s *Service) RemoveLog(ctx context.Context, correlationID string, force bool) (int64, error) {
	if err := validateID(correlationID); err != nil {
		return 0, err
	}
	if !force {
		items, err := s.store.Query(ctx, query.LogFilter{CorrelationID: correlationID})
		if err != nil {
			return 0, err
		}
		for _, item := range items {
			if item.Protected {
				return 0, apierr.Conflict("Logs of %s are protected", correlationID)
			}
		}
	}
	n, err := s.store.Remove(ctx, correlationID, force)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, apierr.NotFound("No logs for %s", correlationID)
	}
	s.logger.WithFields(log.Fields{"correlationId": correlationID, "force": force, "count": n}).Info("logs removed")
	return n, nil
}

func validateID(correlationID string) error {
	if !query.IsCorrelationID(correlationID) {
		return apierr.BadRequest("Invalid correlation id")
	}
	return nil
}

func nonNil(values []string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}
