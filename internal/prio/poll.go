package prio

import (
	"context"
	"net/http"
	"time"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/metrics"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/storage"
)

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// check polls the queue item until it reaches DONE or ERROR and translates it.
// ABORT and the poll ceiling both end the wait with 408.
func (s *Service) check(ctx context.Context, correlationID string) (Result, error) {
	logger := s.logger.WithField("correlationId", correlationID)
	start := s.now()
	defer func() { metrics.ObservePrioWait(s.now().Sub(start).Seconds()) }()

	var lastState model.QueueItemState
	for wait := false; ; wait = true {
		if wait {
			if s.maxWait > 0 && s.now().Sub(start) >= s.maxWait {
				logger.WithField("queueItemState", lastState).Warn("gave up waiting for queue item")
				metrics.RecordOutcome("TIMEOUT")
				return Result{}, apierr.RequestTimeout(storage.TimeoutMessage)
			}
			if err := s.sleep(ctx, s.pollWait); err != nil {
				return Result{}, err
			}
		}

		metrics.RecordPoll()
		item, err := s.store.QueryByID(ctx, correlationID, true)
		if err != nil {
			return Result{}, err
		}
		if item.QueueItemState != lastState {
			logger.WithField("queueItemState", item.QueueItemState).Debug("queue item state changed")
			lastState = item.QueueItemState
		}

		switch item.QueueItemState {
		case model.StateAbort:
			metrics.RecordOutcome(string(model.StateAbort))
			msg := item.ErrorMessage
			if msg == "" {
				msg = storage.TimeoutMessage
			}
			return Result{}, apierr.RequestTimeout(msg)
		case model.StateDone, model.StateError:
			metrics.RecordOutcome(string(item.QueueItemState))
			return translate(item)
		}
	}
}

// errorPayload is returned when a failed job has no per-record outcome.
type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// translate turns a DONE or ERROR queue item into a result or an error
// carrying the status the workers reported.
func translate(item *model.QueueItem) (Result, error) {
	if item.QueueItemState == model.StateError {
		for _, rec := range item.Records {
			if rec.RecordStatus.Failed() {
				status := item.ErrorStatus
				if status == 0 {
					status = rec.RecordStatus.HTTPStatus()
				}
				return Result{}, apierr.New(status, rec)
			}
		}
		p := errorPayload{Message: item.ErrorMessage, Status: item.ErrorStatus}
		if p.Message == "" {
			p.Message = "unknown error"
		}
		if p.Status == 0 {
			p.Status = http.StatusInternalServerError
		}
		return Result{}, apierr.New(p.Status, p)
	}

	if len(item.Records) > 0 {
		rec := item.Records[0]
		return Result{Status: rec.RecordStatus, ID: rec.DatabaseID, Record: &rec, Messages: messages(rec)}, nil
	}
	if len(item.HandledIDs) > 0 {
		return Result{Status: operationStatus(item.Operation), ID: item.HandledIDs[0]}, nil
	}
	if item.Settings().Noop {
		return Result{Status: operationStatus(item.Operation)}, nil
	}
	payload := ""
	if len(item.RejectedIDs) > 0 {
		payload = item.RejectedIDs[0]
	}
	return Result{}, apierr.New(http.StatusUnprocessableEntity, payload)
}

func operationStatus(op model.Operation) model.RecordStatus {
	switch op {
	case model.OperationCreate:
		return model.RecordCreated
	case model.OperationFix:
		return model.RecordFixed
	}
	return model.RecordUpdated
}

func messages(rec model.RecordResult) []string {
	if rec.Message == "" {
		return []string{}
	}
	return []string{rec.Message}
}
