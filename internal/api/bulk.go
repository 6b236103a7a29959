package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/RecordGate/internal/bulk"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// registerBulk mounts the multi-record routes. Every route needs credentials.
func (s *Server) registerBulk(r *mux.Router) {
	guard := func(h http.HandlerFunc) http.HandlerFunc {
		if s.opts.RequireKVPForWrite {
			h = authorizeKVPOnly(h)
		}
		return s.authenticate(true, h)
	}

	r.HandleFunc("/", guard(s.createBulk)).Methods(http.MethodPost)
	r.HandleFunc("/", guard(s.queryBulk)).Methods(http.MethodGet)
	r.HandleFunc("/", guard(s.removeBulk)).Methods(http.MethodDelete)
	r.HandleFunc("/record/{id}", guard(s.addRecord)).Methods(http.MethodPost)
	r.HandleFunc("/records/{id}", guard(s.addRecords)).Methods(http.MethodPost)
	r.HandleFunc("/state/{id}", guard(s.getBulkState)).Methods(http.MethodGet)
	r.HandleFunc("/state/{id}", guard(s.updateBulkState)).Methods(http.MethodPut)
	r.HandleFunc("/content/{id}", guard(s.readBulkContent)).Methods(http.MethodGet)
	r.HandleFunc("/content/{id}", guard(s.removeBulkContent)).Methods(http.MethodDelete)
	r.HandleFunc("/{id}", guard(s.removeBulk)).Methods(http.MethodDelete)
}

// owner is the oCatalogerIn a bulk request is scoped to. KVP users see every
// job.
func owner(r *http.Request) string {
	user, _ := userFrom(r.Context())
	if user.Has(model.AuthKVP) {
		return ""
	}
	return user.ID
}

func (s *Server) createBulk(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	op, loadParams, err := bulk.ValidateRecordLoadParams(params, s.opts.AllowedLibs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	noStream, _ := query.BoolParam(params, "noStream")
	settings, err := s.resolver.Bulk(params, noStream.True())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	cataloger, err := catalogerFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	user, _ := userFrom(r.Context())

	req := bulk.CreateRequest{
		Operation:        op,
		Cataloger:        cataloger,
		OCatalogerIn:     user.ID,
		ContentType:      r.Header.Get("Content-Type"),
		RecordLoadParams: loadParams,
		Settings:         settings,
		Size:             -1,
	}
	if !noStream.True() {
		req.Body = r.Body
		req.Size = r.ContentLength
	}
	item, err := s.bulk.Create(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) addRecord(w http.ResponseWriter, r *http.Request) {
	s.add(w, r, s.bulk.AddRecord)
}

func (s *Server) addRecords(w http.ResponseWriter, r *http.Request) {
	s.add(w, r, s.bulk.AddRecords)
}

func (s *Server) add(w http.ResponseWriter, r *http.Request, add func(ctx context.Context, req bulk.AddRequest) (bulk.Added, error)) {
	id := mux.Vars(r)["id"]
	if !query.IsCorrelationID(id) {
		respondText(w, http.StatusBadRequest, "Malformed correlation id")
		return
	}
	data, err := s.readBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	added, err := add(r.Context(), bulk.AddRequest{
		CorrelationID: id,
		OCatalogerIn:  owner(r),
		ContentType:   r.Header.Get("Content-Type"),
		Data:          data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, added)
}

func (s *Server) queryBulk(w http.ResponseWriter, r *http.Request) {
	reports, err := s.bulk.DoQuery(r.Context(), r.URL.Query(), owner(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) getBulkState(w http.ResponseWriter, r *http.Request) {
	st, err := s.bulk.GetState(r.Context(), mux.Vars(r)["id"], owner(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) updateBulkState(w http.ResponseWriter, r *http.Request) {
	st, err := s.bulk.UpdateState(r.Context(), mux.Vars(r)["id"], owner(r), r.URL.Query().Get("status"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// removeBulk takes the id from the path, or from id/correlationId.
func (s *Server) removeBulk(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if v := mux.Vars(r)["id"]; v != "" {
		params.Set("id", v)
	}
	id, err := query.CorrelationIDParam(params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.bulk.Remove(r.Context(), id, owner(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"request": params,
		"result":  map[string]string{"correlationId": id, "status": "removed"},
	})
}

func (s *Server) readBulkContent(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := s.bulk.ReadContent(r.Context(), mux.Vars(r)["id"], owner(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.WithError(err).Warn("streaming bulk content")
	}
}

func (s *Server) removeBulkContent(w http.ResponseWriter, r *http.Request) {
	if err := s.bulk.RemoveContent(r.Context(), mux.Vars(r)["id"], owner(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
