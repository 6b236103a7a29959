package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/prio"
)

// registerPrio mounts the single-record routes at the root.
func (s *Server) registerPrio(r *mux.Router) {
	readAuth := s.opts.RequireAuthForRead || s.opts.RequireKVPForWrite
	write := func(h http.HandlerFunc) http.HandlerFunc {
		if s.opts.RequireKVPForWrite {
			h = authorizeKVPOnly(h)
		}
		return s.authenticate(true, h)
	}

	r.HandleFunc("/prio/", s.authenticate(true, authorizeKVPOnly(s.listPrio))).Methods(http.MethodGet)
	r.HandleFunc("/fix/{id}", write(s.fixRecord)).Methods(http.MethodPost)
	r.HandleFunc("/", write(s.createRecord)).Methods(http.MethodPost)
	r.HandleFunc("/{id}", s.authenticate(readAuth, s.readRecord)).Methods(http.MethodGet)
	r.HandleFunc("/{id}", write(s.updateRecord)).Methods(http.MethodPost)
}

func (s *Server) readRecord(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if accept == "" || accept == "*/*" {
		accept = s.opts.DefaultAccept
	}
	ct, ok := model.LookupContentType(accept)
	if !ok || !ct.AllowPrio {
		respondText(w, http.StatusUnsupportedMediaType, "Invalid Accept header")
		return
	}

	body, err := s.prio.Read(r.Context(), mux.Vars(r)["id"], ct.Format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ct.MediaType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	req, ok := s.prioRequest(w, r, model.OperationCreate)
	if !ok {
		return
	}
	res, err := s.prio.Create(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch {
	case res.Status == model.RecordCreated && !req.Settings.Noop:
		w.Header().Set("Record-ID", res.ID)
		respondJSON(w, http.StatusCreated, messages(res))
	case res.Status == model.RecordUpdated, res.Status == model.RecordSkipped:
		w.Header().Set("Record-ID", res.ID)
		respondJSON(w, http.StatusOK, messages(res))
	default:
		respondJSON(w, http.StatusOK, messages(res))
	}
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	req, ok := s.prioRequest(w, r, model.OperationUpdate)
	if !ok {
		return
	}
	req.ID = mux.Vars(r)["id"]
	res, err := s.prio.Update(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Record-ID", res.ID)
	respondJSON(w, http.StatusOK, messages(res))
}

func (s *Server) fixRecord(w http.ResponseWriter, r *http.Request) {
	settings, err := s.resolver.Fix(r.URL.Query())
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

	res, err := s.prio.Fix(r.Context(), prio.Request{
		ID:           mux.Vars(r)["id"],
		Cataloger:    cataloger,
		OCatalogerIn: user.ID,
		Settings:     settings,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Record-ID", res.ID)
	respondJSON(w, http.StatusOK, messages(res))
}

func (s *Server) listPrio(w http.ResponseWriter, r *http.Request) {
	reports, err := s.prio.Query(r.Context(), r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// prioRequest collects everything a create or update needs from r. It writes
// the error response itself and reports false on failure.
func (s *Server) prioRequest(w http.ResponseWriter, r *http.Request, op model.Operation) (prio.Request, bool) {
	ct, ok := model.LookupContentType(r.Header.Get("Content-Type"))
	if !ok || !ct.AllowPrio {
		respondText(w, http.StatusUnsupportedMediaType, "Invalid content-type")
		return prio.Request{}, false
	}
	settings, err := s.resolver.Prio(op, r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return prio.Request{}, false
	}
	cataloger, err := catalogerFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return prio.Request{}, false
	}
	data, err := s.readBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return prio.Request{}, false
	}
	user, _ := userFrom(r.Context())
	return prio.Request{
		Format:       ct.Format,
		ContentType:  ct.MediaType,
		Cataloger:    cataloger,
		OCatalogerIn: user.ID,
		Settings:     settings,
		Data:         data,
	}, true
}

// readBody reads the whole request body, bounded by MaxBodyBytes.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := r.Body
	if s.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.New(http.StatusRequestEntityTooLarge, "Request body too large")
		}
		return nil, apierr.BadRequest("Could not read request body")
	}
	return data, nil
}

func messages(res prio.Result) []string {
	if res.Messages == nil {
		return []string{}
	}
	return res.Messages
}
