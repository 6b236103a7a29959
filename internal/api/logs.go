package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// registerLogs mounts the audit log routes. They are for KVP users only.
func (s *Server) registerLogs(r *mux.Router) {
	kvp := func(h http.HandlerFunc) http.HandlerFunc {
		return s.authenticate(true, authorizeKVPOnly(h))
	}

	r.HandleFunc("/", kvp(s.queryLogs)).Methods(http.MethodGet)
	r.HandleFunc("/list", kvp(s.listLogs)).Methods(http.MethodGet)
	r.HandleFunc("/catalogers", kvp(s.listLogCatalogers)).Methods(http.MethodGet)
	r.HandleFunc("/correlationIds", kvp(s.listLogCorrelationIDs)).Methods(http.MethodGet)
	r.HandleFunc("/{id}", kvp(s.getLogs)).Methods(http.MethodGet)
	r.HandleFunc("/{id}", kvp(s.protectLogs)).Methods(http.MethodPut)
	r.HandleFunc("/{id}", kvp(s.removeLogs)).Methods(http.MethodDelete)
}

func (s *Server) queryLogs(w http.ResponseWriter, r *http.Request) {
	items, err := s.logs.DoLogsQuery(r.Context(), r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// listLogs lists job ids, or with expanded=1 the aggregate per job and type.
func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if expanded, _ := query.BoolParam(params, "expanded"); expanded.True() {
		entries, err := s.logs.GetExpandedListOfLogs(r.Context(), params)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, entries)
		return
	}
	ids, err := s.logs.GetListOfLogs(r.Context(), params.Get("logItemType"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ids)
}

func (s *Server) listLogCatalogers(w http.ResponseWriter, r *http.Request) {
	catalogers, err := s.logs.Catalogers(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, catalogers)
}

func (s *Server) listLogCorrelationIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.logs.CorrelationIDs(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ids)
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	items, err := s.logs.GetLogs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) protectLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var seq int
	if raw := r.URL.Query().Get("blobSequence"); raw != "" {
		seq, _ = strconv.Atoi(raw)
	}
	n, err := s.logs.ProtectLog(r.Context(), id, seq)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"correlationId": id, "blobSequence": seq, "modified": n})
}

func (s *Server) removeLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	force, _ := query.BoolParam(r.URL.Query(), "force")
	n, err := s.logs.RemoveLog(r.Context(), id, force.True())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"correlationId": id, "removed": n})
}
