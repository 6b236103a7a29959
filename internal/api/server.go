// Package api exposes the gateway over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/auth"
	"github.com/dharsanguruparan/RecordGate/internal/bulk"
	"github.com/dharsanguruparan/RecordGate/internal/logs"
	"github.com/dharsanguruparan/RecordGate/internal/metrics"
	"github.com/dharsanguruparan/RecordGate/internal/prio"
	"github.com/dharsanguruparan/RecordGate/internal/query"
	"github.com/dharsanguruparan/RecordGate/internal/settings"
)

// Options are the request policies of the HTTP surface.
type Options struct {
	DefaultAccept      string
	AllowedLibs        []string
	RequireAuthForRead bool
	RequireKVPForWrite bool
	MaxBodyBytes       int64
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy         bool
}

// Deps are the services the routes call.
type Deps struct {
	Prio     *prio.Service
	Bulk     *bulk.Service
	Logs     *logs.Service
	Auth     *auth.Authenticator
	Resolver settings.Resolver
	Options  Options
	Logger   *log.Entry
}

// Server holds the handlers of every route.
type Server struct {
	prio     *prio.Service
	bulk     *bulk.Service
	logs     *logs.Service
	auth     *auth.Authenticator
	resolver settings.Resolver
	opts     Options
	logger   *log.Entry
}

// New builds the HTTP handler.
func New(d Deps) http.Handler {
	s := &Server{
		prio:     d.Prio,
		bulk:     d.Bulk,
		logs:     d.Logs,
		auth:     d.Auth,
		resolver: d.Resolver,
		opts:     d.Options,
		logger:   d.Logger,
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "api")
	}
	if s.opts.DefaultAccept == "" {
		s.opts.DefaultAccept = "application/json"
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(checkParams)
	s.registerBulk(api.PathPrefix("/bulk").Subrouter())
	s.registerLogs(api.PathPrefix("/logs").Subrouter())
	s.registerPrio(api)

	return corsMiddleware(s.loggingMiddleware(r))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkParams rejects requests whose known query parameters are malformed.
func checkParams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if res := query.CheckParams(r.URL.Query()); !res.OK() {
			respondJSON(w, http.StatusBadRequest, res)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("encode response")
	}
}

func respondText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

// respondError renders service errors. Payloads of apierr errors go out as
// they are; anything else is logged and hidden behind a 500.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		respondText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	switch p := apiErr.Payload.(type) {
	case nil:
		respondText(w, apiErr.Status, http.StatusText(apiErr.Status))
	case string:
		respondText(w, apiErr.Status, p)
	default:
		respondJSON(w, apiErr.Status, p)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Accept,Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Record-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Method, strconv.Itoa(rec.status))
		s.logger.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"remote":   s.clientAddr(r),
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}

func (s *Server) clientAddr(r *http.Request) string {
	if s.opts.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	return r.RemoteAddr
}
