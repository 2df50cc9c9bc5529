// Package api serves the read-only HTTP view of an identity registry:
// the summary counters, per-device summary entries and smoothed tracks.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/scavenger/internal/httputil"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/scavenger/trajectory"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Store is what the API reads from. Every registry adapter satisfies it.
type Store interface {
	l6identity.Registry
	l6identity.Reporter
}

// Server exposes one run of a registry over HTTP.
type Server struct {
	store  Store
	centre trajectory.RegionCentre
	runID  string
}

// NewServer returns a Server. A nil centre disables the track endpoint.
func NewServer(store Store, centre trajectory.RegionCentre, runID string) *Server {
	return &Server{store: store, centre: centre, runID: runID}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Attach registers the API routes on mux.
func (s *Server) Attach(mux *http.ServeMux) {
	mux.HandleFunc("/api/counts", s.getOnly(s.showCounts))
	mux.HandleFunc("/api/summary", s.getOnly(s.showSummary))
	mux.HandleFunc("/api/devices/", s.getOnly(s.showDevice))
}

// ServeMux returns a mux with only the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Attach(mux)
	return mux
}

func (s *Server) getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		h(w, r)
	}
}

type countsResponse struct {
	RunID string `json:"run_id"`
	l6identity.Counts
}

func (s *Server) showCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := l6identity.ReadCounts(r.Context(), s.store)
	if err != nil {
		httputil.InternalServerError(w, "failed to read counts: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, countsResponse{RunID: s.runID, Counts: counts})
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Summary(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "failed to read summary: "+err.Error())
		return
	}
	if entries == nil {
		entries = []l6identity.SummaryEntry{}
	}
	httputil.WriteJSONOK(w, entries)
}

// showDevice serves /api/devices/{claimed_id} and
// /api/devices/{claimed_id}/track.
func (s *Server) showDevice(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		httputil.BadRequest(w, "missing claimed id")
		return
	}

	switch sub {
	case "":
		s.showEntry(r.Context(), w, id)
	case "track":
		s.showTrack(r.Context(), w, id)
	default:
		httputil.NotFound(w, "unknown device resource "+sub)
	}
}

func (s *Server) showEntry(ctx context.Context, w http.ResponseWriter, id string) {
	entries, err := s.store.Summary(ctx)
	if err != nil {
		httputil.InternalServerError(w, "failed to read summary: "+err.Error())
		return
	}
	for _, e := range entries {
		if e.ClaimedID == id {
			httputil.WriteJSONOK(w, e)
			return
		}
	}
	httputil.NotFound(w, "unknown claimed id "+id)
}

func (s *Server) showTrack(ctx context.Context, w http.ResponseWriter, id string) {
	if s.centre == nil {
		httputil.NotFound(w, "tracks need a sniffer layout")
		return
	}
	track, err := trajectory.Build(ctx, s.store, s.centre, id)
	switch {
	case errors.Is(err, trajectory.ErrNoSightings):
		httputil.NotFound(w, err.Error())
	case err != nil:
		httputil.InternalServerError(w, "failed to build track: "+err.Error())
	default:
		httputil.WriteJSONOK(w, track)
	}
}
