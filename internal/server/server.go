// Package server publishes the latest run over HTTP in watch mode.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dirdoctor/internal/alert"
	"dirdoctor/internal/doctor"
	"dirdoctor/internal/metrics"
)

// WarningView is one warning in the JSON listing.
type WarningView struct {
	Kind     string   `json:"kind"`
	Severity string   `json:"severity"`
	Text     string   `json:"text"`
	Details  []string `json:"details"`
	New      bool     `json:"new"`
}

// WarningsResponse is returned by /warnings.
type WarningsResponse struct {
	Finished time.Time     `json:"finished"`
	Warnings []WarningView `json:"warnings"`
}

// Server serves the latest report.
type Server struct {
	addr      string
	collector *metrics.Collector
	log       *logrus.Entry

	mu     sync.RWMutex
	latest *doctor.Report
}

// New constructs a status server. collector may be nil.
func New(addr string, collector *metrics.Collector, log *logrus.Entry) *Server {
	return &Server{addr: addr, collector: collector, log: log}
}

// Update replaces the report being served.
func (s *Server) Update(r *doctor.Report) {
	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()
}

func (s *Server) report() *doctor.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/all-warnings", s.handleLines(func(o alert.Outcome) []alert.Message { return o.All }))
	mux.HandleFunc("/new-warnings", s.handleLines(func(o alert.Outcome) []alert.Message { return o.New }))
	mux.HandleFunc("/warnings", s.handleWarnings)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.collector != nil {
		mux.Handle("/metrics", s.collector.Handler())
	}
	return mux
}

// ListenAndServe runs until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("status server listening")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rep := s.report()
	if rep == nil || rep.Dashboard == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no completed run yet")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(rep.Dashboard)
}

func (s *Server) handleLines(pick func(alert.Outcome) []alert.Message) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rep := s.report()
		if rep == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "no completed run yet")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		var b strings.Builder
		for _, line := range alert.Lines(pick(rep.Outcome)) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		_, _ = w.Write([]byte(b.String()))
	}
}

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rep := s.report()
	if rep == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no completed run yet")
		return
	}

	isNew := make(map[string]bool, len(rep.Outcome.New))
	for _, m := range rep.Outcome.New {
		isNew[m.Text] = true
	}
	resp := WarningsResponse{Finished: rep.Finished, Warnings: []WarningView{}}
	for _, m := range rep.Outcome.All {
		resp.Warnings = append(resp.Warnings, WarningView{
			Kind:     m.Kind.String(),
			Severity: m.Severity.String(),
			Text:     m.Text,
			Details:  rep.Warnings[m.Kind],
			New:      isNew[m.Text],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.report()
	status := map[string]any{"ready": rep != nil}
	if rep != nil {
		status["finished"] = rep.Finished
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
