package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dirdoctor/internal/alert"
	"dirdoctor/internal/check"
	"dirdoctor/internal/doctor"
	"dirdoctor/internal/logging"
	"dirdoctor/internal/metrics"
	"dirdoctor/internal/store"
)

func sampleReport() *doctor.Report {
	w := check.Warnings{
		check.ConsensusDownloadTimeout: {"charlie"},
		check.ExtraAuthorities:         {"mallory"},
	}
	msgs := alert.Render(w)
	var extra string
	for _, m := range msgs {
		if m.Kind == check.ExtraAuthorities {
			extra = m.Text
		}
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &doctor.Report{
		Finished:  now,
		Warnings:  w,
		Outcome:   alert.Evaluate(msgs, store.State{extra: now.Add(-time.Hour)}, now),
		Dashboard: []byte("<html>ok</html>"),
	}
}

func TestHandlers_BeforeFirstRun(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", nil, logging.NewTestLogger(t))
	for _, path := range []string{"/", "/all-warnings", "/warnings"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status=%d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ready":false`) {
		t.Fatalf("healthz status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandlers_ServeLatestReport(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", metrics.NewCollector(), logging.NewTestLogger(t))
	s.Update(sampleReport())
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "<html>ok</html>" {
		t.Fatalf("dashboard status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/new-warnings", nil))
	if got := rec.Body.String(); !strings.HasPrefix(got, "WARNING: ") || strings.Count(got, "\n") != 1 {
		t.Fatalf("new-warnings=%q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/all-warnings", nil))
	if got := strings.Count(rec.Body.String(), "\n"); got != 2 {
		t.Fatalf("all-warnings lines=%d", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/warnings", nil))
	var resp WarningsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Warnings) != 2 {
		t.Fatalf("warnings=%d", len(resp.Warnings))
	}
	first := resp.Warnings[0]
	if first.Kind != "ConsensusDownloadTimeout" || !first.New || len(first.Details) != 1 || first.Details[0] != "charlie" {
		t.Fatalf("first=%+v", first)
	}
	if resp.Warnings[1].New {
		t.Fatalf("suppressed warning reported as new")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dirdoctor_runs_total") {
		t.Fatalf("metrics status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/warnings", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post status=%d", rec.Code)
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := New(addr, nil, logging.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			res.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
