// Package doctor wires one health-check run together: fetch, decode,
// validate, emit, record statistics and render the status page.
package doctor

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/creachadair/atomicfile"
	"github.com/sirupsen/logrus"

	"dirdoctor/internal/alert"
	"dirdoctor/internal/authority"
	"dirdoctor/internal/check"
	"dirdoctor/internal/config"
	"dirdoctor/internal/dashboard"
	"dirdoctor/internal/docstore"
	"dirdoctor/internal/fetch"
	"dirdoctor/internal/logging"
	"dirdoctor/internal/metrics"
	"dirdoctor/internal/model"
	"dirdoctor/internal/stunutil"
)

// Report is the result of one run.
type Report struct {
	Started  time.Time
	Finished time.Time
	Store    *docstore.Store
	Warnings check.Warnings
	Outcome  alert.Outcome
	Stats    metrics.Summary
	Vantage  stunutil.Vantage
	// Dashboard is the rendered status page.
	Dashboard []byte
}

// Doctor runs health checks against a fixed set of authorities.
type Doctor struct {
	cfg       config.Config
	registry  authority.Registry
	transport fetch.Transport
	rng       *rand.Rand
	now       func() time.Time
	collector *metrics.Collector
	log       *logrus.Entry
}

// Option customizes a Doctor.
type Option func(*Doctor)

// WithTransport replaces the HTTP transport.
func WithTransport(t fetch.Transport) Option {
	return func(d *Doctor) { d.transport = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Doctor) { d.now = now }
}

// WithRand fixes the source used to pick vote peers.
func WithRand(r *rand.Rand) Option {
	return func(d *Doctor) { d.rng = r }
}

// WithCollector shares a metrics collector, e.g. with the status server.
func WithCollector(c *metrics.Collector) Option {
	return func(d *Doctor) { d.collector = c }
}

// New creates a Doctor. cfg must have defaults applied.
func New(cfg config.Config, registry authority.Registry, log *logrus.Entry, opts ...Option) *Doctor {
	d := &Doctor{
		cfg:      cfg,
		registry: registry,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.transport == nil {
		d.transport = fetch.NewHTTPTransport(&http.Client{})
	}
	if d.collector == nil {
		d.collector = metrics.NewCollector()
	}
	if d.cfg.HardDeadline <= 0 {
		d.cfg.HardDeadline = config.DefaultHardDeadline
	}
	return d
}

// Collector returns the metrics collector updated after every run.
func (d *Doctor) Collector() *metrics.Collector {
	return d.collector
}

// RunOnce performs a full run. It fails only when ctx is cancelled, or
// when its deadline passes before any consensus was fetched. A deadline
// during the vote phase leaves the votes missing and the run continues.
func (d *Doctor) RunOnce(ctx context.Context) (*Report, error) {
	started := d.now()
	peers := d.registry.Peers()
	fetcher := fetch.New(d.transport, fetch.Options{Timeout: d.cfg.FetchTimeout, Rand: d.rng},
		logging.Component(d.log.Logger, "fetch"))
	storeLog := logging.Component(d.log.Logger, "docstore")

	consensusRecords := fetcher.Consensuses(ctx, peers)
	s := docstore.Build(consensusRecords, storeLog)
	if err := ctx.Err(); errors.Is(err, context.Canceled) || (err != nil && s.Empty()) {
		return nil, err
	}

	fingerprints := fetch.VoteFingerprints(s, d.now(), d.cfg.Freshness)
	voteRecords := fetcher.Votes(ctx, peers, consensusRecords, fingerprints)
	s.Extend(voteRecords, storeLog)
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return nil, err
	} else if err != nil {
		d.log.WithError(err).Warn("deadline reached while fetching votes, checking what arrived")
	}
	d.log.WithFields(logrus.Fields{
		"consensuses": len(s.Consensuses()),
		"votes":       len(s.Votes()),
	}).Info("documents fetched")

	now := d.now()
	warnings := check.Validate(s, d.registry, check.Options{
		KnownParams:   d.cfg.KnownParams,
		ParamPrefixes: d.cfg.ParamPrefixes,
		Freshness:     d.cfg.Freshness,
	}, now)

	emitter := alert.NewEmitter(alert.Paths{
		State:       d.cfg.StateFile,
		AllWarnings: d.cfg.AllWarningsFile(),
		NewWarnings: d.cfg.NewWarningsFile(),
	}, logging.Component(d.log.Logger, "alert"))
	outcome, err := emitter.Emit(warnings, now)
	if err != nil {
		d.log.WithError(err).Error("writing warning files failed")
	}

	report := &Report{
		Started:  started,
		Store:    s,
		Warnings: warnings,
		Outcome:  outcome,
		Stats:    d.statistics(consensusRecords, now),
		Vantage:  d.vantage(ctx),
	}

	report.Dashboard = d.renderDashboard(report, now)
	report.Finished = d.now()
	d.observe(report, append(append([]model.FetchRecord(nil), consensusRecords...), voteRecords...))
	return report, nil
}

func (d *Doctor) statistics(records []model.FetchRecord, now time.Time) metrics.Summary {
	since := now.Add(-d.cfg.StatsWindow)
	if err := metrics.AppendCSV(d.cfg.StatsFile, records); err != nil {
		d.log.WithError(err).Warn("could not append download statistics")
	}
	samples, skipped, err := metrics.ReadCSV(d.cfg.StatsFile)
	if err != nil {
		d.log.WithError(err).Warn("could not read download statistics")
		samples = metrics.SamplesFrom(records)
	}
	if skipped > 0 {
		d.log.WithField("skipped", skipped).Warn("ignored malformed download statistics rows")
	}
	return metrics.Summarize(samples, since)
}

func (d *Doctor) vantage(ctx context.Context) stunutil.Vantage {
	if len(d.cfg.STUNServers) == 0 {
		return stunutil.Vantage{Mapping: stunutil.MappingUnknown}
	}
	v, err := stunutil.Probe(ctx, d.cfg.STUNServers, config.STUNTimeout)
	if err != nil {
		d.log.WithError(err).Warn("STUN probe failed")
	}
	return v
}

func (d *Doctor) renderDashboard(r *Report, now time.Time) []byte {
	page := dashboard.NewPage(dashboard.Input{
		Store:     r.Store,
		Registry:  d.registry,
		Messages:  r.Outcome.All,
		Stats:     r.Stats,
		Vantage:   r.Vantage.String(),
		Freshness: d.cfg.Freshness,
		Now:       now,
	})
	var buf bytes.Buffer
	if err := dashboard.Render(&buf, page); err != nil {
		d.log.WithError(err).Error("rendering status page failed")
		return nil
	}
	if d.cfg.WebsiteFile != "" {
		if err := writeFile(d.cfg.WebsiteFile, buf.Bytes()); err != nil {
			d.log.WithError(err).Warn("could not write status page")
		}
	}
	return buf.Bytes()
}

func (d *Doctor) observe(r *Report, records []model.FetchRecord) {
	d.collector.ObserveFetches(records)
	gauges := make([]metrics.WarningGauge, 0, len(r.Outcome.All))
	for _, m := range r.Outcome.All {
		gauges = append(gauges, metrics.WarningGauge{
			Kind:     m.Kind.String(),
			Severity: m.Severity.String(),
			Details:  len(r.Warnings[m.Kind]),
		})
	}
	d.collector.SetWarnings(gauges)
	d.collector.ObserveRun(r.Finished, r.Finished.Sub(r.Started))

	if d.cfg.Textfile != "" {
		if err := d.collector.WriteTextfile(d.cfg.Textfile); err != nil {
			d.log.WithError(err).Warn("could not write metrics textfile")
		}
	}
}

// Watch runs immediately and then every interval until ctx is done. A run
// that exceeds the configured hard deadline is abandoned and logged.
func (d *Doctor) Watch(ctx context.Context, interval time.Duration, onReport func(*Report)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runCtx, cancel := context.WithTimeout(ctx, d.cfg.HardDeadline)
		report, err := d.RunOnce(runCtx)
		cancel()
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			d.log.WithError(err).Error("run abandoned")
		case onReport != nil:
			onReport(report)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, err := atomicfile.WriteAll(path, bytes.NewReader(data), 0o644)
	return err
}
