// Package fetch downloads consensus and vote documents from all directory
// authorities in parallel under a single deadline.
package fetch

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/mroth/weightedrand"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dirdoctor/internal/model"
)

const (
	ConsensusResource = "/tor/status-vote/current/consensus.z"
	votePrefix        = "/tor/status-vote/current/"

	// DefaultTimeout bounds one fetch phase.
	DefaultTimeout = 60 * time.Second
)

// VoteResource is the path of the vote published by the authority with the
// given v3 identity.
func VoteResource(fingerprint string) string {
	return votePrefix + fingerprint + ".z"
}

// Options configures a Fetcher.
type Options struct {
	Timeout time.Duration
	// Rand drives vote peer selection. Nil seeds from the clock.
	Rand *rand.Rand
}

// Fetcher runs fetch phases. It is not safe for concurrent use; every phase
// is driven by a single coordinating goroutine.
type Fetcher struct {
	transport Transport
	timeout   time.Duration
	rng       *rand.Rand
	log       *logrus.Entry
}

// New creates a Fetcher.
func New(t Transport, opts Options, log *logrus.Entry) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Fetcher{transport: t, timeout: opts.Timeout, rng: opts.Rand, log: log}
}

type target struct {
	peer  string
	url   string
	class model.DocumentClass
}

// Consensuses asks every peer for its current consensus.
func (f *Fetcher) Consensuses(ctx context.Context, peers []model.Peer) []model.FetchRecord {
	targets := make([]target, 0, len(peers))
	for _, p := range peers {
		targets = append(targets, target{
			peer:  p.Nickname,
			url:   "http://" + p.Addr() + ConsensusResource,
			class: model.ClassConsensus,
		})
	}
	return f.run(ctx, targets)
}

// Votes requests each referenced vote once, from a peer picked at random
// among those that answered the consensus phase. Faster responders are
// picked more often.
func (f *Fetcher) Votes(ctx context.Context, peers []model.Peer, consensusRecords []model.FetchRecord, fingerprints []string) []model.FetchRecord {
	if len(fingerprints) == 0 {
		return nil
	}
	chooser, err := f.responsiveChooser(peers, consensusRecords)
	if err != nil {
		f.log.WithError(err).Warn("no responsive authority to fetch votes from")
		return nil
	}

	targets := make([]target, 0, len(fingerprints))
	for _, fp := range fingerprints {
		p := chooser.PickSource(f.rng).(model.Peer)
		targets = append(targets, target{
			peer:  p.Nickname,
			url:   "http://" + p.Addr() + VoteResource(fp),
			class: model.ClassVote,
		})
	}
	return f.run(ctx, targets)
}

func (f *Fetcher) responsiveChooser(peers []model.Peer, consensusRecords []model.FetchRecord) (*weightedrand.Chooser, error) {
	took := make(map[string]time.Duration, len(consensusRecords))
	for _, r := range consensusRecords {
		if r.Outcome == model.Success {
			took[r.Peer] = r.Duration
		}
	}

	var choices []weightedrand.Choice
	for _, p := range peers {
		if d, ok := took[p.Nickname]; ok {
			choices = append(choices, weightedrand.NewChoice(p, responseWeight(d, f.timeout)))
		}
	}
	if len(choices) == 0 {
		return nil, errors.New("no authority answered the consensus request")
	}
	return weightedrand.NewChooser(choices...)
}

// responseWeight maps a response time onto 1..100.
func responseWeight(d, timeout time.Duration) uint {
	if d >= timeout || timeout <= 0 {
		return 1
	}
	if d < 0 {
		d = 0
	}
	return uint(1 + 99*(timeout-d)/timeout)
}

type result struct {
	index  int
	record model.FetchRecord
}

// run starts one unit per target and returns as soon as all units are done
// or the deadline passes. Units still running at the deadline are recorded
// as timeouts; their late results are dropped.
func (f *Fetcher) run(ctx context.Context, targets []target) []model.FetchRecord {
	if len(targets) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	started := time.Now()
	// Buffered so that abandoned units never block on send.
	results := make(chan result, len(targets))

	var g errgroup.Group
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			results <- result{index: i, record: f.fetchOne(ctx, t)}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	records := make([]model.FetchRecord, len(targets))
	seen := make([]bool, len(targets))
drain:
	for {
		select {
		case r := <-results:
			records[r.index] = r.record
			seen[r.index] = true
		default:
			break drain
		}
	}

	var pending int
	for i, t := range targets {
		if seen[i] {
			continue
		}
		pending++
		records[i] = model.FetchRecord{
			Peer:     t.peer,
			URL:      t.url,
			Class:    t.class,
			Start:    started,
			Duration: time.Since(started),
			Outcome:  model.Timeout,
			Err:      context.DeadlineExceeded,
		}
	}
	if pending > 0 {
		f.log.WithFields(logrus.Fields{
			"pending": pending,
			"timeout": f.timeout,
		}).Warn("fetch deadline reached, abandoning outstanding requests")
	}

	for _, r := range records {
		entry := f.log.WithFields(logrus.Fields{
			"peer":     r.Peer,
			"class":    r.Class,
			"outcome":  r.Outcome,
			"duration": r.Duration.Round(time.Millisecond),
		})
		if r.Err != nil {
			entry = entry.WithError(r.Err)
		}
		entry.Debug("fetch finished")
	}
	return records
}

func (f *Fetcher) fetchOne(ctx context.Context, t target) model.FetchRecord {
	start := time.Now()
	body, err := f.transport.Get(ctx, t.url)
	rec := model.FetchRecord{
		Peer:     t.peer,
		URL:      t.url,
		Class:    t.class,
		Start:    start,
		Duration: time.Since(start),
		Err:      err,
	}

	switch {
	case err == nil:
		rec.Body = body
		rec.Outcome = model.Success
	case ctx.Err() != nil:
		rec.Outcome = model.Timeout
	case errors.Is(err, ErrMalformed):
		rec.Outcome = model.Malformed
	default:
		rec.Outcome = model.TransportError
	}
	return rec
}
