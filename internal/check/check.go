// Package check cross-validates the documents of one run.
//
// Validate runs an ordered battery of independent checks. Each check is a
// pure function of its input and returns findings; the battery never shares
// an accumulator between checks, so one failing check cannot hide another.
package check

import (
	"sort"
	"time"

	"dirdoctor/internal/authority"
	"dirdoctor/internal/docstore"
	"dirdoctor/internal/model"
)

// Options tunes the checks.
type Options struct {
	// KnownParams are consensus parameters any authority may vote on.
	KnownParams []string
	// ParamPrefixes are parameter namespaces that are always accepted.
	ParamPrefixes []string
	// Freshness is the maximum consensus age. Zero means one hour.
	Freshness time.Duration
}

type finding struct {
	kind   Kind
	detail string
}

// input is the read-only view every check receives.
type input struct {
	store    *docstore.Store
	registry authority.Registry
	opts     Options
	now      time.Time

	reference *model.ConsensusDocument
	fresh     map[string]*model.ConsensusDocument
	known     map[string]bool
}

type checkFunc func(in *input) []finding

type step struct {
	name string
	// gated steps only run when the reference consensus is fresh.
	gated bool
	run   checkFunc
}

var battery = []step{
	{name: "missing consensus", run: missingConsensuses},
	{name: "staleness", run: staleConsensuses},
	{name: "vote-set divergence", run: divergentVoteSets},
	{name: "signature incompleteness", run: missingSignatures},
	{name: "consensus method", gated: true, run: unsupportedMethod},
	{name: "recommended versions", gated: true, run: differentVersions},
	{name: "unknown params", gated: true, run: unknownParams},
	{name: "conflicting params", gated: true, run: conflictingParams},
	{name: "key expiry", gated: true, run: expiringCertificates},
	{name: "missing votes", gated: true, run: missingVotes},
	{name: "bandwidth coverage", gated: true, run: missingBandwidthScanners},
	{name: "authority flag", gated: true, run: missingAuthorityFlags},
	{name: "identity drift", gated: true, run: unexpectedFingerprints},
	{name: "unexpected bandwidth scanners", gated: true, run: unexpectedBandwidthScanners},
	{name: "bandwidth scanner sync", gated: true, run: bandwidthScannersOutOfSync},
	{name: "extra authorities", gated: true, run: extraAuthorities},
	{name: "unrecommended versions", gated: true, run: unrecommendedVersions},
}

// Validate runs every check against s and returns the fired warnings.
// An empty store yields exactly one NoConsensusKnown warning.
func Validate(s *docstore.Store, registry authority.Registry, opts Options, now time.Time) Warnings {
	if s.Empty() {
		return Warnings{NoConsensusKnown: []string{}}
	}
	if opts.Freshness <= 0 {
		opts.Freshness = docstore.DefaultFreshness
	}

	in := &input{
		store:     s,
		registry:  registry,
		opts:      opts,
		now:       now,
		reference: s.Reference(),
		fresh:     s.FreshConsensuses(now, opts.Freshness),
		known:     toSet(opts.KnownParams),
	}
	referenceFresh := docstore.IsFresh(in.reference.ValidAfter, now, opts.Freshness)

	sets := make(map[Kind]map[string]bool)
	for _, st := range battery {
		if st.gated && !referenceFresh {
			continue
		}
		for _, f := range st.run(in) {
			if sets[f.kind] == nil {
				sets[f.kind] = make(map[string]bool)
			}
			sets[f.kind][f.detail] = true
		}
	}

	out := make(Warnings, len(sets))
	for k, set := range sets {
		out[k] = sortedSet(set)
	}
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// sortedVotes returns the received votes ordered by author.
func (in *input) sortedVotes() []*model.VoteDocument {
	peers := in.store.VotePeers()
	out := make([]*model.VoteDocument, 0, len(peers))
	for _, p := range peers {
		v, _ := in.store.Vote(p)
		out = append(out, v)
	}
	return out
}

// sortedFresh returns the peers with a fresh consensus, sorted.
func (in *input) sortedFresh() []string {
	out := make([]string, 0, len(in.fresh))
	for p := range in.fresh {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
