package check

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dirdoctor/internal/model"
)

const (
	twoWeeks    = 14 * 24 * time.Hour
	twoMonths   = 60 * 24 * time.Hour
	threeMonths = 90 * 24 * time.Hour

	expiryLayout = "2006-01-02 15:04:05"
)

func unsupportedMethod(in *input) []finding {
	method := in.reference.ConsensusMethod
	var out []finding
	for _, v := range in.sortedVotes() {
		if !v.SupportedMethods[method] {
			out = append(out, finding{ConsensusMethodNotSupported, v.PublishingPeer})
		}
	}
	return out
}

func differentVersions(in *input) []finding {
	var out []finding
	for _, v := range in.sortedVotes() {
		if d, ok := versionDiff(v.PublishingPeer, v.RecommendedClientVersions, in.reference.RecommendedClientVersions); ok {
			out = append(out, finding{DifferentRecommendedClientVersions, d})
		}
		if d, ok := versionDiff(v.PublishingPeer, v.RecommendedServerVersions, in.reference.RecommendedServerVersions); ok {
			out = append(out, finding{DifferentRecommendedServerVersions, d})
		}
	}
	return out
}

// versionDiff renders "nick +added -removed" where added versions are
// recommended by the vote only and removed ones by the consensus only.
// Votes that recommend nothing are not compared.
func versionDiff(nick string, vote, consensus []string) (string, bool) {
	if len(vote) == 0 {
		return "", false
	}
	inVote, inConsensus := toSet(vote), toSet(consensus)

	var tokens []string
	for _, v := range sortedSet(inVote) {
		if !inConsensus[v] {
			tokens = append(tokens, "+"+v)
		}
	}
	for _, v := range sortedSet(inConsensus) {
		if !inVote[v] {
			tokens = append(tokens, "-"+v)
		}
	}
	if len(tokens) == 0 {
		return "", false
	}
	return nick + " " + strings.Join(tokens, " "), true
}

func unknownParams(in *input) []finding {
	var out []finding
	for _, v := range in.sortedVotes() {
		var bad []string
		for _, k := range sortedParamKeys(v.Params) {
			if !in.known[k] && !hasAnyPrefix(k, in.opts.ParamPrefixes) {
				bad = append(bad, fmt.Sprintf("%s=%d", k, v.Params[k]))
			}
		}
		if len(bad) > 0 {
			out = append(out, finding{UnknownConsensusParams, v.PublishingPeer + " " + strings.Join(bad, " ")})
		}
	}
	return out
}

// conflictingParams flags vote parameters the reference consensus lacks or
// sets to a different value.
func conflictingParams(in *input) []finding {
	ref := in.reference.Params
	var out []finding
	for _, v := range in.sortedVotes() {
		var bad []string
		for _, k := range sortedParamKeys(v.Params) {
			if cv, ok := ref[k]; !ok || cv != v.Params[k] {
				bad = append(bad, fmt.Sprintf("%s=%d", k, v.Params[k]))
			}
		}
		if len(bad) > 0 {
			out = append(out, finding{ConflictingConsensusParams, v.PublishingPeer + " " + strings.Join(bad, " ")})
		}
	}
	return out
}

// expiringCertificates puts each vote into at most one expiry tier, the
// nearest one that applies.
func expiringCertificates(in *input) []finding {
	var out []finding
	for _, v := range in.sortedVotes() {
		left := v.DirKeyExpires.Sub(in.now)
		var kind Kind
		switch {
		case left <= twoWeeks:
			kind = CertificateExpiresInTwoWeeks
		case left <= twoMonths:
			kind = CertificateExpiresInTwoMonths
		case left <= threeMonths:
			kind = CertificateExpiresInThreeMonths
		default:
			continue
		}
		out = append(out, finding{kind, v.PublishingPeer + " " + v.DirKeyExpires.UTC().Format(expiryLayout)})
	}
	return out
}

func missingVotes(in *input) []finding {
	var out []finding
	for _, nick := range in.registry.Nicknames() {
		if _, ok := in.store.Vote(nick); !ok {
			out = append(out, finding{VotesMissing, nick})
		}
	}
	return out
}

// missingBandwidthScanners flags bandwidth authorities whose vote carries no
// measured bandwidth at all.
func missingBandwidthScanners(in *input) []finding {
	var out []finding
	for _, nick := range in.registry.BandwidthAuthorities() {
		v, ok := in.store.Vote(nick)
		if !ok {
			continue
		}
		if measuredCount(v) == 0 {
			out = append(out, finding{BandwidthScannerResultsMissing, nick})
		}
	}
	return out
}

func unexpectedBandwidthScanners(in *input) []finding {
	expected := toSet(in.registry.BandwidthAuthorities())
	var out []finding
	for _, v := range in.sortedVotes() {
		if !expected[v.PublishingPeer] && measuredCount(v) > 0 {
			out = append(out, finding{BandwidthScannerResultsUnexpected, v.PublishingPeer})
		}
	}
	return out
}

// bandwidthScannersOutOfSync reports all measuring votes when any of them
// measured more than 20% more or fewer relays than the average.
func bandwidthScannersOutOfSync(in *input) []finding {
	type count struct {
		nick string
		n    int
	}
	var counts []count
	total := 0
	for _, v := range in.sortedVotes() {
		if n := measuredCount(v); n > 0 {
			counts = append(counts, count{v.PublishingPeer, n})
			total += n
		}
	}
	if len(counts) < 2 {
		return nil
	}

	avg := float64(total) / float64(len(counts))
	outOfSync := false
	for _, c := range counts {
		if float64(c.n) > avg*1.2 || float64(c.n) < avg*0.8 {
			outOfSync = true
			break
		}
	}
	if !outOfSync {
		return nil
	}

	out := make([]finding, 0, len(counts))
	for _, c := range counts {
		out = append(out, finding{BandwidthScannersOutOfSync, fmt.Sprintf("%s (%d)", c.nick, c.n)})
	}
	return out
}

func measuredCount(v *model.VoteDocument) int {
	n := 0
	for _, e := range v.StatusEntries {
		if e.HasMeasured {
			n++
		}
	}
	return n
}

func sortedParamKeys(params map[string]int) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
