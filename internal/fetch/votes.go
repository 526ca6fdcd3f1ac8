package fetch

import (
	"sort"
	"strings"
	"time"

	"dirdoctor/internal/docstore"
)

// LegacySuffix marks dir-sources that stand for a retired signing key of
// another authority rather than a voter of its own.
const LegacySuffix = "-legacy"

// VoteFingerprints lists the identities of all voters named by the fresh
// consensuses in s, deduplicated and sorted. Votes belonging to a stale
// consensus are no longer served, so stale documents are skipped.
func VoteFingerprints(s *docstore.Store, now time.Time, freshness time.Duration) []string {
	seen := make(map[string]bool)
	for _, c := range s.FreshConsensuses(now, freshness) {
		for nick, fp := range c.DirSources {
			if strings.HasSuffix(nick, LegacySuffix) || fp == "" {
				continue
			}
			seen[fp] = true
		}
	}
	out := make([]string, 0, len(seen))
	for fp := range seen {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}
