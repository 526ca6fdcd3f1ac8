package metrics

import (
	"sort"
	"time"
)

// DefaultWindow is how far back the history is summarized.
const DefaultWindow = 7 * 24 * time.Hour

// Percentiles shown for each peer.
var Percentiles = []int{0, 25, 50, 75, 100}

// Summary holds the sorted download times per peer inside a window.
type Summary struct {
	Since     time.Time
	durations map[string][]time.Duration
	max       int
}

// Summarize keeps samples started at or after since.
func Summarize(items []Sample, since time.Time) Summary {
	s := Summary{Since: since, durations: make(map[string][]time.Duration)}
	for _, m := range items {
		if m.Start.Before(since) {
			continue
		}
		s.durations[m.Peer] = append(s.durations[m.Peer], m.Duration)
	}
	for peer, d := range s.durations {
		sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
		s.durations[peer] = d
		if len(d) > s.max {
			s.max = len(d)
		}
	}
	return s
}

// Peers lists the peers with at least one sample, sorted.
func (s Summary) Peers() []string {
	out := make([]string, 0, len(s.durations))
	for p := range s.durations {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Count is the number of samples of peer.
func (s Summary) Count(peer string) int {
	return len(s.durations[peer])
}

// Percentile returns the p-th percentile (0..100) of peer's download times
// using index floor(p*(n-1)/100). The bool is false without samples.
func (s Summary) Percentile(peer string, p int) (time.Duration, bool) {
	values := s.durations[peer]
	if len(values) == 0 {
		return 0, false
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return values[p*(len(values)-1)/100], true
}

// Missing is how many fewer samples peer has than the best covered peer.
func (s Summary) Missing(peer string) int {
	return s.max - len(s.durations[peer])
}
