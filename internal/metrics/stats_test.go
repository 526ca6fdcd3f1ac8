package metrics

import (
	"testing"
	"time"
)

func TestSummarize_WindowAndPercentiles(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	since := now.Add(-DefaultWindow)
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }

	items := []Sample{
		{Peer: "moria1", Start: since.Add(-time.Second), Duration: ms(99999)},
		{Peer: "moria1", Start: since, Duration: ms(400)},
		{Peer: "moria1", Start: now.Add(-3 * time.Hour), Duration: ms(100)},
		{Peer: "moria1", Start: now.Add(-2 * time.Hour), Duration: ms(300)},
		{Peer: "moria1", Start: now.Add(-1 * time.Hour), Duration: ms(200)},
		{Peer: "moria1", Start: now, Duration: ms(500)},
		{Peer: "tor26", Start: now, Duration: ms(50)},
		{Peer: "tor26", Start: now.Add(-time.Hour), Duration: ms(70)},
	}
	s := Summarize(items, since)

	if got := s.Peers(); len(got) != 2 || got[0] != "moria1" || got[1] != "tor26" {
		t.Fatalf("peers=%v", got)
	}
	if s.Count("moria1") != 5 {
		t.Fatalf("count=%d", s.Count("moria1"))
	}

	// sorted: 100 200 300 400 500, index = p*(n-1)/100
	want := map[int]time.Duration{0: ms(100), 25: ms(200), 50: ms(300), 75: ms(400), 100: ms(500)}
	for p, d := range want {
		got, ok := s.Percentile("moria1", p)
		if !ok || got != d {
			t.Fatalf("p%d=%v ok=%v", p, got, ok)
		}
	}
	// n=2: p75 -> index 0
	if got, _ := s.Percentile("tor26", 75); got != ms(50) {
		t.Fatalf("tor26 p75=%v", got)
	}

	if s.Missing("moria1") != 0 || s.Missing("tor26") != 3 || s.Missing("dizum") != 5 {
		t.Fatalf("missing=%d/%d/%d", s.Missing("moria1"), s.Missing("tor26"), s.Missing("dizum"))
	}
	if _, ok := s.Percentile("dizum", 50); ok {
		t.Fatalf("percentile without samples")
	}
}

func TestPercentile_Clamps(t *testing.T) {
	t.Parallel()

	s := Summarize([]Sample{{Peer: "a", Duration: 1}, {Peer: "a", Duration: 4}}, time.Time{})
	if got, _ := s.Percentile("a", -5); got != 1 {
		t.Fatalf("p-5=%v", got)
	}
	if got, _ := s.Percentile("a", 500); got != 4 {
		t.Fatalf("p500=%v", got)
	}
}
