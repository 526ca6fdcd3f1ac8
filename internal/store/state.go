package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/atomicfile"
)

// State maps a rendered warning to the last time it was emitted.
type State map[string]time.Time

// Clone returns a copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ReadState parses "epochMillis: message" lines. Lines that do not parse
// are skipped; the returned count says how many.
func ReadState(r io.Reader) (State, int, error) {
	state := State{}
	skipped := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := strings.Index(line, ": ")
		if i <= 0 {
			skipped++
			continue
		}
		millis, err := strconv.ParseInt(line[:i], 10, 64)
		if err != nil {
			skipped++
			continue
		}
		state[line[i+2:]] = time.UnixMilli(millis).UTC()
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, err
	}
	return state, skipped, nil
}

// WriteState writes s sorted by message.
func WriteState(w io.Writer, s State) error {
	msgs := make([]string, 0, len(s))
	for m := range s {
		msgs = append(msgs, m)
	}
	sort.Strings(msgs)

	bw := bufio.NewWriter(w)
	for _, m := range msgs {
		if _, err := fmt.Fprintf(bw, "%d: %s\n", s[m].UnixMilli(), m); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadState loads the state from disk. If the file is missing, returns an
// empty state.
func LoadState(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return nil, err
	}
	defer f.Close()

	state, skipped, err := ReadState(f)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		return state, fmt.Errorf("%s: skipped %d malformed lines", path, skipped)
	}
	return state, nil
}

// SaveState atomically replaces the state file. Entries older than keep
// (relative to now) are dropped first; keep <= 0 keeps everything.
func SaveState(path string, s State, now time.Time, keep time.Duration) error {
	if keep > 0 {
		s = Prune(s, now.Add(-keep))
	}

	var buf bytes.Buffer
	if err := WriteState(&buf, s); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, err := atomicfile.WriteAll(path, &buf, 0o644)
	return err
}

// Prune returns the entries of s emitted at or after cutoff.
func Prune(s State, cutoff time.Time) State {
	out := make(State, len(s))
	for m, t := range s {
		if !t.Before(cutoff) {
			out[m] = t
		}
	}
	return out
}

// WriteLines atomically replaces path with one line per entry.
func WriteLines(path string, lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, err := atomicfile.WriteAll(path, &buf, 0o644)
	return err
}
