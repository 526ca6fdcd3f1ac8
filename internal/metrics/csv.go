package metrics

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dirdoctor/internal/model"
)

// Sample is one successful consensus download.
type Sample struct {
	Peer     string
	Start    time.Time
	Duration time.Duration
}

// SamplesFrom keeps the successful consensus fetches of records.
func SamplesFrom(records []model.FetchRecord) []Sample {
	var out []Sample
	for _, r := range records {
		if r.Class != model.ClassConsensus || r.Outcome != model.Success {
			continue
		}
		out = append(out, Sample{Peer: r.Peer, Start: r.Start, Duration: r.Duration})
	}
	return out
}

// WriteCSV writes "peer,startMillis,durationMillis" rows without a header.
func WriteCSV(w io.Writer, items []Sample) error {
	writer := csv.NewWriter(w)
	for _, s := range items {
		record := []string{
			s.Peer,
			strconv.FormatInt(s.Start.UnixMilli(), 10),
			strconv.FormatInt(s.Duration.Milliseconds(), 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// AppendCSV appends the successful consensus fetches of records to path.
// The history is only ever written by one process at a time.
func AppendCSV(path string, records []model.FetchRecord) error {
	samples := SamplesFrom(records)
	if len(samples) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
