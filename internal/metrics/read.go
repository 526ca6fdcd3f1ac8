package metrics

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"time"
)

// ReadCSV loads the fetch history. A missing file is an empty history.
// Rows that do not parse are skipped; the count is returned.
func ReadCSV(path string) ([]Sample, int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) ([]Sample, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var items []Sample
	skipped := 0
	for first := true; ; first = false {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			skipped++
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		if first && len(rec) > 0 && rec[0] == "peer" {
			continue
		}
		sample, ok := parseSample(rec)
		if !ok {
			skipped++
			continue
		}
		items = append(items, sample)
	}

	return items, skipped, nil
}

func parseSample(rec []string) (Sample, bool) {
	if len(rec) != 3 || rec[0] == "" {
		return Sample{}, false
	}
	startMillis, err := strconv.ParseInt(rec[1], 10, 64)
	if err != nil {
		return Sample{}, false
	}
	durMillis, err := strconv.ParseInt(rec[2], 10, 64)
	if err != nil || durMillis < 0 {
		return Sample{}, false
	}
	return Sample{
		Peer:     rec[0],
		Start:    time.UnixMilli(startMillis).UTC(),
		Duration: time.Duration(durMillis) * time.Millisecond,
	}, true
}
