package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dirdoctor/internal/model"
)

func TestAppendCSV_OnlySuccessfulConsensuses(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stats", "download-stats.csv")
	start := time.UnixMilli(1709294400000).UTC()

	first := []model.FetchRecord{
		{Peer: "moria1", Class: model.ClassConsensus, Outcome: model.Success, Start: start, Duration: 1500 * time.Millisecond},
		{Peer: "tor26", Class: model.ClassConsensus, Outcome: model.Timeout, Start: start, Duration: time.Minute},
		{Peer: "moria1", Class: model.ClassVote, Outcome: model.Success, Start: start, Duration: time.Second},
	}
	second := []model.FetchRecord{
		{Peer: "tor26", Class: model.ClassConsensus, Outcome: model.Success, Start: start.Add(time.Hour), Duration: 250 * time.Millisecond},
	}
	if err := AppendCSV(path, first); err != nil {
		t.Fatalf("AppendCSV #1: %v", err)
	}
	if err := AppendCSV(path, second); err != nil {
		t.Fatalf("AppendCSV #2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "moria1,1709294400000,1500\ntor26,1709298000000,250\n"
	if string(data) != want {
		t.Fatalf("file=%q", data)
	}

	items, skipped, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if skipped != 0 || len(items) != 2 {
		t.Fatalf("items=%d skipped=%d", len(items), skipped)
	}
	if items[1].Peer != "tor26" || items[1].Duration != 250*time.Millisecond || !items[1].Start.Equal(start.Add(time.Hour)) {
		t.Fatalf("item=%+v", items[1])
	}
}

func TestAppendCSV_NothingToWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "download-stats.csv")
	if err := AppendCSV(path, []model.FetchRecord{{Peer: "a", Outcome: model.Timeout}}); err != nil {
		t.Fatalf("AppendCSV: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file created without samples: %v", err)
	}
}

func TestReadCSV_MissingFile(t *testing.T) {
	t.Parallel()

	items, _, err := ReadCSV(filepath.Join(t.TempDir(), "none.csv"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("items=%d", len(items))
	}
}

func TestReadCSV_HeaderAndBrokenRows(t *testing.T) {
	t.Parallel()

	in := "peer,start,duration\nmoria1,1000,20\ntor26,notanumber,1\nbad\"peer,1000,5\ndizum,1000\ngabelmoo,2000,-5\nbastet,3000,7\n"
	items, skipped, err := readCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(items) != 2 || skipped != 4 {
		t.Fatalf("items=%d skipped=%d", len(items), skipped)
	}
	if items[0].Peer != "moria1" || items[1].Peer != "bastet" {
		t.Fatalf("items=%+v", items)
	}
}
