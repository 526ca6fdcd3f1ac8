package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirdoctor/internal/config"
	"dirdoctor/internal/metrics"
	"dirdoctor/internal/model"
)

func loadApp(t *testing.T, sub string, args ...string) *app {
	t.Helper()
	cmd, _, err := newRootCmd().Find([]string{sub})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(args))

	a := &app{v: newViper()}
	require.NoError(t, a.load(cmd))
	return a
}

func TestLoad_FlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dirdoctor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+filepath.Join(dir, "file")+"\nfreshness: 2h\n"), 0o600))

	a := loadApp(t, "run", "--config", path, "--data-dir", filepath.Join(dir, "flag"), "--fetch-timeout", "10s")

	assert.Equal(t, filepath.Join(dir, "flag"), a.cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "flag", "status"), a.cfg.StatusDir)
	assert.Equal(t, 10*time.Second, a.cfg.FetchTimeout)
	assert.Equal(t, 2*time.Hour, a.cfg.Freshness)
	assert.Equal(t, config.DefaultHardDeadline, a.cfg.HardDeadline)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DIRDOCTOR_LOG_LEVEL", "debug")
	t.Setenv("DIRDOCTOR_INTERVAL", "15m")

	a := loadApp(t, "watch", "--data-dir", t.TempDir())

	assert.Equal(t, "debug", a.cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, a.cfg.Interval)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--fetch-timeout", "10m", "--hard-deadline", "1m"}))

	a := &app{v: newViper()}
	assert.Error(t, a.load(cmd))
}

func TestRegistry_DefaultTable(t *testing.T) {
	a := loadApp(t, "authorities", "--data-dir", t.TempDir())
	reg, err := a.registry()
	require.NoError(t, err)
	assert.True(t, reg.Contains("moria1"))
}

func TestPrintStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "download-stats.csv")
	start := time.Now().UTC().Add(-time.Hour)
	var records []model.FetchRecord
	for i, d := range []time.Duration{100, 200, 300} {
		records = append(records, model.FetchRecord{
			Peer: "moria1", Class: model.ClassConsensus, Outcome: model.Success,
			Start: start.Add(time.Duration(i) * time.Minute), Duration: d * time.Millisecond,
		})
	}
	records = append(records, model.FetchRecord{
		Peer: "tor26", Class: model.ClassConsensus, Outcome: model.Success,
		Start: start, Duration: 50 * time.Millisecond,
	})
	require.NoError(t, metrics.AppendCSV(path, records))

	a := loadApp(t, "stats", "--data-dir", dir)
	var out bytes.Buffer
	require.NoError(t, a.printStats(&out, path, start.Add(-time.Minute)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"moria1", "100", "100", "200", "200", "300", "0"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"tor26", "50", "50", "50", "50", "50", "2"}, strings.Fields(lines[2]))
}

func TestPrintStats_Empty(t *testing.T) {
	a := loadApp(t, "stats", "--data-dir", t.TempDir())
	var out bytes.Buffer
	require.NoError(t, a.printStats(&out, filepath.Join(t.TempDir(), "missing.csv"), time.Now()))
	assert.Equal(t, "no samples in window\n", out.String())
}
