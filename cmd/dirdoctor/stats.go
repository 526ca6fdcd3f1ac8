package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dirdoctor/internal/metrics"
)

func newStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print consensus download time percentiles per authority",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, _ := cmd.Flags().GetDuration("window")
			path, _ := cmd.Flags().GetString("file")
			if window <= 0 {
				window = a.cfg.StatsWindow
			}
			if path == "" {
				path = a.cfg.StatsFile
			}
			return a.printStats(cmd.OutOrStdout(), path, time.Now().UTC().Add(-window))
		},
	}
	cmd.Flags().Duration("window", 0, "history to summarize (default stats_window)")
	cmd.Flags().String("file", "", "statistics CSV override")
	return cmd
}

func (a *app) printStats(out io.Writer, path string, since time.Time) error {
	items, skipped, err := metrics.ReadCSV(path)
	if err != nil {
		return err
	}
	if skipped > 0 {
		a.log.WithField("rows", skipped).Warn("skipped malformed statistics rows")
	}

	summary := metrics.Summarize(items, since)
	peers := summary.Peers()
	if len(peers) == 0 {
		fmt.Fprintln(out, "no samples in window")
		return nil
	}

	fmt.Fprintf(out, "%-14s", "authority")
	for _, p := range metrics.Percentiles {
		fmt.Fprintf(out, " %8s", fmt.Sprintf("p%d", p))
	}
	fmt.Fprintf(out, " %6s\n", "NA")
	for _, peer := range peers {
		fmt.Fprintf(out, "%-14s", peer)
		for _, p := range metrics.Percentiles {
			d, ok := summary.Percentile(peer, p)
			if !ok {
				fmt.Fprintf(out, " %8s", "-")
				continue
			}
			fmt.Fprintf(out, " %8d", d.Milliseconds())
		}
		fmt.Fprintf(out, " %6d\n", summary.Missing(peer))
	}
	return nil
}
