package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dirdoctor/internal/doctor"
	"dirdoctor/internal/logging"
	"dirdoctor/internal/metrics"
	"dirdoctor/internal/server"
)

// watchdogGrace is how long past the hard deadline a run may take to unwind
// before the process is killed.
const watchdogGrace = 30 * time.Second

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch consensuses and votes once, check them and write the warning files",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runOnce(cmd.OutOrStdout())
		},
	}
}

func (a *app) runOnce(out io.Writer) error {
	registry, err := a.registry()
	if err != nil {
		return err
	}
	d := doctor.New(a.cfg, registry, logging.Component(a.log, "doctor"))

	watchdog := time.AfterFunc(a.cfg.HardDeadline+watchdogGrace, func() {
		a.log.WithField("hard_deadline", a.cfg.HardDeadline).Fatal("run did not finish, giving up")
	})
	defer watchdog.Stop()

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelRun := context.WithTimeout(ctx, a.cfg.HardDeadline)
	defer cancelRun()

	report, err := d.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("run abandoned: %w", err)
	}
	for _, m := range report.Outcome.New {
		fmt.Fprintln(out, m.Text)
	}
	a.log.WithField("warnings", len(report.Outcome.All)).
		WithField("new", len(report.Outcome.New)).
		WithField("took", report.Finished.Sub(report.Started).Round(time.Millisecond)).
		Info("run complete")
	return nil
}

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run repeatedly and serve the latest results over HTTP",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watch()
		},
	}
	cmd.Flags().Duration("interval", 0, "time between runs")
	cmd.Flags().String("listen", "", "address for the status server, empty to disable")
	return cmd
}

func (a *app) watch() error {
	registry, err := a.registry()
	if err != nil {
		return err
	}
	collector := metrics.NewCollector()
	d := doctor.New(a.cfg, registry, logging.Component(a.log, "doctor"), doctor.WithCollector(collector))

	sigCtx, cancel := signalContext()
	defer cancel()

	var srv *server.Server
	if a.cfg.Listen != "" {
		srv = server.New(a.cfg.Listen, collector, logging.Component(a.log, "server"))
	}

	g, ctx := errgroup.WithContext(sigCtx)
	if srv != nil {
		g.Go(func() error {
			return srv.ListenAndServe(ctx)
		})
	}
	g.Go(func() error {
		return d.Watch(ctx, a.cfg.Interval, func(r *doctor.Report) {
			if srv != nil {
				srv.Update(r)
			}
			for _, m := range r.Outcome.New {
				fmt.Fprintln(os.Stdout, m.Text)
			}
		})
	})

	err = g.Wait()
	if sigCtx.Err() != nil {
		a.log.Info("shutting down")
		return nil
	}
	return err
}
