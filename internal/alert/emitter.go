package alert

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"dirdoctor/internal/check"
	"dirdoctor/internal/store"
)

// Paths names the files the emitter reads and writes.
type Paths struct {
	State       string
	AllWarnings string
	NewWarnings string
}

// Emitter renders warnings, applies rate limiting against the persisted
// state and writes the warning files.
type Emitter struct {
	paths Paths
	log   *logrus.Entry
}

// NewEmitter creates an Emitter.
func NewEmitter(paths Paths, log *logrus.Entry) *Emitter {
	return &Emitter{paths: paths, log: log}
}

// Emit never fails because of the state file: an unreadable state counts as
// empty. The returned error joins the write failures, if any.
func (e *Emitter) Emit(w check.Warnings, now time.Time) (Outcome, error) {
	state, err := store.LoadState(e.paths.State)
	if err != nil {
		e.log.WithError(err).Warn("could not read rate-limit state")
		if state == nil {
			state = store.State{}
		}
	}

	out := Evaluate(Render(w), state, now)

	var errs []error
	if err := store.WriteLines(e.paths.AllWarnings, Lines(out.All)); err != nil {
		e.log.WithError(err).WithField("path", e.paths.AllWarnings).Warn("could not write warnings")
		errs = append(errs, err)
	}
	if err := store.WriteLines(e.paths.NewWarnings, Lines(out.New)); err != nil {
		e.log.WithError(err).WithField("path", e.paths.NewWarnings).Warn("could not write new warnings")
		errs = append(errs, err)
	}
	if out.Changed {
		if err := store.SaveState(e.paths.State, out.State, now, MaxInterval()); err != nil {
			e.log.WithError(err).Warn("could not save rate-limit state")
			errs = append(errs, err)
		}
	}

	e.log.WithFields(logrus.Fields{
		"all": len(out.All),
		"new": len(out.New),
	}).Info("warnings emitted")
	for _, m := range out.New {
		e.log.WithField("severity", m.Severity).Debug(m.Text)
	}
	return out, errors.Join(errs...)
}
