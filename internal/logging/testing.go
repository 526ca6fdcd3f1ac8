package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter maps log output onto t.Log so that it only shows up for
// failed (or verbose) tests.
type testLoggerAdapter struct {
	t testing.TB
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	n := len(d)
	if n > 0 && d[n-1] == '\n' {
		d = d[:n-1]
	}
	a.t.Log(string(d))
	return n, nil
}

// NewTestLogger returns a debug-level entry that writes through t.Log.
func NewTestLogger(t testing.TB) *logrus.Entry {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = logrus.DebugLevel
	return logger.WithField("prefix", t.Name())
}
