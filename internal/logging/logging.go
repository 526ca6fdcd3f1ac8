package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Options controls logger construction.
type Options struct {
	Level string
	// InfoFile, when set, receives a copy of info records and above.
	// DebugFile receives debug records only.
	InfoFile  string
	DebugFile string
	Out       io.Writer
}

// New returns a logger writing prefixed text to Out (stderr by default).
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.Out = opts.Out
	if logger.Out == nil {
		logger.Out = os.Stderr
	}
	logger.Level = Level(opts.Level)
	logger.Formatter = &prefixed.TextFormatter{FullTimestamp: true}

	pathMap := lfshook.PathMap{}
	if opts.InfoFile != "" {
		for _, l := range []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel} {
			pathMap[l] = opts.InfoFile
		}
	}
	if opts.DebugFile != "" {
		pathMap[logrus.DebugLevel] = opts.DebugFile
	}
	if len(pathMap) > 0 {
		logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.TextFormatter{FullTimestamp: true}))
	}

	return logger
}

// Component returns an entry tagged with the component prefix.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("prefix", name)
}

// Level parses a level name; unknown names map to info.
func Level(l string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
