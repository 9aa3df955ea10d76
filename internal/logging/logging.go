// Package logging configures the process-wide structured logger.
// Output is one JSON object per line with the timestamp under "ts".
package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"docvault/internal/config"
)

// New returns a JSON logger writing to stdout.
func New(cfg config.LogConfig) *logrus.Logger {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter is New with an explicit destination.
// An unknown level falls back to info; an unknown timezone to UTC.
func NewWithWriter(w io.Writer, cfg config.LogConfig) *logrus.Logger {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
		},
	})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.AddHook(locationHook{loc: loc})
	return l
}

// locationHook renders entry timestamps in the configured timezone.
type locationHook struct {
	loc *time.Location
}

func (h locationHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h locationHook) Fire(e *logrus.Entry) error {
	e.Time = e.Time.In(h.loc)
	return nil
}

// Component returns a child logger tagged with the component name.
func Component(l logrus.FieldLogger, name string) logrus.FieldLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithField("component", name)
}
