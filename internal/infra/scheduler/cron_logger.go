package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// cronLogger adapts a logrus entry to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

var _ cron.Logger = cronLogger{}

// NewCronLogger returns a cron.Logger writing to entry. Cron's own Info output
// is verbose and goes to debug level.
func NewCronLogger(entry *logrus.Entry) cron.Logger {
	return cronLogger{entry: entry.WithField("component", "cron")}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
