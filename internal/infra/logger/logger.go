// internal/infra/logger/logger.go
package logger

import (
	"os"
	"strings"

	"notification_scheduler/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// ServiceName tags every entry so notifier logs can be told apart from the
// CRUD service writing the same records.
const ServiceName = "notifier"

// Log is the global logger instance
var Log = logrus.New()

// Init configures the global logger and points it at stdout.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)
	Configure(Log, cfg)
	Log.Debugf("Log level set to: %s", Log.GetLevel().String())
}

// Configure applies level, formatter and the service fields to l.
func Configure(l *logrus.Logger, cfg *config.AppConfig) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		l.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", cfg.LogLevel, err)
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	env := strings.ToLower(cfg.Environment)
	if env == "production" || env == "staging" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	fields := logrus.Fields{"service": ServiceName, "environment": env}
	if host, err := os.Hostname(); err == nil {
		fields["host"] = host
	}
	hooks := make(logrus.LevelHooks)
	hooks.Add(serviceHook{fields: fields})
	l.ReplaceHooks(hooks)
}

// Component returns an entry tagged with the component name, the way every
// long-lived service in the notifier logs.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}

// serviceHook stamps the service fields on entries that do not set them.
type serviceHook struct {
	fields logrus.Fields
}

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := e.Data[k]; !ok {
			e.Data[k] = v
		}
	}
	return nil
}
