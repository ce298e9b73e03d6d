// Package logx provides leveled, structured logging for trackerd components.
package logx

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with component tagging and key/value field pairs.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger at the given level. The component name is
// attached to every line so interleaved component logs stay attributable.
func NewLogger(level, component string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	l.SetLevel(parseLevel(level))

	entry := logrus.NewEntry(l)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &Logger{entry: entry}
}

// WithComponent returns a logger that shares level and output but tags
// lines with a different component name.
func (lg *Logger) WithComponent(component string) *Logger {
	return &Logger{entry: lg.entry.Logger.WithField("component", component)}
}

// SetLevel changes the level at runtime (used by the --log-level override).
func (lg *Logger) SetLevel(level string) {
	lg.entry.Logger.SetLevel(parseLevel(level))
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func (lg *Logger) Trace(msg string, fields ...interface{}) {
	lg.entry.WithFields(toFields(fields)).Trace(msg)
}

func (lg *Logger) Debug(msg string, fields ...interface{}) {
	lg.entry.WithFields(toFields(fields)).Debug(msg)
}

func (lg *Logger) Info(msg string, fields ...interface{}) {
	lg.entry.WithFields(toFields(fields)).Info(msg)
}

func (lg *Logger) Warn(msg string, fields ...interface{}) {
	lg.entry.WithFields(toFields(fields)).Warn(msg)
}

func (lg *Logger) Error(msg string, fields ...interface{}) {
	lg.entry.WithFields(toFields(fields)).Error(msg)
}

// toFields accepts either a single map or alternating "key", value pairs.
func toFields(args []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	if len(args) == 1 {
		if m, ok := args[0].(map[string]interface{}); ok {
			for k, v := range m {
				fields[k] = v
			}
			return fields
		}
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}
