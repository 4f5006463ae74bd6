package logs

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(severityFormatter{})
	return l
}

// severityFormatter writes one JSON object per line with upper-case
// severity names (DEBUG, INFO, WARN, ERROR, FATAL).
type severityFormatter struct{}

func (severityFormatter) Format(e *logrus.Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(e.Data)+3)
	for k, v := range e.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}
	data["severity"] = severity(e.Level)
	data["message"] = e.Message
	data["time"] = e.Time.Format(time.RFC3339)

	line, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

func severity(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(level.String())
}

// SetLevel accepts logrus level names ("debug", "info", ...). Unknown names keep the current level.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
}

// Logger exposes the underlying logger for libraries that want an io.Writer or logrus entry.
func Logger() *logrus.Logger {
	return logger
}

// LogJSON writes one structured line. level is one of DEBUG, INFO, WARN, ERROR, FATAL.
// FATAL only logs; callers decide whether to exit.
func LogJSON(level, message string, fields map[string]interface{}) {
	entry := logger.WithFields(logrus.Fields(fields))
	switch strings.ToUpper(level) {
	case "DEBUG":
		entry.Debug(message)
	case "WARN":
		entry.Warn(message)
	case "ERROR":
		entry.Error(message)
	case "FATAL":
		entry.Log(logrus.FatalLevel, message)
	default:
		entry.Info(message)
	}
}
