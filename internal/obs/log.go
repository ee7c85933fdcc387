// Package obs holds the observability glue: a JSON line logger and the
// prometheus instrumentation shared by the HTTP layer and the sweeper.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide logger writing JSON lines to stderr.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stderr, "", 0)
	})
	return logger
}

// Log emits one JSON line with a timestamp, severity, message and
// arbitrary fields. Fields named ts/level/msg are reserved.
func Log(level, msg string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	b, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"log marshal failed","error":%q}`, err.Error())
		return
	}
	Logger().Print(string(b))
}

// Info logs at info severity.
func Info(msg string, fields map[string]any) { Log("info", msg, fields) }

// Error logs at error severity.
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }
