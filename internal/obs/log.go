package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	logOnce sync.Once
	logDest *log.Logger
)

// Logger returns the process-wide JSON-line logger. Everything the service
// emits (request logs, audit events) goes through this one writer so log
// shipping stays a single stdout stream.
func Logger() *log.Logger {
	logOnce.Do(func() {
		logDest = log.New(os.Stdout, "", 0)
	})
	return logDest
}

// LogRequest writes one JSON object per line. Callers own the field set;
// entries that fail to marshal are replaced with a static error line rather
// than dropped silently.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log entry not serializable"}`)
		return
	}
	Logger().Println(string(data))
}
