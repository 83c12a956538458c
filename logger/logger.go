// Package logger provides the structured, leveled logging used throughout
// raftbeat. It mirrors the logger.Debug/Info/Warn/Error(msg, Ctx{...})
// call shape used across github.com/canonical/lxd, backed by logrus the
// same way lxd-export/core/logger wraps it.
package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Ctx is a set of structured fields attached to a log record.
type Ctx map[string]any

var (
	mu  sync.Mutex
	log = logrus.New()
)

// SetLevel adjusts the minimum level that gets emitted. Until it is
// called, logrus's own default (Info) applies.
func SetLevel(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	log.SetLevel(level)
}

func fields(ctx []Ctx) logrus.Fields {
	if len(ctx) == 0 {
		return logrus.Fields{}
	}

	f := make(logrus.Fields, len(ctx[0]))
	for _, c := range ctx {
		for k, v := range c {
			f[k] = v
		}
	}

	return f
}

// Debug logs trace-level detail, such as a send abandoned past its outer
// deadline or a failed forced disconnect. The spec calls this "trace";
// logrus has no distinct trace level enabled by default here, so it is folded into Debug.
func Debug(msg string, ctx ...Ctx) {
	mu.Lock()
	defer mu.Unlock()
	log.WithFields(fields(ctx)).Debug(msg)
}

// Info logs informational events, such as a successful forced disconnect.
func Info(msg string, ctx ...Ctx) {
	mu.Lock()
	defer mu.Unlock()
	log.WithFields(fields(ctx)).Info(msg)
}

// Warn logs recoverable problems, such as a dispatch cycle that
// panicked.
func Warn(msg string, ctx ...Ctx) {
	mu.Lock()
	defer mu.Unlock()
	log.WithFields(fields(ctx)).Warn(msg)
}

// Error logs conditions that indicate a bug or a missed invariant, such
// as a reply naming a group no longer present in the registry.
func Error(msg string, ctx ...Ctx) {
	mu.Lock()
	defer mu.Unlock()
	log.WithFields(fields(ctx)).Error(msg)
}
