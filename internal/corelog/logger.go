// Package corelog wires the process-wide structured logger used by
// every fire-and-forget task to report suppressed failures.
package corelog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once sync.Once
	l    *zap.Logger
)

// L returns the process-wide logger, building a production JSON
// logger on first use.
func L() *zap.Logger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.DisableStacktrace = true
		built, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
			return
		}
		l = built
	})
	return l
}

// SetForTest installs a logger for a test's lifetime and returns a
// restore function.
func SetForTest(logger *zap.Logger) func() {
	once.Do(func() {})
	prev := l
	l = logger
	return func() { l = prev }
}

// Sugar is the sugared form, convenient for call sites that format
// with printf-style verbs.
func Sugar() *zap.SugaredLogger { return L().Sugar() }
