// Package goroutine launches background goroutines that log panics instead
// of taking the process down.
package goroutine

import (
	"runtime/debug"

	"glimpse/internal/shared/logger"
)

// SafeGo runs fn on a new goroutine, converting a panic into an error log
// with the stack attached.
func SafeGo(log logger.Interface, name string, fn func()) {
	go func() {
		defer logPanic(log, name)
		fn()
	}()
}

func logPanic(log logger.Interface, name string) {
	r := recover()
	if r == nil {
		return
	}
	log.Errorw("goroutine panicked",
		"goroutine", name,
		"panic", r,
		"stack", string(debug.Stack()),
	)
}
