package safego

import (
	"fmt"

	"go.uber.org/zap"
)

// Go launches a goroutine with panic recovery.
// If the goroutine panics, the panic value is logged and the goroutine exits
// cleanly instead of crashing the process.
//
// Usage:
//
//	safego.Go(logger, "write-queue", func() {
//	    // work that might panic
//	})
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Goroutine panicked",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}

// Call runs fn on the current goroutine and turns a panic into an error, so a
// long-lived worker can survive one bad item.
func Call(logger *zap.Logger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task panicked",
				zap.String("task", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn()
}
