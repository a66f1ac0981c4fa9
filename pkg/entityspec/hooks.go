package entityspec

import (
	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/metrics"
)

// fireHook runs an after-hook fire-and-forget: the hook runs to
// completion before the response is written, but its error or panic is
// logged and discarded, never surfaced to the client.
func fireHook(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.GetProvider().RecordPanic(name)
			_ = logger.HandlePanic(name, r)
		}
	}()
	if err := fn(); err != nil {
		logger.Warn("After-hook %s failed: %v", name, err)
	}
}
