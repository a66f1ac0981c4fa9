package metrics

import (
	"sync"
)

// Provider defines the metrics instruments the engine records.
// Implementations must be safe for concurrent use.
type Provider interface {
	// RecordOperation records a completed entity operation with its HTTP status
	RecordOperation(entity, operation string, status int)

	// RecordDenial records an access denial for an entity operation
	RecordDenial(entity, operation string)

	// RecordPanic records a recovered panic
	RecordPanic(location string)
}

// NoopProvider discards all metrics
type NoopProvider struct{}

func (NoopProvider) RecordOperation(entity, operation string, status int) {}
func (NoopProvider) RecordDenial(entity, operation string)                {}
func (NoopProvider) RecordPanic(location string)                          {}

var (
	mu       sync.RWMutex
	provider Provider = NoopProvider{}
)

// SetProvider installs the global metrics provider
func SetProvider(p Provider) {
	mu.Lock()
	defer mu.Unlock()
	if p == nil {
		p = NoopProvider{}
	}
	provider = p
}

// GetProvider returns the global metrics provider
func GetProvider() Provider {
	mu.RLock()
	defer mu.RUnlock()
	return provider
}
