package vertzql

import (
	"github.com/vertzdev/vertz/pkg/storage"
)

const (
	// MaxLimit is the hard ceiling for page sizes
	MaxLimit = 1000

	// MaxCursorLength bounds the opaque after cursor
	MaxCursorLength = 512
)

// Operators accepted in where conditions
var validOperators = map[string]bool{
	"eq":   true,
	"neq":  true,
	"gt":   true,
	"gte":  true,
	"lt":   true,
	"lte":  true,
	"like": true,
	"in":   true,
}

// Options is the canonical, per-request query shape produced by the
// parser and checked by the validator before any storage call.
type Options struct {
	Where   storage.Where
	OrderBy map[string]string

	// Limit is -1 when the caller did not supply one; the pipeline
	// applies its own default. Supplied values are clamped to
	// [0, MaxLimit].
	Limit int

	// After is the opaque pagination cursor, "" when absent
	After string

	// Select is the output field allow-list, nil when absent
	Select []string

	// Include maps requested relation names to a field narrowing list;
	// a nil slice requests all exposed fields of that relation.
	Include map[string][]string

	// parseErr records a structural-decode failure; parsing never
	// throws, the validator surfaces this as a BadRequest.
	parseErr error
}

// NewOptions returns an empty Options with Limit unset
func NewOptions() *Options {
	return &Options{
		Where:   make(storage.Where),
		OrderBy: make(map[string]string),
		Limit:   -1,
	}
}

// HasLimit reports whether the caller supplied a limit
func (o *Options) HasLimit() bool { return o.Limit >= 0 }

// ParseError returns the recorded structural-decode failure, if any
func (o *Options) ParseError() error { return o.parseErr }

// RelationExposure is the slice of an entity definition the validator
// needs: which relations exist, whether they are exposed, and which
// fields of each may be requested (nil meaning all).
type RelationExposure interface {
	RelationFields(name string) (fields []string, ok bool)
}

func clampLimit(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}
