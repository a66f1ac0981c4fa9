package entityspec

import (
	"github.com/vertzdev/vertz/pkg/apierror"
	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/metrics"
	"github.com/vertzdev/vertz/pkg/storage"
)

// EnforceAccess applies the deny-by-default access contract for one
// operation. Missing rule means forbidden, a disabled rule means 405,
// and a predicate decides the rest. Access rules are the only code that
// sees unfiltered rows; row may be nil for collection operations and is
// passed to the predicate as an empty Row.
func EnforceAccess(op Operation, def *Definition, rc *RequestContext, row storage.Row) *apierror.Error {
	rule, ok := def.AccessRule(op)
	if !ok {
		metrics.GetProvider().RecordDenial(def.Name(), string(op))
		return apierror.Forbidden("operation %q is not permitted on entity %q", op, def.Name())
	}
	if rule.IsDisabled() {
		metrics.GetProvider().RecordDenial(def.Name(), string(op))
		return apierror.MethodNotAllowed("operation %q is disabled for entity %q", op, def.Name())
	}

	if row == nil {
		row = make(storage.Row)
	}
	allowed, err := rule.check(rc, row)
	if err != nil {
		logger.Error("Access predicate for %s.%s failed: %v", def.Name(), op, err)
		return apierror.Internal()
	}
	if !allowed {
		metrics.GetProvider().RecordDenial(def.Name(), string(op))
		return apierror.Forbidden("access denied for operation %q on entity %q", op, def.Name())
	}
	return nil
}
