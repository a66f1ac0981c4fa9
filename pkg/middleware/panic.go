package middleware

import (
	"net/http"

	"github.com/vertzdev/vertz/pkg/apierror"
	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/metrics"
)

const panicRecoveryLocation = "PanicRecovery"

// PanicRecovery recovers from handler panics, logs them, forwards them
// to the error tracker, records a metric, and answers with the standard
// internal-error envelope instead of dropping the connection.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rcv := recover(); rcv != nil {
				metrics.GetProvider().RecordPanic(panicRecoveryLocation)
				_ = logger.HandlePanic(panicRecoveryLocation, rcv)
				apierror.Write(w, apierror.Internal())
			}
		}()
		next.ServeHTTP(w, r)
	})
}
