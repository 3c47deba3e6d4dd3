package vision

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/masterfile-cli/internal/resilience"
)

// classify wraps a provider error, marking overload, rate-limit and 5xx
// responses as transient so the caller retries them.
func classify(err error, status int, msg string) error {
	if resilience.IsTransientHTTPStatus(status) {
		return eris.Wrap(resilience.NewTransientError(err, status), msg)
	}
	if status == 0 && resilience.IsTransient(err) {
		return eris.Wrap(resilience.NewTransientError(err, 0), msg)
	}
	return eris.Wrap(err, msg)
}
