// Package resilience classifies transient failures and retries them with
// exponential backoff.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/gridsight/infra-analytics/internal/model"
)

// IsTransient returns true if the error is safe to retry: an opaque store
// UnavailableError, a network timeout, or a common transient connection
// failure. Validation and malformed-query errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if model.IsUnavailable(err) {
		return true
	}

	var ve model.ValidationError
	if errors.As(err, &ve) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped driver errors.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"database is locked",
		"temporary failure in name resolution",
		"no such host",
		"i/o timeout",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
