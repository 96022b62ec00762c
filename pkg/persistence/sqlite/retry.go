// retry.go provides automatic retry logic for transient SQLite errors.
//
// Under concurrent writers, WAL-mode SQLite can produce transient errors like
// SQLITE_BUSY, SQLITE_LOCKED, and IOERR_SHORT_READ (error 522). The
// busy_timeout pragma handles SQLITE_BUSY at the connection level, but other
// transient errors need application-level retries.
package sqlite

import (
	"math/rand"
	"strings"
	"time"
)

// retryConfig controls retry behavior for transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// defaultRetryConfig is used for plain write operations.
var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// appendRetryConfig allows more attempts because appends also retry lost
// version-allocation races, which resolve on re-read of the head. Under many
// concurrent writers each round settles one winner, so the budget must cover
// several rounds.
var appendRetryConfig = retryConfig{
	maxRetries: 8,
	baseDelay:  20 * time.Millisecond,
	maxDelay:   300 * time.Millisecond,
}

// isTransientSQLiteErr returns true if the error is a transient SQLite error
// that can be resolved by retrying. This includes:
//   - SQLITE_BUSY (5): another connection holds a lock
//   - SQLITE_LOCKED (6): table-level lock conflict
//   - SQLITE_IOERR_SHORT_READ (522): WAL contention read failure
//   - "database is locked": text-level detection for the busy_timeout fallthrough
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	// SQLite error codes embedded in error messages from modernc.org/sqlite.
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",   // SQLITE_BUSY code
		"(6)",   // SQLITE_LOCKED code
		"(522)", // SQLITE_IOERR_SHORT_READ code
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// isUniqueViolation reports whether a write hit a UNIQUE constraint. For
// version appends this means the allocation race was lost; re-reading the
// head and retrying resolves it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// retryOp executes fn with exponential backoff + jitter while retryable
// returns true for the error. If fn succeeds or returns a non-retryable
// error, it returns immediately.
func retryOp(cfg retryConfig, retryable func(error) bool, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt < cfg.maxRetries {
			time.Sleep(backoffDelay(cfg, attempt))
		}
	}

	return lastErr
}

// backoffDelay computes the delay for a given retry attempt using exponential
// backoff with jitter: delay = baseDelay * 2^attempt + random([0, baseDelay)).
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}

	jitter := time.Duration(rand.Int63n(int64(cfg.baseDelay)))

	return delay + jitter
}
