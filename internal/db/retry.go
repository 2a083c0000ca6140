package db

import (
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// retryConfig controls retries of transient SQLite errors on writes.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// isTransient matches the busy/locked/short-read failures modernc.org/sqlite
// reports under WAL contention.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",
		"(6)",
		"(522)",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// policy is exponential backoff from baseDelay, doubling up to maxDelay with
// +/-50% jitter, for at most maxRetries retries.
func (cfg retryConfig) policy() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.baseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxInterval = cfg.maxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(cfg.maxRetries))
}

// retryOp retries fn while it fails transiently. Other errors return at once.
func retryOp(cfg retryConfig, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, cfg.policy())
}

func withRetry(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}
