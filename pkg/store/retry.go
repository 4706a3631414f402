// retry.go retries journal writes that lose a lock race.
//
// A simulation streams its journal while `driftsim log` or `driftsim status`
// may be reading the same WAL-mode database. busy_timeout absorbs most
// SQLITE_BUSY waits inside the driver; what still surfaces (LOCKED, a BUSY
// after the timeout, IOERR_SHORT_READ on a checkpointing WAL) is retried here
// with backoff that gives up as soon as the run's context is cancelled.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// retryConfig controls retry behavior for transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// defaultRetryConfig is used for all store write operations.
var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// transientPatterns match errors whose *sqlite.Error was flattened into text
// before it reached us.
var transientPatterns = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
}

// transientCode reports whether an extended SQLite result code is worth
// another attempt. Extended codes carry the primary code in the low byte.
func transientCode(code int) bool {
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return code == sqlite3.SQLITE_IOERR_SHORT_READ
}

// isTransientSQLiteErr reports whether err is lock contention another attempt
// can resolve. Driver errors are classified by result code; anything else
// falls back to the message.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return transientCode(se.Code())
	}
	msg := err.Error()
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// retryOp runs fn until it succeeds, fails permanently, exhausts cfg, or ctx
// is done. Waits between attempts are logged at debug level under op.
func retryOp(ctx context.Context, cfg retryConfig, logger *zap.Logger, op string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !isTransientSQLiteErr(err) {
			return err
		}
		if attempt >= cfg.maxRetries {
			return fmt.Errorf("gave up after %d attempts: %w", attempt+1, err)
		}
		delay := backoffDelay(cfg, attempt)
		logger.Debug("sqlite contention",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry interrupted (%w): %w", ctx.Err(), err)
		case <-t.C:
		}
	}
}

// backoffDelay is baseDelay * 2^attempt, capped at maxDelay, plus jitter in
// [0, baseDelay).
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay
	for i := 0; i < attempt && delay < cfg.maxDelay; i++ {
		delay *= 2
	}
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	if cfg.baseDelay <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}
