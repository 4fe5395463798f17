package filesystem

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"photo-discovery/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	// ESTALE is errno 116 on Linux
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// withRetry runs fn, retrying only on ESTALE with capped exponential backoff.
// Any other error is returned immediately and unmodified.
func withRetry[T any](ctx context.Context, operation, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	obs := observe()
	backoff := config.InitialBackoff

	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("NFS %s succeeded on retry %d for %s", operation, attempt, path)
				if obs != nil {
					obs.ObserveRetrySuccess(operation)
				}
			}
			if obs != nil {
				obs.ObserveOperation(operation, time.Since(start).Seconds(), nil)
			}
			return result, nil
		}

		lastErr = err

		if !isNFSStaleError(err) {
			if obs != nil {
				obs.ObserveOperation(operation, time.Since(start).Seconds(), err)
			}
			return zero, err
		}

		if obs != nil {
			obs.ObserveStaleError(operation)
		}

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			if obs != nil {
				obs.ObserveRetryAttempt(operation)
			}
			logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
				operation, path, backoff, attempt+1, config.MaxRetries)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				if obs != nil {
					obs.ObserveOperation(operation, time.Since(start).Seconds(), ctx.Err())
				}
				return zero, lastErr
			case <-timer.C:
			}

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("NFS %s failed after %d retries for %s: %v", operation, config.MaxRetries, path, lastErr)
	if obs != nil {
		obs.ObserveRetryFailure(operation)
		obs.ObserveOperation(operation, time.Since(start).Seconds(), lastErr)
	}
	return zero, lastErr
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(ctx context.Context, path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry(ctx, "stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(ctx context.Context, path string, config RetryConfig) (*os.File, error) {
	return withRetry(ctx, "open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// ReadDirWithRetry performs os.ReadDir with retry logic for NFS stale file handle errors.
// Like os.ReadDir, the result is sorted by filename.
func ReadDirWithRetry(ctx context.Context, path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry(ctx, "readdir", path, config, func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}
