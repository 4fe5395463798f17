package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// EnvOverride names the environment variable that overrides worker counts.
const EnvOverride = "ARTIFACT_WORKERS"

// Count returns the optimal number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier is 1.0 for CPU-bound work such as decoding and 2.0 for
// work that mostly waits on disk or the database.
//
// The limit parameter caps the worker count to prevent resource exhaustion.
// Use 0 for no limit.
//
// Can be overridden with the ARTIFACT_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	// GOMAXPROCS is automatically set to container CPU limit in Go 1.19+
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
// The limit parameter caps the maximum number of workers.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
// The limit parameter caps the maximum number of workers.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// Group returns an errgroup running at most n tasks at once. The returned
// context is cancelled when the first task fails.
func Group(ctx context.Context, n int) (*errgroup.Group, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(n, 1))
	return g, ctx
}
