package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"photo-discovery/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit handed to the Go heap.
// The remainder covers image decoders, goroutine stacks and OS buffers.
const DefaultMemoryRatio = 0.85

// ConfigResult describes what ConfigureFromEnv did.
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "MEMORY_LIMIT", or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from the container memory limit.
// Call it first thing in main, before large allocations.
//
//   - GOMEMLIMIT: if set, left alone and reported
//   - MEMORY_LIMIT: container limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO: heap share of MEMORY_LIMIT, default 0.85
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	containerLimit, ok := containerLimitFromEnv()
	if !ok {
		return ConfigResult{Source: "none"}
	}

	ratio := ratioFromEnv()
	goMemLimit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		formatBytes(goMemLimit), ratio*100, formatBytes(containerLimit))

	return ConfigResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: containerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

func containerLimitFromEnv() (int64, bool) {
	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return 0, false
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		logging.Warn("Ignoring MEMORY_LIMIT %q: not a positive byte count", raw)
		return 0, false
	}
	return limit, true
}

func ratioFromEnv() float64 {
	raw := os.Getenv("MEMORY_RATIO")
	if raw == "" {
		return DefaultMemoryRatio
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio <= 0 || ratio > 1 {
		logging.Warn("Ignoring MEMORY_RATIO %q (want 0.0-1.0), using default %.2f", raw, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return ratio
}

// formatBytes formats bytes using binary units.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
