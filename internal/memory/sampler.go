package memory

import (
	"errors"
	"math"
	"runtime"
	"runtime/debug"

	"github.com/prometheus/procfs"

	"photo-discovery/internal/logging"
)

// ErrNoLimit is returned by samplers that have nothing to measure against.
var ErrNoLimit = errors.New("memory: no memory limit available")

// Sampler reads current memory usage and the limit it is measured against.
type Sampler interface {
	Sample() (usedBytes, limitBytes uint64, err error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (usedBytes, limitBytes uint64, err error)

// Sample implements Sampler.
func (f SamplerFunc) Sample() (uint64, uint64, error) {
	return f()
}

// RuntimeSampler measures Go heap allocation against a fixed byte limit.
type RuntimeSampler struct {
	LimitBytes int64
}

// Sample implements Sampler.
func (s RuntimeSampler) Sample() (uint64, uint64, error) {
	if s.LimitBytes <= 0 {
		return 0, 0, ErrNoLimit
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc, uint64(s.LimitBytes), nil
}

// SystemSampler measures system-wide memory from /proc/meminfo.
type SystemSampler struct {
	fs procfs.FS
}

// NewSystemSampler opens the default procfs mount.
func NewSystemSampler() (*SystemSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	return &SystemSampler{fs: fs}, nil
}

// Sample implements Sampler. Used memory is MemTotal - MemAvailable.
func (s *SystemSampler) Sample() (uint64, uint64, error) {
	info, err := s.fs.Meminfo()
	if err != nil {
		return 0, 0, err
	}
	if info.MemTotal == nil || info.MemAvailable == nil || *info.MemTotal == 0 {
		return 0, 0, ErrNoLimit
	}
	total := *info.MemTotal * 1024
	available := *info.MemAvailable * 1024
	if available > total {
		available = total
	}
	return total - available, total, nil
}

// NewSampler picks a sampler for the given limit: an explicit limit or
// GOMEMLIMIT measures the Go heap, otherwise system memory is used.
func NewSampler(limitBytes int64) Sampler {
	if limitBytes == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < math.MaxInt64 {
			limitBytes = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", formatBytes(limitBytes))
		}
	}
	if limitBytes > 0 {
		return RuntimeSampler{LimitBytes: limitBytes}
	}

	sys, err := NewSystemSampler()
	if err != nil {
		logging.Warn("Memory monitor: no memory limit configured and procfs unavailable (%v), pressure handling disabled", err)
		return SamplerFunc(func() (uint64, uint64, error) { return 0, 0, ErrNoLimit })
	}
	logging.Info("Memory monitor using system memory from /proc/meminfo")
	return sys
}
