package memory

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"photo-discovery/internal/logging"
	"photo-discovery/internal/metrics"
)

// ErrInvalidThresholds is returned by Config.Validate for out-of-range watermarks or interval.
var ErrInvalidThresholds = errors.New("memory: invalid monitor configuration")

// Band classifies memory usage relative to the configured watermarks.
type Band int

const (
	// BandNormal means usage is below the high watermark.
	BandNormal Band = iota
	// BandHigh means usage is at or above the high watermark.
	BandHigh
	// BandCritical means usage is at or above the critical watermark.
	BandCritical
)

func (b Band) String() string {
	switch b {
	case BandNormal:
		return "normal"
	case BandHigh:
		return "high"
	case BandCritical:
		return "critical"
	default:
		return fmt.Sprintf("band(%d)", int(b))
	}
}

// Classify maps a used fraction onto a band. It is a pure function of its
// arguments; fractions outside [0,1] are clamped.
func Classify(usedFraction, highWaterMark, criticalWaterMark float64) Band {
	usedFraction = clampFraction(usedFraction)
	switch {
	case usedFraction >= criticalWaterMark:
		return BandCritical
	case usedFraction >= highWaterMark:
		return BandHigh
	default:
		return BandNormal
	}
}

func clampFraction(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Status is one memory sample.
type Status struct {
	UsedFraction float64
	Band         Band
	UsedBytes    uint64
	LimitBytes   uint64
	SampledAt    time.Time
}

// Config holds memory management configuration
type Config struct {
	// MemoryLimitBytes is the soft memory limit (0 = use GOMEMLIMIT, then system memory)
	MemoryLimitBytes int64

	// HighWaterMark is the fraction of the limit at which work is throttled (0.0-1.0)
	HighWaterMark float64

	// CriticalWaterMark is the fraction at which caches are evicted and scans pause (0.0-1.0)
	CriticalWaterMark float64

	// SampleInterval bounds how often Band takes a fresh sample
	SampleInterval time.Duration
}

// DefaultConfig returns sensible defaults for memory management
func DefaultConfig() Config {
	return Config{
		MemoryLimitBytes:  0,
		HighWaterMark:     0.70,
		CriticalWaterMark: 0.85,
		SampleInterval:    time.Second,
	}
}

// Validate checks 0 < high < critical <= 1 and a positive interval.
func (c Config) Validate() error {
	if c.HighWaterMark <= 0 || c.HighWaterMark >= c.CriticalWaterMark || c.CriticalWaterMark > 1 {
		return fmt.Errorf("%w: need 0 < high (%.2f) < critical (%.2f) <= 1",
			ErrInvalidThresholds, c.HighWaterMark, c.CriticalWaterMark)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("%w: sample interval must be positive, got %v", ErrInvalidThresholds, c.SampleInterval)
	}
	if c.MemoryLimitBytes < 0 {
		return fmt.Errorf("%w: negative memory limit %d", ErrInvalidThresholds, c.MemoryLimitBytes)
	}
	return nil
}

// BandChangeFunc is called after the band changes. It runs on the goroutine
// that took the sample and must not block.
type BandChangeFunc func(from, to Band, status Status)

// Monitor samples memory usage and classifies it into bands.
type Monitor struct {
	config  Config
	sampler Sampler
	now     func() time.Time

	mu          sync.Mutex
	last        Status
	hasSample   bool
	lastAttempt time.Time
	listeners   []BandChangeFunc

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor. A nil sampler selects one from the config
// via NewSampler.
func NewMonitor(config Config, sampler Sampler) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if sampler == nil {
		sampler = NewSampler(config.MemoryLimitBytes)
	}

	return &Monitor{
		config:   config,
		sampler:  sampler,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}, nil
}

// Config returns the monitor's configuration.
func (m *Monitor) Config() Config {
	return m.config
}

// OnBandChange registers a callback fired on every band transition.
func (m *Monitor) OnBandChange(fn BandChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Sample takes a fresh reading. If the sampler fails, the previous status is
// returned unchanged (Normal before the first successful sample).
func (m *Monitor) Sample() Status {
	used, limit, err := m.sampler.Sample()

	m.mu.Lock()
	m.lastAttempt = m.now()
	if err != nil {
		status := m.last
		m.mu.Unlock()
		logging.Debug("Memory sample failed: %v", err)
		return status
	}

	var fraction float64
	if limit > 0 {
		fraction = clampFraction(float64(used) / float64(limit))
	}
	status := Status{
		UsedFraction: fraction,
		Band:         Classify(fraction, m.config.HighWaterMark, m.config.CriticalWaterMark),
		UsedBytes:    used,
		LimitBytes:   limit,
		SampledAt:    m.now(),
	}

	previous := m.last.Band
	changed := m.hasSample && previous != status.Band || !m.hasSample && status.Band != BandNormal
	m.last = status
	m.hasSample = true
	var listeners []BandChangeFunc
	if changed {
		listeners = append(listeners, m.listeners...)
	}
	m.mu.Unlock()

	metrics.MemorySamplesTotal.Inc()
	metrics.MemoryUsageRatio.Set(status.UsedFraction)
	metrics.MemoryBand.Set(float64(status.Band))

	if changed {
		m.logTransition(previous, status)
		metrics.MemoryBandTransitions.WithLabelValues(status.Band.String()).Inc()
		for _, fn := range listeners {
			fn(previous, status.Band, status)
		}
	}
	return status
}

func (m *Monitor) logTransition(from Band, status Status) {
	switch {
	case status.Band == BandCritical:
		logging.Warn("Memory critical (%.1f%% of limit), evicting caches and pausing scans", status.UsedFraction*100)
		go runtime.GC()
	case status.Band > from:
		logging.Warn("Memory high (%.1f%% of limit), throttling read-ahead", status.UsedFraction*100)
	default:
		logging.Info("Memory recovered to %s (%.1f%% of limit)", status.Band, status.UsedFraction*100)
	}
}

// Status returns the latest sample without taking a new one.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Band returns the band of the latest sample, sampling again only when the
// last attempt is older than SampleInterval. A failing sampler is retried at
// the same pace.
func (m *Monitor) Band() Band {
	m.mu.Lock()
	fresh := !m.lastAttempt.IsZero() && m.now().Sub(m.lastAttempt) < m.config.SampleInterval
	band := m.last.Band
	m.mu.Unlock()

	if fresh {
		return band
	}
	return m.Sample().Band
}

// Critical reports whether the current band is Critical.
func (m *Monitor) Critical() bool {
	return m.Band() == BandCritical
}

// Start samples on every SampleInterval in the background so band-change
// callbacks fire even when nothing else is asking.
func (m *Monitor) Start() {
	go m.monitorLoop()
}

// Stop stops the background loop. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.SampleInterval)
	defer ticker.Stop()

	m.Sample()
	for {
		select {
		case <-ticker.C:
			m.Sample()
		case <-m.stopChan:
			return
		}
	}
}
