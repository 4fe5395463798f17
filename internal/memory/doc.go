// Package memory samples process or system memory usage and classifies it
// into Normal, High and Critical bands.
//
// # Bands
//
// A band is a pure function of the latest used fraction and two watermarks,
// see [Classify]. There is no hysteresis: a reading that hovers around a
// watermark flips the band on each sample, bounded only by the sample
// interval.
//
//	Normal    usedFraction <  high
//	High      high <= usedFraction < critical
//	Critical  usedFraction >= critical
//
// # Monitor
//
// [Monitor.Band] returns the cached band and samples again at most once per
// SampleInterval. [Monitor.OnBandChange] lets caches react the moment the
// band crosses into Critical; [Monitor.Start] runs a background loop so that
// happens even when no scan is polling.
//
//	monitor, err := memory.NewMonitor(memory.DefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	monitor.OnBandChange(func(_, to memory.Band, _ memory.Status) {
//	    if to == memory.BandCritical {
//	        thumbnails.EvictForPressure()
//	    }
//	})
//	monitor.Start()
//	defer monitor.Stop()
//
// # Samplers
//
// With an explicit limit or GOMEMLIMIT the Go heap (runtime.MemStats.Alloc)
// is measured against it. Without one, system memory is read from
// /proc/meminfo. Tests inject a [SamplerFunc].
//
// # GOMEMLIMIT
//
// [ConfigureFromEnv] derives GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
// (Kubernetes Downward API). An explicit GOMEMLIMIT always wins.
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//	- name: MEMORY_RATIO
//	  value: "0.80"
package memory
