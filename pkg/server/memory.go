package server

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryMonitor watches heap usage and triggers session shedding when
// configured limits are crossed. Loaded dataset tables dominate the heap,
// so shedding sessions is the one lever that actually frees memory.
type MemoryMonitor struct {
	softLimit     int64
	hardLimit     int64
	checkInterval time.Duration
	gcCooldown    time.Duration

	lastGC time.Time
	paused atomic.Bool

	onSoftLimit func(current, limit int64)
	onHardLimit func(current, limit int64)

	done   chan struct{}
	ticker *time.Ticker
	mu     sync.Mutex
}

// MemoryMonitorConfig configures the memory monitor.
type MemoryMonitorConfig struct {
	// SoftLimit is the heap size at which sessions start being shed.
	// Default: 80% of memory the runtime has obtained from the OS.
	SoftLimit int64

	// HardLimit is the heap size at which shedding turns aggressive and a
	// GC may be forced. Default: 90%.
	HardLimit int64

	// CheckInterval is how often the heap is sampled. Default: 10s.
	CheckInterval time.Duration

	// GCCooldown is the minimum time between forced GCs. Default: 30s.
	GCCooldown time.Duration
}

// DefaultMemoryMonitorConfig returns limits derived from the memory the
// runtime currently holds, falling back to a 4GB baseline.
func DefaultMemoryMonitorConfig() *MemoryMonitorConfig {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	systemMem := int64(memStats.Sys)
	if systemMem == 0 {
		systemMem = 4 << 30
	}

	return &MemoryMonitorConfig{
		SoftLimit:     systemMem * 80 / 100,
		HardLimit:     systemMem * 90 / 100,
		CheckInterval: 10 * time.Second,
		GCCooldown:    30 * time.Second,
	}
}

// NewMemoryMonitor creates a memory monitor. A nil config uses defaults.
func NewMemoryMonitor(config *MemoryMonitorConfig) *MemoryMonitor {
	if config == nil {
		config = DefaultMemoryMonitorConfig()
	}

	return &MemoryMonitor{
		softLimit:     config.SoftLimit,
		hardLimit:     config.HardLimit,
		checkInterval: config.CheckInterval,
		gcCooldown:    config.GCCooldown,
		done:          make(chan struct{}),
	}
}

// SetOnSoftLimit sets the callback for soft limit breach.
func (m *MemoryMonitor) SetOnSoftLimit(fn func(current, limit int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSoftLimit = fn
}

// SetOnHardLimit sets the callback for hard limit breach.
func (m *MemoryMonitor) SetOnHardLimit(fn func(current, limit int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onHardLimit = fn
}

// Start begins sampling in the background.
func (m *MemoryMonitor) Start() {
	m.ticker = time.NewTicker(m.checkInterval)

	go func() {
		for {
			select {
			case <-m.ticker.C:
				if !m.paused.Load() {
					m.check()
				}
			case <-m.done:
				return
			}
		}
	}()
}

// Stop stops the monitor.
func (m *MemoryMonitor) Stop() {
	close(m.done)
	if m.ticker != nil {
		m.ticker.Stop()
	}
}

// Pause temporarily suspends checks, e.g. while extracting a large archive.
func (m *MemoryMonitor) Pause() {
	m.paused.Store(true)
}

// Resume re-enables checks.
func (m *MemoryMonitor) Resume() {
	m.paused.Store(false)
}

// ForceCheck performs an immediate check.
func (m *MemoryMonitor) ForceCheck() {
	m.check()
}

func (m *MemoryMonitor) check() {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := CurrentMemoryUsage()

	if current >= m.hardLimit {
		if m.onHardLimit != nil {
			m.onHardLimit(current, m.hardLimit)
		}
		m.maybeGC()
		return
	}

	if current >= m.softLimit {
		if m.onSoftLimit != nil {
			m.onSoftLimit(current, m.softLimit)
		}
	}
}

func (m *MemoryMonitor) maybeGC() {
	if time.Since(m.lastGC) >= m.gcCooldown {
		runtime.GC()
		m.lastGC = time.Now()
	}
}

// CurrentMemoryUsage returns the current heap allocation in bytes.
func CurrentMemoryUsage() int64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return int64(memStats.HeapAlloc)
}

// TotalSystemMemory returns the bytes the runtime has obtained from the OS.
func TotalSystemMemory() int64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return int64(memStats.Sys)
}
