package server

import (
	"testing"
	"time"
)

// TestMemoryMonitorCallbacks verifies the soft and hard callbacks fire for
// the right limits on a forced check.
func TestMemoryMonitorCallbacks(t *testing.T) {
	var softHits, hardHits int

	m := NewMemoryMonitor(&MemoryMonitorConfig{
		SoftLimit:     1, // any live heap exceeds this
		HardLimit:     1 << 50,
		CheckInterval: time.Hour,
		GCCooldown:    time.Hour,
	})
	m.SetOnSoftLimit(func(current, limit int64) { softHits++ })
	m.SetOnHardLimit(func(current, limit int64) { hardHits++ })

	m.ForceCheck()
	if softHits != 1 || hardHits != 0 {
		t.Errorf("soft=%d hard=%d, want soft=1 hard=0", softHits, hardHits)
	}

	m = NewMemoryMonitor(&MemoryMonitorConfig{
		SoftLimit:     1,
		HardLimit:     1,
		CheckInterval: time.Hour,
		GCCooldown:    time.Hour,
	})
	m.SetOnSoftLimit(func(current, limit int64) { softHits++ })
	m.SetOnHardLimit(func(current, limit int64) { hardHits++ })

	m.ForceCheck()
	if hardHits != 1 {
		t.Errorf("hard=%d, want 1", hardHits)
	}
}

// TestMemoryMonitorBelowLimits verifies no callback fires under huge limits.
func TestMemoryMonitorBelowLimits(t *testing.T) {
	m := NewMemoryMonitor(&MemoryMonitorConfig{
		SoftLimit:     1 << 50,
		HardLimit:     1 << 51,
		CheckInterval: time.Hour,
		GCCooldown:    time.Hour,
	})
	fired := false
	m.SetOnSoftLimit(func(current, limit int64) { fired = true })
	m.SetOnHardLimit(func(current, limit int64) { fired = true })

	m.ForceCheck()
	if fired {
		t.Error("callback fired below both limits")
	}
}

// TestMemoryMonitorStartStop verifies the sampling loop starts and stops
// cleanly and Pause suppresses checks.
func TestMemoryMonitorStartStop(t *testing.T) {
	hits := make(chan struct{}, 8)
	m := NewMemoryMonitor(&MemoryMonitorConfig{
		SoftLimit:     1,
		HardLimit:     1 << 50,
		CheckInterval: 5 * time.Millisecond,
		GCCooldown:    time.Hour,
	})
	m.SetOnSoftLimit(func(current, limit int64) {
		select {
		case hits <- struct{}{}:
		default:
		}
	})

	m.Pause()
	m.Start()
	select {
	case <-hits:
		t.Fatal("check fired while paused")
	case <-time.After(30 * time.Millisecond):
	}

	m.Resume()
	select {
	case <-hits:
	case <-time.After(time.Second):
		t.Fatal("no check after Resume")
	}
	m.Stop()
}

// TestDefaultMemoryMonitorConfig verifies the derived limits are ordered.
func TestDefaultMemoryMonitorConfig(t *testing.T) {
	config := DefaultMemoryMonitorConfig()
	if config.SoftLimit <= 0 || config.HardLimit <= config.SoftLimit {
		t.Errorf("limits = soft %d hard %d", config.SoftLimit, config.HardLimit)
	}
}
