package slotinfo

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestDefault tests the documented fallback values.
func TestDefault(t *testing.T) {
	info := Default()
	if info.SlotMinutes != 30 {
		t.Errorf("SlotMinutes = %d, want 30", info.SlotMinutes)
	}
	if info.SlotHours != 0.5 {
		t.Errorf("SlotHours = %v, want 0.5", info.SlotHours)
	}
	if info.AutoDetected {
		t.Error("default must not be auto-detected")
	}
	if info.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", info.Confidence)
	}
}

// TestNewDerivesHours tests SlotHours derivation and the zero-width guard.
func TestNewDerivesHours(t *testing.T) {
	tests := []struct {
		minutes   int
		wantMin   int
		wantHours float64
	}{
		{15, 15, 0.25},
		{20, 20, 20.0 / 60.0},
		{60, 60, 1.0},
		{0, 30, 0.5},
		{-5, 30, 0.5},
	}

	for _, tt := range tests {
		info := New(tt.minutes, 0.9, true)
		if info.SlotMinutes != tt.wantMin {
			t.Errorf("New(%d).SlotMinutes = %d, want %d", tt.minutes, info.SlotMinutes, tt.wantMin)
		}
		if info.SlotHours != tt.wantHours {
			t.Errorf("New(%d).SlotHours = %v, want %v", tt.minutes, info.SlotHours, tt.wantHours)
		}
	}
}

// TestSlotsPerDay tests the day coverage helper.
func TestSlotsPerDay(t *testing.T) {
	if got := New(30, 1, false).SlotsPerDay(); got != 48 {
		t.Errorf("SlotsPerDay(30) = %d, want 48", got)
	}
	if got := New(15, 1, false).SlotsPerDay(); got != 96 {
		t.Errorf("SlotsPerDay(15) = %d, want 96", got)
	}
	if got := (Info{}).SlotsPerDay(); got != 0 {
		t.Errorf("SlotsPerDay(zero) = %d, want 0", got)
	}
}

// TestSlotDuration tests the duration conversion.
func TestSlotDuration(t *testing.T) {
	if got := New(20, 1, true).SlotDuration(); got != 20*time.Minute {
		t.Errorf("SlotDuration = %v, want 20m", got)
	}
}

// TestContextRoundTrip tests With/From propagation.
func TestContextRoundTrip(t *testing.T) {
	info := New(15, 0.95, true)
	ctx := With(context.Background(), info)

	got, ok := From(ctx)
	if !ok {
		t.Fatal("From reported no value on carrying context")
	}
	if got != info {
		t.Errorf("From = %+v, want %+v", got, info)
	}
}

// TestContextMissingFallsBack tests the default for bare contexts.
func TestContextMissingFallsBack(t *testing.T) {
	got, ok := From(context.Background())
	if ok {
		t.Error("From reported a value on empty context")
	}
	if got != Default() {
		t.Errorf("From fallback = %+v, want Default()", got)
	}
}

// TestContextIsolation tests that concurrent requests with different slot
// widths never observe each other's value.
func TestContextIsolation(t *testing.T) {
	widths := []int{15, 20, 30}

	var wg sync.WaitGroup
	for _, w := range widths {
		wg.Add(1)
		go func(minutes int) {
			defer wg.Done()
			ctx := With(context.Background(), New(minutes, 0.9, true))
			time.Sleep(10 * time.Millisecond)
			got, _ := From(ctx)
			if got.SlotMinutes != minutes {
				t.Errorf("observed SlotMinutes = %d, want %d", got.SlotMinutes, minutes)
			}
		}(w)
	}
	wg.Wait()
}
