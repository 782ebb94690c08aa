// Package slotinfo carries per-session slot granularity through a request.
//
// Shift heatmaps are bucketed into fixed time slots whose width varies per
// uploading facility (15, 20, 30, or 60 minutes). The width is detected from
// the uploaded artifacts and must accompany every computation performed on
// behalf of that session; two concurrent sessions with different widths must
// never observe each other's value. The value travels on the request's
// context.Context.
package slotinfo

import (
	"context"
	"time"
)

// DefaultSlotMinutes is assumed when no slot width was detected.
const DefaultSlotMinutes = 30

// Info describes the slot granularity of one uploaded result set.
type Info struct {
	// SlotMinutes is the slot width in minutes.
	SlotMinutes int `json:"slot_minutes"`

	// SlotHours is the slot width in hours (SlotMinutes / 60).
	SlotHours float64 `json:"slot_hours"`

	// Confidence is the detection confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// AutoDetected reports whether the width came from the artifacts
	// rather than the default.
	AutoDetected bool `json:"auto_detected"`
}

// Default returns the fallback slot configuration: 30-minute slots,
// full confidence, not auto-detected.
func Default() Info {
	return Info{
		SlotMinutes:  DefaultSlotMinutes,
		SlotHours:    float64(DefaultSlotMinutes) / 60.0,
		Confidence:   1.0,
		AutoDetected: false,
	}
}

// New returns an Info for the given slot width with SlotHours derived.
func New(minutes int, confidence float64, autoDetected bool) Info {
	if minutes <= 0 {
		minutes = DefaultSlotMinutes
	}
	return Info{
		SlotMinutes:  minutes,
		SlotHours:    float64(minutes) / 60.0,
		Confidence:   confidence,
		AutoDetected: autoDetected,
	}
}

// SlotDuration returns the slot width as a time.Duration.
func (i Info) SlotDuration() time.Duration {
	return time.Duration(i.SlotMinutes) * time.Minute
}

// SlotsPerDay returns how many slots cover 24 hours.
func (i Info) SlotsPerDay() int {
	if i.SlotMinutes <= 0 {
		return 0
	}
	return (24 * 60) / i.SlotMinutes
}

type contextKey struct{}

// With returns a context carrying the given slot configuration.
func With(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// From returns the slot configuration carried by ctx, or Default() if none
// was set. The second return reports whether a value was present.
func From(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(contextKey{}).(Info)
	if !ok {
		return Default(), false
	}
	return info, true
}
