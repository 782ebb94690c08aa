package scenario

import (
	"time"

	"github.com/shiftsuite/shiftboard/pkg/slotinfo"
)

// clockLayouts are the index label formats the analysis engine emits.
var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// DetectSlot infers the slot granularity from a heat table's time index by
// taking the modal gap between consecutive parseable labels. Confidence is
// the share of gaps matching the mode. An unreadable index yields the
// default 30-minute slot with zero confidence.
func DetectSlot(index []string) slotinfo.Info {
	var times []time.Time
	for _, label := range index {
		if t, ok := parseClock(label); ok {
			times = append(times, t)
		}
	}
	if len(times) < 2 {
		return slotinfo.Default()
	}

	gaps := make(map[int]int)
	total := 0
	for i := 1; i < len(times); i++ {
		minutes := int(times[i].Sub(times[i-1]).Minutes())
		if minutes < 0 {
			minutes += 24 * 60 // midnight wrap in clock-only indexes
		}
		if minutes <= 0 || minutes > 12*60 {
			continue
		}
		gaps[minutes]++
		total++
	}
	if total == 0 {
		return slotinfo.Default()
	}

	mode, modeCount := 0, 0
	for minutes, count := range gaps {
		if count > modeCount || (count == modeCount && minutes < mode) {
			mode, modeCount = minutes, count
		}
	}
	confidence := float64(modeCount) / float64(total)
	return slotinfo.New(mode, confidence, true)
}

func parseClock(s string) (time.Time, bool) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
