package scenario

import "testing"

// TestDetectSlot covers common granularities, mixed gaps, midnight wrap,
// and unparseable indexes.
func TestDetectSlot(t *testing.T) {
	tests := []struct {
		name         string
		index        []string
		wantMinutes  int
		wantDetected bool
	}{
		{
			name:         "fifteen minute clock",
			index:        []string{"09:00", "09:15", "09:30", "09:45"},
			wantMinutes:  15,
			wantDetected: true,
		},
		{
			name:         "hourly datetimes",
			index:        []string{"2024-06-01 08:00:00", "2024-06-01 09:00:00", "2024-06-01 10:00:00"},
			wantMinutes:  60,
			wantDetected: true,
		},
		{
			name:         "mixed gaps pick the mode",
			index:        []string{"09:00", "09:30", "10:00", "10:30", "12:00"},
			wantMinutes:  30,
			wantDetected: true,
		},
		{
			name:         "midnight wrap",
			index:        []string{"23:00", "23:30", "00:00", "00:30"},
			wantMinutes:  30,
			wantDetected: true,
		},
		{
			name:         "unparseable labels fall back",
			index:        []string{"slot-a", "slot-b", "slot-c"},
			wantMinutes:  30,
			wantDetected: false,
		},
		{
			name:         "empty index falls back",
			index:        nil,
			wantMinutes:  30,
			wantDetected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectSlot(tt.index)
			if got.SlotMinutes != tt.wantMinutes {
				t.Errorf("SlotMinutes = %d, want %d", got.SlotMinutes, tt.wantMinutes)
			}
			if got.AutoDetected != tt.wantDetected {
				t.Errorf("AutoDetected = %v, want %v", got.AutoDetected, tt.wantDetected)
			}
		})
	}
}

// TestDetectSlotConfidence verifies confidence reflects the share of gaps
// agreeing with the mode.
func TestDetectSlotConfidence(t *testing.T) {
	// Three 30-minute gaps, one 90-minute gap.
	got := DetectSlot([]string{"09:00", "09:30", "10:00", "10:30", "12:00"})
	want := 3.0 / 4.0
	if got.Confidence != want {
		t.Errorf("Confidence = %v, want %v", got.Confidence, want)
	}
}
