package core

import (
	"testing"
	"time"
)

func TestPeriodKey(t *testing.T) {
	ref := time.Date(2024, 1, 15, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		period Period
		want   string
	}{
		{Daily, "2024-01-15"},
		{Weekly, "2024-W03"},
		{Monthly, "2024-01"},
		{Yearly, "2024"},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			if got := tt.period.Key(ref); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPeriodKeyISOWeekYearBoundary(t *testing.T) {
	// 2024-12-30 belongs to ISO week 1 of 2025.
	ref := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	if got := Weekly.Key(ref); got != "2025-W01" {
		t.Fatalf("Key() = %q, want 2025-W01", got)
	}
}

func TestPeriodLookbackStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		period Period
		want   time.Time
	}{
		{Daily, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)},
		{Weekly, time.Date(2024, 3, 23, 0, 0, 0, 0, time.UTC)},
		{Monthly, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)},
		{Yearly, time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			if got := tt.period.LookbackStart(now); !got.Equal(tt.want) {
				t.Errorf("LookbackStart() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeriodValid(t *testing.T) {
	for _, p := range []Period{Daily, Weekly, Monthly, Yearly} {
		if !p.Valid() {
			t.Errorf("%q should be valid", p)
		}
	}
	if Period("hourly").Valid() {
		t.Error("hourly should not be valid")
	}
}
