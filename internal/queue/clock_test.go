package queue

import (
	"testing"
	"time"
)

func TestDayOfUsesLocation(t *testing.T) {
	// 2026-03-01 02:30 UTC is still 2026-02-28 in a UTC-6 business zone.
	zone := time.FixedZone("UTC-6", -6*3600)
	instant := time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC)

	got := DayOf(instant, zone)
	want := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DayOf=%v, want %v", got, want)
	}
}

func TestDayOfSameDay(t *testing.T) {
	zone := time.FixedZone("UTC+7", 7*3600)
	morning := time.Date(2026, 5, 10, 1, 0, 0, 0, zone)
	evening := time.Date(2026, 5, 10, 23, 59, 0, 0, zone)
	if !DayOf(morning, zone).Equal(DayOf(evening, zone)) {
		t.Fatalf("expected both instants to map to the same day")
	}
}
