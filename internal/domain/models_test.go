package domain

import (
	"errors"
	"testing"
	"time"
)

func mustSlot(t *testing.T, start, end string) TimeSlot {
	t.Helper()
	s, err := time.Parse("2006-01-02 15:04", start)
	if err != nil {
		t.Fatal(err)
	}
	e, err := time.Parse("2006-01-02 15:04", end)
	if err != nil {
		t.Fatal(err)
	}
	slot, err := NewTimeSlot(1, KindOffer, s, e)
	if err != nil {
		t.Fatalf("NewTimeSlot(%s, %s): %v", start, end, err)
	}
	return slot
}

func TestNewTimeSlot_Validation(t *testing.T) {
	s := time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC)

	if _, err := NewTimeSlot(1, KindRequest, s, s.Add(2*time.Hour)); err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
	if _, err := NewTimeSlot(1, KindRequest, s, s); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("start == end: got %v, want ErrInvalidRange", err)
	}
	if _, err := NewTimeSlot(1, KindRequest, s, s.Add(-time.Hour)); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("end before start: got %v, want ErrInvalidRange", err)
	}
	// конец на следующий день
	if _, err := NewTimeSlot(1, KindRequest, s.Add(14*time.Hour), s.Add(16*time.Hour)); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("cross-day range: got %v, want ErrInvalidRange", err)
	}
}

func TestOverlaps(t *testing.T) {
	base := mustSlot(t, "2024-06-20 09:00", "2024-06-20 12:00")

	cases := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"inside", "2024-06-20 10:00", "2024-06-20 11:00", true},
		{"covers", "2024-06-20 08:00", "2024-06-20 13:00", true},
		{"left edge", "2024-06-20 08:00", "2024-06-20 10:00", true},
		{"right edge", "2024-06-20 11:00", "2024-06-20 13:00", true},
		{"touching start", "2024-06-20 08:00", "2024-06-20 09:00", true},
		{"touching end", "2024-06-20 12:00", "2024-06-20 13:00", true},
		{"before", "2024-06-20 07:00", "2024-06-20 08:30", false},
		{"after", "2024-06-20 12:30", "2024-06-20 14:00", false},
	}
	for _, tc := range cases {
		other := mustSlot(t, tc.start, tc.end)
		if got := base.Overlaps(other); got != tc.want {
			t.Errorf("%s: base.Overlaps(other) = %v, want %v", tc.name, got, tc.want)
		}
		// симметрия
		if got := other.Overlaps(base); got != tc.want {
			t.Errorf("%s: other.Overlaps(base) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMarkMatched_OneWay(t *testing.T) {
	slot := mustSlot(t, "2024-06-20 09:00", "2024-06-20 12:00")

	if err := slot.MarkMatched(42); err != nil {
		t.Fatalf("first MarkMatched: %v", err)
	}
	if !slot.Matched || slot.MatchedUserID == nil || *slot.MatchedUserID != 42 {
		t.Errorf("slot not marked: %+v", slot)
	}
	if err := slot.MarkMatched(43); !errors.Is(err, ErrAlreadyMatched) {
		t.Errorf("second MarkMatched: got %v, want ErrAlreadyMatched", err)
	}
	if *slot.MatchedUserID != 42 {
		t.Errorf("counterpart overwritten: %d", *slot.MatchedUserID)
	}
}

func TestSlotKindOpposite(t *testing.T) {
	if KindOffer.Opposite() != KindRequest || KindRequest.Opposite() != KindOffer {
		t.Error("Opposite is not an involution")
	}
}
