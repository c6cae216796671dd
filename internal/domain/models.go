package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidRange         = errors.New("invalid time range")
	ErrInvalidFormat        = errors.New("invalid time slot format")
	ErrAlreadyMatched       = errors.New("slot already matched")
	ErrConcurrentMatch      = errors.New("slot was matched concurrently")
	ErrCandidateGone        = errors.New("candidate slot no longer available")
	ErrNoOverlappingRequest = errors.New("no overlapping request slot")
	ErrNotFound             = errors.New("not found")
)

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	CreatedAt  time.Time
}

// Handle возвращает username для отображения в сообщениях.
func (u User) Handle() string {
	if u.Username == "" {
		return "unknown"
	}
	return u.Username
}

type SlotKind string

const (
	KindOffer   SlotKind = "offer"
	KindRequest SlotKind = "request"
)

func (k SlotKind) Opposite() SlotKind {
	if k == KindOffer {
		return KindRequest
	}
	return KindOffer
}

// TimeSlot — один непрерывный интервал в пределах одного дня,
// в котором пользователь просит помощь или готов помочь.
type TimeSlot struct {
	ID            int64
	UserID        int64
	Kind          SlotKind
	Start         time.Time
	End           time.Time
	Matched       bool
	MatchedUserID *int64
	CreatedAt     time.Time
}

func NewTimeSlot(userID int64, kind SlotKind, start, end time.Time) (TimeSlot, error) {
	if !end.After(start) {
		return TimeSlot{}, ErrInvalidRange
	}
	y1, m1, d1 := start.Date()
	y2, m2, d2 := end.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return TimeSlot{}, ErrInvalidRange
	}
	return TimeSlot{UserID: userID, Kind: kind, Start: start, End: end}, nil
}

// Overlaps: границы включительно, касание концов считается пересечением.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return !s.Start.After(other.End) && !other.Start.After(s.End)
}

// MarkMatched переводит слот в matched. Переход одноразовый.
func (s *TimeSlot) MarkMatched(counterpartUserID int64) error {
	if s.Matched {
		return ErrAlreadyMatched
	}
	s.Matched = true
	s.MatchedUserID = &counterpartUserID
	return nil
}
