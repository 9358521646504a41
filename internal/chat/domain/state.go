package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// NewSession builds a pending session priced at ratePerMinuteCents.
func NewSession(customerID string, durationMinutes int, ratePerMinuteCents int64, now time.Time) (*ChatSession, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrInvalidCustomer
	}
	if err := ValidateDuration(durationMinutes); err != nil {
		return nil, err
	}
	if ratePerMinuteCents <= 0 {
		return nil, ErrInvalidRate
	}
	return &ChatSession{
		CustomerID:         customerID,
		Status:             SessionStatusPending,
		DurationMinutes:    durationMinutes,
		RatePerMinuteCents: ratePerMinuteCents,
		CreditsUsedCents:   Cost(durationMinutes, ratePerMinuteCents),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func ValidateDuration(durationMinutes int) error {
	if durationMinutes < MinDurationMinutes || durationMinutes > MaxDurationMinutes {
		return ErrInvalidDuration
	}
	return nil
}

func Cost(durationMinutes int, ratePerMinuteCents int64) int64 {
	return int64(durationMinutes) * ratePerMinuteCents
}

func (s *ChatSession) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Accept moves a pending session to active and starts its clock.
func (s *ChatSession) Accept(now time.Time) error {
	if s.Status != SessionStatusPending {
		return transitionError(s.Status, SessionStatusActive)
	}
	started := now
	expires := now.Add(s.Duration())
	s.Status = SessionStatusActive
	s.StartedAt = &started
	s.ExpiresAt = &expires
	s.UpdatedAt = now
	return nil
}

// MaterializeExpiry ends an active session whose time has run out.
// It reports whether the session changed.
func (s *ChatSession) MaterializeExpiry(now time.Time) bool {
	if s.Status != SessionStatusActive || s.StartedAt == nil {
		return false
	}
	if now.Before(s.StartedAt.Add(s.Duration())) {
		return false
	}
	ended := now
	s.Status = SessionStatusEnded
	s.EndedAt = &ended
	s.EndReason = EndReasonExpired
	s.UpdatedAt = now
	return true
}

// End terminates a pending or active session. Ending an ended session fails
// and leaves EndedAt untouched.
func (s *ChatSession) End(now time.Time, reason EndReason) error {
	if s.Status == SessionStatusEnded {
		return transitionError(s.Status, SessionStatusEnded)
	}
	s.Status = SessionStatusEnded
	if s.EndedAt == nil {
		ended := now
		s.EndedAt = &ended
	}
	s.EndReason = reason
	s.UpdatedAt = now
	return nil
}

// RemainingSeconds is the time left on an active session, zero otherwise.
func (s *ChatSession) RemainingSeconds(now time.Time) int64 {
	if s.Status != SessionStatusActive || s.StartedAt == nil {
		return 0
	}
	remaining := s.StartedAt.Add(s.Duration()).Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

func (s *ChatSession) OwnedBy(customerID string) bool {
	return s.CustomerID == strings.TrimSpace(customerID)
}

// NormalizeContent trims the message and checks its length in code points.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 || n > MaxContentRunes {
		return "", ErrInvalidContent
	}
	return trimmed, nil
}

func transitionError(from, to SessionStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
