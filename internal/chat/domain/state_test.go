package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func TestNewSessionValidatesDuration(t *testing.T) {
	for _, minutes := range []int{0, 4, 61, -5} {
		_, err := NewSession("ada@example.com", minutes, 299, t0)
		assert.ErrorIs(t, err, ErrInvalidDuration, "duration %d", minutes)
	}

	s, err := NewSession("ada@example.com", 5, 299, t0)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusPending, s.Status)
	assert.Equal(t, int64(1495), s.CreditsUsedCents)
	assert.Nil(t, s.StartedAt)
	assert.Nil(t, s.EndedAt)

	s, err = NewSession("ada@example.com", 60, 299, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(17940), s.CreditsUsedCents)

	_, err = NewSession("  ", 5, 299, t0)
	assert.ErrorIs(t, err, ErrInvalidCustomer)
}

func TestAcceptOnlyFromPending(t *testing.T) {
	s, err := NewSession("ada@example.com", 5, 299, t0)
	require.NoError(t, err)

	require.NoError(t, s.Accept(t0))
	assert.Equal(t, SessionStatusActive, s.Status)
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, t0, *s.StartedAt)
	assert.Equal(t, t0.Add(5*time.Minute), *s.ExpiresAt)

	err = s.Accept(t0.Add(time.Second))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, t0, *s.StartedAt)

	require.NoError(t, s.End(t0.Add(time.Minute), EndReasonByAdvisor))
	assert.ErrorIs(t, s.Accept(t0.Add(2*time.Minute)), ErrInvalidTransition)
}

func TestMaterializeExpiry(t *testing.T) {
	s, err := NewSession("ada@example.com", 5, 299, t0)
	require.NoError(t, err)

	assert.False(t, s.MaterializeExpiry(t0.Add(time.Hour)), "pending sessions never expire")

	require.NoError(t, s.Accept(t0))
	assert.False(t, s.MaterializeExpiry(t0.Add(299*time.Second)))
	assert.Equal(t, SessionStatusActive, s.Status)

	readAt := t0.Add(301 * time.Second)
	assert.True(t, s.MaterializeExpiry(readAt))
	assert.Equal(t, SessionStatusEnded, s.Status)
	assert.Equal(t, EndReasonExpired, s.EndReason)
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, readAt, *s.EndedAt)

	assert.False(t, s.MaterializeExpiry(t0.Add(time.Hour)))
	assert.Equal(t, readAt, *s.EndedAt)
}

func TestMaterializeExpiryAtExactBoundary(t *testing.T) {
	s, err := NewSession("ada@example.com", 5, 299, t0)
	require.NoError(t, err)
	require.NoError(t, s.Accept(t0))

	assert.True(t, s.MaterializeExpiry(t0.Add(5*time.Minute)))
}

func TestEndNeverMovesEndedAt(t *testing.T) {
	s, err := NewSession("ada@example.com", 15, 299, t0)
	require.NoError(t, err)
	require.NoError(t, s.End(t0.Add(time.Minute), EndReasonByAdvisor))
	first := *s.EndedAt

	err = s.End(t0.Add(2*time.Minute), EndReasonByCustomer)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, first, *s.EndedAt)
	assert.Equal(t, EndReasonByAdvisor, s.EndReason)
	assert.Nil(t, s.StartedAt, "ending a pending session never stamps startedAt")
}

func TestStateSequenceIsMonotonic(t *testing.T) {
	s, err := NewSession("ada@example.com", 5, 299, t0)
	require.NoError(t, err)

	seen := []SessionStatus{s.Status}
	require.NoError(t, s.Accept(t0))
	seen = append(seen, s.Status)
	s.MaterializeExpiry(t0.Add(10 * time.Minute))
	seen = append(seen, s.Status)
	_ = s.Accept(t0.Add(11 * time.Minute))
	_ = s.End(t0.Add(11*time.Minute), EndReasonByAdvisor)
	seen = append(seen, s.Status)

	assert.Equal(t, []SessionStatus{SessionStatusPending, SessionStatusActive, SessionStatusEnded, SessionStatusEnded}, seen)
}

func TestRemainingSecondsAndView(t *testing.T) {
	s, err := NewSession("ada@example.com", 5, 299, t0)
	require.NoError(t, err)
	s.ID = 7
	assert.Zero(t, s.RemainingSeconds(t0))

	require.NoError(t, s.Accept(t0))
	assert.Equal(t, int64(300), s.RemainingSeconds(t0))
	assert.Equal(t, int64(60), s.RemainingSeconds(t0.Add(4*time.Minute)))

	view := NewSessionView(s, t0.Add(4*time.Minute))
	assert.True(t, view.GraceWarning)
	assert.Equal(t, "$14.95", view.CreditsUsedDisplay)

	view = NewSessionView(s, t0.Add(time.Minute))
	assert.False(t, view.GraceWarning)
	assert.Equal(t, int64(240), view.RemainingSeconds)
}

func TestNormalizeContent(t *testing.T) {
	got, err := NormalizeContent("  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = NormalizeContent(" \n\t ")
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, err = NormalizeContent(strings.Repeat("✨", MaxContentRunes))
	assert.NoError(t, err, "length counts code points, not bytes")

	_, err = NormalizeContent(strings.Repeat("a", MaxContentRunes+1))
	assert.ErrorIs(t, err, ErrInvalidContent)
}
