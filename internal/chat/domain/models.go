package domain

import (
	"time"
)

const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 60
	MaxContentRunes    = 2000

	// GraceWarningSeconds is the remaining time below which clients warn the customer.
	GraceWarningSeconds = 60
)

type SessionStatus string

const (
	SessionStatusPending SessionStatus = "pending"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEnded   SessionStatus = "ended"
)

func ParseSessionStatus(raw string) (SessionStatus, bool) {
	switch SessionStatus(raw) {
	case SessionStatusPending, SessionStatusActive, SessionStatusEnded:
		return SessionStatus(raw), true
	default:
		return "", false
	}
}

type EndReason string

const (
	EndReasonNone       EndReason = ""
	EndReasonExpired    EndReason = "expired"
	EndReasonByAdvisor  EndReason = "ended_by_advisor"
	EndReasonByCustomer EndReason = "ended_by_customer"
)

type SenderRole string

const (
	SenderRoleCustomer SenderRole = "customer"
	SenderRoleAdvisor  SenderRole = "psychic"
	SenderRoleSystem   SenderRole = "system"
)

func (r SenderRole) Valid() bool {
	switch r {
	case SenderRoleCustomer, SenderRoleAdvisor, SenderRoleSystem:
		return true
	default:
		return false
	}
}

// ChatSession is one timed, prepaid consultation.
type ChatSession struct {
	ID                 int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CustomerID         string        `gorm:"type:varchar(255);not null;index" json:"customer_id"`
	Status             SessionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	DurationMinutes    int           `gorm:"not null" json:"duration_minutes"`
	RatePerMinuteCents int64         `gorm:"not null" json:"rate_per_minute_cents"`
	CreditsUsedCents   int64         `gorm:"not null" json:"credits_used_cents"`
	StartedAt          *time.Time    `json:"started_at,omitempty"`
	ExpiresAt          *time.Time    `gorm:"index" json:"expires_at,omitempty"`
	EndedAt            *time.Time    `json:"ended_at,omitempty"`
	EndReason          EndReason     `gorm:"type:varchar(32);not null;default:''" json:"end_reason,omitempty"`
	CreatedAt          time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null" json:"updated_at"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage is an immutable entry of a session's message log.
type ChatMessage struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  int64      `gorm:"not null;index:idx_chat_messages_session_id_id,priority:1" json:"session_id"`
	SenderRole SenderRole `gorm:"type:varchar(16);not null" json:"sender_role"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
