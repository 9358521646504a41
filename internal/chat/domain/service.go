package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/mystictxt/internal/auth"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"github.com/smallbiznis/mystictxt/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	DefaultMessageLimit = 200
	MaxMessageLimit     = 500
)

type RequestSessionRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

type ListMessagesRequest struct {
	SessionID int64
	SinceID   int64
	Limit     int
}

type ListMessagesResponse struct {
	Session  SessionView   `json:"session"`
	Messages []ChatMessage `json:"messages"`
	// LastID is the cursor for the next poll; it equals SinceID when nothing new arrived.
	LastID int64 `json:"last_id"`
}

type PostMessageRequest struct {
	SessionID int64  `json:"session_id"`
	Content   string `json:"content"`
}

type ListLiveSessionsRequest struct {
	pagination.Pagination
	// Status filters by a single status; "all" disables filtering. Empty means pending and active.
	Status string
}

type ListLiveSessionsResponse struct {
	pagination.PageInfo
	Sessions []SessionView `json:"sessions"`
}

// SessionView is the snapshot pollers receive.
type SessionView struct {
	ID                 int64         `json:"id"`
	CustomerID         string        `json:"customer_id"`
	Status             SessionStatus `json:"status"`
	DurationMinutes    int           `json:"duration_minutes"`
	RatePerMinuteCents int64         `json:"rate_per_minute_cents"`
	CreditsUsedCents   int64         `json:"credits_used_cents"`
	CreditsUsedDisplay string        `json:"credits_used_display"`
	StartedAt          *time.Time    `json:"started_at"`
	ExpiresAt          *time.Time    `json:"expires_at"`
	EndedAt            *time.Time    `json:"ended_at"`
	EndReason          EndReason     `json:"end_reason,omitempty"`
	RemainingSeconds   int64         `json:"remaining_seconds"`
	GraceWarning       bool          `json:"grace_warning"`
	CreatedAt          time.Time     `json:"created_at"`
}

func NewSessionView(s *ChatSession, now time.Time) SessionView {
	remaining := s.RemainingSeconds(now)
	return SessionView{
		ID:                 s.ID,
		CustomerID:         s.CustomerID,
		Status:             s.Status,
		DurationMinutes:    s.DurationMinutes,
		RatePerMinuteCents: s.RatePerMinuteCents,
		CreditsUsedCents:   s.CreditsUsedCents,
		CreditsUsedDisplay: walletdomain.FormatCents(s.CreditsUsedCents),
		StartedAt:          s.StartedAt,
		ExpiresAt:          s.ExpiresAt,
		EndedAt:            s.EndedAt,
		EndReason:          s.EndReason,
		RemainingSeconds:   remaining,
		GraceWarning:       s.Status == SessionStatusActive && remaining <= GraceWarningSeconds,
		CreatedAt:          s.CreatedAt,
	}
}

// Account is the customer's account page: wallet, recent ledger lines and sessions.
type Account struct {
	CustomerID     string                           `json:"customer_id"`
	Wallet         *walletdomain.Wallet             `json:"wallet"`
	BalanceDisplay string                           `json:"balance_display"`
	Transactions   []walletdomain.WalletTransaction `json:"transactions"`
	Sessions       []SessionView                    `json:"sessions"`
}

type Service interface {
	RequestSession(ctx context.Context, actor auth.Actor, req RequestSessionRequest) (*SessionView, error)
	AcceptSession(ctx context.Context, actor auth.Actor, sessionID int64) (*SessionView, error)
	EndSession(ctx context.Context, actor auth.Actor, sessionID int64) (*SessionView, error)
	GetSessionView(ctx context.Context, actor auth.Actor, sessionID int64) (*SessionView, error)
	ListMessages(ctx context.Context, actor auth.Actor, req ListMessagesRequest) (*ListMessagesResponse, error)
	PostMessage(ctx context.Context, actor auth.Actor, req PostMessageRequest) (*ChatMessage, error)
	ListLiveSessions(ctx context.Context, actor auth.Actor, req ListLiveSessionsRequest) (ListLiveSessionsResponse, error)
	GetAccount(ctx context.Context, actor auth.Actor) (*Account, error)

	// ExpireOverdueSessions ends up to limit active sessions whose time ran out.
	ExpireOverdueSessions(ctx context.Context, limit int) (int, error)
}

type SessionFilter struct {
	CustomerID string
	Statuses   []SessionStatus
	BeforeID   int64
	Limit      int
}

type SessionRepository interface {
	Insert(ctx context.Context, db *gorm.DB, session *ChatSession) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*ChatSession, error)
	// UpdateState persists the lifecycle columns only if the stored status still equals from.
	UpdateState(ctx context.Context, db *gorm.DB, session *ChatSession, from SessionStatus) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter SessionFilter) ([]*ChatSession, error)
	ListOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*ChatSession, error)
}

type MessageRepository interface {
	Insert(ctx context.Context, db *gorm.DB, message *ChatMessage) error
	ListSince(ctx context.Context, db *gorm.DB, sessionID int64, sinceID int64, limit int) ([]ChatMessage, error)
}
