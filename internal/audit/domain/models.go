package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeCustomer ActorType = "customer"
	ActorTypeAdvisor  ActorType = "advisor"
	ActorTypeAdmin    ActorType = "admin"
	ActorTypeSystem   ActorType = "system"
)

// Audit actions recorded by the application.
const (
	ActionSessionRequested    = "chat_session.requested"
	ActionSessionAccepted     = "chat_session.accepted"
	ActionSessionEnded        = "chat_session.ended"
	ActionSessionsExpired     = "chat_session.expired_batch"
	ActionWalletCreditsAdded  = "wallet.credits_added"
	ActionWalletCreditGranted = "wallet.credits_granted"
	ActionAuthorizationDenied = "authorization.denied"
)

var actionNamespaces = []string{"chat_session.", "wallet.", "authorization."}

// ValidAction reports whether action is "<namespace>.<verb>" in a known namespace.
func ValidAction(action string) bool {
	for _, ns := range actionNamespaces {
		if verb, ok := strings.CutPrefix(action, ns); ok {
			return verb != "" && !strings.ContainsAny(verb, " \t")
		}
	}
	return false
}

// AuditLog is an append-only record of a privileged or money-moving action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ActorType  string            `gorm:"type:varchar(32);not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:varchar(255)" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:varchar(128);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(64);not null" json:"target_type"`
	TargetID   *string           `gorm:"type:varchar(255)" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action       string
	ActionPrefix string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
