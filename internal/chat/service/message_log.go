package service

import (
	"context"

	"github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"gorm.io/gorm"
)

// MessageLog appends and reads a session's messages on a caller-owned handle.
type MessageLog struct {
	repo  domain.MessageRepository
	clock clock.Clock
}

func NewMessageLog(repo domain.MessageRepository, clk clock.Clock) *MessageLog {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MessageLog{repo: repo, clock: clk}
}

func (l *MessageLog) Append(ctx context.Context, tx *gorm.DB, sessionID int64, role domain.SenderRole, content string) (*domain.ChatMessage, error) {
	if sessionID <= 0 {
		return nil, domain.ErrInvalidSessionID
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidSenderRole
	}
	normalized, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	message := &domain.ChatMessage{
		SessionID:  sessionID,
		SenderRole: role,
		Content:    normalized,
		CreatedAt:  l.clock.Now().UTC(),
	}
	if err := l.repo.Insert(ctx, tx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// ListSince returns messages with id greater than sinceID in ascending order.
func (l *MessageLog) ListSince(ctx context.Context, tx *gorm.DB, sessionID int64, sinceID int64, limit int) ([]domain.ChatMessage, error) {
	if sessionID <= 0 {
		return nil, domain.ErrInvalidSessionID
	}
	if sinceID < 0 {
		return nil, domain.ErrInvalidCursor
	}
	if limit <= 0 {
		limit = domain.DefaultMessageLimit
	}
	if limit > domain.MaxMessageLimit {
		limit = domain.MaxMessageLimit
	}
	messages, err := l.repo.ListSince(ctx, tx, sessionID, sinceID, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return messages, nil
}
