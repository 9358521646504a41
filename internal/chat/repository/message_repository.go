package repository

import (
	"context"

	"github.com/smallbiznis/mystictxt/internal/chat/domain"
	"gorm.io/gorm"
)

type messageRepo struct{}

func ProvideMessages() domain.MessageRepository {
	return &messageRepo{}
}

func (r *messageRepo) Insert(ctx context.Context, db *gorm.DB, message *domain.ChatMessage) error {
	return db.WithContext(ctx).Create(message).Error
}

func (r *messageRepo) ListSince(ctx context.Context, db *gorm.DB, sessionID int64, sinceID int64, limit int) ([]domain.ChatMessage, error) {
	var messages []domain.ChatMessage
	stmt := db.WithContext(ctx).
		Where("session_id = ? AND id > ?", sessionID, sinceID).
		Order("id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
