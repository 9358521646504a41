package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/mystictxt/internal/chat/domain"
	"gorm.io/gorm"
)

type sessionRepo struct{}

func ProvideSessions() domain.SessionRepository {
	return &sessionRepo{}
}

func (r *sessionRepo) Insert(ctx context.Context, db *gorm.DB, session *domain.ChatSession) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.ChatSession, error) {
	var session domain.ChatSession
	err := db.WithContext(ctx).Where("id = ?", id).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) UpdateState(ctx context.Context, db *gorm.DB, session *domain.ChatSession, from domain.SessionStatus) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE chat_sessions
		 SET status = ?, started_at = ?, expires_at = ?, ended_at = ?, end_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		session.Status,
		session.StartedAt,
		session.ExpiresAt,
		session.EndedAt,
		session.EndReason,
		session.UpdatedAt,
		session.ID,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *sessionRepo) List(ctx context.Context, db *gorm.DB, filter domain.SessionFilter) ([]*domain.ChatSession, error) {
	var sessions []*domain.ChatSession
	stmt := db.WithContext(ctx).Model(&domain.ChatSession{})
	if filter.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if len(filter.Statuses) > 0 {
		stmt = stmt.Where("status IN ?", filter.Statuses)
	}
	if filter.BeforeID > 0 {
		stmt = stmt.Where("id < ?", filter.BeforeID)
	}
	stmt = stmt.Order("id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) ListOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.ChatSession, error) {
	var sessions []*domain.ChatSession
	stmt := db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", domain.SessionStatusActive, now).
		Order("expires_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
