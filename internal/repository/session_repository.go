package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gochat-backend/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.ChatSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

// ListByUserID returns one page of the user's sessions, most recently
// updated first, together with the unpaginated total.
func (r *SessionRepository) ListByUserID(userID uint, limit, offset int) ([]model.ChatSession, int64, error) {
	var total int64
	if err := r.db.Model(&model.ChatSession{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count sessions failed: %w", err)
	}

	var sessions []model.ChatSession
	if err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, total, nil
}

// GetByIDAndUserID returns nil for both a missing session and a session
// owned by someone else, so callers cannot probe for existence.
func (r *SessionRepository) GetByIDAndUserID(sessionID, userID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) UpdateTitle(session *model.ChatSession, title string) error {
	session.Title = title
	session.UpdatedAt = time.Now()
	if err := r.db.Model(session).
		Updates(map[string]interface{}{"title": session.Title, "updated_at": session.UpdatedAt}).Error; err != nil {
		return fmt.Errorf("update session title failed: %w", err)
	}
	return nil
}

// DeleteByIDAndUserID removes the session; its messages go with it via the
// foreign key cascade.
func (r *SessionRepository) DeleteByIDAndUserID(sessionID, userID uint) error {
	if err := r.db.Where("id = ? AND user_id = ?", sessionID, userID).Delete(&model.ChatSession{}).Error; err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}
