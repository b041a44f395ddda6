package repository

import (
	"fmt"

	"gorm.io/gorm"

	"listenline/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListBySessionID returns messages in ascending creation order, id as
// tie-break. afterID is an optional cursor: only messages with a larger
// id are returned, so clients can page through the log restartably.
func (r *MessageRepository) ListBySessionID(sessionID, afterID uint, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	query := r.db.Where("session_id = ?", sessionID)
	if afterID > 0 {
		query = query.Where("id > ?", afterID)
	}

	var messages []model.Message
	if err := query.Order("created_at ASC, id ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}
