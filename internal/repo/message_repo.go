// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
)

// messageOrder keeps append order: creation time first, then SQLite's
// insertion rowid for messages created within the same clock tick.
const messageOrder = "created_at ASC, rowid ASC"

// CreateMessage inserts a new message row into conversationID. The id and
// creation time are assigned here.
func CreateMessage(db *gorm.DB, conversationID string, m domain.Message) (*domain.Message, error) {
	m.ID = uuid.NewString()
	m.ConversationID = conversationID
	m.CreatedAt = time.Now().UTC()
	return &m, db.Omit("Conversation").Create(&m).Error
}

// ListMessages returns messages in append order. A limit <= 0 returns all.
func ListMessages(db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	out := []domain.Message{}
	q := db.Where("conversation_id = ?", conversationID).Order(messageOrder)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice in append order.
func ListMessagesPage(db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	out := []domain.Message{}
	err := db.
		Where("conversation_id = ?", conversationID).
		Order(messageOrder).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
