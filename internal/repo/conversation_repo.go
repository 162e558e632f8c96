// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for two-party
// conversations.
//
// Functions:
//
//   - FindConversationByPair(ctx, db, a, b) -> *domain.Conversation, error
//     Looks up the conversation of an unordered pair, or ErrNotFound.
//
//   - InsertConversationIfAbsent(ctx, db, a, b) -> (bool, error)
//     Inserts a conversation for the pair unless the unique pair index
//     already holds one. Reports whether a row was inserted.
//
//   - GetConversation(ctx, db, id) -> *domain.Conversation, error
//
//   - ListConversationsForUser(ctx, db, userID) -> []domain.Conversation, error
//     Most recently active first.
//
//   - TouchConversation(ctx, db, id, at) -> error
//     Bumps updated_at after an append.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-tawk-backend/internal/domain"
)

// FindConversationByPair returns the conversation whose participants are
// exactly {a, b}, regardless of argument order.
func FindConversationByPair(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	lo, hi := domain.Pair(a, b)
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", lo, hi).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertConversationIfAbsent inserts an empty conversation for {a, b}. When
// the pair already has one, the insert is skipped and false is returned.
func InsertConversationIfAbsent(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	lo, hi := domain.Pair(a, b)
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		UserLow:   lo,
		UserHigh:  hi,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetConversation fetches a conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsForUser returns every conversation userID participates
// in, most recently active first.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	out := []domain.Conversation{}
	err := db.WithContext(ctx).
		Where("user_low = ? OR user_high = ?", userID, userID).
		Order("updated_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// TouchConversation sets updated_at on the conversation.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at).Error
}
