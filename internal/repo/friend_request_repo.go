// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for friend
// requests. A request is pending exactly while its row exists.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
)

// CreateFriendRequest inserts a pending request from sender to recipient.
// The unique (sender, recipient) index rejects a second pending request for
// the same ordered pair.
func CreateFriendRequest(ctx context.Context, db *gorm.DB, sender, recipient string) (*domain.FriendRequest, error) {
	r := &domain.FriendRequest{
		ID:          uuid.NewString(),
		SenderID:    sender,
		RecipientID: recipient,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetFriendRequest fetches a pending request by id, or ErrNotFound.
func GetFriendRequest(ctx context.Context, db *gorm.DB, id string) (*domain.FriendRequest, error) {
	var r domain.FriendRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteFriendRequest removes a pending request. It returns ErrNotFound when
// no row was deleted, which is how a concurrent or repeated consumer learns
// that the request is already gone.
func DeleteFriendRequest(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.FriendRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListIncomingRequests returns the requests addressed to recipient, newest first.
func ListIncomingRequests(ctx context.Context, db *gorm.DB, recipient string) ([]domain.FriendRequest, error) {
	out := []domain.FriendRequest{}
	err := db.WithContext(ctx).
		Where("recipient_id = ?", recipient).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}
