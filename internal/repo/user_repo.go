// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users, their
// presence fields, and the symmetric friend relation.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported as ErrNotFound).
//   - Other database errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-tawk-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUser fetches a single user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CountUsers returns how many of the given ids exist.
func CountUsers(ctx context.Context, db *gorm.DB, ids ...string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("id IN ?", ids).Count(&n).Error
	return n, err
}

// ListUsersByID returns the users whose ids are listed, ordered by first and
// last name. Missing ids are skipped.
func ListUsersByID(ctx context.Context, db *gorm.DB, ids []string) ([]domain.User, error) {
	out := []domain.User{}
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("first_name ASC, last_name ASC, id ASC").
		Find(&out).Error
	return out, err
}

// SetUserStatus upserts the presence fields of a user. A row is created for
// identities the hub has not seen yet so that status polling works for any
// connected user.
func SetUserStatus(ctx context.Context, db *gorm.DB, id string, status domain.UserStatus, connRef *string) error {
	now := time.Now().UTC()
	u := &domain.User{
		ID:            id,
		Status:        status,
		ConnectionRef: connRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "connection_ref", "updated_at"}),
	}).Create(u).Error
}

// UpdateUserProfile applies the given column updates to a user. If no row
// matches, it returns ErrNotFound.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListStrangers returns verified users that are neither id nor already
// friends of id.
func ListStrangers(ctx context.Context, db *gorm.DB, id string) ([]domain.User, error) {
	out := []domain.User{}
	friends := db.Model(&domain.Friendship{}).Select("friend_id").Where("user_id = ?", id)
	err := db.WithContext(ctx).
		Where("verified = ? AND id <> ? AND id NOT IN (?)", true, id, friends).
		Order("first_name ASC, last_name ASC, id ASC").
		Find(&out).Error
	return out, err
}

// AddFriendship writes both directions of the friend relation. Existing
// rows are left untouched, so repeating the call is a no-op.
func AddFriendship(ctx context.Context, db *gorm.DB, a, b string) error {
	now := time.Now().UTC()
	rows := []domain.Friendship{
		{UserID: a, FriendID: b, CreatedAt: now},
		{UserID: b, FriendID: a, CreatedAt: now},
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// ListFriendIDs returns the ids of userID's friends in insertion order.
func ListFriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	out := []string{}
	err := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("user_id = ?", userID).
		Order("created_at ASC, friend_id ASC").
		Pluck("friend_id", &out).Error
	return out, err
}

// AreFriends reports whether a lists b as a friend.
func AreFriends(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("user_id = ? AND friend_id = ?", a, b).
		Count(&n).Error
	return n > 0, err
}
