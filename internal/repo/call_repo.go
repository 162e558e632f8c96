// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for call records.
//
// Transitions are conditional updates scoped to the Ringing record of an
// unordered pair, so a concurrent or late signal simply affects zero rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
)

// CreateRingingCall inserts a Pending/Ringing record from caller to callee.
// The partial unique index fails the insert if the pair already rings.
func CreateRingingCall(ctx context.Context, db *gorm.DB, caller, callee, roomID string) (*domain.CallRecord, error) {
	lo, hi := domain.Pair(caller, callee)
	now := time.Now().UTC()
	c := &domain.CallRecord{
		ID:        uuid.NewString(),
		CallerID:  caller,
		CalleeID:  callee,
		UserLow:   lo,
		UserHigh:  hi,
		RoomID:    roomID,
		Verdict:   domain.VerdictPending,
		Status:    domain.CallRinging,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// FindRingingCall returns the Ringing record of the pair, or ErrNotFound.
func FindRingingCall(ctx context.Context, db *gorm.DB, a, b string) (*domain.CallRecord, error) {
	lo, hi := domain.Pair(a, b)
	var c domain.CallRecord
	err := db.WithContext(ctx).
		Where("user_low = ? AND user_high = ? AND status = ?", lo, hi, domain.CallRinging).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TransitionRingingCall moves the Ringing record of {a, b} whose verdict is
// one of from to the given verdict and status. endedAt is written only when
// non-nil. It returns the number of affected rows (0 or 1).
func TransitionRingingCall(ctx context.Context, db *gorm.DB, a, b string, from []domain.CallVerdict, verdict domain.CallVerdict, status domain.CallStatus, endedAt *time.Time) (int64, error) {
	lo, hi := domain.Pair(a, b)
	fields := map[string]any{
		"verdict":    verdict,
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if endedAt != nil {
		fields["ended_at"] = *endedAt
	}
	res := db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("user_low = ? AND user_high = ? AND status = ? AND verdict IN ?", lo, hi, domain.CallRinging, from).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// ListUnansweredBefore returns Pending/Ringing records created before cutoff.
func ListUnansweredBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.CallRecord, error) {
	out := []domain.CallRecord{}
	err := db.WithContext(ctx).
		Where("status = ? AND verdict = ? AND created_at < ?", domain.CallRinging, domain.VerdictPending, cutoff).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// ListRingingForUser returns the Ringing records userID takes part in.
func ListRingingForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.CallRecord, error) {
	out := []domain.CallRecord{}
	err := db.WithContext(ctx).
		Where("status = ? AND (caller_id = ? OR callee_id = ?)", domain.CallRinging, userID, userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// EndRingingCalls ends every Ringing record at now. Unanswered calls become
// Missed; answered ones keep their verdict. Connections do not survive a
// restart, so this runs at startup alongside ResetPresence.
func EndRingingCalls(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("status = ?", domain.CallRinging).
		Updates(map[string]any{
			"verdict":    gorm.Expr("CASE WHEN verdict = ? THEN ? ELSE verdict END", domain.VerdictPending, domain.VerdictMissed),
			"status":     domain.CallEnded,
			"ended_at":   now,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// ListCallsForUser returns the call history of userID, newest first.
func ListCallsForUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.CallRecord, error) {
	out := []domain.CallRecord{}
	q := db.WithContext(ctx).
		Where("caller_id = ? OR callee_id = ?", userID, userID).
		Order("created_at DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
