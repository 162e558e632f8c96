// Package services – UserService
//
// UserService exposes the profile side of the user directory: reading a
// user (including the persisted presence status that clients poll),
// updating the editable profile fields, and listing verified strangers a
// user may befriend.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/repo"
)

// ProfilePatch carries the editable profile fields. Nil fields are left
// unchanged.
type ProfilePatch struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	About     *string `json:"about"`
	Avatar    *string `json:"avatar"`
}

// fields returns the column updates of the patch, trimmed.
func (p ProfilePatch) fields() map[string]any {
	out := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			out[col] = strings.TrimSpace(*v)
		}
	}
	set("first_name", p.FirstName)
	set("last_name", p.LastName)
	set("about", p.About)
	set("avatar", p.Avatar)
	return out
}

// UserService reads and updates user profiles.
type UserService struct {
	DB *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// Get returns the user with id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	if id == "" {
		return nil, ErrMissingUser
	}
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageError(err)
	}
	return u, nil
}

// Update applies the editable fields of patch and returns the updated user.
func (s *UserService) Update(ctx context.Context, id string, patch ProfilePatch) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Update",
		trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	if id == "" {
		return nil, ErrMissingUser
	}
	fields := patch.fields()
	if len(fields) == 0 {
		return nil, ErrNoProfileFields
	}
	if err := repo.UpdateUserProfile(ctx, s.DB, id, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageError(err)
	}
	return s.Get(ctx, id)
}

// ListStrangers returns verified users that are neither id nor its friends.
func (s *UserService) ListStrangers(ctx context.Context, id string) ([]domain.Profile, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "ListStrangers",
		trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	if id == "" {
		return nil, ErrMissingUser
	}
	users, err := repo.ListStrangers(ctx, s.DB, id)
	if err != nil {
		return nil, storageError(err)
	}
	return profiles(users), nil
}

func profiles(users []domain.User) []domain.Profile {
	out := make([]domain.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}
