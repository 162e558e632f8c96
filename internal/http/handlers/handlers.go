package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/http/middleware"
	"github.com/tbourn/go-tawk-backend/internal/services"
)

// UserService reads and edits profiles.
type UserService interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, id string, patch services.ProfilePatch) (*domain.User, error)
	ListStrangers(ctx context.Context, id string) ([]domain.Profile, error)
}

// FriendService drives the friend request workflow.
type FriendService interface {
	SendRequest(ctx context.Context, from, to string) (*domain.FriendRequest, error)
	AcceptRequest(ctx context.Context, requestID, by string) (*domain.FriendRequest, error)
	RejectRequest(ctx context.Context, requestID, by string) error
	ListPending(ctx context.Context, userID string) ([]domain.FriendRequest, error)
	ListFriends(ctx context.Context, userID string) ([]domain.Profile, error)
}

// ConversationService reads direct conversations.
type ConversationService interface {
	FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	Get(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListMessagesPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
}

// CallService reads call history.
type CallService interface {
	ListCalls(ctx context.Context, userID string, limit int) ([]domain.CallRecord, error)
}

// Handlers bundles the REST endpoints. It depends on narrow service
// interfaces; db is optional and only feeds conditional responses.
type Handlers struct {
	users   UserService
	friends FriendService
	convs   ConversationService
	calls   CallService
	db      *gorm.DB
}

// New constructs Handlers bound to the given services. db may be nil, which
// disables ETags on message history.
func New(users UserService, friends FriendService, convs ConversationService, calls CallService, db *gorm.DB) *Handlers {
	return &Handlers{users: users, friends: friends, convs: convs, calls: calls, db: db}
}

// actor returns the caller or aborts with 401.
func actor(c *gin.Context) (string, bool) {
	uid := middleware.UserID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return "", false
	}
	return uid, true
}

// self aborts unless the caller is the user named by the :id path segment.
func self(c *gin.Context) (string, bool) {
	uid, okID := actor(c)
	if !okID {
		return "", false
	}
	if id := c.Param("id"); id != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "resource belongs to another user")
		return "", false
	}
	return uid, true
}

// TargetRequest names the other user of a pairwise operation.
type TargetRequest struct {
	To string `json:"to" binding:"required" example:"bob"`
}

// bindTo decodes a {"to": "..."} body.
func bindTo(c *gin.Context) (string, bool) {
	var body TargetRequest
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.To) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to is required")
		return "", false
	}
	return strings.TrimSpace(body.To), true
}
