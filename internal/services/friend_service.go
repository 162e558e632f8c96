// Package services – FriendService
//
// FriendService implements the friend-request workflow. A request is pending
// while its row exists; accepting it deletes the row and writes both
// directions of the friend relation in one transaction, rejecting it only
// deletes the row. Notifications are best effort and sent after commit.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/repo"
)

// FriendRequestNotice is the payload of new_friend_request and request_sent.
type FriendRequestNotice struct {
	Request domain.FriendRequest `json:"request"`
	Message string               `json:"message"`
}

// FriendAcceptedNotice is the payload of request_accepted.
type FriendAcceptedNotice struct {
	RequestID string         `json:"request_id"`
	Friend    domain.Profile `json:"friend"`
	Message   string         `json:"message"`
}

// FriendService manages friend requests and the friend graph.
type FriendService struct {
	DB     *gorm.DB
	Notify Notifier

	locks keyedLocker
}

// NewFriendService constructs a FriendService. n may be nil.
func NewFriendService(db *gorm.DB, n Notifier) *FriendService {
	return &FriendService{DB: db, Notify: n}
}

// SendRequest records a pending request from -> to and notifies both users.
func (s *FriendService) SendRequest(ctx context.Context, from, to string) (*domain.FriendRequest, error) {
	ctx, span := otel.Tracer("services/FriendService").Start(ctx, "SendRequest",
		trace.WithAttributes(
			attribute.String("from.id", from),
			attribute.String("to.id", to),
		))
	defer span.End()

	if from == "" || to == "" {
		return nil, ErrMissingUser
	}
	if from == to {
		return nil, ErrSelfReference
	}

	n, err := repo.CountUsers(ctx, s.DB, from, to)
	if err != nil {
		return nil, storageError(err)
	}
	if n != 2 {
		return nil, ErrUserNotFound
	}
	friends, err := repo.AreFriends(ctx, s.DB, from, to)
	if err != nil {
		return nil, storageError(err)
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	req, err := repo.CreateFriendRequest(ctx, s.DB, from, to)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateRequest
		}
		return nil, storageError(err)
	}

	if sender, err := repo.GetUser(ctx, s.DB, from); err == nil {
		p := sender.Profile()
		req.Sender = &p
	}
	notify(s.Notify, to, EventNewFriendRequest, FriendRequestNotice{Request: *req, Message: "New friend request received"})
	notify(s.Notify, from, EventRequestSent, FriendRequestNotice{Request: *req, Message: "Request sent successfully"})
	return req, nil
}

// AcceptRequest consumes a pending request and befriends its two parties.
// A request that is already gone, or that is not addressed to a non-empty
// by, yields ErrRequestNotFound and leaves the friend graph untouched.
func (s *FriendService) AcceptRequest(ctx context.Context, requestID, by string) (*domain.FriendRequest, error) {
	ctx, span := otel.Tracer("services/FriendService").Start(ctx, "AcceptRequest",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("user.id", by),
		))
	defer span.End()

	unlock := s.locks.Lock("request:" + requestID)
	defer unlock()

	var req *domain.FriendRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := repo.GetFriendRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if by != "" && r.RecipientID != by {
			return gorm.ErrRecordNotFound
		}
		if err := repo.DeleteFriendRequest(ctx, tx, requestID); err != nil {
			return err
		}
		if err := repo.AddFriendship(ctx, tx, r.SenderID, r.RecipientID); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, storageError(err)
	}

	s.notifyAccepted(ctx, req)
	return req, nil
}

// RejectRequest drops a pending request addressed to by. The friend graph is
// not touched and nobody is notified.
func (s *FriendService) RejectRequest(ctx context.Context, requestID, by string) error {
	ctx, span := otel.Tracer("services/FriendService").Start(ctx, "RejectRequest",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("user.id", by),
		))
	defer span.End()

	unlock := s.locks.Lock("request:" + requestID)
	defer unlock()

	r, err := repo.GetFriendRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		return storageError(err)
	}
	// Only the recipient may reject; anyone else sees no such request.
	if by != "" && r.RecipientID != by {
		return ErrRequestNotFound
	}
	if err := repo.DeleteFriendRequest(ctx, s.DB, requestID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		return storageError(err)
	}
	return nil
}

// ListPending returns the requests addressed to userID with sender profiles.
func (s *FriendService) ListPending(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	ctx, span := otel.Tracer("services/FriendService").Start(ctx, "ListPending",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if userID == "" {
		return nil, ErrMissingUser
	}
	reqs, err := repo.ListIncomingRequests(ctx, s.DB, userID)
	if err != nil {
		return nil, storageError(err)
	}
	if len(reqs) == 0 {
		return reqs, nil
	}

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.SenderID)
	}
	senders, err := repo.ListUsersByID(ctx, s.DB, ids)
	if err != nil {
		return nil, storageError(err)
	}
	byID := make(map[string]domain.Profile, len(senders))
	for _, u := range senders {
		byID[u.ID] = u.Profile()
	}
	for i := range reqs {
		if p, ok := byID[reqs[i].SenderID]; ok {
			reqs[i].Sender = &p
		}
	}
	return reqs, nil
}

// ListFriends returns the profiles of userID's friends.
func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]domain.Profile, error) {
	ctx, span := otel.Tracer("services/FriendService").Start(ctx, "ListFriends",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if userID == "" {
		return nil, ErrMissingUser
	}
	ids, err := repo.ListFriendIDs(ctx, s.DB, userID)
	if err != nil {
		return nil, storageError(err)
	}
	users, err := repo.ListUsersByID(ctx, s.DB, ids)
	if err != nil {
		return nil, storageError(err)
	}
	return profiles(users), nil
}

func (s *FriendService) notifyAccepted(ctx context.Context, r *domain.FriendRequest) {
	if s.Notify == nil {
		return
	}
	// Profiles are decoration; a failed lookup still notifies with bare ids.
	users, _ := repo.ListUsersByID(ctx, s.DB, []string{r.SenderID, r.RecipientID})
	prof := map[string]domain.Profile{
		r.SenderID:    {ID: r.SenderID},
		r.RecipientID: {ID: r.RecipientID},
	}
	for _, u := range users {
		prof[u.ID] = u.Profile()
	}
	notify(s.Notify, r.SenderID, EventRequestAccepted, FriendAcceptedNotice{
		RequestID: r.ID, Friend: prof[r.RecipientID], Message: "Friend request accepted",
	})
	notify(s.Notify, r.RecipientID, EventRequestAccepted, FriendAcceptedNotice{
		RequestID: r.ID, Friend: prof[r.SenderID], Message: "Friend request accepted",
	})
}
