package realtime

import (
	"context"
	"fmt"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/services"
)

var (
	// ErrIdentityRequired rejects events that act on or read a user's own
	// state from anonymous sessions.
	ErrIdentityRequired = &services.Error{Kind: services.KindValidation, Message: "identity required"}
	// ErrNotYourEvent rejects events acting on behalf of another user.
	ErrNotYourEvent = &services.Error{Kind: services.KindValidation, Message: "event does not belong to this session"}
)

// Peer is the session an event arrived on.
type Peer interface {
	// UserID is empty for anonymous sessions.
	UserID() string
	// Hangup releases presence and closes the connection.
	Hangup()
}

// Dispatcher applies decoded events to the services.
type Dispatcher struct {
	Friends       *services.FriendService
	Conversations *services.ConversationService
	Calls         *services.CallService
}

// Reply is a response payload for the event that produced it. A nil Reply
// means the event only acknowledges.
type Reply any

// Dispatch applies ev on behalf of p. Every Event type is handled here; the
// default branch is unreachable for decoded events.
func (d *Dispatcher) Dispatch(ctx context.Context, p Peer, ev Event) (Reply, error) {
	switch e := ev.(type) {
	case FriendRequest:
		if err := actingAs(p, e.From); err != nil {
			return nil, err
		}
		return d.Friends.SendRequest(ctx, e.From, e.To)

	case AcceptRequest:
		if p.UserID() == "" {
			return nil, ErrIdentityRequired
		}
		return d.Friends.AcceptRequest(ctx, e.RequestID, p.UserID())

	case RejectRequest:
		by := e.UserID
		if by == "" {
			by = p.UserID()
		}
		if err := actingAs(p, by); err != nil {
			return nil, err
		}
		return nil, d.Friends.RejectRequest(ctx, e.RequestID, by)

	case GetFriendRequests:
		if err := actingAs(p, e.UserID); err != nil {
			return nil, err
		}
		return d.Friends.ListPending(ctx, e.UserID)

	case GetFriends:
		return d.Friends.ListFriends(ctx, e.UserID)

	case GetDirectConversations:
		if err := actingAs(p, e.UserID); err != nil {
			return nil, err
		}
		return d.Conversations.ListForUser(ctx, e.UserID)

	case StartConversations:
		if err := partyTo(p, e.From, e.To); err != nil {
			return nil, err
		}
		return d.Conversations.FindOrCreate(ctx, e.From, e.To)

	case GetMessages:
		uid := p.UserID()
		if uid == "" {
			return nil, ErrIdentityRequired
		}
		conv, err := d.Conversations.Get(ctx, e.ConversationID)
		if err != nil {
			return nil, err
		}
		// Outsiders see the same answer as for a missing conversation.
		if !conv.Has(uid) {
			return nil, services.ErrConversationNotFound
		}
		return d.Conversations.GetMessages(ctx, e.ConversationID)

	case TextMessage:
		if err := actingAs(p, e.From); err != nil {
			return nil, err
		}
		return d.Conversations.AppendMessage(ctx, e.ConversationID, services.MessageInput{
			From: e.From,
			To:   e.To,
			Kind: domain.MessageKind(e.Type),
			Text: e.Message,
			File: e.File,
		})

	case StartAudioCall:
		if err := actingAs(p, e.From); err != nil {
			return nil, err
		}
		return d.Calls.Start(ctx, e.From, e.To, e.RoomID)

	case AudioCallAccepted:
		if err := partyTo(p, e.From, e.To); err != nil {
			return nil, err
		}
		return d.Calls.Accept(ctx, e.From, e.To)

	case AudioCallDenied:
		if err := partyTo(p, e.From, e.To); err != nil {
			return nil, err
		}
		return d.Calls.Deny(ctx, e.From, e.To)

	case AudioCallNotPicked:
		if err := partyTo(p, e.From, e.To); err != nil {
			return nil, err
		}
		return d.Calls.NotPicked(ctx, e.From, e.To)

	case UserIsBusyAudioCall:
		if err := partyTo(p, e.From, e.To); err != nil {
			return nil, err
		}
		return d.Calls.Busy(ctx, e.From, e.To)

	case EndAudioCall:
		if err := actingAs(p, e.From); err != nil {
			return nil, err
		}
		return d.Calls.End(ctx, e.From, e.To)

	case End:
		if e.UserID != "" && e.UserID != p.UserID() {
			return nil, ErrNotYourEvent
		}
		p.Hangup()
		return nil, nil

	default:
		return nil, fmt.Errorf("realtime: unhandled event %T", ev)
	}
}

// Disconnected runs once userID has no live session left: calls still
// ringing for the user are hung up so the other party is not left waiting.
func (d *Dispatcher) Disconnected(ctx context.Context, userID string) (int, error) {
	return d.Calls.HangupAll(ctx, userID)
}

// actingAs requires an identified session whose user is id.
func actingAs(p Peer, id string) error {
	uid := p.UserID()
	if uid == "" {
		return ErrIdentityRequired
	}
	if id != uid {
		return ErrNotYourEvent
	}
	return nil
}

// partyTo requires an identified session whose user is a or b.
func partyTo(p Peer, a, b string) error {
	uid := p.UserID()
	if uid == "" {
		return ErrIdentityRequired
	}
	if uid != a && uid != b {
		return ErrNotYourEvent
	}
	return nil
}
