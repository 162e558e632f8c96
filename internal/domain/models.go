// Package domain defines the persistence models for users, the friend graph,
// friend requests, direct conversations, messages, and call records. These
// types are mapped with GORM and form the core data layer of the hub.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// UserStatus is the persisted presence state of a user.
type UserStatus string

const (
	StatusOnline  UserStatus = "Online"
	StatusOffline UserStatus = "Offline"
)

// User represents an account known to the hub. Accounts are created by the
// identity layer; this service only mutates profile fields, presence, and
// the friend graph.
//
// Fields:
//   - ID: opaque identifier issued by the identity layer.
//   - FirstName / LastName / Avatar / About: public profile.
//   - Verified: whether the account finished registration.
//   - Status: Online while a session is registered in the presence directory.
//   - ConnectionRef: id of the active session; nil while Offline.
type User struct {
	ID            string     `json:"id"             gorm:"type:varchar(64);primaryKey"`
	FirstName     string     `json:"first_name"     gorm:"type:varchar(128)"`
	LastName      string     `json:"last_name"      gorm:"type:varchar(128)"`
	Avatar        string     `json:"avatar,omitempty" gorm:"type:varchar(512)"`
	About         string     `json:"about,omitempty"  gorm:"type:text"`
	Verified      bool       `json:"verified"       gorm:"not null;default:false"`
	Status        UserStatus `json:"status"         gorm:"type:varchar(16);not null;default:'Offline';check:status IN ('Online','Offline')"`
	ConnectionRef *string    `json:"connection_ref,omitempty" gorm:"type:varchar(64)"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Profile is the public projection of a user used in notifications and lists.
type Profile struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Avatar    string     `json:"avatar,omitempty"`
	Status    UserStatus `json:"status"`
}

// Profile projects the user onto its public fields.
func (u User) Profile() Profile {
	return Profile{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Avatar: u.Avatar, Status: u.Status}
}

// Friendship is one direction of the symmetric friend relation. Both
// directions are written together; the composite key gives set semantics.
type Friendship struct {
	UserID    string    `json:"user_id"   gorm:"type:varchar(64);primaryKey"`
	FriendID  string    `json:"friend_id" gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// FriendRequest is a pending request from Sender to Recipient. A request is
// pending exactly while its row exists; acceptance and rejection delete it.
type FriendRequest struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	SenderID    string    `json:"sender"       gorm:"type:varchar(64);not null;uniqueIndex:ux_friend_request_pair,priority:1;check:sender_id <> recipient_id"`
	RecipientID string    `json:"recipient"    gorm:"type:varchar(64);not null;uniqueIndex:ux_friend_request_pair,priority:2;index:idx_friend_request_recipient"`
	CreatedAt   time.Time `json:"created_at"`

	// Sender is populated by listing queries only.
	Sender *Profile `json:"sender_profile,omitempty" gorm:"-"`
}

// TableName returns the database table name for FriendRequest.
func (FriendRequest) TableName() string { return "friend_requests" }

// Conversation is a two-party direct thread. Participants are stored in
// canonical order (UserLow < UserHigh) so that a unique index can hold at
// most one conversation per unordered pair.
type Conversation struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserLow   string    `json:"-"          gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:1"`
	UserHigh  string    `json:"-"          gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:2;index:idx_conversation_high"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Participants []string  `json:"participants" gorm:"-"`
	Messages     []Message `json:"messages,omitempty" gorm:"-"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// AfterFind fills the participant list from the canonical pair columns.
func (c *Conversation) AfterFind(*gorm.DB) error {
	c.Participants = []string{c.UserLow, c.UserHigh}
	return nil
}

// Has reports whether userID is one of the two participants.
func (c *Conversation) Has(userID string) bool {
	return userID != "" && (userID == c.UserLow || userID == c.UserHigh)
}

// MessageKind classifies the payload of a message.
type MessageKind string

const (
	KindText  MessageKind = "Text"
	KindMedia MessageKind = "Media"
	KindLink  MessageKind = "Link"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindMedia, KindLink:
		return true
	}
	return false
}

// Message is a single immutable entry of a conversation.
//
// Fields:
//   - ConversationID: owning conversation (indexed with CreatedAt).
//   - ToID / FromID: the two participants; never equal.
//   - Kind: Text carries Text, Media and Link carry File.
//   - CreatedAt: append time; messages are ordered by it, then by insertion.
type Message struct {
	ID             string      `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string      `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	ToID           string      `json:"to"              gorm:"type:varchar(64);not null"`
	FromID         string      `json:"from"            gorm:"type:varchar(64);not null"`
	Kind           MessageKind `json:"type"            gorm:"type:varchar(8);not null;check:kind IN ('Text','Media','Link')"`
	Text           string      `json:"text,omitempty"  gorm:"type:text"`
	File           string      `json:"file,omitempty"  gorm:"type:varchar(1024)"`
	CreatedAt      time.Time   `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`

	// Conversation is the owning thread. Messages are cascade-deleted
	// if their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// CallVerdict is the outcome classification of a call.
type CallVerdict string

const (
	VerdictPending  CallVerdict = "Pending"
	VerdictAccepted CallVerdict = "Accepted"
	VerdictDenied   CallVerdict = "Denied"
	VerdictMissed   CallVerdict = "Missed"
	VerdictBusy     CallVerdict = "Busy"
)

// CallStatus is the lifecycle phase of a call record.
type CallStatus string

const (
	CallRinging CallStatus = "Ringing"
	CallEnded   CallStatus = "Ended"
)

// CallRecord audits one audio call between a caller and a callee. At most one
// Ringing record exists per unordered pair (partial unique index).
type CallRecord struct {
	ID        string      `json:"id"         gorm:"type:char(36);primaryKey"`
	CallerID  string      `json:"from"       gorm:"type:varchar(64);not null"`
	CalleeID  string      `json:"to"         gorm:"type:varchar(64);not null"`
	UserLow   string      `json:"-"          gorm:"type:varchar(64);not null;uniqueIndex:ux_call_ringing_pair,priority:1,where:status = 'Ringing';index:idx_call_pair,priority:1"`
	UserHigh  string      `json:"-"          gorm:"type:varchar(64);not null;uniqueIndex:ux_call_ringing_pair,priority:2;index:idx_call_pair,priority:2"`
	RoomID    string      `json:"room_id,omitempty" gorm:"type:varchar(128)"`
	Verdict   CallVerdict `json:"verdict"    gorm:"type:varchar(16);not null;default:'Pending';check:verdict IN ('Pending','Accepted','Denied','Missed','Busy')"`
	Status    CallStatus  `json:"status"     gorm:"type:varchar(16);not null;default:'Ringing';index;check:status IN ('Ringing','Ended')"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// TableName returns the database table name for CallRecord.
func (CallRecord) TableName() string { return "call_records" }

// Participants returns the two parties of the call.
func (c CallRecord) Participants() []string { return []string{c.CallerID, c.CalleeID} }

// Pair returns a and b in canonical order. Callers use it for every lookup
// keyed by an unordered participant pair.
func Pair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}
