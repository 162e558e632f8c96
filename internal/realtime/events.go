// Package realtime implements the WebSocket side of the hub: the wire
// envelope, the closed set of inbound events, per-connection sessions, the
// dispatcher that routes events to the services, and the router that
// delivers notifications to connected users.
package realtime

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tbourn/go-tawk-backend/internal/services"
)

// Inbound event names.
const (
	EvFriendRequest          = "friend_request"
	EvAcceptRequest          = "accept_request"
	EvRejectRequest          = "reject_request"
	EvGetFriendRequests      = "get_friend_requests"
	EvGetFriends             = "get_friends"
	EvGetDirectConversations = "get_direct_conversations"
	EvStartConversations     = "start_conversations"
	EvGetMessages            = "get_messages"
	EvTextMessage            = "text_message"
	EvStartAudioCall         = "start_audio_call"
	EvAudioCallAccepted      = "audio_call_accepted"
	EvAudioCallDenied        = "audio_call_denied"
	EvAudioCallNotPicked     = "audio_call_not_picked"
	EvUserIsBusyAudioCall    = "user_is_busy_audio_call"
	EvEndAudioCall           = "end_audio_call"
	EvEnd                    = "end"

	// EvError is the outbound failure frame.
	EvError = "error"
)

// KindRateLimited is reported when a session exceeds its event budget.
const KindRateLimited services.Kind = "rate_limited"

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Failure        `json:"error,omitempty"`
}

// Failure describes why an inbound event was not applied.
type Failure struct {
	Kind    services.Kind `json:"kind"`
	Message string        `json:"message"`
}

// Event is one of the inbound event types declared in this file.
type Event interface {
	Name() string
	sealed()
}

type FriendRequest struct {
	From string `json:"from" validate:"required,max=64"`
	To   string `json:"to"   validate:"required,max=64"`
}

type AcceptRequest struct {
	RequestID string `json:"request_id" validate:"required,max=64"`
}

type RejectRequest struct {
	RequestID string `json:"request_id" validate:"required,max=64"`
	UserID    string `json:"user_id"    validate:"omitempty,max=64"`
}

type GetFriendRequests struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

type GetFriends struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

type GetDirectConversations struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

type StartConversations struct {
	To   string `json:"to"   validate:"required,max=64"`
	From string `json:"from" validate:"required,max=64"`
}

type GetMessages struct {
	ConversationID string `json:"conversation_id" validate:"required,max=64"`
}

type TextMessage struct {
	To             string `json:"to"              validate:"required,max=64"`
	From           string `json:"from"            validate:"required,max=64"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id" validate:"required,max=64"`
	Type           string `json:"type"            validate:"omitempty,oneof=Text Media Link"`
	File           string `json:"file"            validate:"omitempty,max=1024"`
}

type StartAudioCall struct {
	From   string `json:"from"    validate:"required,max=64"`
	To     string `json:"to"      validate:"required,max=64"`
	RoomID string `json:"room_id" validate:"omitempty,max=128"`
}

// CallSignal carries the pair of a call: From is the caller, To the callee.
// For end_audio_call From is the party hanging up.
type CallSignal struct {
	From string `json:"from" validate:"required,max=64"`
	To   string `json:"to"   validate:"required,max=64"`
}

type (
	AudioCallAccepted   CallSignal
	AudioCallDenied     CallSignal
	AudioCallNotPicked  CallSignal
	UserIsBusyAudioCall CallSignal
	EndAudioCall        CallSignal
)

type End struct {
	UserID string `json:"user_id" validate:"omitempty,max=64"`
}

func (FriendRequest) Name() string          { return EvFriendRequest }
func (AcceptRequest) Name() string          { return EvAcceptRequest }
func (RejectRequest) Name() string          { return EvRejectRequest }
func (GetFriendRequests) Name() string      { return EvGetFriendRequests }
func (GetFriends) Name() string             { return EvGetFriends }
func (GetDirectConversations) Name() string { return EvGetDirectConversations }
func (StartConversations) Name() string     { return EvStartConversations }
func (GetMessages) Name() string            { return EvGetMessages }
func (TextMessage) Name() string            { return EvTextMessage }
func (StartAudioCall) Name() string         { return EvStartAudioCall }
func (AudioCallAccepted) Name() string      { return EvAudioCallAccepted }
func (AudioCallDenied) Name() string        { return EvAudioCallDenied }
func (AudioCallNotPicked) Name() string     { return EvAudioCallNotPicked }
func (UserIsBusyAudioCall) Name() string    { return EvUserIsBusyAudioCall }
func (EndAudioCall) Name() string           { return EvEndAudioCall }
func (End) Name() string                    { return EvEnd }

func (FriendRequest) sealed()          {}
func (AcceptRequest) sealed()          {}
func (RejectRequest) sealed()          {}
func (GetFriendRequests) sealed()      {}
func (GetFriends) sealed()             {}
func (GetDirectConversations) sealed() {}
func (StartConversations) sealed()     {}
func (GetMessages) sealed()            {}
func (TextMessage) sealed()            {}
func (StartAudioCall) sealed()         {}
func (AudioCallAccepted) sealed()      {}
func (AudioCallDenied) sealed()        {}
func (AudioCallNotPicked) sealed()     {}
func (UserIsBusyAudioCall) sealed()    {}
func (EndAudioCall) sealed()           {}
func (End) sealed()                    {}

type decodeFunc func(data json.RawMessage) (Event, error)

// decoders is the closed registry of inbound events.
var decoders = map[string]decodeFunc{
	EvFriendRequest:          decodeAs[FriendRequest],
	EvAcceptRequest:          decodeAs[AcceptRequest],
	EvRejectRequest:          decodeAs[RejectRequest],
	EvGetFriendRequests:      decodeAs[GetFriendRequests],
	EvGetFriends:             decodeAs[GetFriends],
	EvGetDirectConversations: decodeAs[GetDirectConversations],
	EvStartConversations:     decodeAs[StartConversations],
	EvGetMessages:            decodeAs[GetMessages],
	EvTextMessage:            decodeAs[TextMessage],
	EvStartAudioCall:         decodeAs[StartAudioCall],
	EvAudioCallAccepted:      decodeAs[AudioCallAccepted],
	EvAudioCallDenied:        decodeAs[AudioCallDenied],
	EvAudioCallNotPicked:     decodeAs[AudioCallNotPicked],
	EvUserIsBusyAudioCall:    decodeAs[UserIsBusyAudioCall],
	EvEndAudioCall:           decodeAs[EndAudioCall],
	EvEnd:                    decodeAs[End],
}

// EventNames lists the registered inbound events, sorted.
func EventNames() []string {
	out := make([]string, 0, len(decoders))
	for n := range decoders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var v T
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, &services.Error{Kind: services.KindValidation, Message: "malformed data", Err: err}
		}
	}
	if err := validate().Struct(v); err != nil {
		return nil, validationFailure(err)
	}
	return v, nil
}

// Decode parses a frame into its envelope and typed event. The envelope is
// returned even when the event is rejected so the reply can carry its ref.
func Decode(frame []byte) (Envelope, Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, nil, &services.Error{Kind: services.KindValidation, Message: "malformed frame", Err: err}
	}
	dec, ok := decoders[env.Event]
	if !ok {
		return env, nil, &services.Error{Kind: services.KindValidation, Message: fmt.Sprintf("unknown event %q", env.Event)}
	}
	ev, err := dec(env.Data)
	return env, ev, err
}

// Encode builds an outbound frame.
func Encode(event, ref string, payload any) ([]byte, error) {
	env := Envelope{Event: event, Ref: ref}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// EncodeFailure builds an error frame for err.
func EncodeFailure(ref string, kind services.Kind, msg string) []byte {
	b, err := json.Marshal(Envelope{Event: EvError, Ref: ref, Error: &Failure{Kind: kind, Message: msg}})
	if err != nil {
		return []byte(`{"event":"error","error":{"kind":"storage_error","message":"encode failure"}}`)
	}
	return b
}

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

// validate returns the shared validator. Field names in errors are the
// JSON names clients send.
func validate() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New(validator.WithRequiredStructEnabled())
		validateInst.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validateInst
}

func validationFailure(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &services.Error{Kind: services.KindValidation, Message: "invalid data", Err: err}
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "max":
			parts = append(parts, fe.Field()+" is too long")
		case "oneof":
			parts = append(parts, fe.Field()+" must be one of "+fe.Param())
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return &services.Error{Kind: services.KindValidation, Message: strings.Join(parts, "; ")}
}
