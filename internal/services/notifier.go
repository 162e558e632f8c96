package services

// Outbound notification names.
const (
	EventNewFriendRequest      = "new_friend_request"
	EventRequestSent           = "request_sent"
	EventRequestAccepted       = "request_accepted"
	EventNewMessage            = "new_message"
	EventAudioCallNotification = "audio_call_notification"
	EventAudioCallAccepted     = "audio_call_accepted"
	EventAudioCallDenied       = "audio_call_denied"
	EventAudioCallMissed       = "audio_call_missed"
	EventOnAnotherAudioCall    = "on_another_audio_call"
	EventAudioCallEnded        = "audio_call_ended"
)

// Notifier delivers a best-effort event to a user's live connection. It
// reports whether the event was handed to a connection; an offline target is
// not an error.
type Notifier interface {
	Notify(userID, event string, payload any) bool
}

// notify is a nil-safe Notify.
func notify(n Notifier, userID, event string, payload any) {
	if n == nil || userID == "" {
		return
	}
	n.Notify(userID, event, payload)
}
