package realtime

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tbourn/go-tawk-backend/internal/services"
)

func TestDecode_TypedEvents(t *testing.T) {
	tests := []struct {
		frame string
		want  Event
	}{
		{`{"event":"friend_request","data":{"from":"a","to":"b"}}`, FriendRequest{From: "a", To: "b"}},
		{`{"event":"accept_request","data":{"request_id":"r1"}}`, AcceptRequest{RequestID: "r1"}},
		{`{"event":"text_message","ref":"7","data":{"from":"a","to":"b","conversation_id":"c","message":"hi","type":"Text"}}`,
			TextMessage{From: "a", To: "b", ConversationID: "c", Message: "hi", Type: "Text"}},
		{`{"event":"audio_call_denied","data":{"from":"a","to":"b"}}`, AudioCallDenied{From: "a", To: "b"}},
		{`{"event":"end"}`, End{}},
		{`{"event":"end","data":null}`, End{}},
	}
	for _, tt := range tests {
		_, got, err := Decode([]byte(tt.frame))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tt.frame, err)
		}
		if got != tt.want {
			t.Fatalf("Decode(%s) = %#v; want %#v", tt.frame, got, tt.want)
		}
	}
}

func TestDecode_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		ref     string
		message string
	}{
		{"not json", `{"event":`, "", "malformed frame"},
		{"unknown", `{"event":"dance","ref":"x"}`, "x", `unknown event "dance"`},
		{"bad data", `{"event":"get_friends","ref":"y","data":[1]}`, "y", "malformed data"},
		{"missing fields", `{"event":"friend_request","data":{"from":"a"}}`, "", "to is required"},
		{"bad kind", `{"event":"text_message","data":{"from":"a","to":"b","conversation_id":"c","type":"Sticker"}}`, "", "type must be one of Text Media Link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, ev, err := Decode([]byte(tt.frame))
			if ev != nil {
				t.Fatalf("expected no event, got %#v", ev)
			}
			var se *services.Error
			if !errors.As(err, &se) || se.Kind != services.KindValidation {
				t.Fatalf("err = %v; want validation error", err)
			}
			if se.Message != tt.message {
				t.Fatalf("message = %q; want %q", se.Message, tt.message)
			}
			if env.Ref != tt.ref {
				t.Fatalf("ref = %q; want %q", env.Ref, tt.ref)
			}
		})
	}
}

func TestEventNames_ClosedSet(t *testing.T) {
	names := EventNames()
	if len(names) != 16 {
		t.Fatalf("registered events = %d: %v", len(names), names)
	}
	for _, n := range names {
		_, ev, err := Decode([]byte(`{"event":"` + n + `","data":{}}`))
		if err == nil && ev.Name() != n {
			t.Fatalf("%s decodes to %s", n, ev.Name())
		}
	}
}

func TestEncode(t *testing.T) {
	b, err := Encode("get_friends", "r9", []string{"x"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != "get_friends" || env.Ref != "r9" || string(env.Data) != `["x"]` || env.Error != nil {
		t.Fatalf("envelope = %+v", env)
	}

	f := string(EncodeFailure("r1", services.KindNotFound, "gone"))
	for _, part := range []string{`"event":"error"`, `"ref":"r1"`, `"kind":"not_found"`, `"message":"gone"`} {
		if !strings.Contains(f, part) {
			t.Fatalf("failure frame %s lacks %s", f, part)
		}
	}
}
