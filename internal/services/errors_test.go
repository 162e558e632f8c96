package services

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{ErrSelfReference, KindValidation},
		{ErrInvalidMessage, KindValidation},
		{ErrUserNotFound, KindNotFound},
		{ErrRequestNotFound, KindNotFound},
		{ErrCallInProgress, KindConflict},
		{ErrDuplicateRequest, KindConflict},
		{ErrStaleCallEvent, KindStaleEvent},
		{storageError(errors.New("disk")), KindStorage},
		{errors.New("raw"), KindStorage},
		{fmt.Errorf("wrapped: %w", ErrConversationNotFound), KindNotFound},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %q; want %q", tc.err, got, tc.want)
		}
	}
}

func TestStorageError_WrapsAndHidesCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := storageError(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected storage error to unwrap to cause")
	}
	if MessageOf(err) != "storage failure" {
		t.Fatalf("client message leaked cause: %q", MessageOf(err))
	}
	if MessageOf(errors.New("x")) != "storage failure" {
		t.Fatalf("unclassified errors must not leak text")
	}
	if MessageOf(ErrCallInProgress) != "call in progress" {
		t.Fatalf("unexpected message %q", MessageOf(ErrCallInProgress))
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatal("nil is not a violation")
	}
	if !isUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatal("translated duplicate key not detected")
	}
	if !isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: friend_requests.sender_id (2067)")) {
		t.Fatal("sqlite message not detected")
	}
	if isUniqueViolation(errors.New("CHECK constraint failed")) {
		t.Fatal("check failure misread as unique")
	}
}

func TestKeyedLocker_SerializesAndFrees(t *testing.T) {
	var k keyedLocker
	unlock := k.Lock(pairKey("p", "b", "a"))
	if pairKey("p", "a", "b") != pairKey("p", "b", "a") {
		t.Fatal("pair key must be order independent")
	}

	acquired := make(chan struct{})
	go func() {
		u := k.Lock(pairKey("p", "a", "b"))
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	default:
	}
	unlock()
	<-acquired

	if n := k.size(); n != 0 {
		t.Fatalf("expected no live keys, got %d", n)
	}
}
