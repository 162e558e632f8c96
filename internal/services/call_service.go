// Package services – CallService
//
// CallService drives the audio-call lifecycle of a participant pair:
//
//	start      -> Pending / Ringing   (callee notified)
//	accepted   Ringing -> Accepted    (caller notified)
//	denied     Ringing -> Denied / Ended (caller notified)
//	not_picked Ringing -> Missed / Ended (callee notified)
//	busy       Ringing -> Busy / Ended   (caller notified)
//	end        Ringing -> Ended       (other party notified; Pending becomes Missed)
//
// Signals apply to the pair's Ringing record whatever its verdict, so an
// answered call can still be denied or reported busy. Only one Ringing record
// may exist per unordered pair. Every transition is a conditional update on
// that record; a signal that finds nothing to move is reported as
// ErrStaleCallEvent and changes nothing. The server timeout and disconnect
// cleanup are the only paths that end calls without a client signal.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/repo"
)

// CallNotice is the payload of every call notification.
type CallNotice struct {
	CallID  string             `json:"call_id"`
	From    string             `json:"from"`
	To      string             `json:"to"`
	RoomID  string             `json:"room_id,omitempty"`
	Verdict domain.CallVerdict `json:"verdict"`
	Status  domain.CallStatus  `json:"status"`
	Caller  *domain.Profile    `json:"caller,omitempty"`
}

func noticeOf(c *domain.CallRecord) CallNotice {
	return CallNotice{
		CallID:  c.ID,
		From:    c.CallerID,
		To:      c.CalleeID,
		RoomID:  c.RoomID,
		Verdict: c.Verdict,
		Status:  c.Status,
	}
}

// CallService persists call records and signals their transitions.
type CallService struct {
	DB     *gorm.DB
	Notify Notifier

	// Now is the clock used for endedAt; defaults to time.Now.
	Now func() time.Time

	locks keyedLocker
}

// NewCallService constructs a CallService.
func NewCallService(db *gorm.DB, n Notifier) *CallService {
	return &CallService{DB: db, Notify: n, Now: time.Now}
}

var (
	pendingOnly = []domain.CallVerdict{domain.VerdictPending}
	anyRinging  = []domain.CallVerdict{domain.VerdictPending, domain.VerdictAccepted}
)

// Start opens a ringing call from caller to callee and notifies the callee.
func (s *CallService) Start(ctx context.Context, caller, callee, roomID string) (*domain.CallRecord, error) {
	ctx, span := otel.Tracer("services/CallService").Start(ctx, "Start",
		trace.WithAttributes(
			attribute.String("from.id", caller),
			attribute.String("to.id", callee),
		))
	defer span.End()

	if caller == "" || callee == "" {
		return nil, ErrMissingUser
	}
	if caller == callee {
		return nil, ErrSelfReference
	}
	n, err := repo.CountUsers(ctx, s.DB, caller, callee)
	if err != nil {
		return nil, storageError(err)
	}
	if n != 2 {
		return nil, ErrUserNotFound
	}

	unlock := s.locks.Lock(pairKey("call", caller, callee))
	defer unlock()

	if _, err := repo.FindRingingCall(ctx, s.DB, caller, callee); err == nil {
		return nil, ErrCallInProgress
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storageError(err)
	}

	rec, err := repo.CreateRingingCall(ctx, s.DB, caller, callee, roomID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCallInProgress
		}
		return nil, storageError(err)
	}
	callTransitions.WithLabelValues(string(rec.Verdict), string(rec.Status)).Inc()

	notice := noticeOf(rec)
	if u, err := repo.GetUser(ctx, s.DB, caller); err == nil {
		p := u.Profile()
		notice.Caller = &p
	}
	notify(s.Notify, callee, EventAudioCallNotification, notice)
	return rec, nil
}

// Accept marks the ringing call of the pair Accepted and notifies the caller.
func (s *CallService) Accept(ctx context.Context, from, to string) (*domain.CallRecord, error) {
	rec, err := s.transition(ctx, "accepted", from, to, anyRinging, domain.VerdictAccepted, false)
	if err != nil {
		return nil, err
	}
	notify(s.Notify, rec.CallerID, EventAudioCallAccepted, noticeOf(rec))
	return rec, nil
}

// Deny ends the ringing call as Denied and notifies the caller.
func (s *CallService) Deny(ctx context.Context, from, to string) (*domain.CallRecord, error) {
	rec, err := s.transition(ctx, "denied", from, to, anyRinging, domain.VerdictDenied, true)
	if err != nil {
		return nil, err
	}
	notify(s.Notify, rec.CallerID, EventAudioCallDenied, noticeOf(rec))
	return rec, nil
}

// NotPicked ends the ringing call as Missed and notifies the callee.
func (s *CallService) NotPicked(ctx context.Context, from, to string) (*domain.CallRecord, error) {
	rec, err := s.transition(ctx, "not_picked", from, to, anyRinging, domain.VerdictMissed, true)
	if err != nil {
		return nil, err
	}
	notify(s.Notify, rec.CalleeID, EventAudioCallMissed, noticeOf(rec))
	return rec, nil
}

// Busy ends the ringing call as Busy and notifies the caller.
func (s *CallService) Busy(ctx context.Context, from, to string) (*domain.CallRecord, error) {
	rec, err := s.transition(ctx, "busy", from, to, anyRinging, domain.VerdictBusy, true)
	if err != nil {
		return nil, err
	}
	notify(s.Notify, rec.CallerID, EventOnAnotherAudioCall, noticeOf(rec))
	return rec, nil
}

// End hangs up the ringing call of {by, other}, whether or not it was
// answered, and notifies other. An unanswered call ends as Missed.
func (s *CallService) End(ctx context.Context, by, other string) (*domain.CallRecord, error) {
	rec, err := s.transition(ctx, "end", by, other, anyRinging, "", true)
	if err != nil {
		return nil, err
	}
	notify(s.Notify, other, EventAudioCallEnded, noticeOf(rec))
	return rec, nil
}

// HangupAll ends every Ringing call userID takes part in, as if userID had
// sent end for each, and notifies the other parties. It runs when the user's
// last session goes away. It returns the number of calls ended.
func (s *CallService) HangupAll(ctx context.Context, userID string) (int, error) {
	ctx, span := otel.Tracer("services/CallService").Start(ctx, "HangupAll",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if userID == "" {
		return 0, ErrMissingUser
	}
	recs, err := repo.ListRingingForUser(ctx, s.DB, userID)
	if err != nil {
		return 0, storageError(err)
	}
	ended := 0
	for _, r := range recs {
		other := r.CalleeID
		if other == userID {
			other = r.CallerID
		}
		if _, err := s.End(ctx, userID, other); err != nil {
			if errors.Is(err, ErrStaleCallEvent) {
				continue
			}
			return ended, err
		}
		ended++
	}
	span.SetAttributes(attribute.Int("calls.ended", ended))
	return ended, nil
}

// ExpireUnanswered ends every call that has rung without an answer since
// before cutoff as Missed and notifies both parties. It returns the number of
// calls expired.
func (s *CallService) ExpireUnanswered(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := otel.Tracer("services/CallService").Start(ctx, "ExpireUnanswered")
	defer span.End()

	recs, err := repo.ListUnansweredBefore(ctx, s.DB, cutoff)
	if err != nil {
		return 0, storageError(err)
	}
	expired := 0
	for _, r := range recs {
		rec, err := s.transition(ctx, "timeout", r.CallerID, r.CalleeID, pendingOnly, domain.VerdictMissed, true)
		if errors.Is(err, ErrStaleCallEvent) {
			// answered or ended since the scan
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		notify(s.Notify, rec.CallerID, EventAudioCallMissed, noticeOf(rec))
		notify(s.Notify, rec.CalleeID, EventAudioCallMissed, noticeOf(rec))
	}
	span.SetAttributes(attribute.Int("calls.expired", expired))
	return expired, nil
}

// ListCalls returns the call history of userID, newest first.
func (s *CallService) ListCalls(ctx context.Context, userID string, limit int) ([]domain.CallRecord, error) {
	ctx, span := otel.Tracer("services/CallService").Start(ctx, "ListCalls",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if userID == "" {
		return nil, ErrMissingUser
	}
	out, err := repo.ListCallsForUser(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return out, nil
}

// transition moves the ringing record of {a, b} from one of the given
// verdicts to verdict. An empty verdict keeps the current one, except that
// Pending becomes Missed. end closes the record.
func (s *CallService) transition(ctx context.Context, signal, a, b string, from []domain.CallVerdict, verdict domain.CallVerdict, end bool) (*domain.CallRecord, error) {
	ctx, span := otel.Tracer("services/CallService").Start(ctx, "transition",
		trace.WithAttributes(
			attribute.String("call.signal", signal),
			attribute.String("user.a", a),
			attribute.String("user.b", b),
		))
	defer span.End()

	if a == "" || b == "" {
		return nil, ErrMissingUser
	}
	if a == b {
		return nil, ErrSelfReference
	}

	unlock := s.locks.Lock(pairKey("call", a, b))
	defer unlock()

	rec, err := repo.FindRingingCall(ctx, s.DB, a, b)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			callStale.WithLabelValues(signal).Inc()
			return nil, ErrStaleCallEvent
		}
		return nil, storageError(err)
	}

	if verdict == "" {
		verdict = rec.Verdict
		if verdict == domain.VerdictPending {
			verdict = domain.VerdictMissed
		}
	}
	status := domain.CallRinging
	var endedAt *time.Time
	if end {
		status = domain.CallEnded
		now := s.now()
		endedAt = &now
	}

	n, err := repo.TransitionRingingCall(ctx, s.DB, a, b, from, verdict, status, endedAt)
	if err != nil {
		return nil, storageError(err)
	}
	if n == 0 {
		callStale.WithLabelValues(signal).Inc()
		return nil, ErrStaleCallEvent
	}
	callTransitions.WithLabelValues(string(verdict), string(status)).Inc()

	rec.Verdict = verdict
	rec.Status = status
	rec.EndedAt = endedAt
	return rec, nil
}

func (s *CallService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
