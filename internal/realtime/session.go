package realtime

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-tawk-backend/internal/observability"
	"github.com/tbourn/go-tawk-backend/internal/services"
)

// Options tunes sessions. Zero fields take the defaults below.
type Options struct {
	ReadLimit      int64
	SendBuffer     int
	PongWait       time.Duration
	WriteWait      time.Duration
	EventRate      rate.Limit
	EventBurst     int
	EventTimeout   time.Duration
	AllowedOrigins []string
}

const (
	defaultReadLimit    = 512 * 1024
	defaultSendBuffer   = 256
	defaultPongWait     = 60 * time.Second
	defaultWriteWait    = 10 * time.Second
	defaultEventRate    = 20
	defaultEventBurst   = 40
	defaultEventTimeout = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.EventRate <= 0 {
		o.EventRate = defaultEventRate
	}
	if o.EventBurst <= 0 {
		o.EventBurst = defaultEventBurst
	}
	if o.EventTimeout <= 0 {
		o.EventTimeout = defaultEventTimeout
	}
	return o
}

func (o Options) pingPeriod() time.Duration { return o.PongWait * 9 / 10 }

// Session is one WebSocket connection. Inbound events are handled one at a
// time on the read pump, so a session observes its own events in order.
type Session struct {
	id     string
	userID string
	conn   *websocket.Conn
	hub    *Hub
	opts   Options

	send chan []byte
	done chan struct{}
	once sync.Once

	limiter *rate.Limiter
	log     zerolog.Logger
}

func newSession(h *Hub, conn *websocket.Conn, userID string) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		userID:  userID,
		conn:    conn,
		hub:     h,
		opts:    h.opts,
		send:    make(chan []byte, h.opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(h.opts.EventRate, h.opts.EventBurst),
		log:     log.With().Str("session_id", id).Str("user_id", userID).Logger(),
	}
}

// ID implements presence.Conn.
func (s *Session) ID() string { return s.id }

// UserID implements Peer.
func (s *Session) UserID() string { return s.userID }

// Deliver queues frame for the write pump. It never blocks and reports
// false once the session is closing or its queue is full.
func (s *Session) Deliver(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Hangup releases the session's presence entry and starts closing the
// connection. Safe to call more than once and from any goroutine.
func (s *Session) Hangup() {
	s.once.Do(func() {
		if s.userID != "" {
			s.hub.dir.Release(s.userID, s)
		}
		close(s.done)
	})
}

// run drives the connection until it closes.
func (s *Session) run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump()
	}()
	s.readPump(ctx)
	wg.Wait()
}

func (s *Session) readPump(ctx context.Context) {
	defer s.Hangup()

	s.conn.SetReadLimit(s.opts.ReadLimit)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		s.log.Error().Err(err).Msg("set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		s.handle(ctx, frame)

		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.log.Debug().Err(err).Msg("write frame")
				s.Hangup()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Hangup()
				return
			}
		case <-s.done:
			s.drain()
			_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before the session closed, such as the reply
// to the event that ended it.
func (s *Session) drain() {
	for {
		select {
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(kind int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(kind, data)
}

func (s *Session) handle(ctx context.Context, frame []byte) {
	env, ev, err := Decode(frame)
	name := env.Event
	if ev == nil {
		if _, known := decoders[name]; !known {
			name = "unknown"
		}
	}

	if !s.limiter.Allow() {
		wsEvents.WithLabelValues(name, string(KindRateLimited)).Inc()
		s.reply(EncodeFailure(env.Ref, KindRateLimited, "too many events"))
		return
	}
	if err != nil {
		s.fail(name, env.Ref, err)
		return
	}

	start := time.Now()
	out, err := s.dispatch(ctx, ev)
	if err != nil {
		s.fail(name, env.Ref, err)
		return
	}
	wsEvents.WithLabelValues(name, "ok").Inc()
	s.log.Debug().Str("event", name).Dur("latency", time.Since(start)).Msg("event handled")

	if _, ended := ev.(End); ended {
		return
	}
	if !answers(ev) && env.Ref == "" {
		return
	}
	b, err := Encode(name, env.Ref, out)
	if err != nil {
		s.fail(name, env.Ref, err)
		return
	}
	s.reply(b)
}

func (s *Session) dispatch(ctx context.Context, ev Event) (out Reply, err error) {
	ctx, span := observability.StartEvent(ctx, ev.Name(), s.id, s.userID)
	defer func() {
		var kind string
		if err != nil {
			kind = string(services.KindOf(err))
		}
		observability.EndEvent(span, kind, err)
	}()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("event", ev.Name()).
				Msg("panic in event handler")
			out, err = nil, &services.Error{Kind: services.KindStorage, Message: "internal error"}
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, s.opts.EventTimeout)
	defer cancel()
	return s.hub.dispatcher.Dispatch(ctx, s, ev)
}

func (s *Session) fail(name, ref string, err error) {
	kind := services.KindOf(err)
	wsEvents.WithLabelValues(name, string(kind)).Inc()
	if kind == services.KindStorage {
		s.log.Error().Err(err).Str("event", name).Msg("event failed")
	} else {
		s.log.Debug().Err(err).Str("event", name).Msg("event rejected")
	}
	s.reply(EncodeFailure(ref, kind, services.MessageOf(err)))
}

func (s *Session) reply(frame []byte) {
	if !s.Deliver(frame) {
		s.log.Warn().Msg("reply dropped; send queue full")
	}
}

// answers reports whether ev is a request that always gets a reply. Other
// events are acknowledged only when the client sent a ref.
func answers(ev Event) bool {
	switch ev.(type) {
	case GetFriendRequests, GetFriends, GetDirectConversations, GetMessages, StartConversations:
		return true
	}
	return false
}
