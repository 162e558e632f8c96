package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-tawk-backend/internal/presence"
)

// UserHeader carries the connecting user's id when the query has none.
const UserHeader = "X-User-ID"

// Hub upgrades HTTP requests into sessions and tracks them for shutdown.
type Hub struct {
	dir        *presence.Directory
	dispatcher *Dispatcher
	opts       Options
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// NewHub returns a Hub registering sessions in dir and applying their
// events through d.
func NewHub(dir *presence.Directory, d *Dispatcher, opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		dir:        dir,
		dispatcher: d,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(opts.AllowedOrigins),
		},
		sessions: make(map[*Session]struct{}),
	}
}

// originChecker allows requests without an Origin header (native clients)
// and browser origins on the allow list. "*" allows all.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		log.Warn().Str("origin", origin).Msg("websocket origin rejected")
		return false
	}
}

// ServeHTTP upgrades the request and runs the session until it closes.
// Without a user id the session is anonymous and is not registered.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = strings.TrimSpace(r.Header.Get(UserHeader))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(h, conn, userID)
	if !h.add(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.opts.WriteWait))
		_ = conn.Close()
		return
	}
	defer h.remove(s)

	if userID != "" {
		h.dir.Register(userID, s)
	}
	s.log.Info().Str("remote", r.RemoteAddr).Bool("anonymous", userID == "").Msg("session opened")

	s.run(context.WithoutCancel(r.Context()))
	if userID != "" {
		// Covers a Close that hung up the session before it registered.
		h.dir.Release(userID, s)
		if _, online := h.dir.Lookup(userID); !online {
			h.disconnected(userID)
		}
	}
	s.log.Info().Msg("session closed")
}

// disconnected hangs up the calls of a user whose last session closed.
func (h *Hub) disconnected(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.EventTimeout)
	defer cancel()
	n, err := h.dispatcher.Disconnected(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("hang up calls on disconnect")
		return
	}
	if n > 0 {
		log.Info().Str("user_id", userID).Int("calls", n).Msg("calls ended on disconnect")
	}
}

func (h *Hub) add(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	wsConnections.Inc()
	return true
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	wsConnections.Dec()
}

// Sessions returns the number of open sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close hangs up every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	open := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.Hangup()
	}
}
