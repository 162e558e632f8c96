// Package presence holds the in-memory directory of connected users.
//
// The Directory is the single authority for "is this user reachable, and
// through which connection". Every register and unregister also queues a
// status write (Online with the connection id, or Offline) that a single
// background writer applies in order. Those writes are fire-and-forget: the
// map is updated first and stays authoritative if persistence lags or fails.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/repo"
)

// Conn is a live connection handle.
type Conn interface {
	// ID identifies the connection; it is persisted as the user's connection ref.
	ID() string
	// Deliver queues an encoded frame without blocking and reports whether
	// it was accepted.
	Deliver(frame []byte) bool
}

// StatusWrite is one queued presence persistence update.
type StatusWrite struct {
	UserID string
	Status domain.UserStatus
	ConnID *string
}

// WriteFunc persists a status write.
type WriteFunc func(ctx context.Context, w StatusWrite) error

var (
	onlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tawk_presence_online_users",
		Help: "Users currently registered in the presence directory.",
	})
	statusWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tawk_presence_status_writes_total",
		Help: "Presence status writes by outcome (ok, error, dropped).",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(onlineUsers, statusWrites)
}

// Directory maps user ids to their active connection.
type Directory struct {
	mu    sync.RWMutex
	conns map[string]Conn

	writes chan StatusWrite
	write  WriteFunc

	// WriteTimeout bounds a single persistence write.
	WriteTimeout time.Duration
}

// New returns a directory persisting status through db. A nil db disables
// persistence. queue bounds the number of pending writes.
func New(db *gorm.DB, queue int) *Directory {
	var w WriteFunc
	if db != nil {
		w = func(ctx context.Context, s StatusWrite) error {
			return repo.SetUserStatus(ctx, db, s.UserID, s.Status, s.ConnID)
		}
	}
	return NewWithWriter(w, queue)
}

// NewWithWriter returns a directory that persists through w (may be nil).
func NewWithWriter(w WriteFunc, queue int) *Directory {
	if queue <= 0 {
		queue = 1024
	}
	return &Directory{
		conns:        make(map[string]Conn),
		writes:       make(chan StatusWrite, queue),
		write:        w,
		WriteTimeout: 5 * time.Second,
	}
}

// Register records that userID is reachable through c, replacing any
// previous handle. The replaced connection is left open.
func (d *Directory) Register(userID string, c Conn) {
	if userID == "" || c == nil {
		return
	}
	d.mu.Lock()
	prev, had := d.conns[userID]
	d.conns[userID] = c
	id := c.ID()
	d.enqueue(StatusWrite{UserID: userID, Status: domain.StatusOnline, ConnID: &id})
	onlineUsers.Set(float64(len(d.conns)))
	d.mu.Unlock()

	if had && prev != c {
		log.Info().Str("user_id", userID).Str("replaced", prev.ID()).Str("conn_id", id).Msg("presence superseded")
	}
}

// Unregister removes userID unconditionally. It is idempotent.
func (d *Directory) Unregister(userID string) {
	if userID == "" {
		return
	}
	d.mu.Lock()
	delete(d.conns, userID)
	d.enqueue(StatusWrite{UserID: userID, Status: domain.StatusOffline})
	onlineUsers.Set(float64(len(d.conns)))
	d.mu.Unlock()
}

// Release removes userID only while c is still its registered handle, so a
// superseded connection cannot evict its replacement. It reports whether an
// entry was removed.
func (d *Directory) Release(userID string, c Conn) bool {
	if userID == "" || c == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.conns[userID]
	if !ok || cur != c {
		return false
	}
	delete(d.conns, userID)
	d.enqueue(StatusWrite{UserID: userID, Status: domain.StatusOffline})
	onlineUsers.Set(float64(len(d.conns)))
	return true
}

// Lookup returns the handle registered for userID.
func (d *Directory) Lookup(userID string) (Conn, bool) {
	d.mu.RLock()
	c, ok := d.conns[userID]
	d.mu.RUnlock()
	return c, ok
}

// Online returns the number of registered users.
func (d *Directory) Online() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}

// Clear drops every entry and queues Offline writes for them.
func (d *Directory) Clear() {
	d.mu.Lock()
	for id := range d.conns {
		d.enqueue(StatusWrite{UserID: id, Status: domain.StatusOffline})
	}
	d.conns = make(map[string]Conn)
	onlineUsers.Set(0)
	d.mu.Unlock()
}

// enqueue must be called with d.mu held so the queue order matches the
// order of map changes.
func (d *Directory) enqueue(w StatusWrite) {
	if d.write == nil {
		return
	}
	select {
	case d.writes <- w:
	default:
		statusWrites.WithLabelValues("dropped").Inc()
		log.Warn().Str("user_id", w.UserID).Str("status", string(w.Status)).Msg("presence write queue full; dropping status write")
	}
}

// Serve applies queued status writes in order until ctx is done, then
// flushes what is already queued. It implements suture.Service.
func (d *Directory) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return ctx.Err()
		case w := <-d.writes:
			d.apply(ctx, w)
		}
	}
}

func (d *Directory) flush() {
	for {
		select {
		case w := <-d.writes:
			d.apply(context.Background(), w)
		default:
			return
		}
	}
}

func (d *Directory) apply(ctx context.Context, w StatusWrite) {
	if d.write == nil {
		return
	}
	if d.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.WriteTimeout)
		defer cancel()
	}
	if err := d.write(ctx, w); err != nil {
		statusWrites.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("user_id", w.UserID).Str("status", string(w.Status)).Msg("presence write failed")
		return
	}
	statusWrites.WithLabelValues("ok").Inc()
}

// String names the service in supervisor logs.
func (d *Directory) String() string { return "presence-writer" }
