package realtime

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/presence"
	"github.com/tbourn/go-tawk-backend/internal/repo"
	"github.com/tbourn/go-tawk-backend/internal/services"
)

type testHub struct {
	db  *gorm.DB
	dir *presence.Directory
	hub *Hub
	srv *httptest.Server
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "rt.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func seedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		u := domain.User{ID: id, FirstName: id, Verified: true, Status: domain.StatusOffline}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func newDispatcher(db *gorm.DB, n services.Notifier) *Dispatcher {
	return &Dispatcher{
		Friends:       services.NewFriendService(db, n),
		Conversations: services.NewConversationService(db, n),
		Calls:         services.NewCallService(db, n),
	}
}

// startHub wires the full realtime stack over a temp database behind an
// httptest server.
func startHub(t *testing.T, opts Options, users ...string) *testHub {
	t.Helper()
	db := newTestDB(t)
	seedUsers(t, db, users...)
	dir := presence.NewWithWriter(nil, 0)
	hub := NewHub(dir, newDispatcher(db, NewRouter(dir)), opts)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testHub{db: db, dir: dir, hub: hub, srv: srv}
}

func (h *testHub) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	if userID != "" {
		url += "?user_id=" + userID
	}
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if userID != "" {
		waitFor(t, func() bool { _, ok := h.dir.Lookup(userID); return ok })
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func send(t *testing.T, c *websocket.Conn, event, ref string, data any) {
	t.Helper()
	b, err := Encode(event, ref, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func read(t *testing.T, c *websocket.Conn) Envelope {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return env
}

// readUntil skips frames until one named event arrives.
func readUntil(t *testing.T, c *websocket.Conn, event string) Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := read(t, c)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("no %s frame", event)
	return Envelope{}
}

type fakePeer struct {
	user   string
	hungUp bool
}

func (p *fakePeer) UserID() string { return p.user }
func (p *fakePeer) Hangup()        { p.hungUp = true }
