package services

import (
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/repo"
)

// newServiceDB opens a migrated SQLite file with the production pragmas.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
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

type notice struct {
	User    string
	Event   string
	Payload any
}

// recordingNotifier records notifications. Users in offline are treated as
// absent: the call is recorded as dropped and false is returned.
type recordingNotifier struct {
	mu      sync.Mutex
	offline map[string]bool
	sent    []notice
	dropped []notice
}

func newRecorder(offline ...string) *recordingNotifier {
	r := &recordingNotifier{offline: map[string]bool{}}
	for _, id := range offline {
		r.offline[id] = true
	}
	return r
}

func (r *recordingNotifier) Notify(userID, event string, payload any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := notice{User: userID, Event: event, Payload: payload}
	if r.offline[userID] {
		r.dropped = append(r.dropped, n)
		return false
	}
	r.sent = append(r.sent, n)
	return true
}

func (r *recordingNotifier) events(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		if n.User == userID {
			out = append(out, n.Event)
		}
	}
	return out
}

func (r *recordingNotifier) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}
