package realtime

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-tawk-backend/internal/presence"
)

type stubConn struct {
	accept bool
	frames [][]byte
}

func (c *stubConn) ID() string { return "stub" }
func (c *stubConn) Deliver(frame []byte) bool {
	if c.accept {
		c.frames = append(c.frames, frame)
	}
	return c.accept
}

func TestRouter_Notify(t *testing.T) {
	dir := presence.NewWithWriter(nil, 0)
	r := NewRouter(dir)

	offline := testutil.ToFloat64(wsNotifications.WithLabelValues("ping_test", "offline"))
	if r.Notify("ghost", "ping_test", nil) {
		t.Fatal("offline user must not be delivered to")
	}
	if got := testutil.ToFloat64(wsNotifications.WithLabelValues("ping_test", "offline")) - offline; got != 1 {
		t.Fatalf("offline delta = %v", got)
	}

	live := &stubConn{accept: true}
	dir.Register("u1", live)
	if !r.Notify("u1", "ping_test", map[string]string{"k": "v"}) {
		t.Fatal("expected delivery")
	}
	if len(live.frames) != 1 || string(live.frames[0]) != `{"event":"ping_test","data":{"k":"v"}}` {
		t.Fatalf("frames = %q", live.frames)
	}

	dropped := testutil.ToFloat64(wsNotifications.WithLabelValues("ping_test", "dropped"))
	dir.Register("u2", &stubConn{})
	if r.Notify("u2", "ping_test", nil) {
		t.Fatal("full queue must report false")
	}
	if got := testutil.ToFloat64(wsNotifications.WithLabelValues("ping_test", "dropped")) - dropped; got != 1 {
		t.Fatalf("dropped delta = %v", got)
	}
}
