package realtime

import (
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-tawk-backend/internal/presence"
)

// Router delivers notifications to the connection a user is registered
// under. It never blocks: offline users and full queues drop the event.
type Router struct {
	Dir *presence.Directory
}

// NewRouter returns a Router over dir.
func NewRouter(dir *presence.Directory) *Router {
	return &Router{Dir: dir}
}

// Notify implements services.Notifier.
func (r *Router) Notify(userID, event string, payload any) bool {
	c, ok := r.Dir.Lookup(userID)
	if !ok {
		wsNotifications.WithLabelValues(event, "offline").Inc()
		return false
	}
	frame, err := Encode(event, "", payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Str("user_id", userID).Msg("encode notification")
		return false
	}
	if !c.Deliver(frame) {
		wsNotifications.WithLabelValues(event, "dropped").Inc()
		log.Warn().Str("event", event).Str("user_id", userID).Str("conn_id", c.ID()).Msg("notification dropped")
		return false
	}
	wsNotifications.WithLabelValues(event, "delivered").Inc()
	return true
}
