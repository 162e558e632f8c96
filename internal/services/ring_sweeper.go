package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RingSweeper expires calls that ring longer than Timeout. It implements
// suture.Service.
type RingSweeper struct {
	Calls    *CallService
	Timeout  time.Duration
	Interval time.Duration
}

// NewRingSweeper returns a sweeper that checks every interval. A
// non-positive interval defaults to a quarter of the timeout.
func NewRingSweeper(calls *CallService, timeout, interval time.Duration) *RingSweeper {
	if interval <= 0 {
		interval = timeout / 4
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RingSweeper{Calls: calls, Timeout: timeout, Interval: interval}
}

// Serve runs sweeps until ctx is done. With a zero Timeout it only waits,
// so ringing is left entirely to clients.
func (r *RingSweeper) Serve(ctx context.Context) error {
	if r.Timeout <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep expires everything that started ringing before now - Timeout.
func (r *RingSweeper) Sweep(ctx context.Context, now time.Time) int {
	n, err := r.Calls.ExpireUnanswered(ctx, now.UTC().Add(-r.Timeout))
	if err != nil {
		log.Warn().Err(err).Msg("ring sweep failed")
	}
	if n > 0 {
		log.Info().Int("expired", n).Dur("timeout", r.Timeout).Msg("unanswered calls expired")
	}
	return n
}

// String names the service in supervisor logs.
func (r *RingSweeper) String() string { return "ring-sweeper" }
