package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"
)

// HTTPServer is the lifecycle subset of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// httpService runs an HTTPServer under a supervisor and shuts it down
// gracefully when its context ends.
type httpService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func newHTTPService(server HTTPServer, shutdownTimeout time.Duration) *httpService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &httpService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is not a failure.
func (h *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// ctx is already done; shutdown gets a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpService) String() string { return "http-server" }

// Closer is satisfied by the realtime hub.
type Closer interface {
	Close()
}

// drainService closes the hub when the edge layer stops. Hijacked
// WebSocket connections are not tracked by http.Server.Shutdown.
type drainService struct {
	hub Closer
}

func (d drainService) Serve(ctx context.Context) error {
	<-ctx.Done()
	d.hub.Close()
	return ctx.Err()
}

func (d drainService) String() string { return "session-drain" }

// eventHook logs supervisor events through zerolog.
func eventHook(e suture.Event) {
	ev := log.Warn()
	if e.Type() == suture.EventTypeServicePanic {
		ev = log.Error()
	}
	ev.Fields(e.Map()).Str("supervisor_event", e.String()).Msg("supervisor event")
}
