// Package app assembles the hub from configuration: storage, services,
// presence, the realtime hub and the HTTP server. Long-running parts are
// supervised by suture in two layers. The data layer (the presence writer)
// outlives the edge layer (HTTP, session drain, ring sweeper) so that the
// Offline writes produced while sessions close are flushed before exit.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/config"
	httpapi "github.com/tbourn/go-tawk-backend/internal/http"
	"github.com/tbourn/go-tawk-backend/internal/presence"
	"github.com/tbourn/go-tawk-backend/internal/realtime"
	"github.com/tbourn/go-tawk-backend/internal/services"
)

// App is a wired, not yet running, hub.
type App struct {
	cfg     config.Config
	dir     *presence.Directory
	hub     *realtime.Hub
	handler http.Handler
	data    *suture.Supervisor
	edge    *suture.Supervisor
}

// New wires every component over db.
func New(cfg config.Config, db *gorm.DB) *App {
	dir := presence.New(db, cfg.PresenceQueue)
	notifier := realtime.NewRouter(dir)

	users := services.NewUserService(db)
	friends := services.NewFriendService(db, notifier)
	convs := services.NewConversationService(db, notifier)
	convs.MaxTextRunes = cfg.MaxMessageRunes
	calls := services.NewCallService(db, notifier)

	hub := realtime.NewHub(dir, &realtime.Dispatcher{
		Friends:       friends,
		Conversations: convs,
		Calls:         calls,
	}, realtime.Options{
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		PongWait:       cfg.WS.PongWait,
		WriteWait:      cfg.WS.WriteWait,
		EventRate:      rate.Limit(cfg.WS.EventRPS),
		EventBurst:     cfg.WS.EventBurst,
		EventTimeout:   cfg.WS.EventTimeout,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:            db,
		Users:         users,
		Friends:       friends,
		Conversations: convs,
		Calls:         calls,
		Hub:           hub,
	}, cfg)

	spec := suture.Spec{
		EventHook: eventHook,
		Timeout:   cfg.ShutdownTimeout,
	}
	a := &App{
		cfg:     cfg,
		dir:     dir,
		hub:     hub,
		handler: r,
		data:    suture.New("data-layer", spec),
		edge:    suture.New("edge-layer", spec),
	}

	a.data.Add(dir)
	a.edge.Add(newHTTPService(&http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}, cfg.ShutdownTimeout))
	a.edge.Add(drainService{hub: hub})
	a.edge.Add(services.NewRingSweeper(calls, cfg.RingTimeout, cfg.RingSweep))
	return a
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves until ctx is done, then stops the edge layer, hangs up the
// remaining sessions and flushes queued presence writes.
func (a *App) Run(ctx context.Context) error {
	dataCtx, stopData := context.WithCancel(context.WithoutCancel(ctx))
	dataDone := a.data.ServeBackground(dataCtx)

	log.Info().
		Str("port", a.cfg.Port).
		Str("api_base", a.cfg.APIBasePath).
		Dur("ring_timeout", a.cfg.RingTimeout).
		Msg("tawk hub starting")

	err := a.edge.Serve(ctx)

	a.hub.Close()
	// Sessions release themselves asynchronously; anything still registered
	// is marked Offline here so the writer flushes it before stopping.
	a.dir.Clear()
	stopData()
	select {
	case <-dataDone:
	case <-time.After(a.cfg.ShutdownTimeout):
		log.Warn().Msg("presence writer did not stop in time")
	}

	if err != nil && ctx.Err() != nil {
		// Supervisors report the cancellation that stopped them.
		err = nil
	}
	log.Info().Msg("tawk hub stopped")
	return err
}
