// Package server is the connprovd admin HTTP surface.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/connprov/internal/auth"
	"github.com/danmuck/connprov/internal/config"
	"github.com/danmuck/connprov/internal/node"
	"github.com/danmuck/connprov/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const Version = "0.1.0"

const shutdownTimeout = 5 * time.Second

// StatusSource is the part of a node the admin routes read.
type StatusSource interface {
	NodeID() string
	Ready() bool
	Status() node.Status
	ProviderStatus(name string) (node.ProviderStatus, bool)
}

type Admin struct {
	name     string
	addr     string
	token    auth.Validator
	src      StatusSource
	router   *gin.Engine
	log      zerolog.Logger
	appeared time.Time
}

func New(src StatusSource, cfg config.AdminConfig, logger zerolog.Logger) *Admin {
	gin.SetMode(gin.ReleaseMode)
	observability.RegisterMetrics()

	a := &Admin{
		name:     src.NodeID(),
		addr:     cfg.Addr,
		src:      src,
		router:   gin.New(),
		log:      logger.With().Str("component", "admin").Logger(),
		appeared: time.Now(),
	}
	if cfg.Token != "" {
		a.token = auth.StaticToken(cfg.Token)
	}
	a.router.Use(
		gin.Recovery(),
		observability.AdminRequests(a.name, a.log, "/health", "/ready"),
	)
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

// Serve runs the admin server on ln until ctx is done.
func (a *Admin) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", ln.Addr().String()).Msg("admin.Serve listening")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("admin.Serve shutdown")
			return err
		}
		return nil
	}
}

// Run listens on the configured address and serves until ctx is done.
func (a *Admin) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}
