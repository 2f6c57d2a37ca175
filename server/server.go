package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/glassdome/cachestream/cache"
	"github.com/glassdome/cachestream/eventbus"
	"github.com/glassdome/cachestream/internal/profile"
	"github.com/glassdome/cachestream/server/middleware"
	apiv1 "github.com/glassdome/cachestream/server/router/api/v1"
	"github.com/glassdome/cachestream/store"
)

type Server struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	cacheStore *cache.Store
	broker     *eventbus.Broker
}

// NewServer assembles the HTTP surface over the cache engine, the metadata
// registry, and the event broker.
func NewServer(profile *profile.Profile, store *store.Store, cacheStore *cache.Store, broker *eventbus.Broker) *Server {
	e := echo.New()
	e.Debug = profile.Mode == "dev"
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(middleware.RequestLogger())

	s := &Server{
		Secret:     profile.Secret,
		Profile:    profile,
		Store:      store,
		echoServer: e,
		cacheStore: cacheStore,
		broker:     broker,
	}

	e.GET("/healthz", s.healthz)

	apiV1Service := apiv1.NewAPIV1Service(s.Secret, profile, store, cacheStore, broker)
	apiV1Service.RegisterRoutes(e)

	return s
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", "address", address, "mode", s.Profile.Mode)
	return s.echoServer.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop accepting requests first, then tear down the fan-out and storage.
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	s.broker.Close()

	if err := s.cacheStore.Close(); err != nil {
		slog.Error("failed to close cache store", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}

	slog.Info("server stopped")
}

// healthz reports process liveness without touching the backends; the
// authenticated /api/v1/cache/health endpoint covers engine reachability.
func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
