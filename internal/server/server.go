// Package server exposes the orchestrator over HTTP: auth, the runs
// API, live run status, and operational endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/crew/config"
	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/dispatch"
	"github.com/mohammad-safakhou/crew/internal/store"
	"github.com/mohammad-safakhou/crew/internal/supervisor"
	"github.com/mohammad-safakhou/crew/internal/telemetry"
	"github.com/mohammad-safakhou/crew/provider"
)

// NewEcho builds the echo instance with the middleware and operational
// endpoints every deployment gets, independent of storage choices.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

// Run wires the full service and blocks serving HTTP.
func Run(addr string, cfg *config.Config) error {
	ctx := context.Background()

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	secret := []byte(cfg.Server.JWTSecret)

	// Storage: Postgres + Redis when configured, in-process otherwise.
	var (
		runs   store.RunStore
		users  store.UserStore
		status store.StatusStore
	)
	mem := store.NewMemory()
	runs, users, status = mem, mem, mem

	if cfg.Storage.Postgres.Configured() {
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return err
		}
		if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
			log.Printf("[SERVER] migrate: %v (continuing, schema may already be current)", err)
		}
		pg, err := store.NewPostgres(dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		runs, users = pg, pg
	}
	if cfg.Storage.Redis.Configured() {
		client, err := store.Conn(ctx, cfg.Storage.Redis.Host, cfg.Storage.Redis.Port,
			cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		status = store.NewRedisStatusStore(client)
	}

	// Discovery runs once at startup; the directory is immutable after.
	fallback := make(map[string]capability.Metadata, len(cfg.Discovery.Fallback))
	for port, entry := range cfg.Discovery.Fallback {
		fallback[port] = capability.Metadata{AgentName: entry.AgentName, Capabilities: entry.Capabilities}
	}
	discoverer := capability.NewDiscoverer(cfg.Discovery.Endpoints, fallback, cfg.Discovery.ProbeTimeout, nil)
	directory := discoverer.Discover(ctx)

	llmProvider, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	planner := supervisor.NewPlanner(llmProvider, cfg.LLM.Routing, tele, nil)
	dispatcher := dispatch.NewDispatcher(cfg.Supervisor.DispatchTimeout, nil)
	sup := supervisor.New(directory, planner, dispatcher, tele, cfg.Supervisor, nil)

	e := NewEcho()

	api := e.Group("/api")
	auth := &AuthHandler{Users: users, Secret: secret}
	auth.Register(api.Group("/auth"))

	rh := &RunsHandler{
		Runner: sup,
		Runs:   runs,
		Status: status,
		Logger: log.New(log.Writer(), "[RUNS] ", log.LstdFlags),
	}
	rh.Register(api.Group("/runs"), secret)

	// Discovered capability vocabulary, useful for dashboards.
	api.GET("/capabilities", func(c echo.Context) error {
		return c.JSON(http.StatusOK, directory.Capabilities())
	})

	if addr == "" {
		addr = cfg.Server.Address
	}
	if addr == "" {
		addr = ":10001"
	}
	log.Printf("[SERVER] listening on %s (%d capabilities discovered)", addr, directory.Len())
	return e.Start(addr)
}
