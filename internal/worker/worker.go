// Package worker is the scaffold a worker agent service is built from:
// it advertises capability metadata for discovery and accepts dispatched
// run state on /invoke. The orchestrator only ever sees these two
// endpoints; what a worker does in between is its own business.
package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/contract"
	"github.com/mohammad-safakhou/crew/internal/dispatch"
	"github.com/mohammad-safakhou/crew/provider"
)

// InvokeFunc handles one dispatched state snapshot and returns the
// updated snapshot. Returning an error yields a 500 to the dispatcher,
// which the supervisor counts as a transport failure.
type InvokeFunc func(ctx context.Context, state dispatch.RunState) (dispatch.RunState, error)

// Service is one worker agent: a name, the capabilities it claims, and
// the handler that does the work.
type Service struct {
	name         string
	capabilities []string
	handle       InvokeFunc
	logger       *log.Logger
}

// NewService creates a worker service.
func NewService(name string, capabilities []string, handle InvokeFunc) *Service {
	return &Service{
		name:         name,
		capabilities: capabilities,
		handle:       handle,
		logger:       log.New(log.Writer(), fmt.Sprintf("[WORKER:%s] ", name), log.LstdFlags),
	}
}

// Register mounts the discovery and dispatch endpoints on an echo instance.
func (s *Service) Register(e *echo.Echo) {
	e.GET("/capabilities", s.getCapabilities)
	e.POST("/invoke", s.invoke)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
}

// Run serves the worker until the listener fails.
func (s *Service) Run(addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	s.Register(e)
	s.logger.Printf("listening on %s with capabilities %v", addr, s.capabilities)
	return e.Start(addr)
}

func (s *Service) getCapabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": []capability.Metadata{
			{AgentName: s.name, Capabilities: s.capabilities},
		},
	})
}

func (s *Service) invoke(c echo.Context) error {
	var state dispatch.RunState
	if err := c.Bind(&state); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := s.handle(c.Request().Context(), state)
	if err != nil {
		s.logger.Printf("invoke failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

// DirectAnswer builds an InvokeFunc that answers the original request
// with one LLM call and reports completion under the given capability
// token. It is the reference worker implementation.
func DirectAnswer(p provider.Provider, model string, capabilityToken string) InvokeFunc {
	return func(ctx context.Context, state dispatch.RunState) (dispatch.RunState, error) {
		request, ok := state.FirstUser()
		if !ok {
			return state, fmt.Errorf("no user message in state")
		}
		answer, err := p.Generate(ctx, request, model, nil)
		if err != nil {
			return state, fmt.Errorf("generate: %w", err)
		}

		marker, err := contract.Encode(contract.Contract{
			CompletedCapability: capabilityToken,
			Data:                map[string]interface{}{"answer": strings.TrimSpace(answer)},
		})
		if err != nil {
			return state, err
		}

		out := state.Clone()
		out.Messages = append(out.Messages, dispatch.Message{
			Role:    "assistant",
			Content: strings.TrimSpace(answer) + "\n\n" + marker,
		})
		return out, nil
	}
}
