package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"repolink/internal/logger"
	"repolink/internal/model"
	"repolink/internal/repository"
	"repolink/internal/watch"
)

type Controller interface {
	Status() watch.Status
	Nudge()
}

type Resolver interface {
	Pending() []model.Proposal
	Resolve(id string, decision model.Decision) error
}

type History interface {
	GetRecent(ctx context.Context, limit int) ([]model.CycleRecord, error)
	GetStats(ctx context.Context) (repository.Stats, error)
}

type Server struct {
	echo     *echo.Echo
	loop     Controller
	queue    Resolver
	histRepo History
	port     int
	stopCh   chan struct{}
}

func NewServer(loop Controller, queue Resolver, histRepo History, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		loop:     loop,
		queue:    queue,
		histRepo: histRepo,
		port:     port,
		stopCh:   make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)
	s.echo.POST("/check", s.handleCheck)

	g := s.echo.Group("/proposals")
	g.GET("", s.handleListProposals)
	g.POST("/:id/confirm", s.handleDecide(model.DecisionConfirmed))
	g.POST("/:id/reject", s.handleDecide(model.DecisionRejected))

	s.echo.GET("/history", s.handleHistory)
}

func (s *Server) Start() {
	go func() {
		addr := "localhost:" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := map[string]any{
		"loop":    s.loop.Status(),
		"pending": len(s.queue.Pending()),
	}

	if s.histRepo != nil {
		stats, err := s.histRepo.GetStats(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		resp["stats"] = stats
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleCheck(c echo.Context) error {
	s.loop.Nudge()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "check scheduled"})
}

func (s *Server) handleListProposals(c echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.Pending())
}

func (s *Server) handleDecide(decision model.Decision) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")

		if err := s.queue.Resolve(id, decision); err != nil {
			if errors.Is(err, watch.ErrProposalNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
			}
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}

		logger.Log.Info("proposal resolved",
			zap.String("id", id),
			zap.String("decision", string(decision)))

		return c.JSON(http.StatusOK, map[string]string{"id": id, "decision": string(decision)})
	}
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}

	if s.histRepo == nil {
		return c.JSON(http.StatusOK, []model.CycleRecord{})
	}

	histories, err := s.histRepo.GetRecent(c.Request().Context(), n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, histories)
}
