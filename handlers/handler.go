package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/padraicbc/tracker/auth"
	"github.com/padraicbc/tracker/hub"
	"github.com/padraicbc/tracker/metrics"
	"github.com/padraicbc/tracker/middleware"
	"github.com/padraicbc/tracker/models"
)

// Store is the read side used by the query routes.
type Store interface {
	Athletes(ctx context.Context) ([]models.Athlete, error)
	Athlete(ctx context.Context, id int64) (*models.Athlete, error)
	Readers(ctx context.Context) ([]models.Reader, error)
	Reader(ctx context.Context, id int64) (*models.Reader, error)
	Captures(ctx context.Context) ([]models.Capture, error)
	CapturesSince(ctx context.Context, since time.Time) ([]models.Capture, error)
	Capture(ctx context.Context, id int64) (*models.Capture, error)
	Ping(ctx context.Context) error
}

// Submitter commits capture reports.
type Submitter interface {
	Submit(ctx context.Context, raw []byte, creds auth.Credentials) (models.CaptureView, error)
}

// Streamer serves live observer sessions.
type Streamer interface {
	Serve(ctx context.Context, conn hub.Conn) error
}

// SignIner exchanges a username and password for a token.
type SignIner interface {
	SignIn(ctx context.Context, username, password string) (string, error)
}

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	store  Store
	ingest Submitter
	live   Streamer
	auth   SignIner
	log    *zap.Logger
}

// New creates a Handler.
func New(s Store, ingest Submitter, live Streamer, a SignIner, log *zap.Logger) *Handler {
	return &Handler{store: s, ingest: ingest, live: live, auth: a, log: log}
}

// Routes registers every route on e.
func Routes(e *echo.Echo, h *Handler) {
	e.HTTPErrorHandler = ErrorHandler(h.log)

	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.POST("/signin", h.Signin)

	e.GET("/athletes", h.Athletes)
	e.GET("/athletes/:id", h.Athlete)
	e.GET("/readers", h.Readers)
	e.GET("/readers/:id", h.Reader)
	e.GET("/captures", h.Captures)
	e.GET("/captures/:id", h.Capture)
	e.POST("/captures", h.CreateCapture, middleware.Credentials())

	e.GET("/live", h.Live)
}

// Health reports whether the database answers.
func (h *Handler) Health(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		h.log.Error("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func paramID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}
	return id, nil
}
