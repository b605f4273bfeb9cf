package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/tracker/middleware"
	"github.com/padraicbc/tracker/models"
)

// Captured times are stored as RFC 3339 text, which only orders correctly for
// four-digit years.
var (
	minSince = time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	maxSince = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC).Unix()
)

// maxCaptureBody bounds a capture report; real ones are well under 200 bytes.
const maxCaptureBody = 64 << 10

// Captures returns captures in commit order, optionally only those captured
// strictly after the unix-seconds timestamp query parameter.
func (h *Handler) Captures(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		captures []models.Capture
		err      error
	)
	if param := c.QueryParam("timestamp"); param != "" {
		secs, perr := strconv.ParseInt(param, 10, 64)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "timestamp must be integer unix seconds")
		}
		if secs < minSince || secs > maxSince {
			return echo.NewHTTPError(http.StatusBadRequest, "timestamp must fall within years 0 to 9999")
		}
		captures, err = h.store.CapturesSince(ctx, time.Unix(secs, 0).UTC())
	} else {
		captures, err = h.store.Captures(ctx)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.CaptureViews(captures))
}

// Capture returns one capture by id.
func (h *Handler) Capture(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	capture, err := h.store.Capture(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, capture.View())
}

// CreateCapture accepts a capture report from a reader device.
func (h *Handler) CreateCapture(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCaptureBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	view, err := h.ingest.Submit(c.Request().Context(), raw, middleware.CredentialsFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, view)
}
