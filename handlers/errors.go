package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/padraicbc/tracker/auth"
	"github.com/padraicbc/tracker/ingest"
	"github.com/padraicbc/tracker/store"
)

// Machine-readable reasons carried in error bodies.
const (
	ReasonUnauthorized  = "unauthorized"
	ReasonInvalid       = "invalid_request"
	ReasonNotFound      = "not_found"
	ReasonUnprocessable = "unprocessable_entity"
	ReasonInternal      = "internal"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ErrorHandler maps domain errors to fixed statuses with a reason code.
// Anything it does not recognise is a 500 whose detail is logged, not sent.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.Warn("write error response", zap.Error(werr))
		}
	}
}

func classify(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorBody{ReasonUnauthorized, "valid credentials are required"}
	case errors.Is(err, ingest.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorBody{ReasonInvalid, err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorBody{ReasonNotFound, "resource not found"}
	case errors.Is(err, ingest.ErrUnprocessable), errors.Is(err, store.ErrConstraint):
		return http.StatusUnprocessableEntity, ErrorBody{ReasonUnprocessable, err.Error()}
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, ErrorBody{reasonFor(he.Code), msg}
	}
	return http.StatusInternalServerError, ErrorBody{ReasonInternal, "internal server error"}
}

func reasonFor(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return ReasonUnauthorized
	case http.StatusBadRequest:
		return ReasonInvalid
	case http.StatusNotFound:
		return ReasonNotFound
	case http.StatusUnprocessableEntity:
		return ReasonUnprocessable
	}
	if status >= http.StatusInternalServerError {
		return ReasonInternal
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
