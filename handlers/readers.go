package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/tracker/models"
)

// Readers returns every reader ordered by position.
func (h *Handler) Readers(c echo.Context) error {
	readers, err := h.store.Readers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.ReaderViews(readers))
}

// Reader returns one reader by id.
func (h *Handler) Reader(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	r, err := h.store.Reader(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r.View())
}
