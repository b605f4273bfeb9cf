package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/tracker/models"
)

// Athletes returns every athlete.
func (h *Handler) Athletes(c echo.Context) error {
	athletes, err := h.store.Athletes(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.AthleteViews(athletes))
}

// Athlete returns one athlete by id.
func (h *Handler) Athlete(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	a, err := h.store.Athlete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a.View())
}
