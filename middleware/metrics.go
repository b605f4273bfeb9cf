package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/tracker/metrics"
)

// Metrics records the duration of every request by route template, so
// /athletes/1 and /athletes/2 share a series. Errors are handed to the
// error handler here so the recorded status is the one the client sees.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.ObserveHTTPRequest(c.Request().Method, route, strconv.Itoa(c.Response().Status), time.Since(start).Seconds())
			return err
		}
	}
}
