package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/padraicbc/tracker/auth"
)

const credentialsKey = "credentials"

// Credentials returns an Echo middleware that parses the Authorization header
// into auth.Credentials. It never rejects a request; handlers that need a
// writer decide what to do with missing or invalid credentials.
func Credentials() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(credentialsKey, auth.ParseAuthorization(c.Request().Header.Get(echo.HeaderAuthorization)))
			return next(c)
		}
	}
}

// CredentialsFrom returns the credentials stored by Credentials, or the
// parsed header when the middleware did not run.
func CredentialsFrom(c echo.Context) auth.Credentials {
	if creds, ok := c.Get(credentialsKey).(auth.Credentials); ok {
		return creds
	}
	return auth.ParseAuthorization(c.Request().Header.Get(echo.HeaderAuthorization))
}
