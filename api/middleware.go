package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const userContextKey = "onboarding.user"

// requireUser authenticates the request and stores the caller's user ID on
// the context. With queryToken set, a ?token= parameter stands in for a
// missing Authorization header, since EventSource cannot send headers.
func requireUser(auth Authenticator, queryToken bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" && queryToken {
				if token := c.QueryParam("token"); token != "" {
					header = "Bearer " + token
				}
			}

			m := metricsFrom(c)
			start := time.Now()
			userID, err := auth.UserIDFromAuthHeader(header)
			m.Observe("auth", time.Since(start))
			if err != nil {
				m.SetErrorStage("auth")
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(userContextKey, userID)
			return next(c)
		}
	}
}

func userFrom(c echo.Context) string {
	id, _ := c.Get(userContextKey).(string)
	return id
}
