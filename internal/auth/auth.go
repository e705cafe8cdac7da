// Package auth resolves the session cookie into a user identity for request
// handlers.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"auraforce/backend/internal/repository"
	"auraforce/backend/pkg/models"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "auraforce-session"

const userIDContextKey = "auth.user_id"

// Middleware authenticates every request via the session cookie. Requests
// without a valid, unexpired session are rejected with a 401 envelope before
// reaching the handler.
func Middleware(store repository.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				return unauthorized(c, "Authentication required")
			}

			sess, err := store.GetSession(c.Request().Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return unauthorized(c, "Invalid session")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "session lookup failed")
			}
			if sess.Expired(time.Now()) {
				return unauthorized(c, "Session expired")
			}

			c.Set(userIDContextKey, sess.UserID)
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":   models.CodeUnauthorized,
		"message": msg,
	})
}

// UserID returns the authenticated user id set by Middleware, or "" when the
// request did not pass through it.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDContextKey).(string)
	return id
}
