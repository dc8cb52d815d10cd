package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// UserIDContextKey is where the auth middleware stores the authenticated
// user id on the echo context.
const UserIDContextKey = "user_id"

// ctxUserID extracts the user id injected by the auth middleware. An empty
// value means the middleware did not run or the token carried no identity;
// either way the request is unauthenticated.
func ctxUserID(c echo.Context) (string, error) {
	userID, _ := c.Get(UserIDContextKey).(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return userID, nil
}
