package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

// Me returns the principal and role attested by the caller's token
func Me(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	role, _ := c.Get(mware.ContextRole).(string)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": uid,
		"role":    role,
	})
}
