package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

type BootstrapAdminRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Secret string `json:"secret" validate:"required"`
}

// BootstrapHandler hands out an admin token to whoever knows the bootstrap
// secret. An empty secret disables the endpoint.
type BootstrapHandler struct {
	issuer *Issuer
	secret string
}

func NewBootstrapHandler(issuer *Issuer, secret string) *BootstrapHandler {
	return &BootstrapHandler{issuer: issuer, secret: secret}
}

func (h *BootstrapHandler) BootstrapAdmin(c echo.Context) error {
	if h.secret == "" {
		return mware.RespondError(c, mware.Forbidden("bootstrap disabled"))
	}
	var req BootstrapAdminRequest
	if err := c.Bind(&req); err != nil {
		return mware.RespondError(c, mware.BadRequest("invalid request"))
	}
	if err := c.Validate(&req); err != nil {
		return mware.RespondError(c, err)
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.secret)) != 1 {
		return mware.RespondError(c, mware.Forbidden("invalid secret"))
	}

	token, err := h.issuer.Issue(req.UserID, mware.RoleAdmin)
	if err != nil {
		return mware.RespondError(c, mware.Internal("token generation failed"))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"token":   token,
		"user_id": req.UserID,
		"role":    mware.RoleAdmin,
	})
}
