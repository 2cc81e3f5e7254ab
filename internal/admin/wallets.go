package admin

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

// GET /admin/wallets/:id returns the balance and recent ledger history of any account
func (h *Handler) Wallet(c echo.Context) error {
	account := c.Param("id")
	if account == "" {
		return mware.RespondError(c, mware.BadRequest("user ID is required"))
	}
	ctx := c.Request().Context()

	balance, err := h.ledger.Balance(ctx, account)
	if err != nil {
		return mware.RespondError(c, mware.Internal("could not fetch wallet"))
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	txs, err := h.ledger.Transactions(ctx, account, limit)
	if err != nil {
		return mware.RespondError(c, mware.Internal("could not fetch transactions"))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":      account,
		"balance":      balance,
		"transactions": txs,
	})
}
