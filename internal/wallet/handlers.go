package wallet

import (
	"errors"
	"net/http"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

const (
	CodeInsufficientFunds    = "INSUFFICIENT_FUNDS"
	CodeUnauthorizedTransfer = "UNAUTHORIZED_TRANSFER"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeInvalidAccount       = "INVALID_ACCOUNT"
)

type Handler struct {
	ledger Ledger
}

func NewHandler(ledger Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// Balance returns the authenticated user's wallet balance
func (h *Handler) Balance(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	balance, err := h.ledger.Balance(c.Request().Context(), uid)
	if err != nil {
		return mware.RespondError(c, mware.Internal("could not fetch wallet balance"))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": uid,
		"balance": balance,
	})
}

// Transactions returns the caller's ledger history, newest first
func (h *Handler) Transactions(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	txs, err := h.ledger.Transactions(c.Request().Context(), uid, limit)
	if err != nil {
		return mware.RespondError(c, mware.Internal("could not fetch transactions"))
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

type CreditRequest struct {
	Amount    uint64 `json:"amount" validate:"required,gte=1"`
	Reference string `json:"reference" validate:"max=128"`
}

// Credit funds an account; mounted behind the admin guard
func (h *Handler) Credit(c echo.Context) error {
	account := c.Param("id")
	if account == "" {
		return mware.RespondError(c, mware.BadRequest("user ID is required"))
	}
	var req CreditRequest
	if err := c.Bind(&req); err != nil {
		return mware.RespondError(c, mware.BadRequest("invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return mware.RespondError(c, err)
	}
	if req.Reference == "" {
		req.Reference = "admin-credit"
	}

	t, err := h.ledger.Credit(c.Request().Context(), account, req.Amount, req.Reference)
	if err != nil {
		if apiErr := APIError(err); apiErr != nil {
			return mware.RespondError(c, apiErr)
		}
		return mware.RespondError(c, mware.Internal("could not credit wallet"))
	}
	return c.JSON(http.StatusCreated, echo.Map{"transaction": t})
}

// APIError maps ledger failures to the HTTP envelope. It returns nil for
// errors that do not come from the ledger.
func APIError(err error) *goerrors.Error {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return mware.APIError(ErrInsufficientFunds.Error(), goerrors.CategoryConflict,
			http.StatusUnprocessableEntity, CodeInsufficientFunds)
	case errors.Is(err, ErrUnauthorizedTransfer):
		return mware.APIError(ErrUnauthorizedTransfer.Error(), goerrors.CategoryAuthz,
			http.StatusForbidden, CodeUnauthorizedTransfer)
	case errors.Is(err, ErrInvalidAmount):
		return mware.APIError(ErrInvalidAmount.Error(), goerrors.CategoryBadInput,
			http.StatusBadRequest, CodeInvalidAmount)
	case errors.Is(err, ErrInvalidAccount):
		return mware.APIError(ErrInvalidAccount.Error(), goerrors.CategoryBadInput,
			http.StatusBadRequest, CodeInvalidAccount)
	}
	return nil
}

// RegisterRoutes mounts the caller's wallet endpoints on api and the credit
// endpoint on the admin-guarded group.
func (h *Handler) RegisterRoutes(api, admin *echo.Group) {
	api.GET("/wallet/balance", h.Balance)
	api.GET("/wallet/transactions", h.Transactions)
	admin.POST("/wallets/:id/credit", h.Credit)
}
