package admin

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	mware "github.com/sudo-init-do/servicehub/internal/middleware"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

type Handler struct {
	stats  marketplace.StatsReader
	ledger wallet.Ledger
	logger *slog.Logger
}

func NewHandler(stats marketplace.StatsReader, ledger wallet.Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{stats: stats, ledger: ledger, logger: logger}
}

// RegisterRoutes mounts the operator endpoints on an admin-guarded group.
func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/stats", h.Stats)
	admin.GET("/wallets/:id", h.Wallet)
}

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.stats.Stats(c.Request().Context())
	if err != nil {
		h.logger.ErrorContext(c.Request().Context(), "stats query failed", "error", err)
		return mware.RespondError(c, mware.Internal("could not compute stats"))
	}
	return c.JSON(http.StatusOK, st)
}
