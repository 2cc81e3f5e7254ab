package marketplace

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

// ResaleIssuer signs a seller's consent to one resale.
type ResaleIssuer interface {
	IssueResale(seller, serviceID, buyer string, newPrice uint64) (string, error)
}

// ResaleVerifier checks a consent token and returns the terms it signs.
type ResaleVerifier interface {
	VerifyResale(token string) (mware.ResaleConsent, error)
}

type Handler struct {
	svc      *Service
	issuer   ResaleIssuer
	verifier ResaleVerifier
	logger   *slog.Logger
}

func NewHandler(svc *Service, issuer ResaleIssuer, verifier ResaleVerifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, issuer: issuer, verifier: verifier, logger: logger}
}

// RegisterRoutes mounts the marketplace API. api and admin must already carry
// the JWT middleware; admin also carries the admin guard.
func (h *Handler) RegisterRoutes(api, admin *echo.Group) {
	admin.POST("/marketplace", h.InitializeMarketplace)

	api.GET("/marketplace", h.GetRegistry)

	api.POST("/vendors", h.RegisterVendor)
	api.GET("/vendors/me", h.GetMyVendor)
	api.GET("/vendors/:id", h.GetVendor)

	api.POST("/services", h.MintService)
	api.GET("/services/me", h.GetMyServices)
	api.GET("/services/:id", h.GetService)
	api.POST("/services/:id/listing", h.ListService)
	api.GET("/services/:id/listing", h.GetListing)
	api.POST("/services/:id/purchase", h.PurchaseService)
	api.POST("/services/:id/transfer", h.TransferService)
	api.POST("/services/:id/resale-consent", h.IssueResaleConsent)
	api.POST("/services/:id/resell", h.ResellService)
}

func (h *Handler) fail(c echo.Context, err error) error {
	apiErr := APIError(err)
	if apiErr.Code >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request().Context(), "marketplace request failed",
			"path", c.Path(), "error", err)
	}
	return mware.RespondError(c, apiErr)
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return mware.BadRequest("invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	return nil
}

// rate converts a request percentage, rejecting anything outside 0..100.
func rate(v int) (uint8, error) {
	if v < 0 || v > MaxRoyaltyRate {
		return 0, ErrInvalidRoyaltyRate
	}
	return uint8(v), nil
}

// =========================
// Registry & vendors
// =========================

type InitMarketplaceRequest struct {
	BaseRoyaltyRate int    `json:"base_royalty_rate"`
	Treasury        string `json:"treasury"`
}

func (h *Handler) InitializeMarketplace(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	var req InitMarketplaceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return mware.RespondError(c, err)
	}
	r, err := rate(req.BaseRoyaltyRate)
	if err != nil {
		return h.fail(c, err)
	}

	reg, err := h.svc.InitializeMarketplace(c.Request().Context(), uid, InitParams{
		BaseRoyaltyRate: r,
		Treasury:        req.Treasury,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"registry": reg})
}

func (h *Handler) GetRegistry(c echo.Context) error {
	reg, err := h.svc.Registry(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"registry": reg})
}

type RegisterVendorRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) RegisterVendor(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	var req RegisterVendorRequest
	if err := bindAndValidate(c, &req); err != nil {
		return mware.RespondError(c, err)
	}

	v, err := h.svc.RegisterVendor(c.Request().Context(), uid, req.Name, req.Description)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"vendor":  v,
		"message": "vendor registered successfully",
	})
}

func (h *Handler) GetVendor(c echo.Context) error {
	v, err := h.svc.Vendor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"vendor": v})
}

func (h *Handler) GetMyVendor(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	v, err := h.svc.VendorByOwner(c.Request().Context(), uid)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"vendor": v})
}

// =========================
// Service records
// =========================

type MintServiceRequest struct {
	Metadata    string `json:"metadata"`
	Price       uint64 `json:"price"`
	IsSoulbound bool   `json:"is_soulbound"`
	RoyaltyRate int    `json:"royalty_rate"`
}

func (h *Handler) MintService(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	var req MintServiceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return mware.RespondError(c, err)
	}
	r, err := rate(req.RoyaltyRate)
	if err != nil {
		return h.fail(c, err)
	}

	rec, err := h.svc.MintServiceNFT(c.Request().Context(), uid, MintParams{
		Metadata:    req.Metadata,
		Price:       req.Price,
		IsSoulbound: req.IsSoulbound,
		RoyaltyRate: r,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"service": rec,
		"message": "service minted successfully",
	})
}

func (h *Handler) GetService(c echo.Context) error {
	rec, err := h.svc.ServiceRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"service": rec})
}

// GetMyServices lists the records the caller currently owns
func (h *Handler) GetMyServices(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	recs, err := h.svc.ServicesOwnedBy(c.Request().Context(), uid)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"services": recs})
}

// =========================
// Listings & sales
// =========================

type ListServiceRequest struct {
	Price uint64 `json:"price"`
}

func (h *Handler) ListService(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	var req ListServiceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return mware.RespondError(c, err)
	}

	l, err := h.svc.ListService(c.Request().Context(), uid, c.Param("id"), req.Price)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"listing": l})
}

func (h *Handler) GetListing(c echo.Context) error {
	l, err := h.svc.ActiveListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listing": l})
}

func (h *Handler) PurchaseService(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}

	l, err := h.svc.PurchaseService(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"listing": l,
		"message": "service purchased successfully",
	})
}

type TransferServiceRequest struct {
	NewOwner string `json:"new_owner" validate:"required"`
}

func (h *Handler) TransferService(c echo.Context) error {
	uid, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	var req TransferServiceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return mware.RespondError(c, err)
	}

	rec, err := h.svc.TransferServiceNFT(c.Request().Context(), uid, c.Param("id"), req.NewOwner)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"service": rec})
}

type ResaleConsentRequest struct {
	Buyer    string `json:"buyer" validate:"required"`
	NewPrice uint64 `json:"new_price"`
}

// IssueResaleConsent is called by the seller. The returned token authorizes
// exactly one buyer to take this record at exactly this price.
func (h *Handler) IssueResaleConsent(c echo.Context) error {
	seller, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	var req ResaleConsentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return mware.RespondError(c, err)
	}
	if req.NewPrice > MaxPrice {
		return h.fail(c, ErrInvalidPrice)
	}

	rec, err := h.svc.ServiceRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if rec.IsSoulbound {
		return h.fail(c, ErrSoulboundNonTransferable)
	}
	if rec.Owner != seller {
		return h.fail(c, ErrNotOwner)
	}

	token, err := h.issuer.IssueResale(seller, rec.ID, req.Buyer, req.NewPrice)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"consent":    token,
		"service_id": rec.ID,
		"buyer":      req.Buyer,
		"new_price":  req.NewPrice,
	})
}

type ResellServiceRequest struct {
	NewPrice      uint64 `json:"new_price"`
	SellerConsent string `json:"seller_consent" validate:"required"`
}

// ResellService is called by the buyer with the seller's consent token. Every
// term in the consent must match the request.
func (h *Handler) ResellService(c echo.Context) error {
	buyer, ok := mware.UserID(c)
	if !ok {
		return mware.RespondError(c, mware.Unauthorized("unauthorized"))
	}
	var req ResellServiceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return mware.RespondError(c, err)
	}
	consent, err := h.verifier.VerifyResale(req.SellerConsent)
	if err != nil {
		return mware.RespondError(c, mware.Unauthorized("invalid seller consent"))
	}
	serviceID := c.Param("id")
	if consent.ServiceID != serviceID || consent.Buyer != buyer || consent.NewPrice != req.NewPrice {
		return h.fail(c, ErrResaleConsentMismatch)
	}

	split, err := h.svc.ResellServiceNFT(c.Request().Context(), consent.Seller, buyer, serviceID, consent.NewPrice)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"service_id": serviceID,
		"seller":     consent.Seller,
		"buyer":      buyer,
		"split":      split,
	})
}
