package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"voucher-pos/internal/services"
	"voucher-pos/internal/status"
	"voucher-pos/internal/voucher"
	"voucher-pos/models"
)

type TicketHandler struct {
	app          *pocketbase.PocketBase
	issueService *services.IssueService
	verify       *services.VerifyService
}

func NewTicketHandler(app *pocketbase.PocketBase, issueService *services.IssueService, verify *services.VerifyService) *TicketHandler {
	return &TicketHandler{
		app:          app,
		issueService: issueService,
		verify:       verify,
	}
}

// PurchaseTicket sells one voucher to a walk-in customer. The cashier
// is the authenticated user; the point of sale comes from their record
// so a cashier cannot issue against another kiosk's router.
func (h *TicketHandler) PurchaseTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		PlanID        string `json:"plan_id"`
		PaymentMethod string `json:"payment_method"`
		CustomerEmail string `json:"customer_email"`
		CustomerPhone string `json:"customer_phone"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	posID := e.Auth.GetString("point_of_sale_id")
	if posID == "" {
		return apis.NewForbiddenError("Cashier is not assigned to a point of sale", nil)
	}

	result, err := h.issueService.Issue(e.Request.Context(), &models.PurchaseRequest{
		PlanID:        req.PlanID,
		PaymentMethod: req.PaymentMethod,
		CashierID:     e.Auth.Id,
		PointOfSaleID: posID,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		return purchaseError(err)
	}

	return e.JSON(http.StatusOK, result)
}

func purchaseError(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidRequest):
		return apis.NewBadRequestError("Invalid purchase request", err)
	case errors.Is(err, status.ErrPlanNotFound):
		return apis.NewNotFoundError("Plan not found", err)
	case errors.Is(err, status.ErrPointOfSaleNotFound):
		return apis.NewNotFoundError("Point of sale not found", err)
	case errors.Is(err, status.ErrCodeExhausted):
		return apis.NewApiError(http.StatusConflict, "Could not allocate a unique voucher code, retry", err)
	default:
		return apis.NewBadRequestError("Purchase failed", err)
	}
}

// VerifyTicket is the captive-portal lookup. Unauthenticated on
// purpose: the portal only holds the code the customer typed.
func (h *TicketHandler) VerifyTicket(e *core.RequestEvent) error {
	code := e.Request.PathValue("code")
	if !voucher.IsValidFormat(code) {
		return apis.NewBadRequestError("Malformed voucher code", nil)
	}

	result, err := h.verify.Verify(code)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Unknown voucher code", err)
		}
		return apis.NewBadRequestError("Verification failed", err)
	}

	return e.JSON(http.StatusOK, result)
}
