package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"voucher-pos/internal/services"
	"voucher-pos/internal/status"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		app:            app,
		paymentService: paymentService,
	}
}

// Webhook receives mobile-money settlement callbacks (Orange Money,
// MVola). The body is authenticated with an HMAC over the raw bytes,
// not the parsed payload, so it must be read before binding.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Unreadable body", err)
	}

	if !h.paymentService.VerifySignature(body, e.Request.Header.Get("X-Signature")) {
		return apis.NewForbiddenError("Invalid webhook signature", nil)
	}

	var payload struct {
		SaleID        string `json:"sale_id"`
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"` // success or failed
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apis.NewBadRequestError("Invalid payload", err)
	}
	if payload.SaleID == "" {
		return apis.NewBadRequestError("Missing sale_id", nil)
	}

	switch payload.Status {
	case "success":
		err = h.paymentService.Confirm(payload.SaleID, payload.TransactionID)
	case "failed":
		err = h.paymentService.Reject(payload.SaleID, payload.TransactionID)
	default:
		return apis.NewBadRequestError("Unknown payment status", nil)
	}

	if err != nil {
		switch {
		case errors.Is(err, status.ErrSaleNotFound):
			return apis.NewNotFoundError("Sale not found", err)
		case errors.Is(err, status.ErrPaymentFinalized):
			return apis.NewApiError(http.StatusConflict, "Sale already finalized", err)
		default:
			return apis.NewBadRequestError("Could not apply payment update", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"applied": true})
}

// GetSale lets the provider (or support staff) read back settlement
// state for a sale it holds a reference to.
func (h *PaymentHandler) GetSale(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	sale, err := h.paymentService.Sale(e.Request.PathValue("saleId"))
	if err != nil {
		return apis.NewNotFoundError("Sale not found", err)
	}

	return e.JSON(http.StatusOK, sale)
}
