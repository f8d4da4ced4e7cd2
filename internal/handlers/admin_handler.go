package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"voucher-pos/internal/services"
	"voucher-pos/internal/status"
	"voucher-pos/monitoring"
)

// AdminHandler is the reconciliation surface: list tickets the router
// never acknowledged, retry them one by one, and pre-generate stock.
// Every route here sits behind superuser auth.
type AdminHandler struct {
	app          *pocketbase.PocketBase
	issueService *services.IssueService
	queue        *services.RetryQueue
}

func NewAdminHandler(app *pocketbase.PocketBase, issueService *services.IssueService, queue *services.RetryQueue) *AdminHandler {
	return &AdminHandler{
		app:          app,
		issueService: issueService,
		queue:        queue,
	}
}

func (h *AdminHandler) GetUnprovisioned(e *core.RequestEvent) error {
	tickets, err := h.issueService.Unprovisioned(100)
	if err != nil {
		return apis.NewBadRequestError("Failed to list unprovisioned tickets", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"count":   len(tickets),
		"tickets": tickets,
	})
}

func (h *AdminHandler) ReprovisionTicket(e *core.RequestEvent) error {
	ticket, err := h.issueService.Reprovision(e.Request.Context(), e.Request.PathValue("ticketId"))
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", err)
		}
		return apis.NewApiError(http.StatusBadGateway, "Device write failed", err)
	}

	return e.JSON(http.StatusOK, ticket)
}

func (h *AdminHandler) BulkGenerate(e *core.RequestEvent) error {
	var req struct {
		PlanID        string `json:"plan_id"`
		PointOfSaleID string `json:"point_of_sale_id"`
		Count         int    `json:"count"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	codes, err := h.issueService.BulkGenerate(e.Request.Context(), req.PlanID, req.PointOfSaleID, req.Count)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrInvalidRequest):
			return apis.NewBadRequestError("Invalid bulk generation request", err)
		case errors.Is(err, status.ErrPlanNotFound):
			return apis.NewNotFoundError("Plan not found", err)
		case errors.Is(err, status.ErrPointOfSaleNotFound):
			return apis.NewNotFoundError("Point of sale not found", err)
		default:
			return apis.NewBadRequestError("Bulk generation failed", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"count": len(codes),
		"codes": codes,
	})
}

// GetProvisioningSummary is the ops dashboard feed: ledger-side backlog
// plus the depth of the redis retry queue.
func (h *AdminHandler) GetProvisioningSummary(e *core.RequestEvent) error {
	tickets, err := h.issueService.Unprovisioned(0)
	if err != nil {
		return apis.NewBadRequestError("Failed to list unprovisioned tickets", err)
	}

	depth := int64(-1)
	if h.queue != nil {
		if d, err := h.queue.Depth(e.Request.Context()); err == nil {
			depth = d
			monitoring.SetRetryBacklog(d)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"unprovisioned_tickets": len(tickets),
		"retry_queue_depth":     depth,
	})
}
