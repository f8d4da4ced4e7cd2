package services

import (
	"log/slog"

	"voucher-pos/models"
)

// VerifyService answers "is this code a real, sold voucher" for the
// captive portal. It reads the ledger only — whether the code still
// works on the network is decided by the access controller itself.
type VerifyService struct {
	ledger Ledger
}

func NewVerifyService(lg Ledger) *VerifyService {
	return &VerifyService{ledger: lg}
}

func (s *VerifyService) Verify(code string) (*models.VerificationResult, error) {
	ticket, err := s.ledger.FindTicketByCode(code)
	if err != nil {
		return nil, err
	}

	plan, err := s.ledger.GetPlan(ticket.PlanID)
	if err != nil {
		return nil, err
	}

	result := &models.VerificationResult{
		Code:          ticket.Code,
		Status:        ticket.Status,
		PlanName:      plan.Name,
		DurationHours: plan.DurationHours,
	}

	// The POS name is display garnish; a missing record should not turn
	// a valid ticket into an error.
	if pos, err := s.ledger.GetPointOfSale(ticket.PointOfSaleID); err == nil {
		result.PointOfSaleName = pos.Name
	} else {
		slog.Warn("verify: point of sale lookup failed", "ticket_id", ticket.ID, "error", err)
	}

	return result, nil
}
