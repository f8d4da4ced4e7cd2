package models

import (
	"github.com/shopspring/decimal"
)

// PurchaseRequest carries everything the orchestrator needs to issue one
// voucher: the plan, how it is paid, and which cashier at which point of
// sale is issuing it.
type PurchaseRequest struct {
	PlanID        string `json:"plan_id"`
	PaymentMethod string `json:"payment_method"`
	CashierID     string `json:"cashier_id"`
	PointOfSaleID string `json:"point_of_sale_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

// IssuanceResult is returned to the caller once the ticket and sale are
// persisted. Provisioned reports the device write separately, because a
// recorded sale with an unreachable router is still a valid sale.
type IssuanceResult struct {
	TicketID      string          `json:"ticket_id"`
	SaleID        string          `json:"sale_id"`
	Code          string          `json:"code"`
	PlanName      string          `json:"plan_name"`
	DurationHours int             `json:"duration_hours"`
	Price         decimal.Decimal `json:"price"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	TicketStatus  string          `json:"ticket_status"`
	Provisioned   bool            `json:"provisioned"`
}

// VerificationResult reflects ledger state only; whether the code still
// works on the network is the access controller's call.
type VerificationResult struct {
	Code            string `json:"code"`
	Status          string `json:"status"`
	PlanName        string `json:"plan_name"`
	DurationHours   int    `json:"duration_hours"`
	PointOfSaleName string `json:"point_of_sale_name,omitempty"`
}
