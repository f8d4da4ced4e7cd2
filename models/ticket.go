package models

import (
	"time"
)

const (
	TicketStatusAvailable = "available"
	TicketStatusSold      = "sold"
	TicketStatusUsed      = "used"
	TicketStatusExpired   = "expired"
)

// Ticket is the local record for one issued voucher. The code is written
// once at creation and never reused, even after the ticket expires.
type Ticket struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	PlanID        string     `json:"plan_id"`
	PointOfSaleID string     `json:"point_of_sale_id"`
	Status        string     `json:"status"` // available, sold, used, expired
	Provisioned   bool       `json:"provisioned"`
	ProvisionedAt *time.Time `json:"provisioned_at,omitempty"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
