package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a network-access offer: how long the voucher is valid on the
// hotspot and what it costs. Read-only from the issuance flow's point of
// view.
type Plan struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	DurationHours int             `json:"duration_hours"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PointOfSale is a selling location. Each one is bound to its own access
// controller, so the device coordinates live on the record.
type PointOfSale struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	IsActive       bool      `json:"is_active"`
	DeviceHost     string    `json:"device_host"`
	DevicePort     int       `json:"device_port"`
	DeviceUser     string    `json:"device_user"`
	DevicePassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
