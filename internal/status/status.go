package status

import "errors"

var (
	ErrInvalidRequest      = errors.New("issuance: plan, payment method and point of sale are required")
	ErrPlanNotFound        = errors.New("plan: plan not found")
	ErrPointOfSaleNotFound = errors.New("pos: point of sale not found")
	ErrTicketNotFound      = errors.New("ticket: ticket not found")
	ErrSaleNotFound        = errors.New("sale: sale not found")
	ErrCodeConflict        = errors.New("ticket: voucher code already exists")
	ErrCodeExhausted       = errors.New("ticket: gave up allocating a unique voucher code")
	ErrPaymentFinalized    = errors.New("sale: payment status is already final")
)
