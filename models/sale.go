package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentMethodCash        = "cash"
	PaymentMethodOrangeMoney = "orange_money"
	PaymentMethodMvola       = "mvola"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Sale is the commercial transaction that produced a Ticket. Amount is
// copied from the plan price at the moment of sale and never recomputed.
type Sale struct {
	ID            string          `json:"id"`
	TicketID      string          `json:"ticket_id"`
	PlanID        string          `json:"plan_id"`
	PointOfSaleID string          `json:"point_of_sale_id"`
	CashierID     string          `json:"cashier_id"`
	PaymentMethod string          `json:"payment_method"` // cash, orange_money, mvola
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"payment_status"` // pending, completed, failed
	TransactionID string          `json:"transaction_id,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodOrangeMoney, PaymentMethodMvola:
		return true
	}
	return false
}

// CanTransitionPayment reports whether a sale may move from one payment
// status to another. Transitions only run forward: pending may settle as
// completed or failed, settled sales never change again.
func CanTransitionPayment(from, to string) bool {
	if from == to {
		return false
	}
	return from == PaymentStatusPending &&
		(to == PaymentStatusCompleted || to == PaymentStatusFailed)
}
