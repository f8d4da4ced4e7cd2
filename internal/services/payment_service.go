package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"voucher-pos/internal/status"
	"voucher-pos/models"
)

// PaymentService applies mobile-money confirmations delivered by the
// payment provider's webhook. Cash never passes through here; it is
// settled synchronously at the counter.
type PaymentService struct {
	ledger  Ledger
	hmacKey []byte
}

func NewPaymentService(lg Ledger, hmacKey string) *PaymentService {
	return &PaymentService{
		ledger:  lg,
		hmacKey: []byte(hmacKey),
	}
}

// VerifySignature checks the hex HMAC-SHA256 of the raw webhook body.
// A service with no key configured rejects everything rather than
// accepting unsigned callbacks.
func (p *PaymentService) VerifySignature(body []byte, signature string) bool {
	if len(p.hmacKey) == 0 || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, p.hmacKey)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// Confirm settles a pending sale as paid and marks its ticket sold.
// Re-delivered confirmations are no-ops; a sale that already failed is
// never resurrected.
func (p *PaymentService) Confirm(saleID, transactionID string) error {
	return p.ledger.CompleteSale(saleID, transactionID)
}

// Reject records a failed payment for a pending sale.
func (p *PaymentService) Reject(saleID, transactionID string) error {
	return p.ledger.FailSale(saleID, transactionID)
}

// Sale exposes the referenced sale for handlers that need to echo state
// back to the provider.
func (p *PaymentService) Sale(saleID string) (*models.Sale, error) {
	sale, err := p.ledger.GetSale(saleID)
	if err != nil {
		return nil, status.ErrSaleNotFound
	}
	return sale, nil
}
