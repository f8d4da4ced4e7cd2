package services

import (
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"
)

const alertChannel = "provisioning-alerts"

// AlertNotifier publishes ledger/device divergence to the operations
// dashboard: a sold voucher the router does not know about needs a human
// or the retry worker soon.
type AlertNotifier struct {
	pubnub *pubnub.PubNub
}

func NewAlertNotifier(pn *pubnub.PubNub) *AlertNotifier {
	return &AlertNotifier{pubnub: pn}
}

func (n *AlertNotifier) ProvisioningFailed(ticketID, code, pointOfSaleID string, cause error) {
	if n == nil || n.pubnub == nil {
		return
	}

	_, _, err := n.pubnub.Publish().
		Channel(alertChannel).
		Message(map[string]any{
			"type":             "provisioning_failed",
			"ticket_id":        ticketID,
			"code":             code,
			"point_of_sale_id": pointOfSaleID,
			"error":            cause.Error(),
			"at":               time.Now().UTC().Format(time.RFC3339),
		}).
		Execute()
	if err != nil {
		slog.Error("publish provisioning alert failed", "ticket_id", ticketID, "error", err)
	}
}
