package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vouchers_issued_total",
			Help: "Issued vouchers per point of sale and payment method",
		},
		[]string{"point_of_sale", "payment_method"},
	)

	provisioningOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_operations_total",
			Help: "Device provisioning operations by outcome",
		},
		[]string{"operation", "status"},
	)

	codeConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voucher_code_conflicts_total",
			Help: "Voucher code collisions hit at insert time",
		},
	)

	deviceOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "device_operation_duration_seconds",
			Help:    "Round trip time of access controller operations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)

	unprovisionedBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unprovisioned_retry_backlog",
			Help: "Tickets waiting in the provisioning retry queue",
		},
	)
)

// TrackIssuance counts one successfully persisted voucher sale.
func TrackIssuance(pointOfSaleID, paymentMethod string) {
	ticketsIssued.WithLabelValues(pointOfSaleID, paymentMethod).Inc()
}

// TrackProvisioning counts one device operation outcome.
func TrackProvisioning(operation, status string) {
	provisioningOps.WithLabelValues(operation, status).Inc()
}

// TrackCodeConflict counts one duplicate-code insert rejection.
func TrackCodeConflict() {
	codeConflicts.Inc()
}

// ObserveDeviceOp records the round trip time of one device call.
func ObserveDeviceOp(operation string, duration time.Duration) {
	deviceOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetRetryBacklog publishes the current retry queue depth.
func SetRetryBacklog(depth int64) {
	unprovisionedBacklog.Set(float64(depth))
}
