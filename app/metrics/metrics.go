package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PayoutMetrics struct {
	TransfersTotal      *prometheus.CounterVec
	TransferAmountTotal *prometheus.CounterVec
	ReleasesTotal       *prometheus.CounterVec
	SweepBatchesTotal   *prometheus.CounterVec
	SweepPaymentsTotal  *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
}

func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	factory := promauto.With(reg)

	return &PayoutMetrics{
		TransfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_transfers_total",
				Help: "Transfer records written, by type and outcome",
			},
			[]string{"type", "status"},
		),
		TransferAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_transfer_amount_cents_total",
				Help: "Amount moved by created transfers, in cents",
			},
			[]string{"type", "currency"},
		),
		ReleasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_releases_total",
				Help: "Release pipeline runs, by resulting payment status",
			},
			[]string{"status"},
		),
		SweepBatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_sweep_batches_total",
				Help: "Sweep batches run, by result",
			},
			[]string{"result"},
		),
		SweepPaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_sweep_payments_total",
				Help: "Payments handled by sweeps, by outcome",
			},
			[]string{"outcome"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_notifications_total",
				Help: "Notifications queued, by type and delivery result",
			},
			[]string{"type", "result"},
		),
	}
}
