package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/staffhive/ms-go-payouts/app/entity"
	"github.com/staffhive/ms-go-payouts/app/metrics"
	"github.com/staffhive/ms-go-payouts/app/notifier"
	"github.com/staffhive/ms-go-payouts/app/profile"
	"github.com/staffhive/ms-go-payouts/app/rail"
	"github.com/staffhive/ms-go-payouts/app/repository"
	"github.com/staffhive/ms-go-payouts/config"
)

type paymentRepository interface {
	UpsertByCheckoutSession(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	UpdateStatus(ctx context.Context, id uint64, status string, now time.Time) error
	MarkDistributed(ctx context.Context, id uint64, now time.Time) error
	CloseRelease(ctx context.Context, id uint64, status string, releasedAt time.Time, distributedAt *time.Time) (bool, error)
}

type financeSplitRepository interface {
	Create(ctx context.Context, split *entity.FinanceSplit) error
	FindByPaymentID(ctx context.Context, paymentID uint64) (*entity.FinanceSplit, error)
	UpdateStatus(ctx context.Context, id uint64, status string, now time.Time) error
}

type transferRecordRepository interface {
	Create(ctx context.Context, record *entity.TransferRecord) error
	FindByPaymentAndDestination(ctx context.Context, paymentID uint64, destinationProfileID string, transferType string) (*entity.TransferRecord, error)
	ListByPaymentID(ctx context.Context, paymentID uint64) ([]*entity.TransferRecord, error)
	UpdateResult(ctx context.Context, id uint64, status string, externalTransferID *string, errorMessage *string, now time.Time) error
}

type disputeRepository interface {
	Create(ctx context.Context, dispute *entity.Dispute) error
	FindByID(ctx context.Context, id uint64) (*entity.Dispute, error)
	FindOpenByPaymentID(ctx context.Context, paymentID uint64) (*entity.Dispute, error)
	ListByPaymentID(ctx context.Context, paymentID uint64) ([]*entity.Dispute, error)
	UpdateStatus(ctx context.Context, id uint64, status string, resolvedAt *time.Time) error
}

type releaseCandidateSelector interface {
	SelectDueForRelease(ctx context.Context, limit int32) ([]*repository.ReleaseCandidate, error)
}

type profileStore interface {
	GetPayoutProfile(ctx context.Context, profileID string) (*profile.PayoutProfile, error)
}

type notificationSender interface {
	Send(ctx context.Context, notification notifier.Notification) error
}

type PayoutService struct {
	payments   paymentRepository
	splits     financeSplitRepository
	transfers  transferRecordRepository
	disputes   disputeRepository
	selector   releaseCandidateSelector
	profiles   profileStore
	notify     notificationSender
	executor   *TransferExecutor
	metrics    *metrics.PayoutMetrics
	payoutsCfg config.PayoutsConfig
	logger     logrus.FieldLogger
}

func NewPayoutService(
	payments paymentRepository,
	splits financeSplitRepository,
	transfers transferRecordRepository,
	disputes disputeRepository,
	selector releaseCandidateSelector,
	profiles profileStore,
	notify notificationSender,
	executor *TransferExecutor,
	payoutMetrics *metrics.PayoutMetrics,
	payoutsCfg config.PayoutsConfig,
	logger logrus.FieldLogger,
) *PayoutService {
	return &PayoutService{
		payments:   payments,
		splits:     splits,
		transfers:  transfers,
		disputes:   disputes,
		selector:   selector,
		profiles:   profiles,
		notify:     notify,
		executor:   executor,
		metrics:    payoutMetrics,
		payoutsCfg: payoutsCfg,
		logger:     logger,
	}
}

// PaymentDetails aggregates everything the read endpoint exposes for one
// payment.
type PaymentDetails struct {
	Payment   *entity.Payment
	Split     *entity.FinanceSplit
	Transfers []*entity.TransferRecord
	Disputes  []*entity.Dispute
}

func (s *PayoutService) GetPaymentDetails(ctx context.Context, paymentID uint64) (*PaymentDetails, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	split, err := s.splits.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	transfers, err := s.transfers.ListByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	disputes, err := s.disputes.ListByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	return &PaymentDetails{
		Payment:   payment,
		Split:     split,
		Transfers: transfers,
		Disputes:  disputes,
	}, nil
}

// resolveChargeRef turns the payment's intent reference into the charge the
// rail needs as a transfer source. Failure here must happen before any
// transfer record or released_at write.
func (s *PayoutService) resolveChargeRef(ctx context.Context, payment *entity.Payment) (string, error) {
	if payment.PaymentIntentRef == nil || strings.TrimSpace(*payment.PaymentIntentRef) == "" {
		return "", ErrChargeRefMissing
	}

	railClient, err := s.executor.rails.Get(rail.CodeStripe)
	if err != nil {
		return "", err
	}

	chargeRef, err := railClient.RetrieveChargeRef(ctx, strings.TrimSpace(*payment.PaymentIntentRef))
	if err != nil {
		return "", fmt.Errorf("resolve charge reference: %w", err)
	}
	if chargeRef == "" {
		return "", ErrChargeRefMissing
	}

	return chargeRef, nil
}

func (s *PayoutService) emitNotifications(ctx context.Context, notifications []notifier.Notification) {
	for _, notification := range notifications {
		result := "sent"
		if err := s.notify.Send(ctx, notification); err != nil {
			result = "failed"
			s.logger.WithError(err).WithField("type", notification.Type).Warn("notification delivery failed")
		}
		s.metrics.NotificationsTotal.WithLabelValues(notification.Type, result).Inc()
	}
}
