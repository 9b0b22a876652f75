package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
	"github.com/staffhive/ms-go-payouts/app/notifier"
	"github.com/staffhive/ms-go-payouts/app/profile"
	"github.com/staffhive/ms-go-payouts/app/rail"
)

// ReleaseOutcome summarizes one completed release run.
type ReleaseOutcome struct {
	PaymentID     uint64
	PaymentStatus string
	FinanceStatus string
	Transfers     []*entity.TransferRecord
	Created       int
	Failed        int
	Skipped       int
}

type payeeTarget struct {
	profileID    string
	transferType string
	amountCents  int64
}

// Release runs the distribution pipeline for one payment. It is safe to call
// concurrently with the sweep and with self-service retries: released_at is
// re-read first, and the unique (payment, destination, type) constraint on
// transfer records is the hard double-pay guard underneath.
func (s *PayoutService) Release(ctx context.Context, paymentID uint64) (*ReleaseOutcome, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.ReleasedAt != nil {
		return nil, ErrAlreadyReleased
	}
	if payment.Status != entity.PaymentStatusReceived {
		return nil, ErrInvalidStatus
	}

	openDispute, err := s.disputes.FindOpenByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if openDispute != nil {
		return nil, ErrDisputeOpen
	}

	split, err := s.splits.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if split == nil {
		return nil, ErrFinanceSplitMissing
	}

	chargeRef, err := s.resolveChargeRef(ctx, payment)
	if err != nil {
		return nil, err
	}

	outcome := &ReleaseOutcome{PaymentID: paymentID}
	var notifications []notifier.Notification

	// Freelancer first, then the intermediary, so a crash mid-release leaves
	// a deterministic partial state.
	for _, target := range expectedPayees(split) {
		record, notification, err := s.processPayee(ctx, payment, split, target, chargeRef)
		if err != nil {
			return nil, err
		}

		outcome.Transfers = append(outcome.Transfers, record)
		switch record.Status {
		case entity.TransferStatusCreated:
			outcome.Created++
		case entity.TransferStatusFailed:
			outcome.Failed++
		case entity.TransferStatusSkipped:
			outcome.Skipped++
		}
		if notification != nil {
			notifications = append(notifications, *notification)
		}
	}

	paymentStatus, financeStatus := aggregateOutcome(outcome.Created, outcome.Failed, outcome.Skipped)
	outcome.PaymentStatus = paymentStatus
	outcome.FinanceStatus = financeStatus

	now := time.Now().UTC()
	var distributedAt *time.Time
	if paymentStatus == entity.PaymentStatusDistributed {
		distributedAt = &now
	}

	// The closure owns the terminal write: only the run that wins the
	// released_at race may also write the split status.
	closed, err := s.payments.CloseRelease(ctx, paymentID, paymentStatus, now, distributedAt)
	if err != nil {
		return nil, err
	}
	if closed {
		if err := s.splits.UpdateStatus(ctx, split.ID, financeStatus, now); err != nil {
			return nil, err
		}
	} else {
		s.logger.WithField("payment_id", paymentID).Warn("release closure lost the race, split status left to the winning run")
	}

	s.emitNotifications(ctx, notifications)
	s.metrics.ReleasesTotal.WithLabelValues(paymentStatus).Inc()

	return outcome, nil
}

// processPayee runs a single payee through the profile check and the transfer
// executor, then persists exactly one transfer record. A leftover record from
// an interrupted earlier run is updated in place instead of re-created.
func (s *PayoutService) processPayee(ctx context.Context, payment *entity.Payment, split *entity.FinanceSplit, target payeeTarget, chargeRef string) (*entity.TransferRecord, *notifier.Notification, error) {
	existing, err := s.transfers.FindByPaymentAndDestination(ctx, payment.ID, target.profileID, target.transferType)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil && existing.Status == entity.TransferStatusCreated {
		return existing, nil, nil
	}

	record := &entity.TransferRecord{
		PaymentID:            payment.ID,
		FinanceID:            split.ID,
		DestinationProfileID: target.profileID,
		Type:                 target.transferType,
		AmountCents:          target.amountCents,
		Currency:             payment.Currency,
	}

	var notification *notifier.Notification

	payoutProfile, err := s.profiles.GetPayoutProfile(ctx, target.profileID)
	switch {
	case err != nil:
		message := fmt.Sprintf("payout profile lookup failed: %v", err)
		record.Status = entity.TransferStatusFailed
		record.ErrorMessage = &message
		notification = s.errorNotification(payment, target, message)
	case payoutProfile.AccountID == "":
		message := "account not configured"
		record.Status = entity.TransferStatusSkipped
		record.ErrorMessage = &message
		notification = s.missingAccountNotification(payment, target, payoutProfile, message)
	case !payoutProfile.PayoutsEnabled:
		message := "payouts not enabled"
		record.Status = entity.TransferStatusSkipped
		record.ErrorMessage = &message
		notification = s.missingAccountNotification(payment, target, payoutProfile, message)
	default:
		transferID, err := s.executor.Execute(ctx, rail.CodeStripe, &rail.TransferInput{
			AmountCents:        target.amountCents,
			Currency:           payment.Currency,
			DestinationAccount: payoutProfile.AccountID,
			SourceChargeRef:    chargeRef,
			TransferGroup:      "mission_" + payment.MissionID,
			Metadata: map[string]string{
				"payment_id":    strconv.FormatUint(payment.ID, 10),
				"mission_id":    payment.MissionID,
				"transfer_type": target.transferType,
			},
		})
		if err != nil {
			message := err.Error()
			record.Status = entity.TransferStatusFailed
			record.ErrorMessage = &message
			notification = s.errorNotification(payment, target, message)
		} else {
			record.Status = entity.TransferStatusCreated
			record.ExternalTransferID = &transferID
		}
	}

	if err := s.persistPayeeRecord(ctx, record, existing); err != nil {
		if record.Status == entity.TransferStatusCreated {
			// Money has already moved. This must never be swallowed.
			return nil, nil, fmt.Errorf("transfer %s for payment %d executed but its record failed to persist: %w",
				valueOrEmpty(record.ExternalTransferID), payment.ID, err)
		}
		return nil, nil, err
	}

	s.metrics.TransfersTotal.WithLabelValues(record.Type, record.Status).Inc()
	if record.Status == entity.TransferStatusCreated {
		s.metrics.TransferAmountTotal.WithLabelValues(record.Type, record.Currency).Add(float64(record.AmountCents))
	}

	return record, notification, nil
}

func (s *PayoutService) persistPayeeRecord(ctx context.Context, record *entity.TransferRecord, existing *entity.TransferRecord) error {
	now := time.Now().UTC()
	if existing != nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		record.UpdatedAt = now
		return s.transfers.UpdateResult(ctx, existing.ID, record.Status, record.ExternalTransferID, record.ErrorMessage, now)
	}

	record.CreatedAt = now
	record.UpdatedAt = now
	return s.transfers.Create(ctx, record)
}

func (s *PayoutService) errorNotification(payment *entity.Payment, target payeeTarget, message string) *notifier.Notification {
	notification := notifier.New(notifier.TypeError, []string{target.profileID}, map[string]string{
		"payment_id":    strconv.FormatUint(payment.ID, 10),
		"mission_id":    payment.MissionID,
		"transfer_type": target.transferType,
		"reason":        message,
	})
	return &notification
}

func (s *PayoutService) missingAccountNotification(payment *entity.Payment, target payeeTarget, payoutProfile *profile.PayoutProfile, message string) *notifier.Notification {
	recipient := payoutProfile.Contact
	if recipient == "" {
		recipient = target.profileID
	}
	notification := notifier.New(notifier.TypeMissingStripe, []string{recipient}, map[string]string{
		"payment_id":    strconv.FormatUint(payment.ID, 10),
		"mission_id":    payment.MissionID,
		"transfer_type": target.transferType,
		"reason":        message,
	})
	return &notification
}

// expectedPayees lists the payees a split owes money to, freelancer first.
func expectedPayees(split *entity.FinanceSplit) []payeeTarget {
	targets := make([]payeeTarget, 0, 2)
	if split.FreelancerCents > 0 {
		targets = append(targets, payeeTarget{
			profileID:    split.FreelancerID,
			transferType: entity.TransferTypeFreelancerPayout,
			amountCents:  split.FreelancerCents,
		})
	}
	if split.CommercialID != nil && split.CommercialFeeCents > 0 {
		targets = append(targets, payeeTarget{
			profileID:    *split.CommercialID,
			transferType: entity.TransferTypeCommercialCommission,
			amountCents:  split.CommercialFeeCents,
		})
	}
	return targets
}

// aggregateOutcome maps the (created, failed, skipped) counts to the payment
// and finance split statuses. A payment with nothing to pay out closes clean.
func aggregateOutcome(created, failed, skipped int) (string, string) {
	switch {
	case failed > 0:
		return entity.PaymentStatusErrored, entity.FinanceStatusPartiallyReleased
	case skipped > 0 && created == 0:
		return entity.PaymentStatusErrored, entity.FinanceStatusPartiallyReleased
	case skipped > 0:
		return entity.PaymentStatusDistributed, entity.FinanceStatusPartiallyReleased
	default:
		return entity.PaymentStatusDistributed, entity.FinanceStatusFundsReleased
	}
}

func valueOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
