package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
	"github.com/staffhive/ms-go-payouts/app/rail"
)

// RetryPayeeTransfer re-attempts the payout for exactly one payee, invoked by
// that payee after out-of-band onboarding made them payable. It bypasses the
// orchestrator's closure: released_at stays untouched, only the payee's own
// transfer record and the split status can change.
func (s *PayoutService) RetryPayeeTransfer(ctx context.Context, paymentID uint64, callerID string) (*entity.TransferRecord, error) {
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
	if split == nil {
		return nil, ErrFinanceSplitMissing
	}

	target, ok := payeeTargetFor(split, callerID)
	if !ok {
		return nil, ErrNotPayee
	}

	existing, err := s.transfers.FindByPaymentAndDestination(ctx, paymentID, target.profileID, target.transferType)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == entity.TransferStatusCreated {
		return nil, ErrTransferAlreadyCompleted
	}

	switch payment.Status {
	case entity.PaymentStatusReceived, entity.PaymentStatusDistributed, entity.PaymentStatusErrored:
	default:
		return nil, ErrInvalidStatus
	}

	openDispute, err := s.disputes.FindOpenByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if openDispute != nil {
		return nil, ErrDisputeOpen
	}

	chargeRef, err := s.resolveChargeRef(ctx, payment)
	if err != nil {
		return nil, err
	}

	payoutProfile, err := s.profiles.GetPayoutProfile(ctx, target.profileID)
	if err != nil {
		return nil, err
	}
	if payoutProfile.AccountID == "" || !payoutProfile.PayoutsEnabled {
		return nil, ErrPayeeNotPayable
	}

	record := &entity.TransferRecord{
		PaymentID:            paymentID,
		FinanceID:            split.ID,
		DestinationProfileID: target.profileID,
		Type:                 target.transferType,
		AmountCents:          target.amountCents,
		Currency:             payment.Currency,
	}

	transferID, execErr := s.executor.Execute(ctx, rail.CodeStripe, &rail.TransferInput{
		AmountCents:        target.amountCents,
		Currency:           payment.Currency,
		DestinationAccount: payoutProfile.AccountID,
		SourceChargeRef:    chargeRef,
		TransferGroup:      "mission_" + payment.MissionID,
		Metadata: map[string]string{
			"payment_id":    strconv.FormatUint(paymentID, 10),
			"mission_id":    payment.MissionID,
			"transfer_type": target.transferType,
			"initiator":     "payee_retry",
		},
	})
	if execErr != nil {
		message := execErr.Error()
		record.Status = entity.TransferStatusFailed
		record.ErrorMessage = &message
	} else {
		record.Status = entity.TransferStatusCreated
		record.ExternalTransferID = &transferID
	}

	if err := s.persistPayeeRecord(ctx, record, existing); err != nil {
		if record.Status == entity.TransferStatusCreated {
			return nil, fmt.Errorf("transfer %s for payment %d executed but its record failed to persist: %w",
				transferID, paymentID, err)
		}
		return nil, err
	}
	s.metrics.TransfersTotal.WithLabelValues(record.Type, record.Status).Inc()

	if execErr != nil {
		return record, fmt.Errorf("transfer failed: %w", execErr)
	}
	s.metrics.TransferAmountTotal.WithLabelValues(record.Type, record.Currency).Add(float64(record.AmountCents))

	if err := s.recloseAfterRetry(ctx, payment, split); err != nil {
		s.logger.WithError(err).WithField("payment_id", paymentID).Warn("post-retry status re-evaluation failed")
	}

	return record, nil
}

// recloseAfterRetry flips the split to funds_released once every expected
// payee has a created record, and lifts an errored payment to distributed at
// the same moment.
func (s *PayoutService) recloseAfterRetry(ctx context.Context, payment *entity.Payment, split *entity.FinanceSplit) error {
	records, err := s.transfers.ListByPaymentID(ctx, payment.ID)
	if err != nil {
		return err
	}

	created := make(map[string]bool, len(records))
	for _, record := range records {
		if record.Status == entity.TransferStatusCreated {
			created[record.DestinationProfileID+"/"+record.Type] = true
		}
	}
	for _, target := range expectedPayees(split) {
		if !created[target.profileID+"/"+target.transferType] {
			return nil
		}
	}

	now := time.Now().UTC()
	if err := s.splits.UpdateStatus(ctx, split.ID, entity.FinanceStatusFundsReleased, now); err != nil {
		return err
	}
	if payment.Status == entity.PaymentStatusErrored {
		if err := s.payments.MarkDistributed(ctx, payment.ID, now); err != nil {
			return err
		}
	}

	return nil
}

func payeeTargetFor(split *entity.FinanceSplit, callerID string) (payeeTarget, bool) {
	if callerID == "" {
		return payeeTarget{}, false
	}
	if callerID == split.FreelancerID && split.FreelancerCents > 0 {
		return payeeTarget{
			profileID:    split.FreelancerID,
			transferType: entity.TransferTypeFreelancerPayout,
			amountCents:  split.FreelancerCents,
		}, true
	}
	if split.CommercialID != nil && callerID == *split.CommercialID && split.CommercialFeeCents > 0 {
		return payeeTarget{
			profileID:    *split.CommercialID,
			transferType: entity.TransferTypeCommercialCommission,
			amountCents:  split.CommercialFeeCents,
		}, true
	}
	return payeeTarget{}, false
}
