package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
)

type OpenDisputeInput struct {
	PaymentID  uint64
	ReporterID string
	Reason     string
}

// CanDistribute is the dispute gate: false iff an open dispute exists.
func (s *PayoutService) CanDistribute(ctx context.Context, paymentID uint64) (bool, error) {
	openDispute, err := s.disputes.FindOpenByPaymentID(ctx, paymentID)
	if err != nil {
		return false, err
	}
	return openDispute == nil, nil
}

// OpenDispute blocks distribution of a payment. Only one open dispute may
// exist per payment, and disputes can only be raised while the money is still
// held, before the payment reaches a terminal state.
func (s *PayoutService) OpenDispute(ctx context.Context, input *OpenDisputeInput) (*entity.Dispute, error) {
	reporterID := strings.TrimSpace(input.ReporterID)
	reason := strings.TrimSpace(input.Reason)
	if reporterID == "" || reason == "" {
		return nil, ErrInvalidRequest
	}

	payment, err := s.payments.FindByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != entity.PaymentStatusReceived {
		return nil, ErrInvalidStatus
	}

	existing, err := s.disputes.FindOpenByPaymentID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDisputeAlreadyOpen
	}

	dispute := &entity.Dispute{
		PaymentID:  input.PaymentID,
		MissionID:  payment.MissionID,
		ReporterID: reporterID,
		Reason:     reason,
		Status:     entity.DisputeStatusOpen,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.disputes.Create(ctx, dispute); err != nil {
		return nil, err
	}

	return dispute, nil
}

func (s *PayoutService) ResolveDispute(ctx context.Context, disputeID uint64) (*entity.Dispute, error) {
	return s.closeDispute(ctx, disputeID, entity.DisputeStatusResolved)
}

func (s *PayoutService) RejectDispute(ctx context.Context, disputeID uint64) (*entity.Dispute, error) {
	return s.closeDispute(ctx, disputeID, entity.DisputeStatusRejected)
}

func (s *PayoutService) closeDispute(ctx context.Context, disputeID uint64, status string) (*entity.Dispute, error) {
	dispute, err := s.disputes.FindByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, ErrDisputeNotFound
	}
	if dispute.Status != entity.DisputeStatusOpen {
		return nil, ErrInvalidStatus
	}

	now := time.Now().UTC()
	if err := s.disputes.UpdateStatus(ctx, disputeID, status, &now); err != nil {
		return nil, err
	}
	dispute.Status = status
	dispute.ResolvedAt = &now

	if s.payoutsCfg.AutoReleaseOnDisputeResolve {
		s.releaseAfterDisputeClosure(ctx, dispute.PaymentID)
	}

	return dispute, nil
}

// releaseAfterDisputeClosure re-runs distribution once the block is lifted.
// This is a policy toggle; failures are reported through the usual channels
// and never fail the administrative action itself.
func (s *PayoutService) releaseAfterDisputeClosure(ctx context.Context, paymentID uint64) {
	_, err := s.Release(ctx, paymentID)
	if err == nil || errors.Is(err, ErrAlreadyReleased) {
		return
	}
	s.logger.WithError(err).WithField("payment_id", paymentID).Warn("release after dispute closure failed")
}
