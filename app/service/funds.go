package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
	"github.com/staffhive/ms-go-payouts/app/repository"
)

// FundsReceivedInput carries one checkout-success event from the webhook
// ingestion service. Replays are expected and must be harmless.
type FundsReceivedInput struct {
	MissionID          string
	RecruiterID        string
	CheckoutSessionID  string
	PaymentIntentRef   string
	AmountCents        int64
	Currency           string
	PlatformFeeCents   int64
	CommercialFeeCents int64
	FreelancerCents    int64
	FreelancerID       string
	CommercialID       *string
}

// RecordFundsReceived upserts the payment keyed on the checkout session and
// creates its finance split exactly once. The payment lands in received,
// which makes it eligible for the sweep.
func (s *PayoutService) RecordFundsReceived(ctx context.Context, input *FundsReceivedInput) (*entity.Payment, error) {
	missionID := strings.TrimSpace(input.MissionID)
	checkoutSessionID := strings.TrimSpace(input.CheckoutSessionID)
	freelancerID := strings.TrimSpace(input.FreelancerID)
	if missionID == "" || checkoutSessionID == "" || freelancerID == "" {
		return nil, ErrInvalidRequest
	}
	if input.AmountCents <= 0 || input.FreelancerCents < 0 || input.CommercialFeeCents < 0 || input.PlatformFeeCents < 0 {
		return nil, ErrInvalidRequest
	}

	now := time.Now().UTC()
	payment := &entity.Payment{
		MissionID:         missionID,
		RecruiterID:       strings.TrimSpace(input.RecruiterID),
		AmountCents:       input.AmountCents,
		Currency:          strings.ToUpper(strings.TrimSpace(input.Currency)),
		Status:            entity.PaymentStatusReceived,
		CheckoutSessionID: checkoutSessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if intentRef := strings.TrimSpace(input.PaymentIntentRef); intentRef != "" {
		payment.PaymentIntentRef = &intentRef
	}

	if err := s.payments.UpsertByCheckoutSession(ctx, payment); err != nil {
		return nil, err
	}

	split := &entity.FinanceSplit{
		PaymentID:          payment.ID,
		MissionID:          missionID,
		GrossCents:         input.AmountCents,
		PlatformFeeCents:   input.PlatformFeeCents,
		CommercialFeeCents: input.CommercialFeeCents,
		FreelancerCents:    input.FreelancerCents,
		FreelancerID:       freelancerID,
		CommercialID:       normalizeOptionalString(input.CommercialID),
		Status:             entity.FinanceStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.splits.Create(ctx, split); err != nil && !errors.Is(err, repository.ErrFinanceSplitAlreadyExists) {
		return nil, err
	}

	return payment, nil
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
