package entity

import "time"

const (
	FinanceStatusPending           = "pending"
	FinanceStatusFundsReleased     = "funds_released"
	FinanceStatusPartiallyReleased = "partially_released"
)

// FinanceSplit is the fee breakdown for one payment. It is created once when
// funds are received and only its status changes afterwards; the status is
// always derivable from the transfer records of the split.
type FinanceSplit struct {
	ID        uint64
	PaymentID uint64
	MissionID string

	GrossCents         int64
	PlatformFeeCents   int64
	CommercialFeeCents int64
	FreelancerCents    int64

	FreelancerID string
	CommercialID *string

	Status string

	CreatedAt time.Time
	UpdatedAt time.Time
}
