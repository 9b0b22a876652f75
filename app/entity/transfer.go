package entity

import "time"

const (
	TransferStatusCreated = "created"
	TransferStatusFailed  = "failed"
	TransferStatusSkipped = "skipped"
)

const (
	TransferTypeFreelancerPayout     = "freelancer_payout"
	TransferTypeCommercialCommission = "commercial_commission"
)

// TransferRecord is the outcome of one payee transfer attempt. At most one
// record exists per (payment, destination, type); a skipped or failed record
// is mutated in place by the self-service retry, never re-created.
type TransferRecord struct {
	ID        uint64
	PaymentID uint64
	FinanceID uint64

	DestinationProfileID string
	Type                 string

	AmountCents int64
	Currency    string

	Status             string
	ExternalTransferID *string
	ErrorMessage       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
