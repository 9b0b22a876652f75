package entity

import "time"

const (
	PaymentStatusPending     = "pending"
	PaymentStatusPaid        = "paid"
	PaymentStatusReceived    = "received"
	PaymentStatusDistributed = "distributed"
	PaymentStatusErrored     = "errored"
	PaymentStatusRefunded    = "refunded"
	PaymentStatusFailed      = "failed"
)

// Payment is the captured mission payment. ReleasedAt is the idempotency
// boundary: it is written at most once, and a non-nil value means the
// distribution pipeline will never run for this payment again.
type Payment struct {
	ID uint64

	MissionID   string
	RecruiterID string

	AmountCents int64
	Currency    string

	Status string

	CheckoutSessionID string
	PaymentIntentRef  *string

	ReleasedAt    *time.Time
	DistributedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
