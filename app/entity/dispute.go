package entity

import "time"

const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
	DisputeStatusRejected = "rejected"
)

// Dispute blocks automatic distribution of its payment while open.
type Dispute struct {
	ID        uint64
	PaymentID uint64
	MissionID string

	ReporterID string
	Reason     string
	Status     string

	CreatedAt  time.Time
	ResolvedAt *time.Time
}
