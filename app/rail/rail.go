package rail

import "context"

// TransferInput is everything the rail needs to move one payee's share.
// It carries no knowledge of payments or finance splits.
type TransferInput struct {
	AmountCents        int64
	Currency           string
	DestinationAccount string
	SourceChargeRef    string
	TransferGroup      string
	Metadata           map[string]string
}

// Rail executes money movement against the external payment provider.
// RetrieveChargeRef returns the charge backing a payment intent, or the empty
// string when the intent has no charge yet.
type Rail interface {
	Code() int32
	CreateTransfer(ctx context.Context, input *TransferInput) (string, error)
	RetrieveChargeRef(ctx context.Context, intentRef string) (string, error)
}
