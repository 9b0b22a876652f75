package types

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type FundsReceivedRequest struct {
	MissionID          string  `json:"mission_id"`
	RecruiterID        string  `json:"recruiter_id"`
	CheckoutSessionID  string  `json:"checkout_session_id"`
	PaymentIntentRef   string  `json:"payment_intent_ref"`
	AmountCents        int64   `json:"amount_cents"`
	Currency           string  `json:"currency"`
	PlatformFeeCents   int64   `json:"platform_fee_cents"`
	CommercialFeeCents int64   `json:"commercial_fee_cents"`
	FreelancerCents    int64   `json:"freelancer_cents"`
	FreelancerID       string  `json:"freelancer_id"`
	CommercialID       *string `json:"commercial_id"`
}

func NewFundsReceivedRequestFromContext(ctx echo.Context) (*FundsReceivedRequest, error) {
	var body FundsReceivedRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.MissionID = strings.TrimSpace(body.MissionID)
	body.RecruiterID = strings.TrimSpace(body.RecruiterID)
	body.CheckoutSessionID = strings.TrimSpace(body.CheckoutSessionID)
	body.PaymentIntentRef = strings.TrimSpace(body.PaymentIntentRef)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.FreelancerID = strings.TrimSpace(body.FreelancerID)

	return &body, nil
}

func (r *FundsReceivedRequest) Validate() error {
	if r.MissionID == "" {
		return errors.New("mission_id is required")
	}
	if r.CheckoutSessionID == "" {
		return errors.New("checkout_session_id is required")
	}
	if r.FreelancerID == "" {
		return errors.New("freelancer_id is required")
	}
	if r.AmountCents <= 0 {
		return errors.New("amount_cents must be > 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if r.FreelancerCents < 0 || r.CommercialFeeCents < 0 || r.PlatformFeeCents < 0 {
		return errors.New("fee amounts must not be negative")
	}
	if r.FreelancerCents+r.CommercialFeeCents+r.PlatformFeeCents > r.AmountCents {
		return errors.New("split exceeds the gross amount")
	}
	if r.CommercialID != nil && strings.TrimSpace(*r.CommercialID) == "" {
		return errors.New("commercial_id must not be blank when present")
	}
	return nil
}

type PaymentIDRequest struct {
	ID uint64
}

func NewPaymentIDRequestFromContext(ctx echo.Context) (*PaymentIDRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &PaymentIDRequest{ID: id}, nil
}

func (r *PaymentIDRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

type RetryTransferRequest struct {
	PaymentID uint64 `json:"-"`
	CallerID  string `json:"caller_id"`
}

func NewRetryTransferRequestFromContext(ctx echo.Context) (*RetryTransferRequest, error) {
	var body RetryTransferRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	body.PaymentID = id
	body.CallerID = strings.TrimSpace(body.CallerID)

	return &body, nil
}

func (r *RetryTransferRequest) Validate() error {
	if r.PaymentID == 0 {
		return errors.New("invalid payment id")
	}
	if r.CallerID == "" {
		return errors.New("caller_id is required")
	}
	return nil
}

type OpenDisputeRequest struct {
	PaymentID  uint64 `json:"-"`
	ReporterID string `json:"reporter_id"`
	Reason     string `json:"reason"`
}

func NewOpenDisputeRequestFromContext(ctx echo.Context) (*OpenDisputeRequest, error) {
	var body OpenDisputeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	body.PaymentID = id
	body.ReporterID = strings.TrimSpace(body.ReporterID)
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *OpenDisputeRequest) Validate() error {
	if r.PaymentID == 0 {
		return errors.New("invalid payment id")
	}
	if r.ReporterID == "" {
		return errors.New("reporter_id is required")
	}
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}

type DisputeIDRequest struct {
	ID uint64
}

func NewDisputeIDRequestFromContext(ctx echo.Context) (*DisputeIDRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &DisputeIDRequest{ID: id}, nil
}

func (r *DisputeIDRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid dispute id")
	}
	return nil
}

type PaymentResponse struct {
	ID                uint64  `json:"id"`
	MissionID         string  `json:"mission_id"`
	RecruiterID       string  `json:"recruiter_id"`
	AmountCents       int64   `json:"amount_cents"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	CheckoutSessionID string  `json:"checkout_session_id"`
	PaymentIntentRef  *string `json:"payment_intent_ref,omitempty"`
	ReleasedAt        *string `json:"released_at,omitempty"`
	DistributedAt     *string `json:"distributed_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type FinanceSplitResponse struct {
	ID                 uint64  `json:"id"`
	PaymentID          uint64  `json:"payment_id"`
	MissionID          string  `json:"mission_id"`
	GrossCents         int64   `json:"gross_cents"`
	PlatformFeeCents   int64   `json:"platform_fee_cents"`
	CommercialFeeCents int64   `json:"commercial_fee_cents"`
	FreelancerCents    int64   `json:"freelancer_cents"`
	FreelancerID       string  `json:"freelancer_id"`
	CommercialID       *string `json:"commercial_id,omitempty"`
	Status             string  `json:"status"`
}

type TransferRecordResponse struct {
	ID                   uint64  `json:"id"`
	PaymentID            uint64  `json:"payment_id"`
	DestinationProfileID string  `json:"destination_profile_id"`
	Type                 string  `json:"type"`
	AmountCents          int64   `json:"amount_cents"`
	Currency             string  `json:"currency"`
	Status               string  `json:"status"`
	ExternalTransferID   *string `json:"external_transfer_id,omitempty"`
	ErrorMessage         *string `json:"error_message,omitempty"`
}

type DisputeResponse struct {
	ID         uint64  `json:"id"`
	PaymentID  uint64  `json:"payment_id"`
	MissionID  string  `json:"mission_id"`
	ReporterID string  `json:"reporter_id"`
	Reason     string  `json:"reason"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
}

type PaymentEnvelopeResponse struct {
	Payment *PaymentResponse `json:"payment"`
}

type PaymentDetailsResponse struct {
	Payment   *PaymentResponse          `json:"payment"`
	Split     *FinanceSplitResponse     `json:"split,omitempty"`
	Transfers []*TransferRecordResponse `json:"transfers"`
	Disputes  []*DisputeResponse        `json:"disputes"`
}

type ReleaseOutcomeResponse struct {
	PaymentID     uint64                    `json:"payment_id"`
	PaymentStatus string                    `json:"payment_status"`
	FinanceStatus string                    `json:"finance_status"`
	Transfers     []*TransferRecordResponse `json:"transfers"`
	Created       int                       `json:"created"`
	Failed        int                       `json:"failed"`
	Skipped       int                       `json:"skipped"`
}

type RetryTransferResponse struct {
	Transfer *TransferRecordResponse `json:"transfer"`
}

type DisputeEnvelopeResponse struct {
	Dispute *DisputeResponse `json:"dispute"`
}

type SweepReportResponse struct {
	Processed  int      `json:"processed"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
}
