package service

import "errors"

var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrFinanceSplitMissing      = errors.New("finance split missing")
	ErrAlreadyReleased          = errors.New("payment already released")
	ErrDisputeOpen              = errors.New("payment is blocked by an open dispute")
	ErrChargeRefMissing         = errors.New("charge reference could not be resolved")
	ErrInvalidStatus            = errors.New("invalid status")
	ErrNotPayee                 = errors.New("caller is not a payee of this payment")
	ErrPayeeNotPayable          = errors.New("payee has no payable payout account")
	ErrTransferAlreadyCompleted = errors.New("transfer already completed for this payee")
	ErrDisputeNotFound          = errors.New("dispute not found")
	ErrDisputeAlreadyOpen       = errors.New("payment already has an open dispute")
)
