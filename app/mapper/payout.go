package mapper

import (
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
	"github.com/staffhive/ms-go-payouts/app/service"
	"github.com/staffhive/ms-go-payouts/app/types"
)

func PaymentToResponse(item *entity.Payment) *types.PaymentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentResponse{
		ID:                item.ID,
		MissionID:         item.MissionID,
		RecruiterID:       item.RecruiterID,
		AmountCents:       item.AmountCents,
		Currency:          item.Currency,
		Status:            item.Status,
		CheckoutSessionID: item.CheckoutSessionID,
		PaymentIntentRef:  item.PaymentIntentRef,
		ReleasedAt:        formatTimePtr(item.ReleasedAt),
		DistributedAt:     formatTimePtr(item.DistributedAt),
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func FinanceSplitToResponse(item *entity.FinanceSplit) *types.FinanceSplitResponse {
	if item == nil {
		return nil
	}

	return &types.FinanceSplitResponse{
		ID:                 item.ID,
		PaymentID:          item.PaymentID,
		MissionID:          item.MissionID,
		GrossCents:         item.GrossCents,
		PlatformFeeCents:   item.PlatformFeeCents,
		CommercialFeeCents: item.CommercialFeeCents,
		FreelancerCents:    item.FreelancerCents,
		FreelancerID:       item.FreelancerID,
		CommercialID:       item.CommercialID,
		Status:             item.Status,
	}
}

func TransferRecordToResponse(item *entity.TransferRecord) *types.TransferRecordResponse {
	if item == nil {
		return nil
	}

	return &types.TransferRecordResponse{
		ID:                   item.ID,
		PaymentID:            item.PaymentID,
		DestinationProfileID: item.DestinationProfileID,
		Type:                 item.Type,
		AmountCents:          item.AmountCents,
		Currency:             item.Currency,
		Status:               item.Status,
		ExternalTransferID:   item.ExternalTransferID,
		ErrorMessage:         item.ErrorMessage,
	}
}

func TransferRecordsToResponse(items []*entity.TransferRecord) []*types.TransferRecordResponse {
	result := make([]*types.TransferRecordResponse, 0, len(items))
	for _, item := range items {
		result = append(result, TransferRecordToResponse(item))
	}
	return result
}

func DisputeToResponse(item *entity.Dispute) *types.DisputeResponse {
	if item == nil {
		return nil
	}

	return &types.DisputeResponse{
		ID:         item.ID,
		PaymentID:  item.PaymentID,
		MissionID:  item.MissionID,
		ReporterID: item.ReporterID,
		Reason:     item.Reason,
		Status:     item.Status,
		CreatedAt:  item.CreatedAt.UTC().Format(time.RFC3339),
		ResolvedAt: formatTimePtr(item.ResolvedAt),
	}
}

func DisputesToResponse(items []*entity.Dispute) []*types.DisputeResponse {
	result := make([]*types.DisputeResponse, 0, len(items))
	for _, item := range items {
		result = append(result, DisputeToResponse(item))
	}
	return result
}

func PaymentDetailsToResponse(item *service.PaymentDetails) *types.PaymentDetailsResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentDetailsResponse{
		Payment:   PaymentToResponse(item.Payment),
		Split:     FinanceSplitToResponse(item.Split),
		Transfers: TransferRecordsToResponse(item.Transfers),
		Disputes:  DisputesToResponse(item.Disputes),
	}
}

func ReleaseOutcomeToResponse(item *service.ReleaseOutcome) *types.ReleaseOutcomeResponse {
	if item == nil {
		return nil
	}

	return &types.ReleaseOutcomeResponse{
		PaymentID:     item.PaymentID,
		PaymentStatus: item.PaymentStatus,
		FinanceStatus: item.FinanceStatus,
		Transfers:     TransferRecordsToResponse(item.Transfers),
		Created:       item.Created,
		Failed:        item.Failed,
		Skipped:       item.Skipped,
	}
}

func SweepReportToResponse(item *service.SweepReport) *types.SweepReportResponse {
	if item == nil {
		return nil
	}

	errors := item.Errors
	if errors == nil {
		errors = []string{}
	}

	return &types.SweepReportResponse{
		Processed:  item.Processed,
		Successful: item.Successful,
		Failed:     item.Failed,
		Skipped:    item.Skipped,
		Errors:     errors,
	}
}

func formatTimePtr(v *time.Time) *string {
	if v == nil {
		return nil
	}
	formatted := v.UTC().Format(time.RFC3339)
	return &formatted
}
