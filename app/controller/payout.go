package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/staffhive/ms-go-payouts/app/entity"
	"github.com/staffhive/ms-go-payouts/app/factory"
	"github.com/staffhive/ms-go-payouts/app/mapper"
	"github.com/staffhive/ms-go-payouts/app/service"
	"github.com/staffhive/ms-go-payouts/app/types"
)

type PayoutController struct {
	payoutService *service.PayoutService
	logger        logrus.FieldLogger
}

func NewPayoutController(payoutService *service.PayoutService) *PayoutController {
	return &PayoutController{
		payoutService: payoutService,
		logger:        factory.NewModuleLogger("payouts-controller"),
	}
}

func (c *PayoutController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PayoutController) HandleFundsReceived(ctx echo.Context) error {
	req, err := types.NewFundsReceivedRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.payoutService.RecordFundsReceived(ctx.Request().Context(), &service.FundsReceivedInput{
		MissionID:          req.MissionID,
		RecruiterID:        req.RecruiterID,
		CheckoutSessionID:  req.CheckoutSessionID,
		PaymentIntentRef:   req.PaymentIntentRef,
		AmountCents:        req.AmountCents,
		Currency:           req.Currency,
		PlatformFeeCents:   req.PlatformFeeCents,
		CommercialFeeCents: req.CommercialFeeCents,
		FreelancerCents:    req.FreelancerCents,
		FreelancerID:       req.FreelancerID,
		CommercialID:       req.CommercialID,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Record funds received failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item)})
}

func (c *PayoutController) ReleasePayment(ctx echo.Context) error {
	req, err := types.NewPaymentIDRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid payment id")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	outcome, err := c.payoutService.Release(ctx.Request().Context(), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		case errors.Is(err, service.ErrAlreadyReleased):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrDisputeOpen):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrFinanceSplitMissing):
			return c.writeError(ctx, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, service.ErrChargeRefMissing):
			return c.writeError(ctx, http.StatusUnprocessableEntity, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Release payment failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.ReleaseOutcomeToResponse(outcome))
}

func (c *PayoutController) GetPayment(ctx echo.Context) error {
	req, err := types.NewPaymentIDRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid payment id")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.payoutService.GetPaymentDetails(ctx.Request().Context(), req.ID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get payment failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentDetailsToResponse(item))
}

func (c *PayoutController) RetryTransfer(ctx echo.Context) error {
	req, err := types.NewRetryTransferRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	record, err := c.payoutService.RetryPayeeTransfer(ctx.Request().Context(), req.PaymentID, req.CallerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound), errors.Is(err, service.ErrFinanceSplitMissing):
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		case errors.Is(err, service.ErrNotPayee):
			return c.writeError(ctx, http.StatusForbidden, err.Error())
		case errors.Is(err, service.ErrTransferAlreadyCompleted):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrDisputeOpen):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrPayeeNotPayable), errors.Is(err, service.ErrChargeRefMissing):
			return c.writeError(ctx, http.StatusUnprocessableEntity, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Retry transfer failed")
			return c.writeError(ctx, http.StatusInternalServerError, "transfer could not be completed")
		}
	}

	return ctx.JSON(http.StatusOK, &types.RetryTransferResponse{Transfer: mapper.TransferRecordToResponse(record)})
}

func (c *PayoutController) OpenDispute(ctx echo.Context) error {
	req, err := types.NewOpenDisputeRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	dispute, err := c.payoutService.OpenDispute(ctx.Request().Context(), &service.OpenDisputeInput{
		PaymentID:  req.PaymentID,
		ReporterID: req.ReporterID,
		Reason:     req.Reason,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		case errors.Is(err, service.ErrDisputeAlreadyOpen):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidStatus):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Open dispute failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.DisputeEnvelopeResponse{Dispute: mapper.DisputeToResponse(dispute)})
}

func (c *PayoutController) ResolveDispute(ctx echo.Context) error {
	return c.closeDispute(ctx, c.payoutService.ResolveDispute)
}

func (c *PayoutController) RejectDispute(ctx echo.Context) error {
	return c.closeDispute(ctx, c.payoutService.RejectDispute)
}

func (c *PayoutController) closeDispute(ctx echo.Context, close func(context.Context, uint64) (*entity.Dispute, error)) error {
	req, err := types.NewDisputeIDRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid dispute id")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	dispute, err := close(ctx.Request().Context(), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDisputeNotFound):
			return c.writeError(ctx, http.StatusNotFound, "dispute not found")
		case errors.Is(err, service.ErrInvalidStatus):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Close dispute failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.DisputeEnvelopeResponse{Dispute: mapper.DisputeToResponse(dispute)})
}

func (c *PayoutController) Sweep(ctx echo.Context) error {
	report, err := c.payoutService.RunSweepBatch(ctx.Request().Context())
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Sweep failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.SweepReportToResponse(report))
}

func (c *PayoutController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
