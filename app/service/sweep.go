package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/staffhive/ms-go-payouts/app/entity"
)

// SweepReport aggregates one sweep batch.
type SweepReport struct {
	Processed  int
	Successful int
	Failed     int
	Skipped    int
	Errors     []string
}

// RunSweepBatch selects every due payment and releases each one, isolating
// per-payment failures so a single bad payment never stalls the batch.
func (s *PayoutService) RunSweepBatch(ctx context.Context) (*SweepReport, error) {
	candidates, err := s.selector.SelectDueForRelease(ctx, s.batchSize())
	if err != nil {
		s.metrics.SweepBatchesTotal.WithLabelValues("selector_error").Inc()
		return nil, err
	}

	report := &SweepReport{}
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		report.Processed++

		outcome, err := s.Release(ctx, candidate.PaymentID)
		switch {
		case err == nil:
			if outcome.PaymentStatus == entity.PaymentStatusDistributed {
				report.Successful++
			} else {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("payment %d: created=%d failed=%d skipped=%d",
					candidate.PaymentID, outcome.Created, outcome.Failed, outcome.Skipped))
			}
			s.metrics.SweepPaymentsTotal.WithLabelValues(outcome.PaymentStatus).Inc()
		case errors.Is(err, ErrAlreadyReleased), errors.Is(err, ErrDisputeOpen):
			report.Skipped++
			s.metrics.SweepPaymentsTotal.WithLabelValues("skipped").Inc()
		default:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("payment %d: %v", candidate.PaymentID, err))
			s.metrics.SweepPaymentsTotal.WithLabelValues("error").Inc()
		}
	}

	result := "clean"
	if report.Failed > 0 {
		result = "with_failures"
	}
	s.metrics.SweepBatchesTotal.WithLabelValues(result).Inc()

	return report, nil
}

func (s *PayoutService) batchSize() int32 {
	if s.payoutsCfg.SweepBatchSize > 0 {
		return s.payoutsCfg.SweepBatchSize
	}
	return 100
}
