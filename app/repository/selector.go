package repository

import (
	"context"
	"database/sql"
	"time"
)

// ReleaseSelector picks due payments under a skip-locked read and stamps a
// sweep claim on them before the transaction commits. The row locks only
// cover the selection; the claim is what keeps a concurrently ticking worker
// off the batch while it is processed. Claims expire after claimTTL so
// payments stranded by a crashed worker become eligible again.
type ReleaseSelector struct {
	db       *sql.DB
	payments *PaymentRepository
	splits   *FinanceSplitRepository
	claimTTL time.Duration
}

func NewReleaseSelector(db *sql.DB, payments *PaymentRepository, splits *FinanceSplitRepository, claimTTL time.Duration) *ReleaseSelector {
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	return &ReleaseSelector{db: db, payments: payments, splits: splits, claimTTL: claimTTL}
}

func (s *ReleaseSelector) SelectDueForRelease(ctx context.Context, limit int32) ([]*ReleaseCandidate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	items, err := s.splits.ListDueForRelease(ctx, tx, limit, now.Add(-s.claimTTL))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	ids := make([]uint64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.PaymentID)
	}
	if err := s.payments.MarkSweepClaimed(ctx, tx, ids, now); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}
