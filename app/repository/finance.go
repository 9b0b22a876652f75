package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
)

var (
	ErrFinanceSplitNotFound      = errors.New("finance split not found")
	ErrFinanceSplitAlreadyExists = errors.New("finance split already exists")
)

// ReleaseCandidate is one row from the eligibility selector: a payment whose
// funds are received and whose released_at is still null, together with the
// split amounts needed to drive the payee loop.
type ReleaseCandidate struct {
	PaymentID          uint64
	FinanceID          uint64
	MissionID          string
	FreelancerID       string
	FreelancerCents    int64
	CommercialID       *string
	CommercialFeeCents int64
}

type FinanceSplitRepository struct {
	db DBTX
}

func NewFinanceSplitRepository(db DBTX) *FinanceSplitRepository {
	return &FinanceSplitRepository{db: db}
}

func (r *FinanceSplitRepository) Create(ctx context.Context, split *entity.FinanceSplit) error {
	query := `
		INSERT INTO finance_splits (
			payment_id, mission_id, gross_cents, platform_fee_cents,
			commercial_fee_cents, freelancer_cents, freelancer_id, commercial_id,
			status, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		split.PaymentID,
		split.MissionID,
		split.GrossCents,
		split.PlatformFeeCents,
		split.CommercialFeeCents,
		split.FreelancerCents,
		split.FreelancerID,
		nullableStringValue(split.CommercialID),
		split.Status,
		split.CreatedAt,
		split.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrFinanceSplitAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	split.ID = uint64(id)
	return nil
}

func (r *FinanceSplitRepository) FindByPaymentID(ctx context.Context, paymentID uint64) (*entity.FinanceSplit, error) {
	query := `
		SELECT id, payment_id, mission_id, gross_cents, platform_fee_cents,
			commercial_fee_cents, freelancer_cents, freelancer_id, commercial_id,
			status, created_at, updated_at
		FROM finance_splits
		WHERE payment_id = ?
		LIMIT 1
	`

	split := &entity.FinanceSplit{}
	var commercialID sql.NullString
	err := r.db.QueryRowContext(ctx, query, paymentID).Scan(
		&split.ID,
		&split.PaymentID,
		&split.MissionID,
		&split.GrossCents,
		&split.PlatformFeeCents,
		&split.CommercialFeeCents,
		&split.FreelancerCents,
		&split.FreelancerID,
		&commercialID,
		&split.Status,
		&split.CreatedAt,
		&split.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	split.CommercialID = stringPtrFromNull(commercialID)
	return split, nil
}

func (r *FinanceSplitRepository) UpdateStatus(ctx context.Context, id uint64, status string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE finance_splits SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrFinanceSplitNotFound
	}
	return nil
}

// ListDueForRelease is the sweep eligibility selector. It must run inside a
// transaction (q is the *sql.Tx) so that SKIP LOCKED keeps concurrent sweep
// workers off the same payments while the selection is in flight. Rows whose
// sweep claim is newer than claimedBefore belong to another worker's running
// batch and are excluded.
func (r *FinanceSplitRepository) ListDueForRelease(ctx context.Context, q DBTX, limit int32, claimedBefore time.Time) ([]*ReleaseCandidate, error) {
	query := `
		SELECT p.id, f.id, f.mission_id, f.freelancer_id, f.freelancer_cents,
			f.commercial_id, f.commercial_fee_cents
		FROM payments p
		JOIN finance_splits f ON f.payment_id = p.id
		WHERE p.status = ? AND p.released_at IS NULL
			AND (p.sweep_claimed_at IS NULL OR p.sweep_claimed_at < ?)
		ORDER BY p.created_at ASC
		LIMIT ?
		FOR UPDATE OF p SKIP LOCKED
	`

	rows, err := q.QueryContext(ctx, query, entity.PaymentStatusReceived, claimedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]*ReleaseCandidate, 0)
	for rows.Next() {
		item := &ReleaseCandidate{}
		var commercialID sql.NullString
		if err := rows.Scan(
			&item.PaymentID,
			&item.FinanceID,
			&item.MissionID,
			&item.FreelancerID,
			&item.FreelancerCents,
			&commercialID,
			&item.CommercialFeeCents,
		); err != nil {
			return nil, err
		}
		item.CommercialID = stringPtrFromNull(commercialID)
		candidates = append(candidates, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return candidates, nil
}
