package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
)

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepository struct {
	db DBTX
}

func NewDisputeRepository(db DBTX) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, dispute *entity.Dispute) error {
	query := `
		INSERT INTO disputes (
			payment_id, mission_id, reporter_id, reason, status,
			created_at, resolved_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		dispute.PaymentID,
		dispute.MissionID,
		dispute.ReporterID,
		dispute.Reason,
		dispute.Status,
		dispute.CreatedAt,
		nullableTimeValue(dispute.ResolvedAt),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	dispute.ID = uint64(id)
	return nil
}

func (r *DisputeRepository) FindByID(ctx context.Context, id uint64) (*entity.Dispute, error) {
	query := selectDispute + ` WHERE id = ?`

	dispute := &entity.Dispute{}
	if err := scanDispute(r.db.QueryRowContext(ctx, query, id), dispute); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return dispute, nil
}

// FindOpenByPaymentID is the dispute gate lookup: a non-nil result forbids
// any transfer record creation for the payment.
func (r *DisputeRepository) FindOpenByPaymentID(ctx context.Context, paymentID uint64) (*entity.Dispute, error) {
	query := selectDispute + ` WHERE payment_id = ? AND status = ? LIMIT 1`

	dispute := &entity.Dispute{}
	if err := scanDispute(r.db.QueryRowContext(ctx, query, paymentID, entity.DisputeStatusOpen), dispute); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return dispute, nil
}

func (r *DisputeRepository) ListByPaymentID(ctx context.Context, paymentID uint64) ([]*entity.Dispute, error) {
	query := selectDispute + ` WHERE payment_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	disputes := make([]*entity.Dispute, 0)
	for rows.Next() {
		item := &entity.Dispute{}
		if err := scanDispute(rows, item); err != nil {
			return nil, err
		}
		disputes = append(disputes, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return disputes, nil
}

func (r *DisputeRepository) UpdateStatus(ctx context.Context, id uint64, status string, resolvedAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE disputes SET status = ?, resolved_at = ? WHERE id = ?`,
		status, nullableTimeValue(resolvedAt), id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

const selectDispute = `
		SELECT id, payment_id, mission_id, reporter_id, reason, status,
			created_at, resolved_at
		FROM disputes
`

func scanDispute(scan rowScanner, dispute *entity.Dispute) error {
	var resolvedAt sql.NullTime

	err := scan.Scan(
		&dispute.ID,
		&dispute.PaymentID,
		&dispute.MissionID,
		&dispute.ReporterID,
		&dispute.Reason,
		&dispute.Status,
		&dispute.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return err
	}

	dispute.ResolvedAt = timePtrFromNull(resolvedAt)
	return nil
}
