package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
)

var ErrPaymentNotFound = errors.New("payment not found")

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// UpsertByCheckoutSession inserts the payment on first delivery of the
// checkout event and updates status and intent reference on redelivery.
// checkout_session_id carries a unique key, so replays of the same event
// always land on the same row.
func (r *PaymentRepository) UpsertByCheckoutSession(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			mission_id, recruiter_id, amount_cents, currency, status,
			checkout_session_id, payment_intent_ref,
			released_at, distributed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			id = LAST_INSERT_ID(id),
			status = VALUES(status),
			payment_intent_ref = VALUES(payment_intent_ref),
			updated_at = VALUES(updated_at)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.MissionID,
		payment.RecruiterID,
		payment.AmountCents,
		payment.Currency,
		payment.Status,
		payment.CheckoutSessionID,
		nullableStringValue(payment.PaymentIntentRef),
		nullableTimeValue(payment.ReleasedAt),
		nullableTimeValue(payment.DistributedAt),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `
		SELECT id, mission_id, recruiter_id, amount_cents, currency, status,
			checkout_session_id, payment_intent_ref,
			released_at, distributed_at, created_at, updated_at
		FROM payments
		WHERE id = ?
	`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, id), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, id uint64, status string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = ? WHERE id = ?`,
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
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) MarkDistributed(ctx context.Context, id uint64, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, distributed_at = ?, updated_at = ? WHERE id = ?`,
		entity.PaymentStatusDistributed, now, now, id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// CloseRelease writes the terminal status and released_at in one statement
// guarded by released_at IS NULL. The returned bool reports whether this call
// won the closure; false means a concurrent release already closed the row.
func (r *PaymentRepository) CloseRelease(ctx context.Context, id uint64, status string, releasedAt time.Time, distributedAt *time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, released_at = ?, distributed_at = ?, updated_at = ?
		WHERE id = ? AND released_at IS NULL
	`,
		status, releasedAt, nullableTimeValue(distributedAt), releasedAt, id,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkSweepClaimed stamps a sweep claim on the given payments. It must run on
// the same transaction that selected the rows so the claim is durable before
// the row locks are released. A claim left behind by a crashed worker expires
// through the claimedBefore cutoff of ListDueForRelease.
func (r *PaymentRepository) MarkSweepClaimed(ctx context.Context, q DBTX, ids []uint64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, now)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := q.ExecContext(ctx, "UPDATE payments SET sweep_claimed_at = ? WHERE id IN ("+placeholders+")", args...)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var intentRef sql.NullString
	var releasedAt sql.NullTime
	var distributedAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.MissionID,
		&payment.RecruiterID,
		&payment.AmountCents,
		&payment.Currency,
		&payment.Status,
		&payment.CheckoutSessionID,
		&intentRef,
		&releasedAt,
		&distributedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.PaymentIntentRef = stringPtrFromNull(intentRef)
	payment.ReleasedAt = timePtrFromNull(releasedAt)
	payment.DistributedAt = timePtrFromNull(distributedAt)
	return nil
}
