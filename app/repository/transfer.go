package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/staffhive/ms-go-payouts/app/entity"
)

var (
	ErrTransferRecordNotFound      = errors.New("transfer record not found")
	ErrTransferRecordAlreadyExists = errors.New("transfer record already exists")
)

type TransferRecordRepository struct {
	db DBTX
}

func NewTransferRecordRepository(db DBTX) *TransferRecordRepository {
	return &TransferRecordRepository{db: db}
}

// Create inserts the single record for (payment, destination, type). The
// unique key on that triple is the double-pay guard of record; a duplicate
// insert is reported as ErrTransferRecordAlreadyExists and must never be
// retried blindly by the caller.
func (r *TransferRecordRepository) Create(ctx context.Context, record *entity.TransferRecord) error {
	query := `
		INSERT INTO transfer_records (
			payment_id, finance_id, destination_profile_id, type,
			amount_cents, currency, status, external_transfer_id, error_message,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.PaymentID,
		record.FinanceID,
		record.DestinationProfileID,
		record.Type,
		record.AmountCents,
		record.Currency,
		record.Status,
		nullableStringValue(record.ExternalTransferID),
		nullableStringValue(record.ErrorMessage),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransferRecordAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = uint64(id)
	return nil
}

func (r *TransferRecordRepository) FindByPaymentAndDestination(ctx context.Context, paymentID uint64, destinationProfileID string, transferType string) (*entity.TransferRecord, error) {
	query := selectTransferRecord + `
		WHERE payment_id = ? AND destination_profile_id = ? AND type = ?
		LIMIT 1
	`

	record := &entity.TransferRecord{}
	if err := scanTransferRecord(r.db.QueryRowContext(ctx, query, paymentID, destinationProfileID, transferType), record); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return record, nil
}

func (r *TransferRecordRepository) ListByPaymentID(ctx context.Context, paymentID uint64) ([]*entity.TransferRecord, error) {
	query := selectTransferRecord + `
		WHERE payment_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*entity.TransferRecord, 0)
	for rows.Next() {
		item := &entity.TransferRecord{}
		if err := scanTransferRecord(rows, item); err != nil {
			return nil, err
		}
		records = append(records, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// UpdateResult mutates the outcome fields of an existing record. Records are
// never re-created; a retried payee flips its skipped/failed row here.
func (r *TransferRecordRepository) UpdateResult(ctx context.Context, id uint64, status string, externalTransferID *string, errorMessage *string, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transfer_records
		SET status = ?, external_transfer_id = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`,
		status, nullableStringValue(externalTransferID), nullableStringValue(errorMessage), now, id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransferRecordNotFound
	}
	return nil
}

const selectTransferRecord = `
		SELECT id, payment_id, finance_id, destination_profile_id, type,
			amount_cents, currency, status, external_transfer_id, error_message,
			created_at, updated_at
		FROM transfer_records
`

func scanTransferRecord(scan rowScanner, record *entity.TransferRecord) error {
	var externalID sql.NullString
	var errorMessage sql.NullString

	err := scan.Scan(
		&record.ID,
		&record.PaymentID,
		&record.FinanceID,
		&record.DestinationProfileID,
		&record.Type,
		&record.AmountCents,
		&record.Currency,
		&record.Status,
		&externalID,
		&errorMessage,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return err
	}

	record.ExternalTransferID = stringPtrFromNull(externalID)
	record.ErrorMessage = stringPtrFromNull(errorMessage)
	return nil
}
