package repository

import (
	"database/sql"
	"log/slog"

	"github.com/shopspring/decimal"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/domain"
)

// transactionRepository is append-only. The ledger has no update or delete
// path in code, and the schema rejects both with a trigger.
type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func (r *transactionRepository) Create(tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO transactions
		(type, amount, sender_number, receiver_number, sender_balance, receiver_balance, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		query,
		string(tx.Type),
		tx.Amount.String(),
		nullableInt(tx.SenderNumber),
		nullableInt(tx.ReceiverNumber),
		nullableDecimal(tx.SenderBalance),
		nullableDecimal(tx.ReceiverBalance),
		tx.Memo,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		r.logger.Error("failed to append ledger entry", "type", tx.Type, "error", err)
		return translateError(err, "failed to append ledger entry")
	}

	r.logger.Info("ledger entry appended", "id", tx.ID, "type", tx.Type, "amount", tx.Amount)
	return nil
}

// ListByAccount returns entries where the account is sender or receiver,
// ordered by creation ascending. The id tie-break keeps replays of entries
// created in the same clock tick deterministic.
func (r *transactionRepository) ListByAccount(number int64, limit, offset int) ([]*domain.Transaction, error) {
	query := `
		SELECT id, type, amount, sender_number, receiver_number, sender_balance, receiver_balance, memo, created_at
		FROM transactions
		WHERE sender_number = $1 OR receiver_number = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(query, number, limit, offset)
	if err != nil {
		r.logger.Error("failed to list ledger entries", "number", number, "error", err)
		return nil, translateError(err, "failed to list ledger entries")
	}
	defer rows.Close()

	var entries []*domain.Transaction
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "failed to list ledger entries")
	}
	return entries, nil
}

func scanTransaction(rows *sql.Rows) (*domain.Transaction, error) {
	var (
		entry           domain.Transaction
		txType          string
		amountStr       string
		senderNumber    sql.NullInt64
		receiverNumber  sql.NullInt64
		senderBalance   sql.NullString
		receiverBalance sql.NullString
	)

	err := rows.Scan(
		&entry.ID,
		&txType,
		&amountStr,
		&senderNumber,
		&receiverNumber,
		&senderBalance,
		&receiverBalance,
		&entry.Memo,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err, "failed to scan ledger entry")
	}

	entry.Type = domain.TransactionType(txType)

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, apperrors.InternalError,
			"failed to parse amount").WithDetails(err.Error())
	}
	entry.Amount = amount

	if senderNumber.Valid {
		entry.SenderNumber = &senderNumber.Int64
	}
	if receiverNumber.Valid {
		entry.ReceiverNumber = &receiverNumber.Int64
	}
	if entry.SenderBalance, err = parseNullDecimal(senderBalance); err != nil {
		return nil, err
	}
	if entry.ReceiverBalance, err = parseNullDecimal(receiverBalance); err != nil {
		return nil, err
	}
	return &entry, nil
}

func parseNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, apperrors.InternalError,
			"failed to parse balance snapshot").WithDetails(err.Error())
	}
	return &d, nil
}

func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDecimal(v *decimal.Decimal) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}
