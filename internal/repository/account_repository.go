package repository

import (
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/domain"
)

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func (r *accountRepository) Create(account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, number, owner_id, balance, withdraw_password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now()
	_, err := r.db.Exec(
		query,
		account.ID,
		account.Number,
		account.OwnerID,
		account.Balance.String(),
		account.WithdrawPasswordHash,
		now,
		now,
	)
	if err != nil {
		if _, ok := pqConstraint(err, codeUniqueViolation); ok {
			r.logger.Warn("duplicate account number", "number", account.Number)
			return apperrors.ErrDuplicateAccount
		}
		if constraint, ok := pqConstraint(err, codeForeignKeyViolation); ok &&
			strings.Contains(constraint, "owner") {
			return apperrors.ErrUserNotFound
		}
		r.logger.Error("failed to create account", "number", account.Number, "error", err)
		return translateError(err, "failed to create account")
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("account created", "number", account.Number, "owner_id", account.OwnerID)
	return nil
}

func (r *accountRepository) GetByNumber(number int64) (*domain.Account, error) {
	query := `
		SELECT id, number, owner_id, balance, withdraw_password_hash, created_at, updated_at
		FROM accounts WHERE number = $1
	`
	return r.scanAccount(query, number)
}

// GetByNumberForUpdate acquires the account row under FOR UPDATE. It must run
// inside a store transaction; lock waits are bounded by the transaction's
// lock_timeout and surface as a retryable conflict.
func (r *accountRepository) GetByNumberForUpdate(number int64) (*domain.Account, error) {
	query := `
		SELECT id, number, owner_id, balance, withdraw_password_hash, created_at, updated_at
		FROM accounts WHERE number = $1 FOR UPDATE
	`
	return r.scanAccount(query, number)
}

func (r *accountRepository) ListByOwner(ownerID uuid.UUID) ([]*domain.Account, error) {
	query := `
		SELECT id, number, owner_id, balance, withdraw_password_hash, created_at, updated_at
		FROM accounts WHERE owner_id = $1 ORDER BY number ASC
	`

	rows, err := r.db.Query(query, ownerID)
	if err != nil {
		r.logger.Error("failed to list accounts", "owner_id", ownerID, "error", err)
		return nil, translateError(err, "failed to list accounts")
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var account domain.Account
		var balanceStr string
		err := rows.Scan(
			&account.ID,
			&account.Number,
			&account.OwnerID,
			&balanceStr,
			&account.WithdrawPasswordHash,
			&account.CreatedAt,
			&account.UpdatedAt,
		)
		if err != nil {
			return nil, translateError(err, "failed to scan account")
		}
		balance, err := decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, apperrors.New(apperrors.KindInternal, apperrors.InternalError,
				"failed to parse balance").WithDetails(err.Error())
		}
		account.Balance = balance
		accounts = append(accounts, &account)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "failed to list accounts")
	}
	return accounts, nil
}

func (r *accountRepository) scanAccount(query string, number int64) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := r.db.QueryRow(query, number).Scan(
		&account.ID,
		&account.Number,
		&account.OwnerID,
		&balanceStr,
		&account.WithdrawPasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrAccountNotFound
		}
		r.logger.Error("failed to get account", "number", number, "error", err)
		return nil, translateError(err, "failed to get account")
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, apperrors.InternalError,
			"failed to parse balance").WithDetails(err.Error())
	}
	account.Balance = balance
	return &account, nil
}

func (r *accountRepository) UpdateBalance(number int64, newBalance decimal.Decimal) error {
	query := `
		UPDATE accounts SET balance = $1, updated_at = $2 WHERE number = $3
	`

	result, err := r.db.Exec(query, newBalance.String(), time.Now(), number)
	if err != nil {
		// The CHECK (balance >= 0) backstop; the service validates funds
		// first, so hitting it means a bug upstream.
		if _, ok := pqConstraint(err, codeCheckViolation); ok {
			return apperrors.ErrInsufficientFunds
		}
		r.logger.Error("failed to update balance", "number", number, "error", err)
		return translateError(err, "failed to update balance")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return translateError(err, "failed to read rows affected")
	}
	if affected == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) Delete(number int64) error {
	query := `DELETE FROM accounts WHERE number = $1`

	result, err := r.db.Exec(query, number)
	if err != nil {
		if _, ok := pqConstraint(err, codeForeignKeyViolation); ok {
			r.logger.Warn("refusing to delete account with ledger entries", "number", number)
			return apperrors.ErrAccountHasHistory
		}
		r.logger.Error("failed to delete account", "number", number, "error", err)
		return translateError(err, "failed to delete account")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return translateError(err, "failed to read rows affected")
	}
	if affected == 0 {
		return apperrors.ErrAccountNotFound
	}

	r.logger.Info("account deleted", "number", number)
	return nil
}
