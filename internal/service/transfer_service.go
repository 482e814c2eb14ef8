package service

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/domain"
	"matrix-bank/internal/repository"
	"matrix-bank/internal/utils"
)

// TransferService orchestrates every balance mutation. Each operation runs as
// one unit of work: lock the account row(s), validate, write the new
// balance(s), append exactly one ledger entry, commit. Any failure rolls the
// whole unit back, so no partial mutation is ever observable.
//
// The validation order is load (not found) → ownership → password → amount →
// funds. Funds are checked last so an unauthorized caller never learns
// whether the balance would have covered the request.
type TransferService struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewTransferService(store *repository.Store, logger *slog.Logger) *TransferService {
	return &TransferService{store: store, logger: logger}
}

// TransferResult carries both post-mutation balances of a completed transfer.
type TransferResult struct {
	SourceBalance decimal.Decimal
	DestBalance   decimal.Decimal
	Entry         *domain.Transaction
}

// Deposit credits an account. It needs no authenticated caller: it models a
// cash deposit at a branch, with tel recorded as contact metadata.
func (s *TransferService) Deposit(number int64, amount decimal.Decimal, tel string) (decimal.Decimal, error) {
	var newBalance decimal.Decimal

	err := s.store.WithTransaction(func(tx *repository.Store) error {
		account, err := tx.Accounts().GetByNumberForUpdate(number)
		if err != nil {
			return err
		}
		if err := validateAmount(amount); err != nil {
			return err
		}

		account.Balance = account.Balance.Add(amount)
		if err := tx.Accounts().UpdateBalance(account.Number, account.Balance); err != nil {
			return err
		}
		if err := tx.Transactions().Create(domain.NewDeposit(account, amount, tel)); err != nil {
			return err
		}

		newBalance = account.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.Info("deposit completed", "number", number, "amount", amount, "balance", newBalance)
	return newBalance, nil
}

// Withdraw debits the caller's own account after checking the withdrawal
// password and fund sufficiency.
func (s *TransferService) Withdraw(number int64, callerID uuid.UUID, password string, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal

	err := s.store.WithTransaction(func(tx *repository.Store) error {
		account, err := tx.Accounts().GetByNumberForUpdate(number)
		if err != nil {
			return err
		}
		if err := authorizeMutation(account, callerID, password); err != nil {
			return err
		}
		if err := validateAmount(amount); err != nil {
			return err
		}
		if account.Balance.LessThan(amount) {
			return apperrors.ErrInsufficientFunds
		}

		account.Balance = account.Balance.Sub(amount)
		if err := tx.Accounts().UpdateBalance(account.Number, account.Balance); err != nil {
			return err
		}
		if err := tx.Transactions().Create(domain.NewWithdraw(account, amount)); err != nil {
			return err
		}

		newBalance = account.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.Info("withdraw completed", "number", number, "amount", amount, "balance", newBalance)
	return newBalance, nil
}

// Transfer atomically moves amount between two accounts and appends a single
// ledger entry carrying both post-balances.
func (s *TransferService) Transfer(sourceNumber, destNumber int64, callerID uuid.UUID, password string, amount decimal.Decimal) (*TransferResult, error) {
	if sourceNumber == destNumber {
		return nil, apperrors.ErrSameAccount
	}

	var result TransferResult

	err := s.store.WithTransaction(func(tx *repository.Store) error {
		source, dest, err := lockAccountPair(tx.Accounts(), sourceNumber, destNumber)
		if err != nil {
			return err
		}
		if err := authorizeMutation(source, callerID, password); err != nil {
			return err
		}
		if err := validateAmount(amount); err != nil {
			return err
		}
		if source.Balance.LessThan(amount) {
			return apperrors.ErrInsufficientFunds
		}

		source.Balance = source.Balance.Sub(amount)
		dest.Balance = dest.Balance.Add(amount)
		if err := tx.Accounts().UpdateBalance(source.Number, source.Balance); err != nil {
			return err
		}
		if err := tx.Accounts().UpdateBalance(dest.Number, dest.Balance); err != nil {
			return err
		}

		entry := domain.NewTransfer(source, dest, amount)
		if err := tx.Transactions().Create(entry); err != nil {
			return err
		}

		result = TransferResult{
			SourceBalance: source.Balance,
			DestBalance:   dest.Balance,
			Entry:         entry,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer completed",
		"source", sourceNumber,
		"dest", destNumber,
		"amount", amount,
		"source_balance", result.SourceBalance,
		"dest_balance", result.DestBalance,
	)
	return &result, nil
}

// authorizeMutation enforces ownership, then the withdrawal password.
func authorizeMutation(account *domain.Account, callerID uuid.UUID, password string) error {
	if !account.OwnedBy(callerID) {
		return apperrors.ErrNotAccountOwner
	}
	if !utils.CheckPasswordHash(password, account.WithdrawPasswordHash) {
		return apperrors.ErrWrongPassword
	}
	return nil
}

// validateAmount requires a strictly positive whole number of currency units.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.IsInteger() {
		return apperrors.ErrInvalidAmount
	}
	return nil
}
