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

// AccountService handles account lifecycle and the read side: paged,
// creation-ordered transaction history with per-viewer perspective balances.
type AccountService struct {
	store    *repository.Store
	pageSize int
	logger   *slog.Logger
}

func NewAccountService(store *repository.Store, pageSize int, logger *slog.Logger) *AccountService {
	return &AccountService{store: store, pageSize: pageSize, logger: logger}
}

// CreateAccount opens an account for ownerID under the caller-chosen number.
func (s *AccountService) CreateAccount(ownerID uuid.UUID, number int64, initialBalance decimal.Decimal, withdrawPassword string) (*domain.Account, error) {
	if number <= 0 {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
			"account number must be positive")
	}
	if initialBalance.IsNegative() || !initialBalance.IsInteger() {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.InvalidAmount,
			"initial balance must be a non-negative whole number")
	}
	if withdrawPassword == "" {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
			"withdrawal password is required")
	}

	passwordHash, err := utils.HashPassword(withdrawPassword)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, apperrors.InternalError,
			"failed to hash withdrawal password").WithDetails(err.Error())
	}

	account := &domain.Account{
		ID:                   uuid.New(),
		Number:               number,
		OwnerID:              ownerID,
		Balance:              initialBalance,
		WithdrawPasswordHash: passwordHash,
	}

	err = s.store.WithTransaction(func(tx *repository.Store) error {
		if _, err := tx.Users().GetByID(ownerID); err != nil {
			return err
		}
		return tx.Accounts().Create(account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account opened", "number", number, "owner_id", ownerID)
	return account, nil
}

// DeleteAccount removes the caller's own account. Accounts that ledger
// entries still reference cannot be deleted; the audit trail outlives the
// account and the attempt fails with a conflict.
func (s *AccountService) DeleteAccount(number int64, callerID uuid.UUID) error {
	return s.store.WithTransaction(func(tx *repository.Store) error {
		account, err := tx.Accounts().GetByNumberForUpdate(number)
		if err != nil {
			return err
		}
		if !account.OwnedBy(callerID) {
			return apperrors.ErrNotAccountOwner
		}
		return tx.Accounts().Delete(number)
	})
}

// ListAccounts returns every account the caller owns.
func (s *AccountService) ListAccounts(callerID uuid.UUID) ([]*domain.Account, error) {
	return s.store.Accounts().ListByOwner(callerID)
}

// HistoryEntry pairs a ledger entry with the balance as seen from the
// queried account's side of it.
type HistoryEntry struct {
	Transaction *domain.Transaction
	// Balance is the queried account's post-mutation balance for this
	// entry, picked per perspective: the sender snapshot when it sent,
	// the receiver snapshot when it received.
	Balance decimal.Decimal
}

// AccountDetail is one page of an account's history in creation order.
type AccountDetail struct {
	Account  *domain.Account
	History  []HistoryEntry
	Page     int
	PageSize int
}

// GetDetail returns the account and one page of its transaction history.
// Only the owner may look. Reads take no exclusive lock.
func (s *AccountService) GetDetail(number int64, callerID uuid.UUID, page int) (*AccountDetail, error) {
	if page < 0 {
		page = 0
	}

	account, err := s.store.Accounts().GetByNumber(number)
	if err != nil {
		return nil, err
	}
	if !account.OwnedBy(callerID) {
		return nil, apperrors.ErrNotAccountOwner
	}

	entries, err := s.store.Transactions().ListByAccount(number, s.pageSize, page*s.pageSize)
	if err != nil {
		return nil, err
	}

	history := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		balance, ok := entry.BalanceFor(number)
		if !ok {
			// ListByAccount only returns entries involving the account.
			return nil, apperrors.Newf(apperrors.KindInternal, apperrors.InternalError,
				"ledger entry %d does not involve account %d", entry.ID, number)
		}
		history = append(history, HistoryEntry{Transaction: entry, Balance: balance})
	}

	return &AccountDetail{
		Account:  account,
		History:  history,
		Page:     page,
		PageSize: s.pageSize,
	}, nil
}
