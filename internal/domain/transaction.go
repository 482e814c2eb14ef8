package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"matrix-bank/internal/apperrors"
)

// TransactionType tags the three ledger entry variants. A DEPOSIT has only a
// receiver, a WITHDRAW only a sender, and a TRANSFER both; the balance
// snapshot fields follow the same asymmetry.
type TransactionType string

const (
	TypeDeposit  TransactionType = "DEPOSIT"
	TypeWithdraw TransactionType = "WITHDRAW"
	TypeTransfer TransactionType = "TRANSFER"
)

// Transaction is the immutable audit record of one completed balance
// mutation. IDs are assigned by the database sequence, so ascending id is
// also insertion order. Once written, a row never changes.
type Transaction struct {
	ID     int64           `json:"id"`
	Type   TransactionType `json:"type"`
	Amount decimal.Decimal `json:"amount"`

	SenderNumber   *int64 `json:"sender_number,omitempty"`
	ReceiverNumber *int64 `json:"receiver_number,omitempty"`

	// Post-mutation balance snapshots. A TRANSFER row carries both; which
	// one is "the balance" depends on the viewing account, see BalanceFor.
	SenderBalance   *decimal.Decimal `json:"sender_balance,omitempty"`
	ReceiverBalance *decimal.Decimal `json:"receiver_balance,omitempty"`

	// Memo holds free-text metadata, e.g. the contact phone for cash deposits.
	Memo      string    `json:"memo,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDeposit builds a DEPOSIT entry for receiver, whose balance must already
// reflect the mutation.
func NewDeposit(receiver *Account, amount decimal.Decimal, memo string) *Transaction {
	number := receiver.Number
	balance := receiver.Balance
	return &Transaction{
		Type:            TypeDeposit,
		Amount:          amount,
		ReceiverNumber:  &number,
		ReceiverBalance: &balance,
		Memo:            memo,
	}
}

// NewWithdraw builds a WITHDRAW entry for sender, whose balance must already
// reflect the mutation.
func NewWithdraw(sender *Account, amount decimal.Decimal) *Transaction {
	number := sender.Number
	balance := sender.Balance
	return &Transaction{
		Type:          TypeWithdraw,
		Amount:        amount,
		SenderNumber:  &number,
		SenderBalance: &balance,
	}
}

// NewTransfer builds the single TRANSFER entry for a completed two-account
// mutation, snapshotting both post-balances.
func NewTransfer(sender, receiver *Account, amount decimal.Decimal) *Transaction {
	senderNumber := sender.Number
	receiverNumber := receiver.Number
	senderBalance := sender.Balance
	receiverBalance := receiver.Balance
	return &Transaction{
		Type:            TypeTransfer,
		Amount:          amount,
		SenderNumber:    &senderNumber,
		ReceiverNumber:  &receiverNumber,
		SenderBalance:   &senderBalance,
		ReceiverBalance: &receiverBalance,
	}
}

// Validate enforces the per-variant invariants before a row is appended.
func (t *Transaction) Validate() error {
	if !t.Amount.IsPositive() || !t.Amount.IsInteger() {
		return apperrors.ErrInvalidAmount
	}
	if (t.SenderNumber == nil) != (t.SenderBalance == nil) ||
		(t.ReceiverNumber == nil) != (t.ReceiverBalance == nil) {
		return apperrors.Newf(apperrors.KindInternal, apperrors.InternalError,
			"ledger entry references and balance snapshots out of sync")
	}
	switch t.Type {
	case TypeDeposit:
		if t.SenderNumber != nil || t.ReceiverNumber == nil {
			return apperrors.Newf(apperrors.KindInternal, apperrors.InternalError,
				"deposit entry must have only a receiver")
		}
	case TypeWithdraw:
		if t.SenderNumber == nil || t.ReceiverNumber != nil {
			return apperrors.Newf(apperrors.KindInternal, apperrors.InternalError,
				"withdraw entry must have only a sender")
		}
	case TypeTransfer:
		if t.SenderNumber == nil || t.ReceiverNumber == nil {
			return apperrors.Newf(apperrors.KindInternal, apperrors.InternalError,
				"transfer entry must have both sender and receiver")
		}
	default:
		return apperrors.Newf(apperrors.KindInternal, apperrors.InternalError,
			"unknown transaction type %q", t.Type)
	}
	return nil
}

// Involves reports whether the account is a party to this entry.
func (t *Transaction) Involves(number int64) bool {
	return (t.SenderNumber != nil && *t.SenderNumber == number) ||
		(t.ReceiverNumber != nil && *t.ReceiverNumber == number)
}

// BalanceFor returns the post-mutation balance from the viewing account's
// perspective: the sender snapshot when it sent, the receiver snapshot when
// it received. A TRANSFER row carries two different balances, so the answer
// depends on who is asking. The second return is false when the account is
// not a party to the entry.
func (t *Transaction) BalanceFor(number int64) (decimal.Decimal, bool) {
	if t.SenderNumber != nil && *t.SenderNumber == number {
		return *t.SenderBalance, true
	}
	if t.ReceiverNumber != nil && *t.ReceiverNumber == number {
		return *t.ReceiverBalance, true
	}
	return decimal.Zero, false
}
