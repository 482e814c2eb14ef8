package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User owns zero or more accounts. Registration stores the login password
// hashed; authentication itself happens outside this service, which only
// receives the resolved user id.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Fullname     string    `json:"fullname"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is the only shared mutable state in the system. Balance is a
// non-negative whole number of currency units and is mutated exclusively
// inside a locked read-modify-write section.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	Number    int64           `json:"number"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	// WithdrawPasswordHash guards withdraw and transfer; it is distinct
	// from the owner's login credential.
	WithdrawPasswordHash string    `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID is the account owner.
func (a *Account) OwnedBy(userID uuid.UUID) bool {
	return a.OwnerID == userID
}

type UserRepository interface {
	Create(user *User) error
	GetByID(id uuid.UUID) (*User, error)
	GetByUsername(username string) (*User, error)
}

type AccountRepository interface {
	Create(account *Account) error
	GetByNumber(number int64) (*Account, error)
	// GetByNumberForUpdate acquires the row under an exclusive lock; it
	// must only be called inside a store transaction.
	GetByNumberForUpdate(number int64) (*Account, error)
	// ListByOwner returns every account owned by ownerID, ordered by
	// account number ascending.
	ListByOwner(ownerID uuid.UUID) ([]*Account, error)
	UpdateBalance(number int64, newBalance decimal.Decimal) error
	Delete(number int64) error
}

type TransactionRepository interface {
	// Create appends a ledger entry. The ledger is append-only: there are
	// deliberately no update or delete operations.
	Create(tx *Transaction) error
	// ListByAccount returns entries where the account is sender or
	// receiver, ordered by creation ascending.
	ListByAccount(number int64, limit, offset int) ([]*Transaction, error)
}
