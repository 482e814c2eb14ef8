// Package repository implements Postgres persistence behind the domain
// repository interfaces. A Store is a unit of work: repositories obtained
// from the same Store share one executor, so everything done inside
// WithTransaction commits or rolls back together.
package repository

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/domain"
)

// SQLExecutor is the common surface of *sql.DB and *sql.Tx.
type SQLExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

type Store struct {
	executor    SQLExecutor
	db          *sql.DB
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewStore creates a Store executing directly against db. lockTimeout bounds
// how long a transaction waits for a row lock before the database gives up
// and the caller sees a retryable conflict.
func NewStore(db *sql.DB, lockTimeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		executor:    db,
		db:          db,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// Users returns a UserRepository bound to the current executor.
func (s *Store) Users() domain.UserRepository {
	return &userRepository{db: s.executor, logger: s.logger}
}

// Accounts returns an AccountRepository bound to the current executor.
func (s *Store) Accounts() domain.AccountRepository {
	return &accountRepository{db: s.executor, logger: s.logger}
}

// Transactions returns a TransactionRepository bound to the current executor.
func (s *Store) Transactions() domain.TransactionRepository {
	return &transactionRepository{db: s.executor, logger: s.logger}
}

// WithTransaction runs fn inside one database transaction. fn receives a
// Store whose repositories all execute on that transaction. If fn returns an
// error or panics, the transaction rolls back and no partial mutation
// becomes visible.
func (s *Store) WithTransaction(fn func(*Store) error) error {
	if s.db == nil {
		return apperrors.Newf(apperrors.KindInternal, apperrors.InternalError,
			"cannot begin a transaction inside a transaction")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.New(apperrors.KindInternal, apperrors.InternalError,
			"failed to begin transaction").WithDetails(err.Error())
	}

	// Bound lock waits so contention surfaces as a retryable conflict
	// instead of blocking forever. SET does not accept placeholders.
	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(timeout); err != nil {
			tx.Rollback()
			return apperrors.New(apperrors.KindInternal, apperrors.InternalError,
				"failed to set lock timeout").WithDetails(err.Error())
		}
	}

	txStore := &Store{
		executor:    tx,
		lockTimeout: s.lockTimeout,
		logger:      s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateError(err, "failed to commit transaction")
	}
	return nil
}

// translateError maps driver errors to the application taxonomy so no raw
// persistence failure escapes the repository layer. Unique and foreign-key
// violations are mapped per constraint by the individual repositories; this
// covers the shared cases.
func translateError(err error, message string) *apperrors.AppError {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "55P03": // lock_not_available
			return apperrors.ErrLockTimeout
		case "40P01": // deadlock_detected; ordered acquisition should prevent this
			return apperrors.ErrLockTimeout
		case "40001": // serialization_failure
			return apperrors.ErrLockTimeout
		}
	}
	return apperrors.New(apperrors.KindInternal, apperrors.InternalError, message).
		WithDetails(err.Error())
}

// pqConstraint returns the violated constraint name when err is a postgres
// integrity violation of the given code.
func pqConstraint(err error, code pq.ErrorCode) (string, bool) {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != code {
		return "", false
	}
	return pqErr.Constraint, true
}

const (
	codeUniqueViolation     pq.ErrorCode = "23505"
	codeForeignKeyViolation pq.ErrorCode = "23503"
	codeCheckViolation      pq.ErrorCode = "23514"
)
