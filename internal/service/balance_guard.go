package service

import (
	"matrix-bank/internal/domain"
)

// lockAccountPair acquires exclusive row locks on two distinct accounts in
// ascending account-number order, regardless of which one is logically the
// source. Two opposite-direction transfers on the same pair therefore always
// contend on the same first lock instead of deadlocking in a circular wait.
// Accounts are returned in (first, second) argument order. Must run inside a
// store transaction, which bounds the lock wait.
func lockAccountPair(accounts domain.AccountRepository, firstNumber, secondNumber int64) (*domain.Account, *domain.Account, error) {
	lowNumber, highNumber := firstNumber, secondNumber
	if highNumber < lowNumber {
		lowNumber, highNumber = highNumber, lowNumber
	}

	low, err := accounts.GetByNumberForUpdate(lowNumber)
	if err != nil {
		return nil, nil, err
	}
	high, err := accounts.GetByNumberForUpdate(highNumber)
	if err != nil {
		return nil, nil, err
	}

	if firstNumber == lowNumber {
		return low, high, nil
	}
	return high, low, nil
}
