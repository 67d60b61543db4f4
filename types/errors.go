package types

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNoLiquidatableMarket is returned when none of a user's markets can be seized
	ErrNoLiquidatableMarket = errors.New("no market with a positive liquidation bonus")

	// ErrInsufficientBalance is returned before submission when the wallet cannot repay
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is returned when the pool allowance could not be raised
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrTransactionReverted is returned when a mined transaction has a failed status
	ErrTransactionReverted = errors.New("transaction reverted")
)

// InsufficientBalanceError carries the amounts of a failed balance check
type InsufficientBalanceError struct {
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient balance. Required: %s, Available: %s", e.Required, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// DataSourceError is returned when the indexer could not serve a page, even
// after the fallback query
type DataSourceError struct {
	Query string
	Err   error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source query %q failed: %v", e.Query, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}
