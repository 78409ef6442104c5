// README: Wallet entity and transaction record.
package wallet

import (
	"errors"
	"time"

	"flashfood/internal/types"
)

var (
	ErrNotFound            = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
)

type Wallet struct {
	ID           types.ID
	OwnerID      types.ID
	BalanceCents int64
	Currency     string
	UpdatedAt    time.Time
}

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Transaction moves funds between two wallets atomically.
type Transaction struct {
	ID           types.ID
	FromWalletID types.ID
	ToWalletID   types.ID
	AmountCents  int64
	Currency     string
	Status       TransactionStatus
	Reference    types.ID // order or run the transfer settles
	CreatedAt    time.Time
}

type CreateTransactionDTO struct {
	FromWalletID types.ID
	ToWalletID   types.ID
	AmountCents  int64
	Currency     string
	Reference    types.ID
}
