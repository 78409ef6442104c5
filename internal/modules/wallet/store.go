// README: Wallet store; balance transfers are row-locked so an insufficient
// balance is detected before any write.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"flashfood/internal/storage"
	"flashfood/internal/types"
)

type Store struct {
	db *storage.TxManager
}

func NewStore(db *storage.TxManager) *Store {
	return &Store{db: db}
}

func (s *Store) FindByOwner(ctx context.Context, ownerID types.ID) (*Wallet, error) {
	row := s.db.From(ctx).QueryRow(ctx, `
		SELECT id, owner_id, balance_cents, currency, updated_at
		FROM wallets
		WHERE owner_id = $1`, string(ownerID),
	)
	var w Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.BalanceCents, &w.Currency, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.FindByOwner: %w", err)
	}
	return &w, nil
}

// CreateTransaction debits the source wallet and credits the destination
// inside the caller's transaction. The source row is locked for the balance
// check; a short balance fails with ErrInsufficientBalance and writes nothing.
func (s *Store) CreateTransaction(ctx context.Context, dto CreateTransactionDTO) (*Transaction, error) {
	q := s.db.From(ctx)

	var balance int64
	err := q.QueryRow(ctx, `
		SELECT balance_cents FROM wallets WHERE id = $1 FOR UPDATE`,
		string(dto.FromWalletID),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.CreateTransaction lock: %w", err)
	}
	if balance < dto.AmountCents {
		return nil, ErrInsufficientBalance
	}

	if _, err := q.Exec(ctx, `
		UPDATE wallets SET balance_cents = balance_cents - $1, updated_at = NOW() WHERE id = $2`,
		dto.AmountCents, string(dto.FromWalletID),
	); err != nil {
		return nil, fmt.Errorf("store.CreateTransaction debit: %w", err)
	}
	tag, err := q.Exec(ctx, `
		UPDATE wallets SET balance_cents = balance_cents + $1, updated_at = NOW() WHERE id = $2`,
		dto.AmountCents, string(dto.ToWalletID),
	)
	if err != nil {
		return nil, fmt.Errorf("store.CreateTransaction credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	txn := &Transaction{
		ID:           types.NewID(types.PrefixWallet),
		FromWalletID: dto.FromWalletID,
		ToWalletID:   dto.ToWalletID,
		AmountCents:  dto.AmountCents,
		Currency:     dto.Currency,
		Status:       TransactionCompleted,
		Reference:    dto.Reference,
		CreatedAt:    time.Now(),
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO wallet_transactions (
			id, from_wallet_id, to_wallet_id, amount_cents, currency, status, reference, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(txn.ID), string(txn.FromWalletID), string(txn.ToWalletID),
		txn.AmountCents, txn.Currency, string(txn.Status), string(txn.Reference), txn.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("store.CreateTransaction record: %w", err)
	}
	return txn, nil
}
