package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/settlement"
)

// Bank errors
var (
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrEmptyToken     = errors.New("token is empty")
	ErrDebitSpent     = errors.New("debit already paid out")
	ErrUnknownEscrow  = errors.New("escrow debit not found")
	ErrEscrowMismatch = errors.New("batch does not match its escrow")
)

type debit struct {
	account  string
	amount   int64
	reversed bool
	spentBy  string
}

// Bank is an in-process balance and transfer collaborator. Debits are
// idempotent per token, a reversed token can never be applied again, and
// batches are applied at most once per key.
type Bank struct {
	mu       sync.Mutex
	balances map[string]int64
	debits   map[string]debit
	batches  map[string]struct{}
}

// NewBank creates a Bank with no funds
func NewBank() *Bank {
	return &Bank{
		balances: make(map[string]int64),
		debits:   make(map[string]debit),
		batches:  make(map[string]struct{}),
	}
}

// Deposit credits amount to account
func (b *Bank) Deposit(account string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.balances[account] += amount
}

// Balance returns the current balance of account
func (b *Bank) Balance(account string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.balances[account]
}

// HasBalance reports whether account holds at least amount
func (b *Bank) HasBalance(_ context.Context, account string, amount int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.balances[account] >= amount, nil
}

// Debit withdraws amount from account under token. A token seen before is a
// no-op, unless it was reversed, in which case ledger.ErrDebitVoided is returned.
func (b *Bank) Debit(_ context.Context, account string, amount int64, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if d, seen := b.debits[token]; seen {
		if d.reversed {
			return fmt.Errorf("%w: %s", ledger.ErrDebitVoided, token)
		}
		return nil
	}
	if b.balances[account] < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", claim.ErrInsufficientBalance, account, b.balances[account], amount)
	}

	b.balances[account] -= amount
	b.debits[token] = debit{account: account, amount: amount}
	return nil
}

// ReverseDebit refunds the debit made under token. Reversing an unknown token
// leaves a tombstone so a late Debit with that token is refused. A debit that
// already funded a batch cannot be reversed.
func (b *Bank) ReverseDebit(_ context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	d, seen := b.debits[token]
	if seen && d.reversed {
		return nil
	}
	if d.spentBy != "" {
		return fmt.Errorf("%w: %s funded %s", ErrDebitSpent, token, d.spentBy)
	}
	if seen {
		b.balances[d.account] += d.amount
	}
	b.debits[token] = debit{account: d.account, amount: d.amount, reversed: true}
	return nil
}

// Commit applies every transfer of the batch or none. A key already committed is a no-op.
//
// A batch naming an escrow is paid out of that debit instead of the senders'
// balances: every transfer must come from the debited account and the
// transfers must add up to the debited amount.
func (b *Bank) Commit(_ context.Context, batch settlement.Batch) error {
	if batch.Key == "" {
		return ErrEmptyToken
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, done := b.batches[batch.Key]; done {
		return nil
	}

	outgoing := make(map[string]int64)
	for _, t := range batch.Transfers {
		if t.Amount <= 0 {
			return fmt.Errorf("%w: transfer to %s", ErrInvalidAmount, t.To)
		}
		outgoing[t.From] += t.Amount
	}

	if batch.Escrow != "" {
		return b.commitEscrowed(batch, outgoing)
	}

	for account, total := range outgoing {
		if b.balances[account] < total {
			return fmt.Errorf("%w: %s holds %d, needs %d", claim.ErrInsufficientBalance, account, b.balances[account], total)
		}
	}

	for _, t := range batch.Transfers {
		b.balances[t.From] -= t.Amount
		b.balances[t.To] += t.Amount
	}
	b.batches[batch.Key] = struct{}{}
	return nil
}

func (b *Bank) commitEscrowed(batch settlement.Batch, outgoing map[string]int64) error {
	d, seen := b.debits[batch.Escrow]
	switch {
	case !seen:
		return fmt.Errorf("%w: %s", ErrUnknownEscrow, batch.Escrow)
	case d.reversed:
		return fmt.Errorf("%w: %s", ledger.ErrDebitVoided, batch.Escrow)
	case d.spentBy != "":
		return fmt.Errorf("%w: %s funded %s", ErrDebitSpent, batch.Escrow, d.spentBy)
	}
	if len(outgoing) != 1 || outgoing[d.account] != d.amount {
		return fmt.Errorf("%w: %s escrowed %d from %s", ErrEscrowMismatch, batch.Escrow, d.amount, d.account)
	}

	for _, t := range batch.Transfers {
		b.balances[t.To] += t.Amount
	}
	d.spentBy = batch.Key
	b.debits[batch.Escrow] = d
	b.batches[batch.Key] = struct{}{}
	return nil
}
