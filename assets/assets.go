// Package assets defines the custody collaborators the exchange core trades
// through: an item ownership registry and a base-currency ledger. Both are
// specified at the call boundary only: transfers either fully succeed or
// fully fail, with no partial movement of a batch.
package assets

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotItemOwner is returned when a transfer names a from address that
	// does not own the item.
	ErrNotItemOwner = errors.New("from address does not own item")
	// ErrNotApproved is returned when the operator is neither the owner nor
	// approved to move the owner's items.
	ErrNotApproved = errors.New("operator is not approved for transfer")
	// ErrUnknownItem is returned when an item id has never been minted.
	ErrUnknownItem = errors.New("unknown item id")
	// ErrInsufficientBalance is returned when a currency transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("insufficient currency balance")
	// ErrInvalidAmount is returned when an amount is nil or negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
)

// ItemCollection is the ownership registry for one collection of unique items.
type ItemCollection interface {
	// BalanceOf returns how many items of the collection owner holds.
	BalanceOf(owner common.Address) uint64

	// OwnerOf returns the current owner of an item.
	OwnerOf(id uint64) (common.Address, error)

	// TransferFrom moves one item. operator must be from itself or an address
	// from has approved; the transfer is atomic.
	TransferFrom(operator, from, to common.Address, id uint64) error
}

// CurrencyLedger tracks base-currency balances.
type CurrencyLedger interface {
	// BalanceOf returns the current balance. The returned value is a copy.
	BalanceOf(addr common.Address) *big.Int

	// Transfer moves amount from one address to another atomically.
	Transfer(from, to common.Address, amount *big.Int) error
}
