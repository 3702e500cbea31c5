// Package vault implements the ticket vault: a share-based vault that turns
// a base asset into fungible, redeemable tickets. Tickets are the only unit
// accepted for staking and pot funding.
//
// Share accounting:
//
//	deposit: shares = assets                               if totalSupply == 0
//	         shares = floor(assets * totalSupply / totalAssets)  otherwise
//	mint:    assets = ceil(shares * totalAssets / totalSupply)
//	redeem:  assets = floor(shares * totalAssets / totalSupply)
//
// Every rounding goes in the vault's favour, so repeated round trips can
// never extract more assets than were put in.
//
// All amounts are whole smallest-unit values held in shopspring/decimal.
//
// The vault splits every operation into a Quote step (pure validation that
// returns the computed amounts) and an Apply step (unconditional mutation
// with the quoted amounts). The engine journals between the two.
package vault

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
)

var (
	// ErrInvalidAmount is returned for zero, negative or fractional amounts,
	// and for deposits/mints that would round to nothing.
	ErrInvalidAmount = errors.New("vault: amount must be a positive whole number of units")

	// ErrInsufficientBalance is returned when an account holds fewer
	// tickets than it tries to redeem or transfer.
	ErrInsufficientBalance = errors.New("vault: insufficient ticket balance")

	// ErrInsufficientAssets is returned when an account holds less of the
	// base asset than it tries to deposit or donate.
	ErrInsufficientAssets = errors.New("vault: insufficient asset balance")

	// ErrCorruptedVaultState is returned when shares exist but the vault
	// holds no assets, which would otherwise divide by zero.
	ErrCorruptedVaultState = errors.New("vault: corrupted state, supply outstanding with zero assets")

	// ErrNotOwner is returned when redeeming shares owned by someone else.
	ErrNotOwner = errors.New("vault: caller is not the share owner")
)

var one = decimal.NewFromInt(1)

// CheckAmount validates a ticket or asset amount.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

// MulDivDown returns floor(x * y / z) for non-negative x, y and positive z.
func MulDivDown(x, y, z decimal.Decimal) decimal.Decimal {
	q, _ := x.Mul(y).QuoRem(z, 0)
	return q
}

// MulDivUp returns ceil(x * y / z) for non-negative x, y and positive z.
func MulDivUp(x, y, z decimal.Decimal) decimal.Decimal {
	q, r := x.Mul(y).QuoRem(z, 0)
	if !r.IsZero() {
		q = q.Add(one)
	}
	return q
}

// Vault holds the share state, per-account ticket balances and the
// base-asset ledger. It is not safe for concurrent use; the engine
// serializes access.
type Vault struct {
	totalAssets decimal.Decimal
	totalSupply decimal.Decimal
	tickets     map[common.Address]decimal.Decimal
	assets      map[common.Address]decimal.Decimal
}

// New creates an empty vault.
func New() *Vault {
	return &Vault{
		tickets: make(map[common.Address]decimal.Decimal),
		assets:  make(map[common.Address]decimal.Decimal),
	}
}

// State returns the share accounting snapshot.
func (v *Vault) State() model.VaultState {
	return model.VaultState{
		TotalAssets: v.totalAssets,
		TotalSupply: v.totalSupply,
	}
}

// BalanceOf returns the account's ticket balance.
func (v *Vault) BalanceOf(account common.Address) decimal.Decimal {
	return v.tickets[account]
}

// AssetBalance returns the account's base-asset balance outside the vault.
func (v *Vault) AssetBalance(account common.Address) decimal.Decimal {
	return v.assets[account]
}

// ConvertToShares returns the shares a deposit of assets would mint.
func (v *Vault) ConvertToShares(assets decimal.Decimal) (decimal.Decimal, error) {
	if v.totalSupply.IsZero() {
		return assets, nil
	}
	if !v.totalAssets.IsPositive() {
		return decimal.Zero, ErrCorruptedVaultState
	}
	return MulDivDown(assets, v.totalSupply, v.totalAssets), nil
}

// ConvertToAssets returns the assets a redemption of shares would pay out.
func (v *Vault) ConvertToAssets(shares decimal.Decimal) decimal.Decimal {
	if v.totalSupply.IsZero() {
		return shares
	}
	return MulDivDown(shares, v.totalAssets, v.totalSupply)
}

// QuoteDeposit validates a deposit and returns the shares it mints.
func (v *Vault) QuoteDeposit(caller common.Address, assets decimal.Decimal) (decimal.Decimal, error) {
	if err := CheckAmount(assets); err != nil {
		return decimal.Zero, err
	}
	shares, err := v.ConvertToShares(assets)
	if err != nil {
		return decimal.Zero, err
	}
	if shares.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: deposit of %s rounds to zero shares", ErrInvalidAmount, assets)
	}
	if v.assets[caller].LessThan(assets) {
		return decimal.Zero, fmt.Errorf("%w: have %s, need %s", ErrInsufficientAssets, v.assets[caller], assets)
	}
	return shares, nil
}

// QuoteMint validates a mint of exactly shares and returns the assets it
// costs, rounded up.
func (v *Vault) QuoteMint(caller common.Address, shares decimal.Decimal) (decimal.Decimal, error) {
	if err := CheckAmount(shares); err != nil {
		return decimal.Zero, err
	}
	assets := shares
	if !v.totalSupply.IsZero() {
		if !v.totalAssets.IsPositive() {
			return decimal.Zero, ErrCorruptedVaultState
		}
		assets = MulDivUp(shares, v.totalAssets, v.totalSupply)
	}
	if v.assets[caller].LessThan(assets) {
		return decimal.Zero, fmt.Errorf("%w: have %s, need %s", ErrInsufficientAssets, v.assets[caller], assets)
	}
	return assets, nil
}

// QuoteRedeem validates a redemption and returns the assets it pays out.
func (v *Vault) QuoteRedeem(caller, owner common.Address, shares decimal.Decimal) (decimal.Decimal, error) {
	if err := CheckAmount(shares); err != nil {
		return decimal.Zero, err
	}
	if caller != owner {
		return decimal.Zero, fmt.Errorf("%w: %s cannot redeem for %s", ErrNotOwner, caller.Hex(), owner.Hex())
	}
	if v.tickets[owner].LessThan(shares) {
		return decimal.Zero, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, v.tickets[owner], shares)
	}
	return v.ConvertToAssets(shares), nil
}

// QuoteDonate validates a yield donation.
func (v *Vault) QuoteDonate(caller common.Address, assets decimal.Decimal) error {
	if err := CheckAmount(assets); err != nil {
		return err
	}
	if v.assets[caller].LessThan(assets) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAssets, v.assets[caller], assets)
	}
	return nil
}

// CheckTransfer validates a ticket transfer out of from.
func (v *Vault) CheckTransfer(from common.Address, amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if v.tickets[from].LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, v.tickets[from], amount)
	}
	return nil
}

// ApplyCredit adds base asset to an account. It models assets arriving from
// the external token contract.
func (v *Vault) ApplyCredit(account common.Address, assets decimal.Decimal) {
	v.assets[account] = v.assets[account].Add(assets)
}

// ApplyDeposit moves assets from caller into the vault and mints shares to
// receiver. Used for both deposit and mint.
func (v *Vault) ApplyDeposit(caller, receiver common.Address, assets, shares decimal.Decimal) {
	v.assets[caller] = v.assets[caller].Sub(assets)
	v.totalAssets = v.totalAssets.Add(assets)
	v.totalSupply = v.totalSupply.Add(shares)
	v.tickets[receiver] = v.tickets[receiver].Add(shares)
}

// ApplyRedeem burns owner's shares and pays assets to receiver.
func (v *Vault) ApplyRedeem(owner, receiver common.Address, shares, assets decimal.Decimal) {
	v.tickets[owner] = v.tickets[owner].Sub(shares)
	v.totalSupply = v.totalSupply.Sub(shares)
	v.totalAssets = v.totalAssets.Sub(assets)
	v.assets[receiver] = v.assets[receiver].Add(assets)
}

// ApplyDonate moves assets into the vault without minting shares, raising
// the redemption value of every outstanding share.
func (v *Vault) ApplyDonate(caller common.Address, assets decimal.Decimal) {
	v.assets[caller] = v.assets[caller].Sub(assets)
	v.totalAssets = v.totalAssets.Add(assets)
}

// ApplyTransfer moves tickets between accounts. The balance check runs
// before any write.
func (v *Vault) ApplyTransfer(from, to common.Address, amount decimal.Decimal) error {
	if v.tickets[from].LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, v.tickets[from], amount)
	}
	v.tickets[from] = v.tickets[from].Sub(amount)
	v.tickets[to] = v.tickets[to].Add(amount)
	return nil
}
