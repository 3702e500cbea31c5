package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/settlement"
)

// Owner returns the operator address.
func (e *Engine) Owner() common.Address { return e.operator }

// Tickets returns the ticket token address.
func (e *Engine) Tickets() common.Address { return e.tickets }

// Custody returns the account holding staked tickets and pots.
func (e *Engine) Custody() common.Address { return e.custody }

// Seq returns the sequence number of the last applied journal entry.
func (e *Engine) Seq() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq
}

func (e *Engine) GetDraw(drawID uint64) (*model.Draw, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.GetDraw(drawID)
}

func (e *Engine) GetThresholds(drawID uint64) ([]int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.GetThresholds(drawID)
}

func (e *Engine) ListDraws() []model.Draw {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.ListDraws()
}

// GetTotalShares returns the total staked on one threshold. Thresholds the
// draw does not offer report zero.
func (e *Engine) GetTotalShares(drawID uint64, threshold int64) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.registry.Lookup(drawID); err != nil {
		return decimal.Zero, err
	}
	return e.stakes.TotalShares(drawID, threshold), nil
}

// GetUserShares returns one user's stake on one threshold.
func (e *Engine) GetUserShares(drawID uint64, user common.Address, threshold int64) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.registry.Lookup(drawID); err != nil {
		return decimal.Zero, err
	}
	return e.stakes.UserShares(drawID, user, threshold), nil
}

// Claimed reports whether user has claimed the draw.
func (e *Engine) Claimed(drawID uint64, user common.Address) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.registry.Lookup(drawID); err != nil {
		return false, err
	}
	return e.claims.Claimed(drawID, user), nil
}

// Markets returns the per-threshold sub-markets of a draw.
func (e *Engine) Markets(drawID uint64) ([]model.ThresholdMarket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, err := e.registry.Lookup(drawID)
	if err != nil {
		return nil, err
	}
	markets := make([]model.ThresholdMarket, 0, len(d.Thresholds))
	for _, t := range d.Thresholds {
		markets = append(markets, model.ThresholdMarket{
			Ticker:      contract.FormatTicker(drawID, t),
			Threshold:   t,
			TotalShares: e.stakes.TotalShares(drawID, t),
			Winning:     d.Settled && settlement.IsWinning(d.ActualTemp, t),
		})
	}
	return markets, nil
}

// UserPosition returns a user's stakes in a draw with claim status and,
// once settled and unclaimed, the claimable amount.
func (e *Engine) UserPosition(drawID uint64, user common.Address) (model.UserPosition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, err := e.registry.Lookup(drawID)
	if err != nil {
		return model.UserPosition{}, err
	}

	pos := model.UserPosition{
		DrawID:        drawID,
		Account:       user,
		Stakes:        make([]model.StakePosition, 0, len(d.Thresholds)),
		Claimed:       e.claims.Claimed(drawID, user),
		WinningShares: decimal.Zero,
		Payout:        decimal.Zero,
	}
	for _, t := range d.Thresholds {
		shares := e.stakes.UserShares(drawID, user, t)
		if shares.IsZero() {
			continue
		}
		winning := d.Settled && settlement.IsWinning(d.ActualTemp, t)
		if winning {
			pos.WinningShares = pos.WinningShares.Add(shares)
		}
		pos.Stakes = append(pos.Stakes, model.StakePosition{
			Threshold: t,
			Ticker:    contract.FormatTicker(drawID, t),
			Shares:    shares,
			Winning:   winning,
		})
	}
	if payout, err := e.claims.Quote(d, e.stakes, user); err == nil {
		pos.Payout = payout.Amount
	}
	return pos, nil
}

// QuoteClaim previews Claim for user without writing.
func (e *Engine) QuoteClaim(drawID uint64, user common.Address) (model.Payout, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, err := e.registry.Lookup(drawID)
	if err != nil {
		return model.Payout{}, err
	}
	return e.claims.Quote(d, e.stakes, user)
}

// PaidOut returns the total paid out by claims on a draw.
func (e *Engine) PaidOut(drawID uint64) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.registry.Lookup(drawID); err != nil {
		return decimal.Zero, err
	}
	return e.claims.Paid(drawID), nil
}

// --- Vault views ---

func (e *Engine) VaultState() model.VaultState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.State()
}

// BalanceOf returns an account's ticket balance.
func (e *Engine) BalanceOf(account common.Address) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.BalanceOf(account)
}

// AssetBalance returns an account's base-asset balance.
func (e *Engine) AssetBalance(account common.Address) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.AssetBalance(account)
}

// PreviewDeposit returns the tickets a deposit of assets would mint now.
func (e *Engine) PreviewDeposit(assets decimal.Decimal) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.ConvertToShares(assets)
}

// PreviewRedeem returns the assets a redemption of shares would pay now.
func (e *Engine) PreviewRedeem(shares decimal.Decimal) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.ConvertToAssets(shares)
}

// --- Journal views ---

// DrawHistory returns the journal entries touching a draw.
func (e *Engine) DrawHistory(ctx context.Context, drawID uint64) ([]model.LedgerEntry, error) {
	if _, err := e.GetDraw(drawID); err != nil {
		return nil, err
	}
	return e.store.GetEntriesByDraw(ctx, drawID)
}

// AccountHistory returns the journal entries involving an account.
func (e *Engine) AccountHistory(ctx context.Context, account common.Address) ([]model.LedgerEntry, error) {
	return e.store.GetEntriesByAccount(ctx, account)
}
