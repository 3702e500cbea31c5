// Package model defines the core domain types shared across the settlement
// engine. All monetary and share values use shopspring/decimal holding whole
// smallest-unit amounts — never float64 for money.
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/contract"
)

// Draw is one parametric weather market: a city, an end time, a fixed set
// of temperature thresholds and a shared pot.
type Draw struct {
	ID         uint64          `json:"id"`
	CityID     contract.CityID `json:"city_id"`
	EndTime    time.Time       `json:"end_time"`
	Thresholds []int64         `json:"thresholds"` // milli-°C, strictly increasing
	Settled    bool            `json:"settled"`
	ActualTemp int64           `json:"actual_temp"` // milli-°C, valid only if Settled
	Pot        decimal.Decimal `json:"pot"`
	CreatedAt  time.Time       `json:"created_at"`
	SettledAt  *time.Time      `json:"settled_at,omitempty"`
}

// HasThreshold reports whether t is one of the draw's thresholds.
func (d *Draw) HasThreshold(t int64) bool {
	for _, v := range d.Thresholds {
		if v == t {
			return true
		}
	}
	return false
}

// EntryKind identifies the operation recorded by a LedgerEntry.
type EntryKind string

const (
	KindAssetCredit   EntryKind = "asset_credit"
	KindDeposit       EntryKind = "vault_deposit"
	KindMint          EntryKind = "vault_mint"
	KindRedeem        EntryKind = "vault_redeem"
	KindDonate        EntryKind = "vault_donate"
	KindDrawCreated   EntryKind = "draw_created"
	KindPotFunded     EntryKind = "pot_funded"
	KindBidPlaced     EntryKind = "bid_placed"
	KindDrawSettled   EntryKind = "draw_settled"
	KindClaimPaid     EntryKind = "claim_paid"
	KindPotRolledOver EntryKind = "pot_rolled_over"
)

// LedgerEntry is an immutable journal record of one successful state
// mutation. Once appended, entries are never modified or deleted; replaying
// them in Seq order rebuilds the engine state exactly.
type LedgerEntry struct {
	Seq          int64           `json:"seq"`
	ID           string          `json:"id"`
	Kind         EntryKind       `json:"kind"`
	Actor        common.Address  `json:"actor"`   // caller
	Account      common.Address  `json:"account"` // receiver / owner, kind-dependent
	DrawID       uint64          `json:"draw_id,omitempty"`
	TargetDrawID uint64          `json:"target_draw_id,omitempty"` // rollover destination
	Threshold    int64           `json:"threshold,omitempty"`
	Amount       decimal.Decimal `json:"amount"` // assets or tickets, kind-dependent
	Shares       decimal.Decimal `json:"shares"` // vault shares for deposit/mint/redeem
	CityID       contract.CityID `json:"city_id,omitempty"`
	EndTime      time.Time       `json:"end_time,omitempty"`
	Thresholds   []int64         `json:"thresholds,omitempty"`
	Temperature  int64           `json:"temperature,omitempty"` // oracle reading for settlement
	Timestamp    time.Time       `json:"timestamp"`
}

// StakePosition is a user's stake on one threshold.
type StakePosition struct {
	Threshold int64           `json:"threshold"`
	Ticker    string          `json:"ticker"`
	Shares    decimal.Decimal `json:"shares"`
	Winning   bool            `json:"winning"`
}

// UserPosition aggregates a user's stakes in one draw with claim status.
type UserPosition struct {
	DrawID        uint64          `json:"draw_id"`
	Account       common.Address  `json:"account"`
	Stakes        []StakePosition `json:"stakes"`
	Claimed       bool            `json:"claimed"`
	WinningShares decimal.Decimal `json:"winning_shares"`
	Payout        decimal.Decimal `json:"payout"` // claimable amount if settled and unclaimed
}

// ThresholdMarket is the aggregate state of one threshold sub-market.
type ThresholdMarket struct {
	Ticker      string          `json:"ticker"`
	Threshold   int64           `json:"threshold"`
	TotalShares decimal.Decimal `json:"total_shares"`
	Winning     bool            `json:"winning"`
}

// VaultState is the share accounting snapshot of the ticket vault.
type VaultState struct {
	TotalAssets decimal.Decimal `json:"total_assets"`
	TotalSupply decimal.Decimal `json:"total_supply"`
}

// Payout is the result of a successful claim.
type Payout struct {
	DrawID        uint64          `json:"draw_id"`
	Account       common.Address  `json:"account"`
	WinningShares decimal.Decimal `json:"winning_shares"`
	TotalWinning  decimal.Decimal `json:"total_winning_shares"`
	Amount        decimal.Decimal `json:"amount"`
}
