// Package engine orchestrates the ticket vault, draw registry, stake ledger,
// settlement and claim components behind one serialized entry point.
//
// Every mutating call samples the clock once, validates against current
// state, appends one immutable journal entry and only then applies it. A
// failed validation or a failed journal append leaves state untouched.
// On startup the journal is replayed through the same apply path, so the
// oracle is never consulted for a draw that has already been settled.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/claim"
	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/limit"
	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/oracle"
	"github.com/atmx/settlement-engine/internal/registry"
	"github.com/atmx/settlement-engine/internal/settlement"
	"github.com/atmx/settlement-engine/internal/stake"
	"github.com/atmx/settlement-engine/internal/store"
	"github.com/atmx/settlement-engine/internal/vault"
)

// Publisher receives every committed journal entry, e.g. to fan events out
// to WebSocket clients. Publish must not block.
type Publisher interface {
	Publish(entry model.LedgerEntry)
}

// Config wires an Engine.
type Config struct {
	Operator  common.Address // may create draws, credit assets and roll pots over
	Tickets   common.Address // address reported for the ticket token
	Custody   common.Address // holds staked tickets and pots
	Oracle    oracle.Adapter
	Store     store.Store
	Limiter   *limit.StakeLimiter // optional
	Publisher Publisher           // optional
	Clock     func() time.Time    // defaults to time.Now
}

// Engine is the single writer over all settlement state. It is safe for
// concurrent use.
type Engine struct {
	mu sync.RWMutex

	operator common.Address
	tickets  common.Address
	custody  common.Address
	clock    func() time.Time
	store    store.Store
	settler  *settlement.Settler
	limiter  *limit.StakeLimiter
	pub      Publisher

	vault    *vault.Vault
	registry *registry.Registry
	stakes   *stake.Ledger
	claims   *claim.Processor

	seq       int64
	openDraws int
}

// New creates an engine with empty state. Call Replay before serving to
// restore state from the journal.
func New(cfg Config) (*Engine, error) {
	if cfg.Operator == (common.Address{}) {
		return nil, fmt.Errorf("%w: operator address is required", ErrInvalidAccount)
	}
	if cfg.Custody == (common.Address{}) {
		return nil, fmt.Errorf("%w: custody address is required", ErrInvalidAccount)
	}
	if cfg.Custody == cfg.Operator {
		return nil, fmt.Errorf("%w: custody must differ from operator", ErrInvalidAccount)
	}
	if cfg.Oracle == nil {
		return nil, errors.New("engine: oracle is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		operator: cfg.Operator,
		tickets:  cfg.Tickets,
		custody:  cfg.Custody,
		clock:    clock,
		store:    cfg.Store,
		settler:  settlement.New(cfg.Oracle),
		limiter:  cfg.Limiter,
		pub:      cfg.Publisher,
		vault:    vault.New(),
		registry: registry.New(cfg.Operator),
		stakes:   stake.New(),
		claims:   claim.New(),
	}, nil
}

// Replay applies every journal entry after the last applied sequence
// number. It returns the number of entries applied.
func (e *Engine) Replay(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.ListEntries(ctx, e.seq)
	if err != nil {
		return 0, fmt.Errorf("%w: list entries: %v", ErrJournal, err)
	}
	for i := range entries {
		entry := &entries[i]
		if entry.Seq != e.seq+1 {
			return i, fmt.Errorf("%w: expected seq %d, found %d", ErrInconsistentJournal, e.seq+1, entry.Seq)
		}
		if err := e.apply(entry); err != nil {
			return i, fmt.Errorf("replay seq %d: %w", entry.Seq, err)
		}
		e.seq = entry.Seq
	}
	return len(entries), nil
}

// now samples the clock. Timestamps are truncated to the precision the
// journal stores.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// commit journals the entry and applies it. Must be called with mu held
// and only after all checks for the entry have passed.
func (e *Engine) commit(ctx context.Context, entry *model.LedgerEntry, now time.Time) error {
	entry.Seq = e.seq + 1
	entry.ID = uuid.NewString()
	entry.Timestamp = now

	if err := e.store.AppendEntry(ctx, entry); err != nil {
		metrics.JournalAppendFailures.Inc()
		return fmt.Errorf("%w: %v", ErrJournal, err)
	}
	if err := e.apply(entry); err != nil {
		slog.Error("journal entry could not be applied", "seq", entry.Seq, "kind", entry.Kind, "err", err)
		return err
	}
	e.seq = entry.Seq

	if e.pub != nil {
		e.pub.Publish(*entry)
	}
	return nil
}

// apply performs the state transition recorded by entry. It is the only
// place where component state is written.
func (e *Engine) apply(entry *model.LedgerEntry) error {
	switch entry.Kind {
	case model.KindAssetCredit:
		e.vault.ApplyCredit(entry.Account, entry.Amount)

	case model.KindDeposit, model.KindMint:
		e.vault.ApplyDeposit(entry.Actor, entry.Account, entry.Amount, entry.Shares)

	case model.KindRedeem:
		e.vault.ApplyRedeem(entry.Actor, entry.Account, entry.Shares, entry.Amount)

	case model.KindDonate:
		e.vault.ApplyDonate(entry.Actor, entry.Amount)

	case model.KindDrawCreated:
		if next := e.registry.NextID(); next != entry.DrawID {
			return fmt.Errorf("%w: draw id %d recorded, %d expected", ErrInconsistentJournal, entry.DrawID, next)
		}
		e.registry.ApplyCreate(entry.CityID, entry.EndTime, entry.Thresholds, entry.Timestamp)
		e.openDraws++

	case model.KindPotFunded:
		if err := e.vault.ApplyTransfer(entry.Actor, e.custody, entry.Amount); err != nil {
			return fmt.Errorf("%w: %v", ErrInconsistentJournal, err)
		}
		e.registry.ApplyFund(entry.DrawID, entry.Amount)

	case model.KindBidPlaced:
		if err := e.vault.ApplyTransfer(entry.Actor, e.custody, entry.Amount); err != nil {
			return fmt.Errorf("%w: %v", ErrInconsistentJournal, err)
		}
		e.stakes.ApplyBid(entry.DrawID, entry.Actor, entry.Threshold, entry.Amount)

	case model.KindDrawSettled:
		if err := settlement.Apply(e.registry, entry.DrawID, entry.Temperature, entry.Timestamp); err != nil {
			return fmt.Errorf("%w: %v", ErrInconsistentJournal, err)
		}
		e.openDraws--

	case model.KindClaimPaid:
		err := e.claims.Apply(entry.DrawID, entry.Account, entry.Amount, func(amount decimal.Decimal) error {
			return e.vault.ApplyTransfer(e.custody, entry.Account, amount)
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInconsistentJournal, err)
		}

	case model.KindPotRolledOver:
		from, err := e.registry.Lookup(entry.DrawID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInconsistentJournal, err)
		}
		if !from.Pot.Equal(entry.Amount) {
			return fmt.Errorf("%w: rollover of %s recorded, pot held %s", ErrInconsistentJournal, entry.Amount, from.Pot)
		}
		e.registry.ApplyFund(entry.TargetDrawID, e.registry.ApplyDrain(entry.DrawID))

	default:
		return fmt.Errorf("%w: unknown entry kind %q", ErrInconsistentJournal, entry.Kind)
	}

	e.refreshGauges()
	return nil
}

func (e *Engine) refreshGauges() {
	state := e.vault.State()
	metrics.VaultTotalAssets.Set(state.TotalAssets.InexactFloat64())
	metrics.VaultTotalSupply.Set(state.TotalSupply.InexactFloat64())
	metrics.OpenDraws.Set(float64(e.openDraws))
}

// observe records the outcome of one operation.
func observe(op string, start time.Time, err error) {
	code := "ok"
	if err != nil {
		code = Code(err)
	}
	metrics.OperationsTotal.WithLabelValues(op, code).Inc()
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// checkCaller rejects anonymous callers and the custody account.
func (e *Engine) checkCaller(caller common.Address) error {
	if caller == (common.Address{}) {
		return ErrNoCaller
	}
	if caller == e.custody {
		return fmt.Errorf("%w: %s", ErrCustodyCaller, caller.Hex())
	}
	return nil
}

func checkAccount(account common.Address, role string) error {
	if account == (common.Address{}) {
		return fmt.Errorf("%w: %s must not be the zero address", ErrInvalidAccount, role)
	}
	return nil
}

// --- Draw registry ---

// CreateDraw registers a new draw and returns its id. Operator only.
// The end time is truncated to whole seconds.
func (e *Engine) CreateDraw(ctx context.Context, caller common.Address, city contract.CityID, endTime time.Time, thresholds []int64) (id uint64, err error) {
	start := time.Now()
	defer func() { observe("create_draw", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	endTime = endTime.UTC().Truncate(time.Second)
	if err = e.registry.CheckCreate(caller, city, endTime, thresholds, now); err != nil {
		return 0, err
	}

	ts := make([]int64, len(thresholds))
	copy(ts, thresholds)
	entry := &model.LedgerEntry{
		Kind:       model.KindDrawCreated,
		Actor:      caller,
		Account:    caller,
		DrawID:     e.registry.NextID(),
		CityID:     city,
		EndTime:    endTime,
		Thresholds: ts,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return 0, err
	}

	slog.Info("draw created",
		"draw_id", entry.DrawID,
		"city", city.Name(),
		"end_time", endTime.Format(time.RFC3339),
		"thresholds", len(ts),
	)
	return entry.DrawID, nil
}

// FundPot moves amount tickets from caller into custody and adds them to
// the draw's pot. Anyone may fund an unsettled draw, any number of times.
func (e *Engine) FundPot(ctx context.Context, caller common.Address, drawID uint64, amount decimal.Decimal) (err error) {
	start := time.Now()
	defer func() { observe("fund_pot", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err = e.checkCaller(caller); err != nil {
		return err
	}
	if err = e.registry.CheckFund(drawID); err != nil {
		return err
	}
	if err = e.vault.CheckTransfer(caller, amount); err != nil {
		return err
	}

	entry := &model.LedgerEntry{
		Kind:    model.KindPotFunded,
		Actor:   caller,
		Account: caller,
		DrawID:  drawID,
		Amount:  amount,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return err
	}

	slog.Info("pot funded", "draw_id", drawID, "funder", caller.Hex(), "amount", amount.String())
	return nil
}

// RolloverPot moves the whole pot of a settled draw without winning stakes
// into an open draw. Operator only. Returns the amount moved.
func (e *Engine) RolloverPot(ctx context.Context, caller common.Address, fromID, toID uint64) (moved decimal.Decimal, err error) {
	start := time.Now()
	defer func() { observe("rollover_pot", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if caller != e.operator {
		return decimal.Zero, fmt.Errorf("%w: %s", registry.ErrUnauthorized, caller.Hex())
	}
	from, err := e.registry.Lookup(fromID)
	if err != nil {
		return decimal.Zero, err
	}
	if err = claim.CheckRollover(from, e.stakes); err != nil {
		return decimal.Zero, err
	}
	to, err := e.registry.Lookup(toID)
	if err != nil {
		return decimal.Zero, err
	}
	if !stake.IsOpen(to, now) {
		return decimal.Zero, fmt.Errorf("%w: rollover target draw %d", stake.ErrDrawClosed, toID)
	}

	entry := &model.LedgerEntry{
		Kind:         model.KindPotRolledOver,
		Actor:        caller,
		Account:      caller,
		DrawID:       fromID,
		TargetDrawID: toID,
		Amount:       from.Pot,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return decimal.Zero, err
	}

	slog.Info("pot rolled over", "from_draw", fromID, "to_draw", toID, "amount", entry.Amount.String())
	return entry.Amount, nil
}

// --- Stake ledger ---

// PlaceBid stakes shares tickets on one threshold of an open draw. The
// tickets move from caller into custody.
func (e *Engine) PlaceBid(ctx context.Context, caller common.Address, drawID uint64, threshold int64, shares decimal.Decimal) (err error) {
	start := time.Now()
	defer func() { observe("place_bid", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err = e.checkCaller(caller); err != nil {
		return err
	}
	d, err := e.registry.Lookup(drawID)
	if err != nil {
		return err
	}
	if err = e.stakes.CheckBid(d, threshold, shares, e.vault.BalanceOf(caller), now); err != nil {
		return err
	}
	if e.limiter.Enabled() {
		existing := make(map[int64]decimal.Decimal, len(d.Thresholds))
		for _, t := range d.Thresholds {
			existing[t] = e.stakes.UserShares(drawID, caller, t)
		}
		if err = e.limiter.CheckLimit(threshold, shares, existing); err != nil {
			metrics.StakeLimitRejections.Inc()
			return err
		}
	}

	entry := &model.LedgerEntry{
		Kind:      model.KindBidPlaced,
		Actor:     caller,
		Account:   caller,
		DrawID:    drawID,
		Threshold: threshold,
		Amount:    shares,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return err
	}
	metrics.TicketsStaked.Add(shares.InexactFloat64())

	slog.Info("bid placed",
		"draw_id", drawID,
		"user", caller.Hex(),
		"ticker", contract.FormatTicker(drawID, threshold),
		"shares", shares.String(),
	)
	return nil
}

// --- Settlement ---

// Settle finalizes a draw with the oracle reading for its city at its end
// time and returns the recorded temperature. Any identified caller other
// than custody may call it. When the oracle has no reading yet it fails
// with OracleDataUnavailable and may be retried.
//
// The oracle is queried without holding the engine lock; preconditions
// are re-checked before the result is committed.
func (e *Engine) Settle(ctx context.Context, caller common.Address, drawID uint64) (temp int64, err error) {
	start := time.Now()
	defer func() { observe("settle", start, err) }()

	if err = e.checkCaller(caller); err != nil {
		return 0, err
	}

	e.mu.RLock()
	now := e.now()
	snapshot, err := e.registry.GetDraw(drawID)
	e.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	temp, err = e.settler.Resolve(ctx, snapshot, now)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.registry.Lookup(drawID)
	if err != nil {
		return 0, err
	}
	if err = settlement.Check(d, now); err != nil {
		return 0, err
	}

	entry := &model.LedgerEntry{
		Kind:        model.KindDrawSettled,
		Actor:       caller,
		Account:     caller,
		DrawID:      drawID,
		Temperature: temp,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return 0, err
	}

	slog.Info("draw settled",
		"draw_id", drawID,
		"city", d.CityID.Name(),
		"actual_temp_c", contract.FormatCelsius(temp),
		"winning_thresholds", len(settlement.WinningThresholds(d)),
		"pot", d.Pot.String(),
	)
	return temp, nil
}

// DueForSettlement returns the ids of unsettled draws whose end time has
// passed.
func (e *Engine) DueForSettlement() []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	var ids []uint64
	for _, d := range e.registry.ListDraws() {
		if !d.Settled && !now.Before(d.EndTime) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// --- Claims ---

// Claim pays caller's share of a settled draw's pot. A claim succeeds at
// most once per (draw, user).
func (e *Engine) Claim(ctx context.Context, caller common.Address, drawID uint64) (payout model.Payout, err error) {
	start := time.Now()
	defer func() { observe("claim", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err = e.checkCaller(caller); err != nil {
		return model.Payout{}, err
	}
	d, err := e.registry.Lookup(drawID)
	if err != nil {
		return model.Payout{}, err
	}
	payout, err = e.claims.Quote(d, e.stakes, caller)
	if err != nil {
		return model.Payout{}, err
	}

	entry := &model.LedgerEntry{
		Kind:    model.KindClaimPaid,
		Actor:   caller,
		Account: caller,
		DrawID:  drawID,
		Amount:  payout.Amount,
		Shares:  payout.WinningShares,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return model.Payout{}, err
	}
	metrics.TicketsPaidOut.Add(payout.Amount.InexactFloat64())

	slog.Info("claim paid",
		"draw_id", drawID,
		"user", caller.Hex(),
		"winning_shares", payout.WinningShares.String(),
		"total_winning", payout.TotalWinning.String(),
		"amount", payout.Amount.String(),
	)
	return payout, nil
}

// --- Ticket vault ---

// CreditAssets adds base asset to an account, standing in for tokens
// bridged in from the external asset contract. Operator only.
func (e *Engine) CreditAssets(ctx context.Context, caller, account common.Address, amount decimal.Decimal) (err error) {
	start := time.Now()
	defer func() { observe("credit_assets", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if caller != e.operator {
		return fmt.Errorf("%w: %s", registry.ErrUnauthorized, caller.Hex())
	}
	if err = checkAccount(account, "account"); err != nil {
		return err
	}
	if err = vault.CheckAmount(amount); err != nil {
		return err
	}

	entry := &model.LedgerEntry{
		Kind:    model.KindAssetCredit,
		Actor:   caller,
		Account: account,
		Amount:  amount,
	}
	return e.commit(ctx, entry, now)
}

// Deposit converts assets of the base asset into tickets minted to
// receiver and returns the tickets minted.
func (e *Engine) Deposit(ctx context.Context, caller common.Address, assets decimal.Decimal, receiver common.Address) (shares decimal.Decimal, err error) {
	start := time.Now()
	defer func() { observe("deposit", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err = e.checkCaller(caller); err != nil {
		return decimal.Zero, err
	}
	if err = checkAccount(receiver, "receiver"); err != nil {
		return decimal.Zero, err
	}
	if shares, err = e.vault.QuoteDeposit(caller, assets); err != nil {
		return decimal.Zero, err
	}

	entry := &model.LedgerEntry{
		Kind:    model.KindDeposit,
		Actor:   caller,
		Account: receiver,
		Amount:  assets,
		Shares:  shares,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return decimal.Zero, err
	}
	slog.Info("vault deposit", "caller", caller.Hex(), "receiver", receiver.Hex(), "assets", assets.String(), "shares", shares.String())
	return shares, nil
}

// Mint mints exactly shares tickets to receiver and returns the assets
// charged, rounded up.
func (e *Engine) Mint(ctx context.Context, caller common.Address, shares decimal.Decimal, receiver common.Address) (assets decimal.Decimal, err error) {
	start := time.Now()
	defer func() { observe("mint", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err = e.checkCaller(caller); err != nil {
		return decimal.Zero, err
	}
	if err = checkAccount(receiver, "receiver"); err != nil {
		return decimal.Zero, err
	}
	if assets, err = e.vault.QuoteMint(caller, shares); err != nil {
		return decimal.Zero, err
	}

	entry := &model.LedgerEntry{
		Kind:    model.KindMint,
		Actor:   caller,
		Account: receiver,
		Amount:  assets,
		Shares:  shares,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return decimal.Zero, err
	}
	slog.Info("vault mint", "caller", caller.Hex(), "receiver", receiver.Hex(), "assets", assets.String(), "shares", shares.String())
	return assets, nil
}

// Redeem burns owner's tickets and pays the underlying assets to receiver.
// The caller must be the owner.
func (e *Engine) Redeem(ctx context.Context, caller common.Address, shares decimal.Decimal, owner, receiver common.Address) (assets decimal.Decimal, err error) {
	start := time.Now()
	defer func() { observe("redeem", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err = e.checkCaller(caller); err != nil {
		return decimal.Zero, err
	}
	if err = checkAccount(receiver, "receiver"); err != nil {
		return decimal.Zero, err
	}
	if assets, err = e.vault.QuoteRedeem(caller, owner, shares); err != nil {
		return decimal.Zero, err
	}

	entry := &model.LedgerEntry{
		Kind:    model.KindRedeem,
		Actor:   owner,
		Account: receiver,
		Amount:  assets,
		Shares:  shares,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return decimal.Zero, err
	}
	slog.Info("vault redeem", "owner", owner.Hex(), "receiver", receiver.Hex(), "shares", shares.String(), "assets", assets.String())
	return assets, nil
}

// DonateYield adds assets to the vault without minting tickets, raising
// the redemption value of every outstanding ticket. Irreversible.
func (e *Engine) DonateYield(ctx context.Context, caller common.Address, assets decimal.Decimal) (err error) {
	start := time.Now()
	defer func() { observe("donate_yield", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err = e.checkCaller(caller); err != nil {
		return err
	}
	if err = e.vault.QuoteDonate(caller, assets); err != nil {
		return err
	}

	entry := &model.LedgerEntry{
		Kind:    model.KindDonate,
		Actor:   caller,
		Account: caller,
		Amount:  assets,
	}
	if err = e.commit(ctx, entry, now); err != nil {
		return err
	}
	slog.Info("vault yield donated", "caller", caller.Hex(), "assets", assets.String())
	return nil
}
