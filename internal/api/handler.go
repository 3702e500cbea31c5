// Package api provides the HTTP handlers for creating and funding draws,
// staking, settlement, claims and the ticket vault.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/engine"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/registry"
	"github.com/atmx/settlement-engine/internal/vault"
)

// ReadingRecorder stores oracle readings entered by the operator.
type ReadingRecorder interface {
	Set(city contract.CityID, windowEnd time.Time, milliC int64)
}

// Handler exposes an Engine over HTTP.
type Handler struct {
	eng      *engine.Engine
	readings ReadingRecorder
}

// NewHandler creates a handler for eng.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{eng: eng}
}

// WithReadings enables POST /oracle/readings, through which the operator
// records the temperatures rec serves to settlement.
func (h *Handler) WithReadings(rec ReadingRecorder) *Handler {
	h.readings = rec
	return h
}

// Routes registers the API routes on r. The caller mounts them under
// /api/v1 and installs the Auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/info", h.Info)

	r.Get("/draws", h.ListDraws)
	r.Post("/draws", h.CreateDraw)
	r.Route("/draws/{drawID}", func(r chi.Router) {
		r.Get("/", h.GetDraw)
		r.Get("/thresholds", h.GetThresholds)
		r.Get("/thresholds/{threshold}/total", h.GetTotalShares)
		r.Get("/users/{account}", h.GetUserPosition)
		r.Get("/claims/{account}", h.GetClaimed)
		r.Get("/history", h.GetDrawHistory)

		r.Post("/fund", h.FundPot)
		r.Post("/bids", h.PlaceBid)
		r.Post("/settle", h.Settle)
		r.Post("/claim", h.Claim)
		r.Post("/rollover", h.RolloverPot)
	})
	r.Get("/tickers/{symbol}", h.GetTicker)
	r.Get("/accounts/{account}/history", h.GetAccountHistory)

	r.Get("/vault", h.GetVault)
	r.Get("/vault/preview", h.PreviewVault)
	r.Get("/vault/balances/{account}", h.GetBalances)
	r.Post("/vault/deposit", h.Deposit)
	r.Post("/vault/mint", h.Mint)
	r.Post("/vault/redeem", h.Redeem)
	r.Post("/vault/donate", h.Donate)
	r.Post("/vault/credit", h.CreditAssets)

	if h.readings != nil {
		r.Post("/oracle/readings", h.RecordReading)
	}
}

// --- Request/Response types ---

// Threshold is a temperature threshold in milli-°C. In JSON it is either
// an integer number of milli-degrees (20500) or a decimal string in degrees
// ("20.5").
type Threshold int64

func (t *Threshold) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := contract.ParseCelsius(s)
		if err != nil {
			return err
		}
		*t = Threshold(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return contract.ErrInvalidTemperature
	}
	*t = Threshold(n)
	return nil
}

// ThresholdSet is the threshold list of a new draw. An element that does
// not decode fails the whole set.
type ThresholdSet []Threshold

func (ts *ThresholdSet) UnmarshalJSON(data []byte) error {
	var list []Threshold
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: %v", registry.ErrInvalidThresholds, err)
	}
	*ts = list
	return nil
}

// CreateDrawRequest is the JSON body for POST /draws.
type CreateDrawRequest struct {
	CityID     contract.CityID `json:"city_id"` // name or 0x-prefixed bytes32
	EndTime    time.Time       `json:"end_time"`
	Thresholds ThresholdSet    `json:"thresholds"`
}

// AmountRequest is the JSON body for POST /draws/{drawID}/fund and
// /vault/donate.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// BidRequest is the JSON body for POST /draws/{drawID}/bids. The threshold
// may be given directly or as a ticker symbol.
type BidRequest struct {
	Threshold *Threshold      `json:"threshold,omitempty"`
	Ticker    string          `json:"ticker,omitempty"` // WX-{drawID}-GT{milliC}
	Shares    decimal.Decimal `json:"shares"`
}

// RolloverRequest is the JSON body for POST /draws/{drawID}/rollover.
type RolloverRequest struct {
	TargetDrawID uint64 `json:"target_draw_id"`
}

// VaultRequest is the JSON body for the vault mutations. Receiver and Owner
// default to the caller.
type VaultRequest struct {
	Assets   decimal.Decimal `json:"assets"`
	Shares   decimal.Decimal `json:"shares"`
	Owner    common.Address  `json:"owner"`
	Receiver common.Address  `json:"receiver"`
}

// CreditRequest is the JSON body for POST /vault/credit.
type CreditRequest struct {
	Account common.Address  `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// ReadingRequest is the JSON body for POST /oracle/readings.
type ReadingRequest struct {
	CityID      contract.CityID `json:"city_id"`
	WindowEnd   time.Time       `json:"window_end"`
	Temperature *Threshold      `json:"temperature"`
}

// DrawResponse is a draw with its per-threshold sub-markets.
type DrawResponse struct {
	*model.Draw
	ActualTempC string                  `json:"actual_temp_c,omitempty"`
	Markets     []model.ThresholdMarket `json:"markets"`
}

// BalancesResponse reports an account's vault balances.
type BalancesResponse struct {
	Account common.Address  `json:"account"`
	Tickets decimal.Decimal `json:"tickets"`
	Assets  decimal.Decimal `json:"assets"`
}

// RolloverResponse reports a pot rollover.
type RolloverResponse struct {
	Moved decimal.Decimal `json:"moved"`
	From  *DrawResponse   `json:"from"`
	To    *DrawResponse   `json:"to"`
}

// --- Read handlers ---

// Info handles GET /api/v1/info
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":   h.eng.Owner(),
		"tickets": h.eng.Tickets(),
		"custody": h.eng.Custody(),
		"seq":     h.eng.Seq(),
	})
}

// ListDraws handles GET /api/v1/draws
// Optional ?status=open|settled filter.
func (h *Handler) ListDraws(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	draws := make([]model.Draw, 0)
	for _, d := range h.eng.ListDraws() {
		switch {
		case status == "open" && d.Settled, status == "settled" && !d.Settled:
			continue
		}
		draws = append(draws, d)
	}
	writeJSON(w, http.StatusOK, draws)
}

// GetDraw handles GET /api/v1/draws/{drawID}
func (h *Handler) GetDraw(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	resp, err := h.drawResponse(drawID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetThresholds handles GET /api/v1/draws/{drawID}/thresholds
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	ts, err := h.eng.GetThresholds(drawID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

// GetTotalShares handles GET /api/v1/draws/{drawID}/thresholds/{threshold}/total
func (h *Handler) GetTotalShares(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	threshold, err := strconv.ParseInt(chi.URLParam(r, "threshold"), 10, 64)
	if err != nil {
		writeError(w, contract.ErrInvalidTemperature)
		return
	}
	total, err := h.eng.GetTotalShares(drawID, threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":       contract.FormatTicker(drawID, threshold),
		"threshold":    threshold,
		"total_shares": total,
	})
}

// GetTicker handles GET /api/v1/tickers/{symbol}
func (h *Handler) GetTicker(w http.ResponseWriter, r *http.Request) {
	tk, err := contract.ParseTicker(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	markets, err := h.eng.Markets(tk.DrawID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, m := range markets {
		if m.Threshold == tk.Threshold {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeMessage(w, "ticker not offered by draw", "InvalidThreshold", http.StatusNotFound)
}

// GetUserPosition handles GET /api/v1/draws/{drawID}/users/{account}
func (h *Handler) GetUserPosition(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	pos, err := h.eng.UserPosition(drawID, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// GetClaimed handles GET /api/v1/draws/{drawID}/claims/{account}
func (h *Handler) GetClaimed(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	claimed, err := h.eng.Claimed(drawID, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"claimed": claimed})
}

// GetDrawHistory handles GET /api/v1/draws/{drawID}/history
// Returns journal entries to reconstruct the draw's history.
func (h *Handler) GetDrawHistory(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	entries, err := h.eng.DrawHistory(r.Context(), drawID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetAccountHistory handles GET /api/v1/accounts/{account}/history
func (h *Handler) GetAccountHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	entries, err := h.eng.AccountHistory(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetVault handles GET /api/v1/vault
func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.VaultState())
}

// PreviewVault handles GET /api/v1/vault/preview
// ?assets=N quotes the tickets a deposit would mint, ?shares=N the assets a
// redemption would pay, at the current exchange rate.
func (h *Handler) PreviewVault(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Has("assets"):
		assets, err := queryAmount(q.Get("assets"))
		if err != nil {
			writeError(w, err)
			return
		}
		shares, err := h.eng.PreviewDeposit(assets)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"assets": assets, "shares": shares})
	case q.Has("shares"):
		shares, err := queryAmount(q.Get("shares"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"assets": h.eng.PreviewRedeem(shares), "shares": shares})
	default:
		writeMessage(w, "assets or shares is required", "InvalidAmount", http.StatusBadRequest)
	}
}

// GetBalances handles GET /api/v1/vault/balances/{account}
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.balances(account))
}

// --- Draw mutations ---

// CreateDraw handles POST /api/v1/draws
func (h *Handler) CreateDraw(w http.ResponseWriter, r *http.Request) {
	var req CreateDrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	thresholds := make([]int64, len(req.Thresholds))
	for i, t := range req.Thresholds {
		thresholds[i] = int64(t)
	}

	id, err := h.eng.CreateDraw(r.Context(), CallerFrom(r.Context()), req.CityID, req.EndTime, thresholds)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondDraw(w, http.StatusCreated, id)
}

// FundPot handles POST /api/v1/draws/{drawID}/fund
func (h *Handler) FundPot(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.eng.FundPot(r.Context(), CallerFrom(r.Context()), drawID, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	h.respondDraw(w, http.StatusOK, drawID)
}

// PlaceBid handles POST /api/v1/draws/{drawID}/bids
// Returns the caller's updated position in the draw.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	var req BidRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var threshold int64
	switch {
	case req.Ticker != "":
		tk, err := contract.ParseTicker(req.Ticker)
		if err != nil {
			writeError(w, err)
			return
		}
		if tk.DrawID != drawID {
			writeMessage(w, "ticker "+req.Ticker+" belongs to another draw", "InvalidThreshold", http.StatusBadRequest)
			return
		}
		threshold = tk.Threshold
	case req.Threshold != nil:
		threshold = int64(*req.Threshold)
	default:
		writeMessage(w, "threshold or ticker is required", "InvalidThreshold", http.StatusBadRequest)
		return
	}

	caller := CallerFrom(r.Context())
	if err := h.eng.PlaceBid(r.Context(), caller, drawID, threshold, req.Shares); err != nil {
		writeError(w, err)
		return
	}
	pos, err := h.eng.UserPosition(drawID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// Settle handles POST /api/v1/draws/{drawID}/settle
// Any identified caller may settle; a missing oracle reading is reported
// as 503 and can be retried.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	if _, err := h.eng.Settle(r.Context(), CallerFrom(r.Context()), drawID); err != nil {
		writeError(w, err)
		return
	}
	h.respondDraw(w, http.StatusOK, drawID)
}

// Claim handles POST /api/v1/draws/{drawID}/claim
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	payout, err := h.eng.Claim(r.Context(), CallerFrom(r.Context()), drawID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

// RolloverPot handles POST /api/v1/draws/{drawID}/rollover
func (h *Handler) RolloverPot(w http.ResponseWriter, r *http.Request) {
	drawID, ok := drawIDParam(w, r)
	if !ok {
		return
	}
	var req RolloverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	moved, err := h.eng.RolloverPot(r.Context(), CallerFrom(r.Context()), drawID, req.TargetDrawID)
	if err != nil {
		writeError(w, err)
		return
	}
	from, err := h.drawResponse(drawID)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := h.drawResponse(req.TargetDrawID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RolloverResponse{Moved: moved, From: from, To: to})
}

// --- Vault mutations ---

// Deposit handles POST /api/v1/vault/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req VaultRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller := CallerFrom(r.Context())
	receiver := orDefault(req.Receiver, caller)

	shares, err := h.eng.Deposit(r.Context(), caller, req.Assets, receiver)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assets":   req.Assets,
		"shares":   shares,
		"receiver": receiver,
	})
}

// Mint handles POST /api/v1/vault/mint
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req VaultRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller := CallerFrom(r.Context())
	receiver := orDefault(req.Receiver, caller)

	assets, err := h.eng.Mint(r.Context(), caller, req.Shares, receiver)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assets":   assets,
		"shares":   req.Shares,
		"receiver": receiver,
	})
}

// Redeem handles POST /api/v1/vault/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req VaultRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller := CallerFrom(r.Context())
	owner := orDefault(req.Owner, caller)
	receiver := orDefault(req.Receiver, caller)

	assets, err := h.eng.Redeem(r.Context(), caller, req.Shares, owner, receiver)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assets":   assets,
		"shares":   req.Shares,
		"receiver": receiver,
	})
}

// Donate handles POST /api/v1/vault/donate
func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.eng.DonateYield(r.Context(), CallerFrom(r.Context()), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.VaultState())
}

// CreditAssets handles POST /api/v1/vault/credit (operator only)
func (h *Handler) CreditAssets(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.eng.CreditAssets(r.Context(), CallerFrom(r.Context()), req.Account, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.balances(req.Account))
}

// --- Oracle ---

// RecordReading handles POST /api/v1/oracle/readings (operator only)
func (h *Handler) RecordReading(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	switch {
	case caller == (common.Address{}):
		writeError(w, engine.ErrNoCaller)
		return
	case caller != h.eng.Owner():
		writeError(w, fmt.Errorf("%w: %s", registry.ErrUnauthorized, caller.Hex()))
		return
	}

	var req ReadingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Temperature == nil {
		writeError(w, fmt.Errorf("%w: temperature is required", contract.ErrInvalidTemperature))
		return
	}
	if req.WindowEnd.IsZero() {
		writeMessage(w, "window_end is required", "InvalidRequest", http.StatusBadRequest)
		return
	}

	milliC := int64(*req.Temperature)
	h.readings.Set(req.CityID, req.WindowEnd, milliC)
	writeJSON(w, http.StatusOK, map[string]any{
		"city_id":       req.CityID,
		"window_end":    req.WindowEnd,
		"temperature":   milliC,
		"temperature_c": contract.FormatCelsius(milliC),
	})
}

// --- Helpers ---

func (h *Handler) drawResponse(drawID uint64) (*DrawResponse, error) {
	d, err := h.eng.GetDraw(drawID)
	if err != nil {
		return nil, err
	}
	markets, err := h.eng.Markets(drawID)
	if err != nil {
		return nil, err
	}
	resp := &DrawResponse{Draw: d, Markets: markets}
	if d.Settled {
		resp.ActualTempC = contract.FormatCelsius(d.ActualTemp)
	}
	return resp, nil
}

func (h *Handler) respondDraw(w http.ResponseWriter, status int, drawID uint64) {
	resp, err := h.drawResponse(drawID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, resp)
}

func (h *Handler) balances(account common.Address) BalancesResponse {
	return BalancesResponse{
		Account: account,
		Tickets: h.eng.BalanceOf(account),
		Assets:  h.eng.AssetBalance(account),
	}
}

func orDefault(a, def common.Address) common.Address {
	if a == (common.Address{}) {
		return def
	}
	return a
}

func queryAmount(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", vault.ErrInvalidAmount, s)
	}
	if err := vault.CheckAmount(v); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

func drawIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "drawID"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, registry.ErrDrawNotFound)
		return 0, false
	}
	return id, true
}

func accountParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	s := chi.URLParam(r, "account")
	if !common.IsHexAddress(s) {
		writeError(w, engine.ErrInvalidAccount)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// decodeBody decodes a JSON request body. Field-level encoding errors keep
// their failure code; anything else is a malformed request.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if engine.Code(err) != "Internal" {
			writeError(w, err)
		} else {
			writeMessage(w, "invalid request body", "InvalidRequest", http.StatusBadRequest)
		}
		return false
	}
	return true
}

// statusFor maps a failure to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNoCaller):
		return http.StatusUnauthorized
	case errors.Is(err, registry.ErrDrawNotFound):
		return http.StatusNotFound
	}
	switch engine.ErrorClass(err) {
	case engine.ClassAuthorization:
		return http.StatusForbidden
	case engine.ClassValidation:
		return http.StatusBadRequest
	case engine.ClassState:
		return http.StatusConflict
	case engine.ClassResource:
		return http.StatusUnprocessableEntity
	case engine.ClassExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response for an engine failure.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeMessage(w, msg, engine.Code(err), status)
}

// writeMessage writes a JSON error response.
func writeMessage(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
