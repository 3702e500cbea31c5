package api

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/model"
)

func TestMessageFor(t *testing.T) {
	ts := time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)
	alice := common.HexToAddress("0x000000000000000000000000000000000000a11c")
	london, _ := contract.NewCityID("London")

	msg := messageFor(model.LedgerEntry{
		Seq:       4,
		Kind:      model.KindBidPlaced,
		Actor:     alice,
		Account:   alice,
		DrawID:    3,
		Threshold: 21000,
		Amount:    decimal.NewFromInt(25),
		Timestamp: ts,
	})
	if msg.Type != "bid_placed" || msg.Ticker != "WX-3-GT21000" || msg.Amount != "25" {
		t.Errorf("unexpected bid message: %+v", msg)
	}
	if msg.Account != alice.Hex() || msg.Shares != "" {
		t.Errorf("unexpected bid account fields: %+v", msg)
	}

	msg = messageFor(model.LedgerEntry{Seq: 5, Kind: model.KindDrawSettled, DrawID: 3, CityID: london, Temperature: -1250, Timestamp: ts})
	if msg.ActualTemp != "-1.25" || msg.Account != "" || msg.Amount != "" {
		t.Errorf("unexpected settle message: %+v", msg)
	}

	msg = messageFor(model.LedgerEntry{Seq: 1, Kind: model.KindDrawCreated, DrawID: 3, CityID: london, Timestamp: ts})
	if msg.City != "London" || msg.Timestamp != "2026-07-01T15:00:00Z" {
		t.Errorf("unexpected create message: %+v", msg)
	}
}

func TestWSHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewWSHub()
	// Broadcast must not block even when nothing drains the channel.
	for i := 0; i < 300; i++ {
		hub.Publish(model.LedgerEntry{Seq: int64(i + 1), Kind: model.KindDeposit})
	}
}
