package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/model"
)

// schema is the journal table. seq is the replay order; rows are never
// updated or deleted.
const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	seq            BIGINT PRIMARY KEY,
	id             UUID NOT NULL UNIQUE,
	kind           TEXT NOT NULL,
	actor          TEXT NOT NULL,
	account        TEXT NOT NULL,
	draw_id        BIGINT NOT NULL DEFAULT 0,
	target_draw_id BIGINT NOT NULL DEFAULT 0,
	threshold      BIGINT NOT NULL DEFAULT 0,
	amount         NUMERIC NOT NULL DEFAULT 0,
	shares         NUMERIC NOT NULL DEFAULT 0,
	city_id        BYTEA,
	end_time       TIMESTAMPTZ,
	thresholds     BIGINT[],
	temperature    BIGINT NOT NULL DEFAULT 0,
	timestamp      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_draw_idx ON ledger_entries (draw_id);
CREATE INDEX IF NOT EXISTS ledger_entries_actor_idx ON ledger_entries (actor);
CREATE INDEX IF NOT EXISTS ledger_entries_account_idx ON ledger_entries (account);
`

const selectColumns = `SELECT seq, id::TEXT, kind, actor, account, draw_id, target_draw_id, threshold,
        amount::TEXT, shares::TEXT, city_id, end_time, thresholds, temperature, timestamp
 FROM ledger_entries`

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the journal table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEntry(ctx context.Context, e *model.LedgerEntry) error {
	var cityID []byte
	if !e.CityID.IsZero() {
		cityID = e.CityID[:]
	}
	var endTime *time.Time
	if !e.EndTime.IsZero() {
		t := e.EndTime.UTC()
		endTime = &t
	}

	// The row is inserted only if it directly follows the current tail.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_entries (seq, id, kind, actor, account, draw_id, target_draw_id, threshold,
		                             amount, shares, city_id, end_time, thresholds, temperature, timestamp)
		 SELECT $1::BIGINT, $2::UUID, $3::TEXT, $4::TEXT, $5::TEXT, $6::BIGINT, $7::BIGINT, $8::BIGINT,
		        $9::NUMERIC, $10::NUMERIC, $11::BYTEA, $12::TIMESTAMPTZ, $13::BIGINT[], $14::BIGINT, $15::TIMESTAMPTZ
		 WHERE (SELECT COALESCE(MAX(seq), 0) FROM ledger_entries) = $1::BIGINT - 1`,
		e.Seq, e.ID, string(e.Kind), e.Actor.Hex(), e.Account.Hex(),
		int64(e.DrawID), int64(e.TargetDrawID), e.Threshold,
		e.Amount.String(), e.Shares.String(),
		cityID, endTime, e.Thresholds, e.Temperature, e.Timestamp.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: seq %d: %s", ErrSeqConflict, e.Seq, pgErr.Message)
		}
		return fmt.Errorf("append entry %d: %w", e.Seq, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: seq %d does not follow the journal tail", ErrSeqConflict, e.Seq)
	}
	return nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, afterSeq int64) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` WHERE seq > $1 ORDER BY seq`, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetEntriesByDraw(ctx context.Context, drawID uint64) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		selectColumns+` WHERE draw_id = $1 OR target_draw_id = $1 ORDER BY seq`, int64(drawID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetEntriesByAccount(ctx context.Context, account common.Address) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		selectColumns+` WHERE actor = $1 OR account = $1 ORDER BY seq`, account.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// scanLedgerEntries reads pgx rows into LedgerEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var (
			e                    model.LedgerEntry
			kind, actor, account string
			drawID, targetDrawID int64
			amountS, sharesS     string
			cityID               []byte
			endTime              *time.Time
		)

		if err := rows.Scan(&e.Seq, &e.ID, &kind, &actor, &account, &drawID, &targetDrawID, &e.Threshold,
			&amountS, &sharesS, &cityID, &endTime, &e.Thresholds, &e.Temperature, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Kind = model.EntryKind(kind)
		e.Actor = common.HexToAddress(actor)
		e.Account = common.HexToAddress(account)
		e.DrawID = uint64(drawID)
		e.TargetDrawID = uint64(targetDrawID)
		e.Amount, _ = decimal.NewFromString(amountS)
		e.Shares, _ = decimal.NewFromString(sharesS)
		if len(cityID) == contract.CityIDLen {
			copy(e.CityID[:], cityID)
		}
		if endTime != nil {
			e.EndTime = endTime.UTC()
		}
		e.Timestamp = e.Timestamp.UTC()

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
