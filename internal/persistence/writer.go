package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"perpmarket/internal/event"
)

// EventLogWriter writes engine events to Postgres using multi-row batch
// inserts. Multi-row INSERT is a portable alternative to COPY; switch to pgx
// CopyFrom if write throughput ever becomes the bottleneck.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in market_log.events.
type EventRow struct {
	Sequence  int64
	EventType string
	MarketID  string
	Payload   []byte // JSON-encoded event payload
	Timestamp time.Time
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// RowFromEnvelope flattens an engine envelope into its storage row.
func RowFromEnvelope(env event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload seq=%d: %w", env.Sequence, err)
	}
	return EventRow{
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		MarketID:  env.MarketID,
		Payload:   payload,
		Timestamp: env.Timestamp,
	}, nil
}

// WriteEventBatch writes a batch of events inside the given transaction
// using a single multi-row INSERT. The sequence conflict clause makes
// replays after a crash idempotent.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, events []EventRow, tx *sql.Tx) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO market_log.events
		(sequence, event_type, market_id, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*5)

	for i, e := range events {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, e.Sequence, e.EventType, e.MarketID, e.Payload, e.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// SettlementRow represents a row in market_log.settlements, a flat
// projection of OrderSettled events for fill history queries.
type SettlementRow struct {
	Sequence  int64
	MarketID  string
	AccountID uuid.UUID
	FillPrice decimal.Decimal
	SizeDelta decimal.Decimal
	Fee       decimal.Decimal
	KeeperFee decimal.Decimal
	Timestamp time.Time
}

// SettlementRowFromEnvelope extracts the settlement projection from an
// envelope. The second return is false for every other event type.
func SettlementRowFromEnvelope(env event.Envelope) (SettlementRow, bool) {
	settled, ok := env.Payload.(*event.OrderSettled)
	if !ok {
		return SettlementRow{}, false
	}
	return SettlementRow{
		Sequence:  env.Sequence,
		MarketID:  settled.MarketID,
		AccountID: settled.AccountID,
		FillPrice: settled.FillPrice,
		SizeDelta: settled.SizeDelta,
		Fee:       settled.Fee,
		KeeperFee: settled.KeeperFee,
		Timestamp: env.Timestamp,
	}, true
}

// WriteSettlementBatch writes settlement projection rows inside the given
// transaction, with the same idempotent conflict clause as the event log.
func (w *EventLogWriter) WriteSettlementBatch(ctx context.Context, rows []SettlementRow, tx *sql.Tx) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO market_log.settlements
		(sequence, market_id, account_id, fill_price, size_delta, fee, keeper_fee, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*8)

	for i, r := range rows {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args, r.Sequence, r.MarketID, r.AccountID,
			r.FillPrice.String(), r.SizeDelta.String(), r.Fee.String(), r.KeeperFee.String(), r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted sequence, or zero on an empty
// log.
func (w *EventLogWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM market_log.events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}
