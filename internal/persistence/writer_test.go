package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"perpmarket/internal/event"
	"perpmarket/internal/persistence"
	"perpmarket/internal/testutil"
)

func TestRowFromEnvelope(t *testing.T) {
	env := event.Envelope{
		Sequence:  42,
		EventType: event.EventTypeOrderSettled,
		MarketID:  "ETHPERP",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload: &event.OrderSettled{
			MarketID:  "ETHPERP",
			FillPrice: decimal.RequireFromString("2000.01"),
			SizeDelta: decimal.RequireFromString("1.5"),
			Fee:       decimal.RequireFromString("1.8"),
			KeeperFee: decimal.RequireFromString("7"),
		},
	}

	row, err := persistence.RowFromEnvelope(env)
	if err != nil {
		t.Fatalf("RowFromEnvelope: %v", err)
	}

	if row.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", row.Sequence)
	}
	if row.EventType != "OrderSettled" {
		t.Errorf("event_type: got %s, want OrderSettled", row.EventType)
	}
	if row.MarketID != "ETHPERP" {
		t.Errorf("market_id: got %s, want ETHPERP", row.MarketID)
	}
	if len(row.Payload) == 0 {
		t.Error("payload should not be empty")
	}
}

func TestSettlementRowFromEnvelope(t *testing.T) {
	acct := uuid.New()
	env := event.Envelope{
		Sequence:  7,
		EventType: event.EventTypeOrderSettled,
		MarketID:  "ETHPERP",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload: &event.OrderSettled{
			AccountID: acct,
			MarketID:  "ETHPERP",
			FillPrice: decimal.RequireFromString("2000.01"),
			SizeDelta: decimal.RequireFromString("1.5"),
			Fee:       decimal.RequireFromString("1.8"),
			KeeperFee: decimal.RequireFromString("7"),
		},
	}

	row, ok := persistence.SettlementRowFromEnvelope(env)
	if !ok {
		t.Fatal("OrderSettled envelope did not yield a settlement row")
	}
	if row.Sequence != 7 || row.AccountID != acct || row.MarketID != "ETHPERP" {
		t.Errorf("settlement row = %+v", row)
	}
	if !row.FillPrice.Equal(decimal.RequireFromString("2000.01")) {
		t.Errorf("fill price: got %s, want 2000.01", row.FillPrice)
	}

	env.EventType = event.EventTypeOrderCommitted
	env.Payload = &event.OrderCommitted{MarketID: "ETHPERP"}
	if _, ok := persistence.SettlementRowFromEnvelope(env); ok {
		t.Error("non-settlement envelope yielded a settlement row")
	}
}

func TestWriteEventBatch_Idempotent(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewEventLogWriter(db)
	batch := []persistence.EventRow{
		{Sequence: 1, EventType: "OrderCommitted", MarketID: "ETHPERP", Payload: []byte(`{}`), Timestamp: time.Now()},
		{Sequence: 2, EventType: "OrderSettled", MarketID: "ETHPERP", Payload: []byte(`{}`), Timestamp: time.Now()},
	}

	writeBatch := func() {
		t.Helper()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		if err := writer.WriteEventBatch(ctx, batch, tx); err != nil {
			tx.Rollback()
			t.Fatalf("write batch: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	// Writing the same batch twice must not duplicate rows.
	writeBatch()
	writeBatch()

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM market_log.events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("row count: got %d, want 2", count)
	}

	last, err := writer.LastSequence(ctx)
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if last != 2 {
		t.Errorf("last sequence: got %d, want 2", last)
	}
}

func TestWriteSettlementBatch(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewEventLogWriter(db)
	rows := []persistence.SettlementRow{
		{
			Sequence:  10,
			MarketID:  "ETHPERP",
			AccountID: uuid.New(),
			FillPrice: decimal.RequireFromString("2000.01"),
			SizeDelta: decimal.RequireFromString("1.5"),
			Fee:       decimal.RequireFromString("1.8"),
			KeeperFee: decimal.RequireFromString("7"),
			Timestamp: time.Now(),
		},
	}

	writeRows := func() {
		t.Helper()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		if err := writer.WriteSettlementBatch(ctx, rows, tx); err != nil {
			tx.Rollback()
			t.Fatalf("write settlements: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	writeRows()
	writeRows()

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM market_log.settlements`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("settlement rows: got %d, want 1", count)
	}

	var fillPrice string
	err := db.QueryRowContext(ctx,
		`SELECT fill_price::text FROM market_log.settlements WHERE sequence = 10`).Scan(&fillPrice)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !decimal.RequireFromString(fillPrice).Equal(rows[0].FillPrice) {
		t.Errorf("fill price round trip: got %s, want %s", fillPrice, rows[0].FillPrice)
	}
}
