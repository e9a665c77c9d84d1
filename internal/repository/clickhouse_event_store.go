package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	domrepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	pkgch "github.com/will1980j/trading-hmm-server-sub001/pkg/clickhouse"
)

// CHTradeEventStore is the append-only trade event log in ClickHouse.
// Rows are never mutated; state is always rebuilt by folding them.
type CHTradeEventStore struct {
	db    *sql.DB
	table string
}

func NewCHTradeEventStore(ch *pkgch.Client, table string) domrepo.TradeEventStore {
	if table == "" {
		table = "trade_events"
	}
	return &CHTradeEventStore{db: ch.DB(), table: table}
}

func (s *CHTradeEventStore) Init(ctx context.Context) error {
	q := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            trade_id LowCardinality(String),
            kind     LowCardinality(String),
            ts       DateTime64(3, 'UTC'),
            seq      Int64,
            payload  String
        ) ENGINE = MergeTree
        ORDER BY (trade_id, ts, seq)
    `, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init trade event store: %w", err)
	}
	return nil
}

// Append stores one event. Seq is assigned from the current per-trade
// maximum; events for one trade arrive serialized on one Kafka partition,
// so the read-then-insert does not race in practice.
func (s *CHTradeEventStore) Append(ctx context.Context, e *models.TradeEvent) error {
	if e.Seq == 0 {
		var maxSeq sql.NullInt64
		q := fmt.Sprintf("SELECT max(seq) FROM %s WHERE trade_id = ?", s.table)
		if err := s.db.QueryRowContext(ctx, q, e.TradeID).Scan(&maxSeq); err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("next seq for %s: %w", e.TradeID, err)
		}
		e.Seq = maxSeq.Int64 + 1
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	q := fmt.Sprintf("INSERT INTO %s (trade_id, kind, ts, seq, payload) VALUES (?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, e.TradeID, string(e.Kind), e.Timestamp, e.Seq, string(payload)); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// EventsForTrade returns the trade's events in fold order (ts, seq).
func (s *CHTradeEventStore) EventsForTrade(ctx context.Context, tradeID string) ([]models.TradeEvent, error) {
	q := fmt.Sprintf("SELECT payload FROM %s WHERE trade_id = ? ORDER BY ts ASC, seq ASC", s.table)
	rows, err := s.db.QueryContext(ctx, q, tradeID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.TradeEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e models.TradeEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode event for %s: %w", tradeID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// OpenTradeIDs lists trades that started after since and carry no
// terminal event yet.
func (s *CHTradeEventStore) OpenTradeIDs(ctx context.Context, since time.Time) ([]string, error) {
	q := fmt.Sprintf(`
        SELECT trade_id
        FROM %s
        GROUP BY trade_id
        HAVING min(ts) >= ?
           AND countIf(kind IN ('exit_break_even', 'exit_stop_loss', 'exit_target', 'cancelled')) = 0
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("query open trades: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trade id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *CHTradeEventStore) Close() error {
	return nil // pool managed by pkg/clickhouse
}
