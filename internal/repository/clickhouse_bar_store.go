package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	domrepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	pkgch "github.com/will1980j/trading-hmm-server-sub001/pkg/clickhouse"
)

// CHBarStore implements BarStore backed by ClickHouse. One-minute bars are
// append-only; ReplacingMergeTree collapses feed replays by (symbol, ts).
type CHBarStore struct {
	db    *sql.DB
	table string
}

func NewCHBarStore(ch *pkgch.Client, table string) domrepo.BarStore {
	if table == "" {
		table = "bars_1m"
	}
	return &CHBarStore{db: ch.DB(), table: table}
}

func (s *CHBarStore) Init(ctx context.Context) error {
	q := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol LowCardinality(String),
            ts     DateTime64(3, 'UTC'),
            open   Float64,
            high   Float64,
            low    Float64,
            close  Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, ts)
    `, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init bar store: %w", err)
	}
	return nil
}

func (s *CHBarStore) Store(ctx context.Context, b *models.Bar) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, ts, open, high, low, close) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q, b.Symbol, b.Ts, b.Open, b.High, b.Low, b.Close)
	return err
}

func (s *CHBarStore) StoreBatch(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	// Multi-row VALUES to reduce round-trips; 2000 rows per chunk.
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, b := range bars[start:end] {
			if b == nil || b.Symbol == "" || b.Ts.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, b.Symbol, b.Ts, b.Open, b.High, b.Low, b.Close)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, ts, open, high, low, close) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

// Query returns bars ascending by timestamp, the order engines fold in.
func (s *CHBarStore) Query(ctx context.Context, symbol string, from, to time.Time) ([]*models.Bar, error) {
	q := fmt.Sprintf(`
        SELECT symbol, ts, open, high, low, close
        FROM %s FINAL
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []*models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Symbol, &b.Ts, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

func (s *CHBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHBarStore) Close() error {
	return nil // pool managed by pkg/clickhouse
}
