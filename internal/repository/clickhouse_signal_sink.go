package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	pkgch "github.com/will1980j/trading-hmm-server-sub001/pkg/clickhouse"
	pkgkafka "github.com/will1980j/trading-hmm-server-sub001/pkg/kafka"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
)

// CHSignalSink persists emitted signals to ClickHouse and, when a producer
// is wired, publishes them to the signals topic keyed by symbol. The
// ReplacingMergeTree key (symbol, ts, direction) is the dedup key: a
// replayed bar re-emitting the same signal collapses to one row.
type CHSignalSink struct {
	db       *sql.DB
	table    string
	producer *pkgkafka.Producer
	topic    string
	l        *applogger.Logger
}

func NewCHSignalSink(ch *pkgch.Client, table string, producer *pkgkafka.Producer, topic string, l *applogger.Logger) *CHSignalSink {
	if table == "" {
		table = "signals"
	}
	return &CHSignalSink{db: ch.DB(), table: table, producer: producer, topic: topic, l: l}
}

func (s *CHSignalSink) Init(ctx context.Context) error {
	q := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol        LowCardinality(String),
            ts            DateTime64(3, 'UTC'),
            direction     LowCardinality(String),
            biases        String,
            alignment     String,
            filters       String,
            logic_version LowCardinality(String)
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, ts, direction)
    `, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init signal sink: %w", err)
	}
	return nil
}

func (s *CHSignalSink) Emit(ctx context.Context, sig *models.SignalEvent) error {
	biases, _ := json.Marshal(sig.Biases)
	align, _ := json.Marshal(sig.Alignment)
	filters, _ := json.Marshal(sig.Filters)

	q := fmt.Sprintf("INSERT INTO %s (symbol, ts, direction, biases, alignment, filters, logic_version) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q,
		sig.Symbol, sig.Ts, string(sig.Direction),
		string(biases), string(align), string(filters), sig.LogicVersion,
	); err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}

	if s.producer != nil {
		if err := s.producer.Publish(ctx, s.topic, []byte(sig.Symbol), sig); err != nil {
			// durable row exists; publication is retried by downstream backfill
			if s.l != nil {
				s.l.Warn("signal publish failed",
					applogger.String("symbol", sig.Symbol),
					applogger.String("key", sig.DedupKey()),
					applogger.Error(err),
				)
			}
		}
	}
	return nil
}

func (s *CHSignalSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
