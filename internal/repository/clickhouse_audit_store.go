package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	domrepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	pkgch "github.com/will1980j/trading-hmm-server-sub001/pkg/clickhouse"
)

// CHAuditStore records gap detections and reconciliation attempts in
// ClickHouse, append-only.
type CHAuditStore struct {
	db         *sql.DB
	gapTable   string
	reconTable string
}

func NewCHAuditStore(ch *pkgch.Client) domrepo.AuditStore {
	return &CHAuditStore{db: ch.DB(), gapTable: "gap_audit", reconTable: "reconciliation_audit"}
}

func (s *CHAuditStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
            CREATE TABLE IF NOT EXISTS %s (
                trade_id    LowCardinality(String),
                gap_type    LowCardinality(String),
                detected_at DateTime64(3, 'UTC'),
                context     String
            ) ENGINE = MergeTree
            ORDER BY (detected_at, trade_id)
        `, s.gapTable),
		fmt.Sprintf(`
            CREATE TABLE IF NOT EXISTS %s (
                trade_id      LowCardinality(String),
                action_type   LowCardinality(String),
                source_tier   Int8,
                fields_filled String,
                confidence    Float64,
                success       UInt8,
                detail        String,
                at            DateTime64(3, 'UTC')
            ) ENGINE = MergeTree
            ORDER BY (at, trade_id)
        `, s.reconTable),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init audit store: %w", err)
		}
	}
	return nil
}

func (s *CHAuditStore) RecordGaps(ctx context.Context, gaps []models.GapRecord) error {
	if len(gaps) == 0 {
		return nil
	}
	values := make([]string, 0, len(gaps))
	args := make([]interface{}, 0, len(gaps)*4)
	for _, g := range gaps {
		gctx, _ := json.Marshal(g.Context)
		values = append(values, "(?, ?, ?, ?)")
		args = append(args, g.TradeID, string(g.Type), g.DetectedAt, string(gctx))
	}
	q := fmt.Sprintf("INSERT INTO %s (trade_id, gap_type, detected_at, context) VALUES %s", s.gapTable, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("record gaps: %w", err)
	}
	return nil
}

func (s *CHAuditStore) RecordReconciliation(ctx context.Context, r *models.ReconciliationRecord) error {
	filled, _ := json.Marshal(r.FieldsFilled)
	success := uint8(0)
	if r.Success {
		success = 1
	}
	q := fmt.Sprintf("INSERT INTO %s (trade_id, action_type, source_tier, fields_filled, confidence, success, detail, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.reconTable)
	if _, err := s.db.ExecContext(ctx, q,
		r.TradeID, string(r.Action), r.SourceTier, string(filled), r.Confidence, success, r.Detail, r.At,
	); err != nil {
		return fmt.Errorf("record reconciliation: %w", err)
	}
	return nil
}

func (s *CHAuditStore) Close() error {
	return nil // pool managed by pkg/clickhouse
}
