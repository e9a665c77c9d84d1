package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	domrepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
)

// PGStateStore is the canonical trade-state table in Postgres. Upsert
// writes the full re-folded state; FillMissing applies the fill-if-null
// discipline for reconciliation writes, so a field already holding a
// value is never overwritten.
type PGStateStore struct {
	pool *pgxpool.Pool
}

func NewPGStateStore(pool *pgxpool.Pool) domrepo.TradeStateStore {
	return &PGStateStore{pool: pool}
}

func (s *PGStateStore) Init(ctx context.Context) error {
	q := `
        CREATE TABLE IF NOT EXISTS trade_states (
            trade_id             TEXT PRIMARY KEY,
            direction            TEXT NOT NULL,
            session              TEXT,
            status               TEXT NOT NULL,
            entry_price          DOUBLE PRECISION,
            stop_loss            DOUBLE PRECISION,
            risk_distance        DOUBLE PRECISION,
            current_be_mfe       DOUBLE PRECISION,
            current_no_be_mfe    DOUBLE PRECISION,
            max_be_mfe           DOUBLE PRECISION,
            max_no_be_mfe        DOUBLE PRECISION,
            mae                  DOUBLE PRECISION,
            exit_price           DOUBLE PRECISION,
            final_mfe            DOUBLE PRECISION,
            completed_by         TEXT,
            signal_date          TEXT,
            signal_time          TEXT,
            confirmation_time    TIMESTAMPTZ,
            bars_to_confirmation INTEGER,
            htf_alignment        JSONB,
            targets              JSONB,
            last_mfe_at          TIMESTAMPTZ,
            last_event_at        TIMESTAMPTZ NOT NULL,
            event_count          INTEGER NOT NULL DEFAULT 0
        )`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("init state store: %w", err)
	}
	return nil
}

func (s *PGStateStore) Upsert(ctx context.Context, st *models.TradeState) error {
	alignment, err := jsonOrNil(st.HTFAlignment)
	if err != nil {
		return err
	}
	targets, err := jsonOrNil(st.Targets)
	if err != nil {
		return err
	}

	q := `
        INSERT INTO trade_states (
            trade_id, direction, session, status,
            entry_price, stop_loss, risk_distance,
            current_be_mfe, current_no_be_mfe, max_be_mfe, max_no_be_mfe, mae,
            exit_price, final_mfe, completed_by,
            signal_date, signal_time, confirmation_time, bars_to_confirmation,
            htf_alignment, targets, last_mfe_at, last_event_at, event_count
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
            $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24
        )
        ON CONFLICT (trade_id) DO UPDATE SET
            direction            = EXCLUDED.direction,
            session              = COALESCE(EXCLUDED.session, trade_states.session),
            status               = EXCLUDED.status,
            entry_price          = COALESCE(EXCLUDED.entry_price, trade_states.entry_price),
            stop_loss            = COALESCE(EXCLUDED.stop_loss, trade_states.stop_loss),
            risk_distance        = COALESCE(EXCLUDED.risk_distance, trade_states.risk_distance),
            current_be_mfe       = COALESCE(EXCLUDED.current_be_mfe, trade_states.current_be_mfe),
            current_no_be_mfe    = COALESCE(EXCLUDED.current_no_be_mfe, trade_states.current_no_be_mfe),
            max_be_mfe           = COALESCE(EXCLUDED.max_be_mfe, trade_states.max_be_mfe),
            max_no_be_mfe        = COALESCE(EXCLUDED.max_no_be_mfe, trade_states.max_no_be_mfe),
            mae                  = COALESCE(EXCLUDED.mae, trade_states.mae),
            exit_price           = COALESCE(EXCLUDED.exit_price, trade_states.exit_price),
            final_mfe            = COALESCE(EXCLUDED.final_mfe, trade_states.final_mfe),
            completed_by         = COALESCE(EXCLUDED.completed_by, trade_states.completed_by),
            signal_date          = COALESCE(EXCLUDED.signal_date, trade_states.signal_date),
            signal_time          = COALESCE(EXCLUDED.signal_time, trade_states.signal_time),
            confirmation_time    = COALESCE(EXCLUDED.confirmation_time, trade_states.confirmation_time),
            bars_to_confirmation = COALESCE(EXCLUDED.bars_to_confirmation, trade_states.bars_to_confirmation),
            htf_alignment        = COALESCE(EXCLUDED.htf_alignment, trade_states.htf_alignment),
            targets              = COALESCE(EXCLUDED.targets, trade_states.targets),
            last_mfe_at          = COALESCE(EXCLUDED.last_mfe_at, trade_states.last_mfe_at),
            last_event_at        = EXCLUDED.last_event_at,
            event_count          = EXCLUDED.event_count`
	_, err = s.pool.Exec(ctx, q,
		st.TradeID, string(st.Direction), st.Session, string(st.Status),
		st.EntryPrice, st.StopLoss, st.RiskDistance,
		st.CurrentBeMfe, st.CurrentNoBeMfe, st.MaxBeMfe, st.MaxNoBeMfe, st.Mae,
		st.ExitPrice, st.FinalMfe, st.CompletedBy,
		st.SignalDate, st.SignalTime, st.ConfirmedAt, st.BarsToConfirm,
		alignment, targets, st.LastMfeAt, st.LastEventAt, st.EventCount,
	)
	if err != nil {
		return fmt.Errorf("upsert state %s: %w", st.TradeID, err)
	}
	return nil
}

// fillableColumns whitelists the columns reconciliation may write. Field
// keys map one-to-one onto column names.
var fillableColumns = map[string]bool{
	"session":              true,
	"signal_date":          true,
	"signal_time":          true,
	"htf_alignment":        true,
	"targets":              true,
	"confirmation_time":    true,
	"bars_to_confirmation": true,
	"current_be_mfe":       true,
	"current_no_be_mfe":    true,
	"mae":                  true,
	"entry_price":          true,
	"stop_loss":            true,
}

// FillMissing writes each field only if the column is currently NULL and
// reports which columns were actually filled. Each write guards itself
// with `WHERE col IS NULL`, so a concurrent filler or re-fold that got
// there first keeps its value.
func (s *PGStateStore) FillMissing(ctx context.Context, tradeID string, fields map[string]any) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	for k := range fields {
		if !fillableColumns[k] {
			return nil, fmt.Errorf("fill missing: column %q not fillable", k)
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin fill tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var filled []string
	for col, val := range fields {
		arg := val
		switch v := val.(type) {
		case map[string]string:
			b, merr := json.Marshal(v)
			if merr != nil {
				return nil, fmt.Errorf("marshal %s: %w", col, merr)
			}
			arg = b
		case map[string]float64:
			b, merr := json.Marshal(v)
			if merr != nil {
				return nil, fmt.Errorf("marshal %s: %w", col, merr)
			}
			arg = b
		}
		q := fmt.Sprintf("UPDATE trade_states SET %s = $1 WHERE trade_id = $2 AND %s IS NULL", col, col)
		tag, uerr := tx.Exec(ctx, q, arg, tradeID)
		if uerr != nil {
			return nil, fmt.Errorf("fill %s on %s: %w", col, tradeID, uerr)
		}
		if tag.RowsAffected() > 0 {
			filled = append(filled, col)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit fill tx: %w", err)
	}
	return filled, nil
}

func (s *PGStateStore) Get(ctx context.Context, tradeID string) (*models.TradeState, error) {
	row := s.pool.QueryRow(ctx, selectStateQuery+" WHERE trade_id = $1", tradeID)
	st, err := scanState(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return st, err
}

func (s *PGStateStore) ListOpen(ctx context.Context) ([]*models.TradeState, error) {
	rows, err := s.pool.Query(ctx, selectStateQuery+" WHERE status IN ('active', 'be_protected') ORDER BY trade_id")
	if err != nil {
		return nil, fmt.Errorf("list open states: %w", err)
	}
	defer rows.Close()

	var states []*models.TradeState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func (s *PGStateStore) Close() error {
	s.pool.Close()
	return nil
}

const selectStateQuery = `
    SELECT trade_id, direction, session, status,
           entry_price, stop_loss, risk_distance,
           current_be_mfe, current_no_be_mfe, max_be_mfe, max_no_be_mfe, mae,
           exit_price, final_mfe, completed_by,
           signal_date, signal_time, confirmation_time, bars_to_confirmation,
           htf_alignment, targets, last_mfe_at, last_event_at, event_count
    FROM trade_states`

func scanState(row pgx.Row) (*models.TradeState, error) {
	var st models.TradeState
	var direction, status string
	var alignment, targets []byte
	if err := row.Scan(
		&st.TradeID, &direction, &st.Session, &status,
		&st.EntryPrice, &st.StopLoss, &st.RiskDistance,
		&st.CurrentBeMfe, &st.CurrentNoBeMfe, &st.MaxBeMfe, &st.MaxNoBeMfe, &st.Mae,
		&st.ExitPrice, &st.FinalMfe, &st.CompletedBy,
		&st.SignalDate, &st.SignalTime, &st.ConfirmedAt, &st.BarsToConfirm,
		&alignment, &targets, &st.LastMfeAt, &st.LastEventAt, &st.EventCount,
	); err != nil {
		return nil, err
	}
	st.Direction = models.TradeDirection(direction)
	st.Status = models.TradeStatus(status)
	if len(alignment) > 0 {
		if err := json.Unmarshal(alignment, &st.HTFAlignment); err != nil {
			return nil, fmt.Errorf("decode htf_alignment for %s: %w", st.TradeID, err)
		}
	}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &st.Targets); err != nil {
			return nil, fmt.Errorf("decode targets for %s: %w", st.TradeID, err)
		}
	}
	return &st, nil
}

func jsonOrNil(v any) (any, error) {
	switch m := v.(type) {
	case map[string]string:
		if len(m) == 0 {
			return nil, nil
		}
	case map[string]float64:
		if len(m) == 0 {
			return nil, nil
		}
	default:
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return b, nil
}
