package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// HedgeStore implements domain.TradeStore on the hedge_* tables.
type HedgeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*HedgeStore)(nil)

// NewHedgeStore creates a store backed by the given pool.
func NewHedgeStore(pool *pgxpool.Pool) *HedgeStore {
	return &HedgeStore{pool: pool}
}

// SaveTrade inserts one settled paired trade. Replays of the same trade ID
// are skipped.
func (s *HedgeStore) SaveTrade(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO hedge_trades (
			id, session_id, instrument, direction,
			spot_venue, contract_venue,
			spot_filled, contract_filled,
			spot_avg_price, contract_avg_price,
			spot_fee_quote, contract_fee_quote,
			spread, spot_slip_bps, contract_slip_bps, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8,
			$9, $10,
			$11, $12,
			$13, $14, $15, $16
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.Instrument, rec.Direction,
		rec.SpotVenue, rec.ContractVenue,
		rec.SpotFilled, rec.ContractFilled,
		rec.SpotAvgPrice, rec.ContractAvgPrice,
		rec.SpotFeeQuote, rec.ContractFeeQuote,
		rec.Spread, rec.SpotSlipBps, rec.ContractSlipBps, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save trade %s: %w", rec.ID, err)
	}
	return nil
}

// SaveRebalance inserts one corrective order.
func (s *HedgeStore) SaveRebalance(ctx context.Context, rec domain.RebalanceRecord) error {
	const query = `
		INSERT INTO hedge_rebalances (
			id, session_id, instrument, venue, side,
			requested, filled, avg_price, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.Instrument, rec.Venue, rec.Side,
		rec.Requested, rec.Filled, rec.AvgPrice, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save rebalance %s: %w", rec.ID, err)
	}
	return nil
}

// SaveSummary upserts the final reconciliation report for a session. A
// session that is re-flushed after a crash overwrites its earlier row.
func (s *HedgeStore) SaveSummary(ctx context.Context, sum domain.RunSummary) error {
	const query = `
		INSERT INTO hedge_summaries (
			session_id, instrument, direction,
			started_at, finished_at, stop_reason,
			trades_completed, trades_target, rebalances,
			total_spot_filled, total_contract_filled, total_fees_quote,
			cumulative_diff, cumulative_diff_value,
			avg_spot_slip_bps, avg_contract_slip_bps
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14,
			$15, $16
		) ON CONFLICT (session_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			stop_reason = EXCLUDED.stop_reason,
			trades_completed = EXCLUDED.trades_completed,
			rebalances = EXCLUDED.rebalances,
			total_spot_filled = EXCLUDED.total_spot_filled,
			total_contract_filled = EXCLUDED.total_contract_filled,
			total_fees_quote = EXCLUDED.total_fees_quote,
			cumulative_diff = EXCLUDED.cumulative_diff,
			cumulative_diff_value = EXCLUDED.cumulative_diff_value,
			avg_spot_slip_bps = EXCLUDED.avg_spot_slip_bps,
			avg_contract_slip_bps = EXCLUDED.avg_contract_slip_bps`

	_, err := s.pool.Exec(ctx, query,
		sum.SessionID, sum.Instrument, sum.Direction,
		sum.StartedAt, sum.FinishedAt, sum.StopReason,
		sum.TradesCompleted, sum.TradesTarget, sum.Rebalances,
		sum.TotalSpotFilled, sum.TotalContractFilled, sum.TotalFeesQuote,
		sum.CumulativeDiff, sum.CumulativeDiffValue,
		sum.AvgSpotSlippageBps, sum.AvgContSlippageBps,
	)
	if err != nil {
		return fmt.Errorf("postgres: save summary %s: %w", sum.SessionID, err)
	}
	return nil
}

// ListTrades returns a session's trades in execution order. Used by the
// reconciliation report and by tests.
func (s *HedgeStore) ListTrades(ctx context.Context, sessionID string) ([]domain.TradeRecord, error) {
	const query = `
		SELECT id, session_id, instrument, direction,
			spot_venue, contract_venue,
			spot_filled, contract_filled,
			spot_avg_price, contract_avg_price,
			spot_fee_quote, contract_fee_quote,
			spread, spot_slip_bps, contract_slip_bps, executed_at
		FROM hedge_trades
		WHERE session_id = $1
		ORDER BY executed_at ASC`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Instrument, &r.Direction,
			&r.SpotVenue, &r.ContractVenue,
			&r.SpotFilled, &r.ContractFilled,
			&r.SpotAvgPrice, &r.ContractAvgPrice,
			&r.SpotFeeQuote, &r.ContractFeeQuote,
			&r.Spread, &r.SpotSlipBps, &r.ContractSlipBps, &r.ExecutedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
