package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
	"github.com/okay456okay/crypto-earn-sub001/internal/metrics"
	"github.com/okay456okay/crypto-earn-sub001/internal/retry"
)

// SessionParams configure one hedge run.
type SessionParams struct {
	SessionID              string
	Instrument             string
	BaseAsset              string
	QuoteAsset             string
	Direction              domain.HedgeDirection
	TradeSize              float64
	TradeCount             int
	Leverage               int
	RebalanceThreshold     float64
	TradePause             time.Duration
	IdleWait               time.Duration
	MaxConsecutiveFailures int
	UseReservoir           bool
}

// quote and margin requirements carry a safety pad over the naive cost so
// a moving price between check and fill does not reject the order.
const (
	quotePad  = 1.02
	marginPad = 1.05
)

// SessionDeps are the collaborators a session drives. Store, Bus, Reports
// and Notifier may be nil; the session then skips the corresponding output.
type SessionDeps struct {
	Aggregator *Aggregator
	Gate       *Gate
	Executor   *Executor
	Ledger     *Ledger
	Rebalancer *Rebalancer
	Spot       domain.VenueAdapter
	Contract   domain.VenueAdapter
	Reservoir  domain.CapitalReservoir
	Store      domain.TradeStore
	Bus        domain.EventBus
	Reports    domain.ReportWriter
	Notifier   domain.Notifier
	Metrics    *metrics.Metrics
}

// Session owns the hedge loop: snapshot, gate, execute, reconcile, ledger,
// rebalance, repeat until the target trade count or a stop condition.
type Session struct {
	params SessionParams
	deps   SessionDeps
	retry  retry.Policy
	logger *slog.Logger

	startedAt   time.Time
	spotSlipSum float64
	contSlipSum float64
	slipSamples int
	totalSpot   float64
	totalCont   float64
	totalFees   float64
	tradesDone  int
	rebalances  int
	consecFails int
}

// NewSession builds a session. Deps.Aggregator through Deps.Contract and
// Deps.Metrics must be non-nil.
func NewSession(params SessionParams, deps SessionDeps, logger *slog.Logger) *Session {
	if params.SessionID == "" {
		params.SessionID = uuid.NewString()
	}
	return &Session{
		params: params,
		deps:   deps,
		retry:  retry.DefaultPolicy(),
		logger: logger.With(
			slog.String("component", "session"),
			slog.String("session_id", params.SessionID),
			slog.String("instrument", params.Instrument),
		),
	}
}

// Run executes the session to completion and returns the final summary.
// The summary is valid even when Run returns an error.
func (s *Session) Run(ctx context.Context) (domain.RunSummary, error) {
	s.startedAt = time.Now().UTC()
	s.logger.Info("session starting",
		slog.String("direction", string(s.params.Direction)),
		slog.Float64("trade_size", s.params.TradeSize),
		slog.Int("trade_count", s.params.TradeCount),
	)

	if err := s.setup(ctx); err != nil {
		return s.summary("setup failed"), err
	}

	stopReason, runErr := s.loop(ctx)

	sum := s.summary(stopReason)
	s.flushSummary(sum)
	return sum, runErr
}

// setup applies one-time venue configuration before the first trade.
func (s *Session) setup(ctx context.Context) error {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.deps.Contract.SetLeverage(ctx, s.params.Instrument, s.params.Leverage)
	})
	if err != nil {
		return fmt.Errorf("engine: set leverage: %w", err)
	}
	s.logger.Info("leverage configured", slog.Int("leverage", s.params.Leverage))
	return nil
}

func (s *Session) loop(ctx context.Context) (string, error) {
	for s.tradesDone < s.params.TradeCount {
		select {
		case <-ctx.Done():
			return "cancelled", ctx.Err()
		default:
		}

		now := time.Now()
		pair, ok := s.deps.Aggregator.Latest(now)
		if !ok {
			s.idle(ctx)
			continue
		}
		s.observeBooks(pair, now)
		s.deps.Ledger.SetReferencePrice(midPrice(pair.Spot))

		decision := s.deps.Gate.Evaluate(pair, now)
		if decision.Spread != 0 || decision.Trade {
			s.deps.Metrics.SpreadObserved.Observe(decision.Spread)
		}
		if !decision.Trade {
			s.deps.Metrics.Decisions.WithLabelValues("skip").Inc()
			s.logger.Debug("skip", slog.String("reason", decision.Reason))
			s.idle(ctx)
			continue
		}
		s.deps.Metrics.Decisions.WithLabelValues("trade").Inc()

		if err := s.ensureCollateral(ctx, decision); err != nil {
			if stop, reason := s.recordFailure(err); stop {
				return reason, err
			}
			s.idle(ctx)
			continue
		}

		intent := domain.TradeIntent{
			ID:               uuid.NewString(),
			Instrument:       s.params.Instrument,
			Direction:        s.params.Direction,
			Quantity:         decision.Size,
			Spread:           decision.Spread,
			SpotRefPrice:     decision.SpotRefPrice,
			ContractRefPrice: decision.ContractRefPrice,
			CreatedAt:        now.UTC(),
		}
		s.logger.Info("trade approved",
			slog.String("intent_id", intent.ID),
			slog.Float64("spread", decision.Spread),
			slog.Float64("size", decision.Size),
		)

		result, err := s.deps.Executor.Run(ctx, intent)

		// Anything that filled enters the ledger, even on failure. A leg
		// that filled while its sibling failed is residual risk the
		// rebalancer corrects later, never a silent discard.
		if result.Spot.FilledQty > 0 || result.Contract.FilledQty > 0 {
			s.deps.Ledger.Record(result)
			s.publishLedger()
		}

		if err != nil {
			s.deps.Metrics.TradeFailures.Inc()
			if stop, reason := s.recordFailure(err); stop {
				return reason, err
			}
			s.maybeRebalance(ctx)
			s.pause(ctx)
			continue
		}

		s.consecFails = 0
		s.tradesDone++
		s.accumulate(result)
		s.deps.Metrics.Trades.Inc()
		s.persistTrade(ctx, result)
		s.maybeRebalance(ctx)

		if s.tradesDone < s.params.TradeCount {
			s.pause(ctx)
		}
	}
	return "target reached", nil
}

// ensureCollateral verifies both venues can cover the next trade, tapping
// the capital reservoir for the spot quote shortfall when enabled.
func (s *Session) ensureCollateral(ctx context.Context, d Decision) error {
	if s.params.Direction == domain.DirectionClose {
		return s.ensureBase(ctx, d)
	}

	requiredQuote := d.Size * d.SpotRefPrice * quotePad
	bal, err := s.fetchBalance(ctx, s.deps.Spot, s.params.QuoteAsset)
	if err != nil {
		return err
	}
	if bal.Free < requiredQuote && s.params.UseReservoir && s.deps.Reservoir != nil {
		shortfall := requiredQuote - bal.Free
		redeemed, rerr := s.deps.Reservoir.Redeem(ctx, s.params.QuoteAsset, shortfall)
		if rerr != nil {
			s.logger.Warn("reservoir redemption failed", slog.String("error", rerr.Error()))
		} else {
			s.logger.Info("redeemed from reservoir",
				slog.String("asset", s.params.QuoteAsset),
				slog.Float64("amount", redeemed),
			)
		}
		if bal, err = s.fetchBalance(ctx, s.deps.Spot, s.params.QuoteAsset); err != nil {
			return err
		}
	}
	if bal.Free < requiredQuote {
		return fmt.Errorf("engine: spot %s %.2f < required %.2f: %w",
			s.params.QuoteAsset, bal.Free, requiredQuote, domain.ErrInsufficientCollateral)
	}

	requiredMargin := d.Size * d.ContractRefPrice / float64(s.params.Leverage) * marginPad
	cbal, err := s.fetchBalance(ctx, s.deps.Contract, s.params.QuoteAsset)
	if err != nil {
		return err
	}
	if cbal.Free < requiredMargin {
		return fmt.Errorf("engine: contract margin %.2f < required %.2f: %w",
			cbal.Free, requiredMargin, domain.ErrInsufficientCollateral)
	}
	return nil
}

// ensureBase checks the close direction: the spot sell needs base units on
// hand; the contract buy-back is reduce-only and frees margin.
func (s *Session) ensureBase(ctx context.Context, d Decision) error {
	bal, err := s.fetchBalance(ctx, s.deps.Spot, s.params.BaseAsset)
	if err != nil {
		return err
	}
	if bal.Free < d.Size {
		return fmt.Errorf("engine: spot %s %.6f < required %.6f: %w",
			s.params.BaseAsset, bal.Free, d.Size, domain.ErrInsufficientCollateral)
	}
	return nil
}

func (s *Session) fetchBalance(ctx context.Context, venue domain.VenueAdapter, asset string) (domain.Balance, error) {
	var bal domain.Balance
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		bal, err = venue.FetchBalance(ctx, asset)
		return err
	})
	return bal, err
}

// recordFailure counts a consecutive failure and decides whether the
// session stops. Fatal adapter errors stop immediately.
func (s *Session) recordFailure(err error) (stop bool, reason string) {
	s.consecFails++
	s.logger.Error("iteration failed",
		slog.Int("consecutive", s.consecFails),
		slog.String("error", err.Error()),
	)
	if domain.Fatal(err) {
		return true, "fatal adapter error"
	}
	if s.consecFails >= s.params.MaxConsecutiveFailures {
		return true, fmt.Sprintf("%d consecutive failures", s.consecFails)
	}
	return false, ""
}

func (s *Session) maybeRebalance(ctx context.Context) {
	rec, err := s.deps.Rebalancer.Run(ctx, s.params.Instrument)
	if err != nil {
		s.logger.Error("rebalance failed", slog.String("error", err.Error()))
		return
	}
	if rec == nil {
		return
	}
	rec.SessionID = s.params.SessionID
	s.rebalances++
	s.deps.Metrics.Rebalances.Inc()
	s.publishLedger()
	if s.deps.Store != nil {
		if err := s.deps.Store.SaveRebalance(ctx, *rec); err != nil {
			s.logger.Error("save rebalance failed", slog.String("error", err.Error()))
		}
	}
	s.publishEvent(ctx, "rebalance", rec)
}

func (s *Session) accumulate(r domain.PairResult) {
	s.totalSpot += r.Spot.FilledQty
	s.totalCont += r.Contract.FilledQty
	s.totalFees += r.Spot.FeeQuote + r.Contract.FeeQuote

	spotSlip := r.Spot.SlippageBps(r.Intent.SpotRefPrice)
	contSlip := r.Contract.SlippageBps(r.Intent.ContractRefPrice)
	s.spotSlipSum += spotSlip
	s.contSlipSum += contSlip
	s.slipSamples++
	s.deps.Metrics.SlippageBps.WithLabelValues("spot").Observe(spotSlip)
	s.deps.Metrics.SlippageBps.WithLabelValues("contract").Observe(contSlip)
}

func (s *Session) persistTrade(ctx context.Context, r domain.PairResult) {
	rec := domain.TradeRecord{
		ID:               r.Intent.ID,
		SessionID:        s.params.SessionID,
		Instrument:       r.Intent.Instrument,
		Direction:        string(r.Intent.Direction),
		SpotVenue:        r.Spot.Venue,
		ContractVenue:    r.Contract.Venue,
		SpotFilled:       r.Spot.FilledQty,
		ContractFilled:   r.Contract.FilledQty,
		SpotAvgPrice:     r.Spot.AvgPrice,
		ContractAvgPrice: r.Contract.AvgPrice,
		SpotFeeQuote:     r.Spot.FeeQuote,
		ContractFeeQuote: r.Contract.FeeQuote,
		Spread:           r.Intent.Spread,
		SpotSlipBps:      r.Spot.SlippageBps(r.Intent.SpotRefPrice),
		ContractSlipBps:  r.Contract.SlippageBps(r.Intent.ContractRefPrice),
		ExecutedAt:       time.Now().UTC(),
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.SaveTrade(ctx, rec); err != nil {
			s.logger.Error("save trade failed", slog.String("error", err.Error()))
		}
	}
	s.publishEvent(ctx, "trade_completed", rec)
}

func (s *Session) publishLedger() {
	state := s.deps.Ledger.State()
	s.deps.Metrics.ImbalanceBase.Set(state.CumulativeDiff)
	s.deps.Metrics.ImbalanceQuote.Set(state.CumulativeDiffValue)
}

func (s *Session) publishEvent(ctx context.Context, kind string, payload any) {
	if s.deps.Bus == nil {
		return
	}
	if err := s.deps.Bus.Publish(ctx, "hedge:"+kind, payload); err != nil {
		s.logger.Warn("event publish failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Session) observeBooks(pair domain.SnapshotPair, now time.Time) {
	s.deps.Metrics.BookStaleness.WithLabelValues(pair.Spot.Venue).Set(pair.Spot.Age(now).Seconds())
	s.deps.Metrics.BookStaleness.WithLabelValues(pair.Contract.Venue).Set(pair.Contract.Age(now).Seconds())
}

func (s *Session) idle(ctx context.Context) {
	wait := s.params.IdleWait
	if wait <= 0 {
		wait = 200 * time.Millisecond
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (s *Session) pause(ctx context.Context) {
	if s.params.TradePause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.params.TradePause):
	}
}

func (s *Session) summary(stopReason string) domain.RunSummary {
	state := s.deps.Ledger.State()
	sum := domain.RunSummary{
		SessionID:           s.params.SessionID,
		Instrument:          s.params.Instrument,
		Direction:           string(s.params.Direction),
		StartedAt:           s.startedAt,
		FinishedAt:          time.Now().UTC(),
		StopReason:          stopReason,
		TradesCompleted:     s.tradesDone,
		TradesTarget:        s.params.TradeCount,
		Rebalances:          s.rebalances,
		TotalSpotFilled:     s.totalSpot,
		TotalContractFilled: s.totalCont,
		TotalFeesQuote:      s.totalFees,
		CumulativeDiff:      state.CumulativeDiff,
		CumulativeDiffValue: state.CumulativeDiffValue,
	}
	if s.slipSamples > 0 {
		sum.AvgSpotSlippageBps = s.spotSlipSum / float64(s.slipSamples)
		sum.AvgContSlippageBps = s.contSlipSum / float64(s.slipSamples)
	}
	return sum
}

// flushSummary reports the final reconciliation everywhere it is wanted.
// Failures here are logged, never fatal: the run already happened.
func (s *Session) flushSummary(sum domain.RunSummary) {
	// Shutdown may already have cancelled the session context.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s.logger.Info("session finished",
		slog.String("stop_reason", sum.StopReason),
		slog.Int("trades", sum.TradesCompleted),
		slog.Int("rebalances", sum.Rebalances),
		slog.Float64("cumulative_diff", sum.CumulativeDiff),
		slog.Float64("cumulative_diff_value", sum.CumulativeDiffValue),
		slog.Float64("avg_spot_slippage_bps", sum.AvgSpotSlippageBps),
		slog.Float64("avg_contract_slippage_bps", sum.AvgContSlippageBps),
	)

	if s.deps.Store != nil {
		if err := s.deps.Store.SaveSummary(ctx, sum); err != nil {
			s.logger.Error("save summary failed", slog.String("error", err.Error()))
		}
	}
	if s.deps.Reports != nil {
		key := fmt.Sprintf("reports/%s/%s.json", sum.StartedAt.Format("2006-01-02"), sum.SessionID)
		body, err := encodeSummary(sum)
		if err == nil {
			err = s.deps.Reports.WriteReport(ctx, key, body)
		}
		if err != nil {
			s.logger.Error("report upload failed", slog.String("error", err.Error()))
		}
	}
	if s.deps.Notifier != nil {
		subject := fmt.Sprintf("hedge session %s: %s", sum.SessionID[:8], sum.StopReason)
		body := fmt.Sprintf(
			"instrument %s direction %s\ntrades %d/%d, rebalances %d\nspot filled %.6f, contract filled %.6f\nresidual imbalance %.6f (%.2f %s)",
			sum.Instrument, sum.Direction,
			sum.TradesCompleted, sum.TradesTarget, sum.Rebalances,
			sum.TotalSpotFilled, sum.TotalContractFilled,
			sum.CumulativeDiff, sum.CumulativeDiffValue, s.params.QuoteAsset,
		)
		if err := s.deps.Notifier.Notify(ctx, subject, body); err != nil {
			s.logger.Warn("notification failed", slog.String("error", err.Error()))
		}
	}
	s.publishEvent(ctx, "session_done", sum)

	if residual := sum.CumulativeDiff; residual > 0.000001 || residual < -0.000001 {
		s.logger.Warn("unresolved imbalance remains, manual correction may be needed",
			slog.Float64("residual", residual),
		)
	}
}

func midPrice(top domain.BookTop) float64 {
	if !top.Valid() {
		return 0
	}
	return (top.BidPrice + top.AskPrice) / 2
}

func encodeSummary(sum domain.RunSummary) ([]byte, error) {
	return json.MarshalIndent(sum, "", "  ")
}
