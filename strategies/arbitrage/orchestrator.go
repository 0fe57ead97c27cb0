package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/flashscan/dedupe"
	"github.com/michaelpento.lv/flashscan/gas"
	"github.com/michaelpento.lv/flashscan/types"
	"github.com/michaelpento.lv/flashscan/utils/metrics"
)

// finalizeTimeout bounds the dedupe and history writes after a submission
const finalizeTimeout = 5 * time.Second

// OpportunitySource produces the unfiltered opportunities of a cycle
type OpportunitySource interface {
	Candidates(ctx context.Context, tokens []common.Address) ([]*types.Opportunity, error)
}

// FeeSource returns a fresh fee quote per call
type FeeSource interface {
	CurrentFeeQuote(ctx context.Context) (*types.FeeQuote, error)
}

// Builder turns an opportunity and a fee quote into a bundle descriptor
type Builder interface {
	Build(opp *types.Opportunity, fee *types.FeeQuote) (*types.BundleDescriptor, error)
}

// Submitter signs and sends a bundle descriptor
type Submitter interface {
	Submit(ctx context.Context, desc *types.BundleDescriptor) *types.SubmissionResult
}

// Recorder persists terminal submission records
type Recorder interface {
	SaveRecord(ctx context.Context, rec *types.SubmissionRecord) error
}

// OrchestratorConfig holds execution policy
type OrchestratorConfig struct {
	FeeTimeout time.Duration
	// MaxFeePerGas rejects quotes above it when set
	MaxFeePerGas         *big.Int
	MaxConcurrentBundles int
	// GasLimit is only used for the net profit log line
	GasLimit uint64
}

// Orchestrator drives each opportunity from discovery to a terminal outcome
type Orchestrator struct {
	cfg       OrchestratorConfig
	source    OpportunitySource
	evaluator *Evaluator
	store     dedupe.Store
	fees      FeeSource
	builder   Builder
	relay     Submitter
	recorder  Recorder
	metrics   *metrics.PipelineMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// OrchestratorDeps are the collaborators of an Orchestrator. Recorder and
// Metrics are optional.
type OrchestratorDeps struct {
	Source    OpportunitySource
	Evaluator *Evaluator
	Store     dedupe.Store
	Fees      FeeSource
	Builder   Builder
	Relay     Submitter
	Recorder  Recorder
	Metrics   *metrics.PipelineMetrics
	Logger    *zap.Logger
}

func NewOrchestrator(cfg OrchestratorConfig, deps OrchestratorDeps) (*Orchestrator, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("opportunity source is required")
	case deps.Evaluator == nil:
		return nil, fmt.Errorf("evaluator is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("dedupe store is required")
	case deps.Fees == nil:
		return nil, fmt.Errorf("fee source is required")
	case deps.Builder == nil:
		return nil, fmt.Errorf("bundle builder is required")
	case deps.Relay == nil:
		return nil, fmt.Errorf("relay client is required")
	}
	if cfg.FeeTimeout <= 0 {
		cfg.FeeTimeout = 2 * time.Second
	}
	if cfg.MaxConcurrentBundles <= 0 {
		cfg.MaxConcurrentBundles = 1
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = gas.EstimateArbitrageGas(1)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		cfg:       cfg,
		source:    deps.Source,
		evaluator: deps.Evaluator,
		store:     deps.Store,
		fees:      deps.Fees,
		builder:   deps.Builder,
		relay:     deps.Relay,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// RunCycle detects opportunities for tokens and processes them concurrently.
// It returns one result per candidate, in candidate order. The error is only
// set when detection itself was refused.
func (o *Orchestrator) RunCycle(ctx context.Context, tokens []common.Address) ([]*types.Result, error) {
	start := time.Now()
	logger := o.logger.With(zap.String("cycle_id", uuid.NewString()))

	candidates, err := o.source.Candidates(ctx, tokens)
	if err != nil {
		logger.Error("Detection failed", zap.Error(err))
		return nil, err
	}

	results := make([]*types.Result, len(candidates))
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrentBundles)
	for i, opp := range candidates {
		i, opp := i, opp
		g.Go(func() error {
			results[i] = o.process(ctx, opp, logger)
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[types.Outcome]int)
	for _, res := range results {
		counts[res.Outcome]++
	}
	o.metrics.ObserveCycle(time.Since(start))
	logger.Info("Cycle complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("executed", counts[types.OutcomeExecuted]),
		zap.Int("failed", counts[types.OutcomeFailed]),
		zap.Int("deduplicated", counts[types.OutcomeDeduplicated]),
		zap.Int("rejected", counts[types.OutcomeRejected]),
		zap.Duration("took", time.Since(start)))

	return results, nil
}

// Process takes one opportunity to a terminal outcome. It never panics or
// returns early on a per-opportunity error; the error is in the result.
func (o *Orchestrator) Process(ctx context.Context, opp *types.Opportunity) *types.Result {
	return o.process(ctx, opp, o.logger)
}

func (o *Orchestrator) process(ctx context.Context, opp *types.Opportunity, logger *zap.Logger) *types.Result {
	res := o.execute(ctx, opp, logger)
	o.metrics.Outcome(string(res.Outcome))
	return res
}

func (o *Orchestrator) execute(ctx context.Context, opp *types.Opportunity, logger *zap.Logger) *types.Result {
	if opp == nil {
		return &types.Result{Outcome: types.OutcomeRejected, Err: fmt.Errorf("%w: nil opportunity", types.ErrInvalidOpportunity)}
	}
	if err := opp.Validate(); err != nil {
		logger.Warn("Invalid opportunity", zap.Error(err))
		return &types.Result{Opportunity: opp, Outcome: types.OutcomeRejected, Err: err}
	}

	id := opp.ID()
	res := &types.Result{ID: id, Opportunity: opp}
	logger = logger.With(
		zap.String("opportunity_id", id.Hex()),
		zap.String("token_in", opp.TokenIn.Hex()),
		zap.String("token_out", opp.TokenOut.Hex()))

	profit, err := o.evaluator.Evaluate(opp)
	res.Profit = profit
	if err != nil {
		logger.Debug("Below threshold", zap.String("profit", profit.String()), zap.Error(err))
		res.Outcome = types.OutcomeRejected
		res.Err = err
		return res
	}

	// The reservation is written before any network call so a concurrent
	// discovery of the same fingerprint is refused immediately.
	rec := types.NewSubmissionRecord(opp, profit, o.now())
	reserved, err := o.store.Reserve(ctx, id.Hex(), rec)
	if err != nil {
		logger.Error("Dedupe store unavailable", zap.Error(err))
		res.Outcome = types.OutcomeFailed
		res.Err = err
		return res
	}
	if !reserved {
		logger.Debug("Already seen")
		res.Outcome = types.OutcomeDeduplicated
		return res
	}

	logger.Info("Executing opportunity", zap.String("profit", profit.String()))
	o.submit(ctx, opp, res, logger)
	o.finalize(ctx, rec, res, logger)
	return res
}

// submit fetches exactly one fee quote and sends at most one bundle
func (o *Orchestrator) submit(ctx context.Context, opp *types.Opportunity, res *types.Result, logger *zap.Logger) {
	fail := func(err error) {
		res.Outcome = types.OutcomeFailed
		res.Err = err
		logger.Warn("Submission failed",
			zap.String("outcome", string(types.OutcomeFailed)),
			zap.Error(err))
	}

	feeCtx, cancel := context.WithTimeout(ctx, o.cfg.FeeTimeout)
	fee, err := o.fees.CurrentFeeQuote(feeCtx)
	cancel()
	if err != nil {
		fail(fmt.Errorf("fee quote: %w", err))
		return
	}
	if fee == nil || fee.MaxFeePerGas == nil || fee.MaxPriorityFeePerGas == nil {
		fail(errors.New("fee quote is incomplete"))
		return
	}
	res.Fee = fee
	o.metrics.SetFee(toFloat(fee.MaxFeePerGas), toFloat(fee.MaxPriorityFeePerGas))

	if o.cfg.MaxFeePerGas != nil && fee.MaxFeePerGas.Cmp(o.cfg.MaxFeePerGas) > 0 {
		fail(fmt.Errorf("%w: %s > %s", types.ErrFeeTooHigh, fee.MaxFeePerGas, o.cfg.MaxFeePerGas))
		return
	}

	net := new(big.Int).Sub(res.Profit, gas.CostOf(fee, o.cfg.GasLimit))
	logger.Debug("Fee quote",
		zap.String("maxFeePerGas", fee.MaxFeePerGas.String()),
		zap.String("maxPriorityFeePerGas", fee.MaxPriorityFeePerGas.String()),
		zap.String("net_profit_estimate", net.String()))

	desc, err := o.builder.Build(opp, fee)
	if err != nil {
		fail(fmt.Errorf("build bundle: %w", err))
		return
	}

	start := time.Now()
	sub := o.relay.Submit(ctx, desc)
	if sub == nil {
		sub = &types.SubmissionResult{Status: types.SubmissionError, Err: errors.New("relay returned no result")}
	}
	o.metrics.ObserveRelay(string(sub.Status), time.Since(start))
	res.Submission = sub

	if !sub.Accepted() {
		err := sub.Err
		if err == nil {
			err = fmt.Errorf("relay status %s", sub.Status)
		}
		fail(err)
		return
	}

	res.Outcome = types.OutcomeExecuted
	logger.Info("Bundle accepted",
		zap.String("outcome", string(types.OutcomeExecuted)),
		zap.String("bundleHash", sub.BundleHash),
		zap.String("tx", sub.TxHash.Hex()))
}

// finalize attaches the outcome to the reservation. The entry keeps its
// original TTL, failed ones included.
func (o *Orchestrator) finalize(ctx context.Context, rec *types.SubmissionRecord, res *types.Result, logger *zap.Logger) {
	done := *rec
	done.UpdatedAt = o.now()
	if res.Outcome == types.OutcomeExecuted {
		done.State = types.RecordExecuted
	} else {
		done.State = types.RecordFailed
	}
	if res.Submission != nil {
		done.BundleHash = res.Submission.BundleHash
		if res.Submission.TxHash != (common.Hash{}) {
			done.TxHash = res.Submission.TxHash.Hex()
		}
	}
	if res.Err != nil {
		done.Error = res.Err.Error()
	}

	// shutdown cancels ctx mid-cycle; the outcome must still be written
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := o.store.Finalize(ctx, done.ID, &done); err != nil {
		logger.Warn("Failed to finalize dedupe record", zap.Error(err))
	}
	if o.recorder != nil {
		if err := o.recorder.SaveRecord(ctx, &done); err != nil {
			logger.Warn("Failed to save submission history", zap.Error(err))
		}
	}
}

func toFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
