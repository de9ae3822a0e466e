// Package pipeline orchestrates one backtest run: admission, input
// validation, data fetch, script composition, sandbox execution, parsing,
// simulation, and result validation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ubacktest/internal/domain"
	"ubacktest/internal/marketdata"
	"ubacktest/internal/sandbox"
	"ubacktest/internal/script"
	"ubacktest/internal/sim"
)

// Executor runs a composed script in the sandbox.
type Executor interface {
	Run(ctx context.Context, source string, timeoutSec int) (*sandbox.ExecResult, error)
}

// Request is one backtest invocation: the validated form inputs plus the
// user's strategy source.
type Request struct {
	Inputs domain.FormInputs
	Code   string
}

// Pipeline wires the stages together. Each run builds fresh state; the
// only cross-request sharing is the admission gate.
type Pipeline struct {
	provider       marketdata.Provider
	executor       Executor
	gate           *Gate
	benchmark      string
	defaultTimeout int
	maxTimeout     int
	log            *slog.Logger
	now            func() time.Time
}

// New creates a pipeline. benchmark is the symbol fetched for the sp
// comparison series; empty disables it. defaultTimeoutSec fills in a
// request that names no timeout and maxTimeoutSec caps what a request may
// ask for; zero falls back to the domain defaults.
func New(provider marketdata.Provider, executor Executor, gate *Gate, benchmark string, defaultTimeoutSec, maxTimeoutSec int) *Pipeline {
	if defaultTimeoutSec <= 0 {
		defaultTimeoutSec = domain.DefaultTimeoutSec
	}
	if maxTimeoutSec <= 0 {
		maxTimeoutSec = domain.MaxTimeoutSec
	}
	return &Pipeline{
		provider:       provider,
		executor:       executor,
		gate:           gate,
		benchmark:      benchmark,
		defaultTimeout: defaultTimeoutSec,
		maxTimeout:     maxTimeoutSec,
		log:            slog.Default().With("component", "pipeline"),
		now:            time.Now,
	}
}

// Run executes one backtest end to end. Fatal failures return an error
// from the taxonomy; user code crashes come back inside the envelope with
// stderr set and no strategy result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*domain.BacktestResult, error) {
	if err := p.gate.TryAcquire(); err != nil {
		return nil, err
	}
	defer p.gate.Release()

	runID := uuid.NewString()
	log := p.log.With("run", runID, "symbol", req.Inputs.Symbol)
	started := p.now()

	if req.Inputs.Timeout == 0 {
		req.Inputs.Timeout = p.defaultTimeout
	}
	if req.Inputs.Timeout > p.maxTimeout {
		return nil, &domain.UserInputError{
			Msg: fmt.Sprintf("timeout must be between 1 and %d seconds", p.maxTimeout),
		}
	}
	if err := req.Inputs.Validate(p.now()); err != nil {
		return nil, err
	}
	if err := marketdata.CheckRange(req.Inputs); err != nil {
		return nil, err
	}

	quote, err := p.provider.Fetch(ctx, req.Inputs)
	if err != nil {
		return nil, err
	}
	warnings := append([]string(nil), quote.Warnings...)

	key := script.NewKey()
	source, err := script.Compose(req.Code, quote.Full, req.Inputs.StartDate.Unix(), key)
	if err != nil {
		return nil, err
	}

	exec, err := p.executor.Run(ctx, source, req.Inputs.Timeout)
	if err != nil {
		return nil, err
	}

	out, err := script.Parse(exec.Stdout, exec.Stderr, key)
	if err != nil {
		return nil, err
	}

	// No payload but a populated stderr: the user's code (or the script's
	// own validation) raised. Return the diagnostics without simulating.
	if out.Signal == nil {
		log.Info("user code failed", "elapsed", p.now().Sub(started))
		return &domain.BacktestResult{
			DebugOutput: out.Debug,
			Stderr:      exec.Stderr,
			Warnings:    dedup(warnings),
		}, nil
	}

	sp, benchWarnings := p.fetchBenchmark(ctx, req.Inputs, quote.Scored)
	warnings = append(warnings, benchWarnings...)

	curves, err := sim.Run(quote.Scored, req.Inputs.TimeOfDay, out.Signal, req.Inputs.CostPerTrade)
	if err != nil {
		return nil, err
	}
	stats := sim.ComputeStats(curves, out.Signal, quote.Scored.Timestamp)
	curves.Round()

	result := &domain.StrategyResult{
		BarSeries:          quote.Scored,
		Signal:             out.Signal,
		Returns:            curves.Returns,
		SP:                 sp,
		Portfolio:          curves.Portfolio,
		PortfolioWithCosts: curves.PortfolioWithCosts,
		Cash:               curves.Cash,
		Equity:             curves.Equity,
		CashWithCosts:      curves.CashWithCosts,
		EquityWithCosts:    curves.EquityWithCosts,
		UserDefinedData:    out.Data,
	}
	if err := sim.Validate(result); err != nil {
		return nil, err
	}

	log.Info("run complete",
		"bars", result.Len(),
		"trades", stats.NumTrades,
		"elapsed", p.now().Sub(started),
	)
	return &domain.BacktestResult{
		StrategyResult: result,
		Statistics:     stats,
		DebugOutput:    out.Debug,
		Stderr:         exec.Stderr,
		Warnings:       dedup(warnings),
	}, nil
}

// fetchBenchmark retrieves the benchmark close series over the same range.
// Any failure or timestamp mismatch downgrades to a warning; the run never
// fails over its benchmark.
func (p *Pipeline) fetchBenchmark(ctx context.Context, in domain.FormInputs, scored domain.BarSeries) ([]float64, []string) {
	if p.benchmark == "" || p.benchmark == in.Symbol {
		return nil, nil
	}

	benchIn := in
	benchIn.Symbol = p.benchmark
	benchIn.UseAdjClose = false

	bq, err := p.provider.Fetch(ctx, benchIn)
	if err != nil {
		p.log.Warn("benchmark fetch failed", "symbol", p.benchmark, "err", err)
		return nil, []string{"the benchmark series could not be fetched and was excluded"}
	}

	if bq.Scored.Len() != scored.Len() {
		return nil, []string{"the benchmark series does not line up with the strategy bars and was excluded"}
	}
	for i, ts := range bq.Scored.Timestamp {
		if ts != scored.Timestamp[i] {
			return nil, []string{"the benchmark series does not line up with the strategy bars and was excluded"}
		}
	}
	return bq.Scored.Close, nil
}

func dedup(warnings []string) []string {
	if len(warnings) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(warnings))
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
