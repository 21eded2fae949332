package sim

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync"
)

// =============================================================================
// Monte-Carlo Ensemble
// =============================================================================

// EnsembleResult aggregates a Monte-Carlo ensemble. Runs are independent:
// run i is seeded with base seed + i and shares no mutable state with its
// siblings, so the ensemble is reproducible regardless of scheduling.
type EnsembleResult struct {
	Runs    []*RunResult    `json:"runs"`
	Failed  []error         `json:"-"`
	Summary EnsembleSummary `json:"summary"`
}

// EnsembleSummary holds headline statistics over completed runs.
type EnsembleSummary struct {
	Completed       int     `json:"completed"`
	Aborted         int     `json:"aborted"`
	FinalCO2Mean    float64 `json:"finalCo2Mean"`
	FinalCO2Min     float64 `json:"finalCo2Min"`
	FinalCO2Max     float64 `json:"finalCo2Max"`
	FinalSupplyMean float64 `json:"finalSupplyMean"`
	FinalTempMean   float64 `json:"finalTempMean"`
	CO2AvoidedMean  float64 `json:"co2AvoidedMean"`
}

// RunEnsemble executes params.MonteCarloRuns independent runs in parallel,
// bounded by the host's parallelism. Individual aborted runs are collected,
// not fatal; the summary covers completed runs only.
func RunEnsemble(ctx context.Context, params Params, logger *slog.Logger) (*EnsembleResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := params.MonteCarloRuns
	results := make([]*RunResult, n)
	errs := make([]error, n)

	workers := min(n, runtime.GOMAXPROCS(0))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(run int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p := params
			p.Seed = params.Seed + int64(run)
			engine, err := NewEngine(p, logger.With("ensembleRun", run))
			if err != nil {
				errs[run] = err
				return
			}
			results[run], errs[run] = engine.Run(ctx)
		}(i)
	}
	wg.Wait()

	out := &EnsembleResult{}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			out.Failed = append(out.Failed, errs[i])
			continue
		}
		out.Runs = append(out.Runs, results[i])
	}
	out.Summary = summarize(out.Runs, len(out.Failed))
	return out, nil
}

func summarize(runs []*RunResult, aborted int) EnsembleSummary {
	s := EnsembleSummary{
		Completed:   len(runs),
		Aborted:     aborted,
		FinalCO2Min: math.Inf(1),
		FinalCO2Max: math.Inf(-1),
	}
	if len(runs) == 0 {
		s.FinalCO2Min, s.FinalCO2Max = 0, 0
		return s
	}
	for _, r := range runs {
		final := r.Snapshots[len(r.Snapshots)-1]
		s.FinalCO2Mean += final.CO2PPM
		s.FinalSupplyMean += final.XCRSupply
		s.FinalTempMean += final.TemperatureAnomaly
		s.CO2AvoidedMean += final.CO2Avoided
		s.FinalCO2Min = math.Min(s.FinalCO2Min, final.CO2PPM)
		s.FinalCO2Max = math.Max(s.FinalCO2Max, final.CO2PPM)
	}
	n := float64(len(runs))
	s.FinalCO2Mean /= n
	s.FinalSupplyMean /= n
	s.FinalTempMean /= n
	s.CO2AvoidedMean /= n
	return s
}
