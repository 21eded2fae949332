package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortParams() Params {
	p := DefaultParams()
	p.Years = 20
	return p
}

func TestNewEngine_RejectsInvalidParams(t *testing.T) {
	cases := []func(*Params){
		func(p *Params) { p.Years = 0 },
		func(p *Params) { p.InitialCO2PPM = -1 },
		func(p *Params) { p.TargetCO2PPM = p.InitialCO2PPM + 10 },
		func(p *Params) { p.InitialPriceFloor = 0 },
		func(p *Params) { p.InflationTarget = -0.01 },
		func(p *Params) { p.CDRMaterialCapacityFloor = 0 },
		func(p *Params) { p.MonteCarloRuns = 0 },
		func(p *Params) { p.Climate.TCRE = 0 },
	}
	for i, mutate := range cases {
		p := DefaultParams()
		mutate(&p)
		_, err := NewEngine(p, nil)
		if !errors.Is(err, ErrInvalidParams) {
			t.Errorf("case %d: err = %v, want ErrInvalidParams", i, err)
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() *RunResult {
		engine, err := NewEngine(shortParams(), testLogger())
		require.NoError(t, err)
		result, err := engine.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	require.Equal(t, len(a.Snapshots), len(b.Snapshots))
	assert.Equal(t, a.Snapshots, b.Snapshots, "identical (params, seed) must replay bit-identically")
	assert.Equal(t, a.Countries, b.Countries)
}

func TestRun_DifferentSeedsDiverge(t *testing.T) {
	p := shortParams()
	engineA, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	a, err := engineA.Run(context.Background())
	require.NoError(t, err)

	p.Seed = 1337
	engineB, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	b, err := engineB.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, a.Snapshots, b.Snapshots)
}

func TestRun_InvariantsHoldEveryTick(t *testing.T) {
	p := DefaultParams()
	p.Years = 40
	engine, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 40)

	prevInflow := math.Inf(-1)
	var mintedSum, burnedSum float64
	for _, snap := range result.Snapshots {
		assert.GreaterOrEqual(t, snap.XCRSupply, 0.0, "year %d", snap.Year)
		assert.GreaterOrEqual(t, snap.Sentiment, sentimentFloor, "year %d", snap.Year)
		assert.LessOrEqual(t, snap.Sentiment, sentimentCeiling, "year %d", snap.Year)
		assert.Greater(t, snap.CEABrakeFactor, 0.0, "year %d", snap.Year)
		assert.LessOrEqual(t, snap.CEABrakeFactor, 1.0, "year %d", snap.Year)
		assert.LessOrEqual(t, snap.AnnualCQESpent, snap.AnnualCQEBudget+1e-6, "year %d", snap.Year)
		assert.Positive(t, snap.PriceFloor, "year %d", snap.Year)

		mintedSum += snap.XCRMinted
		burnedSum += snap.XCRBurnedAnnual

		assert.GreaterOrEqual(t, snap.CQESpent, prevInflow,
			"cumulative CQE spend must be non-decreasing")
		prevInflow = snap.CQESpent
	}

	final := result.Snapshots[len(result.Snapshots)-1]
	tolerance := 1e-6*(mintedSum+burnedSum) + 1e-6
	assert.InDelta(t, mintedSum-burnedSum, final.XCRSupply, tolerance,
		"supply must equal mints minus burns")
}

func TestRun_BaselineEconomyTakesOff(t *testing.T) {
	p := DefaultParams()
	p.Years = 40
	engine, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	final := result.Snapshots[len(result.Snapshots)-1]
	assert.Positive(t, final.XCRSupply, "baseline run must mint XCR")
	assert.Positive(t, final.ProjectsTotal)
	assert.Less(t, final.CO2PPM, final.BAUCO2PPM,
		"mitigation must leave CO2 below the BAU twin")
	assert.Positive(t, final.CO2Avoided)

	earned := 0.0
	for _, c := range result.Countries {
		earned += c.XCREarned
	}
	assert.Positive(t, earned, "attribution must follow minting")
}

func TestRun_BAUTwinEquivalenceWithoutIntervention(t *testing.T) {
	p := DefaultParams()
	p.Years = 20
	p.EnableAudits = false
	p.OneTimeSeedCapitalUSD = 0
	p.AdoptionRate = 0

	engine, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	for _, snap := range result.Snapshots {
		assert.InDelta(t, snap.BAUCO2PPM, snap.CO2PPM, 1e-9,
			"year %d: unaudited run must track the BAU twin exactly", snap.Year)
		assert.Zero(t, snap.XCRSupply, "year %d", snap.Year)
		assert.Equal(t, founderCount, snap.ActiveCountries, "year %d", snap.Year)
	}
}

func TestRun_ZeroShockInflationStaysAtTarget(t *testing.T) {
	p := DefaultParams()
	p.Years = 25
	p.EnableAudits = false // no supply, hence no CQE inflation impact

	engine, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	for _, snap := range result.Snapshots {
		assert.InDelta(t, p.InflationTarget, snap.Inflation, 1e-9, "year %d", snap.Year)
	}
}

func TestRun_InflationShockDepressesSentiment(t *testing.T) {
	p := DefaultParams()
	p.Years = 14
	p.InflationShockStartYear = 5
	p.InflationShockRate = 0.03

	engine, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	snaps := result.Snapshots
	assert.Greater(t, snaps[7].Inflation, p.InflationTarget*1.5,
		"shock must push realized inflation past the penalty threshold")
	assert.Less(t, snaps[9].Sentiment, snaps[4].Sentiment,
		"sentiment must fall within a few ticks of a sustained shock")
}

func TestRun_CDRStopYearZeroMeansNoCDREver(t *testing.T) {
	p := DefaultParams()
	p.Years = 25
	p.CDRBuildoutStopYear = 0

	engine, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	for _, proj := range engine.broker.Projects() {
		assert.NotEqual(t, ChannelCDR, proj.Channel, "CDR project initiated despite stop year 0")
	}
	for _, snap := range result.Snapshots {
		assert.True(t, snap.CDRBuildoutStopped, "year %d", snap.Year)
		assert.Zero(t, snap.CDRSequestrationTonnes, "year %d", snap.Year)
	}
}

func TestRun_CDRStopYearBlocksLateStarts(t *testing.T) {
	p := DefaultParams()
	p.Years = 35
	p.CDRBuildoutStopYear = 20

	engine, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	_, err = engine.Run(context.Background())
	require.NoError(t, err)

	for _, proj := range engine.broker.Projects() {
		if proj.Channel == ChannelCDR {
			assert.Less(t, proj.StartYear, 20, "CDR project started after the buildout stop")
		}
	}
}

func TestRun_CancelledContextAbortsAtTickBoundary(t *testing.T) {
	engine, err := NewEngine(shortParams(), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunAborted)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, 0, runErr.Tick)
}

func TestRun_ProjectTransitionsOnlyForward(t *testing.T) {
	p := DefaultParams()
	p.Years = 30
	engine, err := NewEngine(p, testLogger())
	require.NoError(t, err)
	_, err = engine.Run(context.Background())
	require.NoError(t, err)

	for _, proj := range engine.broker.Projects() {
		switch proj.Status {
		case StatusDevelopment, StatusOperational, StatusFailed:
		default:
			t.Errorf("project %s in unknown status %q", proj.ID, proj.Status)
		}
		assert.LessOrEqual(t, proj.YearsOperational, proj.MaxOperational)
	}
}

func TestEngine_SwappableDecisionPolicies(t *testing.T) {
	p := shortParams()

	// A defense policy that never intervenes stands in for the agentic
	// variant: the engine must accept it without further changes.
	engine, err := NewEngine(p, testLogger(), WithDefensePolicy(noDefense{}))
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	for _, snap := range result.Snapshots {
		assert.Zero(t, snap.AnnualCQESpent, "year %d: stubbed defense must never spend", snap.Year)
	}
}

type noDefense struct{}

func (noDefense) Defend(market *MarketState, ledger *TokenLedger, pool *CountryPool, activeGDPUSD float64) DefenseResult {
	return DefenseResult{PriceAfter: market.Price}
}
