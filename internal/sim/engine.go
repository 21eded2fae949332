package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// =============================================================================
// Engine
// =============================================================================

// Engine owns the single authoritative simulation state and drives the
// annual tick. Sub-components mutate only their slice of the state within
// their phase; the phase order below is exact and load-bearing — reordering
// changes results.
type Engine struct {
	params Params
	g      *rng
	log    *slog.Logger

	runID     string
	cycle     *CarbonCycle
	bauTwin   *CarbonCycle
	countries *CountryPool
	broker    *ProjectsBroker
	auditor   *Auditor
	bank      *CentralBankAlliance
	cea       *CEA

	// Swappable decision points (rule-based defaults).
	sentiment SentimentPolicy
	capital   CapitalFlowPolicy
	defense   DefensePolicy

	ledger TokenLedger
	market MarketState

	esRatio float64

	// Signals observed at the end of one tick and consumed by the next
	// tick's sentiment update.
	pendingNewWarning  bool
	pendingFloorRaised bool
	pendingCO2Decline  bool

	// Guard inputs from the latest audit phase.
	lastAudit        AuditResult
	lastLatchedAudit bool

	snapshots []Snapshot
}

// RunError reports an aborted run: the engine never loses a tick partially,
// so Tick is the index of the first year that did not complete.
type RunError struct {
	Tick  int
	Cause error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run aborted at tick %d: %v", e.Tick, e.Cause)
}

func (e *RunError) Unwrap() error { return ErrRunAborted }

// RunResult is a completed run.
type RunResult struct {
	RunID     string          `json:"runId"`
	Params    Params          `json:"params"`
	Snapshots []Snapshot      `json:"snapshots"`
	Countries []CountryReport `json:"countries"`
}

// Option overrides an engine decision point, the swap surface for
// alternative (agentic) implementations.
type Option func(*Engine)

// WithSentimentPolicy replaces the rule-based sentiment update.
func WithSentimentPolicy(p SentimentPolicy) Option { return func(e *Engine) { e.sentiment = p } }

// WithCapitalFlowPolicy replaces the rule-based capital flow decision.
func WithCapitalFlowPolicy(p CapitalFlowPolicy) Option { return func(e *Engine) { e.capital = p } }

// WithDefensePolicy replaces the rule-based floor defense.
func WithDefensePolicy(p DefensePolicy) Option { return func(e *Engine) { e.defense = p } }

// WithBrakePolicy replaces the rule-based brake computation.
func WithBrakePolicy(p BrakePolicy) Option { return func(e *Engine) { e.cea.SetBrakePolicy(p) } }

// NewEngine validates the scenario and assembles the initial state.
// Configuration errors abort here, before the first tick.
func NewEngine(params Params, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	e := &Engine{
		params:    params,
		g:         newRNG(params.Seed),
		log:       logger,
		runID:     uuid.NewString(),
		cycle:     NewCarbonCycle(params.InitialCO2PPM, params.Climate, logger),
		countries: NewCountryPool(logger),
		broker:    NewProjectsBroker(params, logger),
		auditor:   NewAuditor(params, logger),
		bank:      NewCentralBankAlliance(params, logger),
		cea:       NewCEA(params, logger),
		market: MarketState{
			PriceFloor:  params.InitialPriceFloor,
			Sentiment:   0.5,
			Inflation:   params.InflationTarget,
			BrakeFactor: 1.0,
		},
		esRatio: 100, // far from net zero until the first cycle step
	}
	e.bauTwin = e.cycle.clone()
	e.sentiment = NewInvestorMarket(params, logger)
	e.capital = NewCapitalMarket(params, logger)
	e.defense = e.bank
	for _, opt := range opts {
		opt(e)
	}
	DiscoverPrice(&e.market)

	e.log.Info("engine initialized",
		"runId", e.runID,
		"years", params.Years,
		"seed", params.Seed,
		"cobenefitCountryWeightOnly", params.CobenefitCountryWeightOnly)
	return e, nil
}

// RunID returns the run's identifier.
func (e *Engine) RunID() string { return e.runID }

// Run executes the scenario. Either every tick completes and the full
// snapshot sequence returns, or the run aborts at a tick boundary with a
// RunError naming the failing tick. The context is only checked between
// ticks, so state stays checkpoint-consistent.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	for year := 0; year < e.params.Years; year++ {
		if err := ctx.Err(); err != nil {
			return nil, &RunError{Tick: year, Cause: err}
		}
		snap := e.tick(year)
		if err := e.checkInvariants(); err != nil {
			return nil, &RunError{Tick: year, Cause: err}
		}
		e.snapshots = append(e.snapshots, snap)
	}

	reports := make([]CountryReport, 0, len(e.countries.Countries()))
	for _, c := range e.countries.Countries() {
		reports = append(reports, CountryReport{
			Name:         c.Name,
			Active:       c.Active,
			XCREarned:    c.XCREarned,
			XCRPurchased: c.XCRPurchased,
		})
	}
	return &RunResult{
		RunID:     e.runID,
		Params:    e.params,
		Snapshots: e.snapshots,
		Countries: reports,
	}, nil
}

// tick advances one year. Phase order per the system design:
// rollover, shocks, inflation correction, adoption, BAU twin, sentiment,
// capital, CQE budget, CEA policy, initiation, advancement, audit,
// reversals, floor defense, carbon step, snapshot.
func (e *Engine) tick(year int) Snapshot {
	// Phase 0: rollover of annual counters.
	e.ledger.Rollover()
	e.bank.Rollover()

	// Phase 1: exogenous shocks.
	if s := e.params.InflationShockStartYear; s >= 0 && year >= s {
		e.market.Inflation += e.params.InflationShockRate
	}

	// Phase 2: inflation mean reversion toward target.
	RevertInflation(&e.market, e.params.InflationTarget)

	// Phase 3: country adoption.
	e.countries.Adopt(e.params.AdoptionRate, e.g)

	// Phase 4: BAU twin pre-step (emissions only, same sink model).
	bauFlux := bauEmissionsAt(year, e.params)
	e.bauTwin.Step(bauFlux, 0, 0, 0, 0)

	// Phase 5: investor sentiment, fed by last tick's policy outcomes.
	ppm := e.cycle.State().PPM()
	e.sentiment.UpdateSentiment(&e.market, SentimentObservation{
		NewWarning:        e.pendingNewWarning,
		PersistentWarning: !e.pendingNewWarning && e.cea.Warning(),
		CO2Declined:       e.pendingCO2Decline,
		FloorRaised:       e.pendingFloorRaised,
	})

	// Phase 6: capital market.
	e.capital.UpdateCapital(&e.market, CapitalObservation{
		Year:            year,
		CO2PPM:          ppm,
		SupplyXCR:       e.ledger.Supply,
		LockedFloorRate: e.cea.LockedFloorGrowth(),
	})
	e.broker.AddCapital(e.market.NetCapitalFlowUSD)

	// Phase 7: CQE budget for the year.
	activeGDP := e.countries.ActiveGDPUSD()
	annualInflow := max(e.market.NetCapitalFlowUSD, 0)
	e.bank.RecalculateBudget(annualInflow, activeGDP)

	// Phase 8: CEA policy update (brake, warning, floor schedule), then
	// price discovery against the revised floor.
	temp := e.cycle.State().Temperature
	newWarning, floorRaised := e.cea.PolicyUpdate(&e.market, &e.ledger, e.bank, year, ppm, temp)
	DiscoverPrice(&e.market)

	// Phase 9: project initiation.
	e.broker.Initiate(InitiationContext{
		Year:             year,
		MarketPrice:      e.market.Price,
		BrakeFactor:      e.market.BrakeFactor,
		Inflation:        e.market.Inflation,
		CO2PPM:           ppm,
		ESRatio:          e.esRatio,
		CO2PeakConfirmed: e.cea.CO2PeakConfirmed(),
	}, e.countries, e.g)

	// Phase 10: project advancement and stochastic failure.
	adv := e.broker.Advance(temp, ppm, e.market.Inflation, e.g)

	// Phase 11: audit, minting, clawback. The latch observed here is last
	// tick's: the latch trips after the carbon step, so crediting stops on
	// the following tick.
	latched := e.cea.NetZeroLatched()
	audit := e.auditor.Audit(e.broker, &e.ledger, e.countries, e.market.BrakeFactor, latched, e.g)
	e.lastLatchedAudit = latched
	e.lastAudit = audit

	// Phase 12: reversal accounting.
	reversalTonnes := adv.ReversalTonnes + audit.ReversalTonnes

	// Phase 13: CQE floor defense.
	e.defense.Defend(&e.market, &e.ledger, e.countries, activeGDP)

	// Phase 14: carbon-cycle step with this year's verified flows.
	cdrGtC := tonnesToGtC(audit.DeliveredTonnes[ChannelCDR])
	convGtC := tonnesToGtC(audit.DeliveredTonnes[ChannelConventional])
	avdefGtC := tonnesToGtC(audit.DeliveredTonnes[ChannelAvoidedDeforestation])
	reversalGtC := tonnesToGtC(reversalTonnes)
	delta := e.cycle.Step(bauFlux, cdrGtC, convGtC, avdefGtC, reversalGtC)

	e.esRatio = e.cea.ObserveSinks(delta.NetAnthropogenic, cdrGtC, delta.OceanUptake, delta.LandUptake)
	declined := e.cea.ObserveCO2(year, e.cycle.State().PPM())

	e.pendingNewWarning = newWarning
	e.pendingFloorRaised = floorRaised
	e.pendingCO2Decline = declined

	// Phase 15: snapshot.
	return e.record(year, delta, adv, audit, reversalTonnes)
}

// record assembles the annual output row.
func (e *Engine) record(year int, delta CycleDelta, adv AdvanceResult, audit AuditResult, reversalTonnes float64) Snapshot {
	state := e.cycle.State()
	bau := e.bauTwin.State()
	total, operational, development, failed := e.broker.Counts()

	var seqTotal float64
	for _, ch := range Channels {
		seqTotal += audit.DeliveredTonnes[ch]
	}

	convCap := e.params.maxCapacityGt(ChannelConventional)
	snap := Snapshot{
		Year: year,

		CO2PPM:                 state.PPM(),
		BAUCO2PPM:              bau.PPM(),
		CO2Avoided:             bau.PPM() - state.PPM(),
		TemperatureAnomaly:     state.Temperature,
		OceanUptakeGtC:         delta.OceanUptake,
		LandUptakeGtC:          delta.LandUptake,
		AirborneFraction:       delta.AirborneFraction(),
		PermafrostEmissionsGtC: delta.Permafrost,
		FireEmissionsGtC:       delta.Fire,
		CumulativeEmissionsGtC: state.CumulativeGtC,
		ClimateRiskMultiplier:  adv.ClimateRiskMult,

		Inflation:            e.market.Inflation,
		MarketPrice:          e.market.Price,
		PriceFloor:           e.market.PriceFloor,
		Sentiment:            e.market.Sentiment,
		CEABrakeFactor:       e.market.BrakeFactor,
		NetCapitalFlow:       e.market.NetCapitalFlowUSD,
		CapitalDemandPremium: e.market.CapitalDemandPremiumUSD,
		ForwardGuidance:      e.market.ForwardGuidance,

		XCRSupply:           e.ledger.Supply,
		XCRMinted:           e.ledger.AnnualMinted,
		XCRBurnedAnnual:     e.ledger.AnnualBurned,
		XCRBurnedCumulative: e.ledger.CumulativeBurned,
		CobenefitBonusXCR:   audit.CobenefitXCR,

		ProjectsTotal:       total,
		ProjectsOperational: operational,
		ProjectsDevelopment: development,
		ProjectsFailed:      failed,

		SequestrationTonnes:          seqTotal,
		CDRSequestrationTonnes:       audit.DeliveredTonnes[ChannelCDR],
		ConventionalMitigationTonnes: audit.DeliveredTonnes[ChannelConventional],
		AvoidedDeforestationTonnes:   audit.DeliveredTonnes[ChannelAvoidedDeforestation],
		ReversalTonnes:               reversalTonnes,

		CDRCostPerTonne:             e.broker.MarginalCost(ChannelCDR, e.esRatio),
		ConventionalCostPerTonne:    e.broker.MarginalCost(ChannelConventional, e.esRatio),
		CDRCumulativeGtCO2:          e.broker.CumulativeGt(ChannelCDR),
		ConventionalCumulativeGtCO2: e.broker.CumulativeGt(ChannelConventional),
		CDRREffective:               e.meanEffectiveR(ChannelCDR),
		ConventionalREffective:      e.meanEffectiveR(ChannelConventional),

		ConventionalCapacityUtilization: e.broker.OperationalRateGt(ChannelConventional) / convCap,
		CDRMaterialUtilization:          e.broker.CumulativeGt(ChannelCDR) / e.params.CDRMaterialBudgetGt,
		CDRBuildoutStopped:              e.broker.CDRBuildoutStopped(),

		CQESpent:             e.bank.CumulativeSpentUSD(),
		AnnualCQESpent:       e.bank.AnnualSpentUSD(),
		AnnualCQEBudget:      e.bank.AnnualBudgetUSD(),
		CQEBudgetUtilization: e.bank.BudgetUtilization(),
		XCRPurchased:         e.bank.CumulativePurchasedXCR(),
		CQEBudgetTotal:       e.bank.CumulativeBudgetUSD(),

		ActiveCountries: e.countries.ActiveCount(),
	}
	return snap
}

// meanEffectiveR averages the reward multiplier over live projects of a
// channel; zero when none exist.
func (e *Engine) meanEffectiveR(ch Channel) float64 {
	var sum float64
	var n int
	for _, p := range e.broker.Projects() {
		if p.Channel == ch && p.Status != StatusFailed {
			sum += p.EffectiveR
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// tonnesToGtC converts tonnes CO2 to GtC.
func tonnesToGtC(tonnes float64) float64 {
	return tonnes / tonnesPerGt / gtCO2PerGtC
}
