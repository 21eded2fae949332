package sim

import (
	"log/slog"
	"math"

	"github.com/google/uuid"
)

// =============================================================================
// Projects
// =============================================================================

// ProjectStatus is the lifecycle state of a project. Transitions only ever
// run DEVELOPMENT -> OPERATIONAL -> FAILED; FAILED is terminal.
type ProjectStatus string

const (
	StatusDevelopment ProjectStatus = "development"
	StatusOperational ProjectStatus = "operational"
	StatusFailed      ProjectStatus = "failed"
)

// Project is one sequestration or mitigation project. Identity, channel,
// host, cost, and reward multiplier are locked at initiation; only the
// lifecycle fields mutate, and only through broker/auditor operations.
type Project struct {
	ID               string        `json:"id"`
	Channel          Channel       `json:"channel"`
	Host             *Country      `json:"-"`
	HostName         string        `json:"host"`
	StartYear        int           `json:"startYear"`
	DevelopmentYears int           `json:"developmentYears"`
	AnnualTonnes     float64       `json:"annualTonnes"`
	CostPerTonne     float64       `json:"costPerTonne"`
	BaseR            float64       `json:"baseR"`
	EffectiveR       float64       `json:"effectiveR"`
	Status           ProjectStatus `json:"status"`
	Health           float64       `json:"health"`
	Age              int           `json:"age"`
	YearsOperational int           `json:"yearsOperational"`
	MaxOperational   int           `json:"maxOperationalYears"`
	TotalXCRMinted   float64       `json:"totalXcrMinted"`

	// LifetimeTonnes is delivered sequestration/reduction, the base for
	// failure reversals.
	LifetimeTonnes float64 `json:"lifetimeTonnes"`
}

// Operational reports whether the project currently contributes tonnes.
func (p *Project) Operational() bool { return p.Status == StatusOperational }

// reversalTonnes is the re-emission owed if the project fails now.
func (p *Project) reversalTonnes() float64 {
	return p.LifetimeTonnes * p.Channel.Traits().ReversalFraction
}

// =============================================================================
// Broker
// =============================================================================

// Broker tuning constants.
const (
	baseFailureProb    = 0.02
	capexRevenueYears  = 2.0 // capital cost approximated as two years of revenue
	maxStartsPerYear   = 40
	countDamperFloor   = 0.30
	minProjectTonnes   = 10e6
	maxProjectTonnes   = 100e6
	scaleDamperFloor   = 0.15
	depletionCoeff     = 0.15
	easyAbatementGt    = 1000.0 // "easy" conventional abatement budget, GtCO2
	convScarcityCenter = 0.70
	cdrScarcityCenter  = 0.60
	convScarcityMax    = 4.0
	convCapacityFloor  = 0.10
	learningRefGt      = 1.0
)

// ProjectsBroker owns the project portfolio: initiation from the capital
// pool, advancement, stochastic failure, and retirement. Iteration order is
// insertion order and deterministic.
type ProjectsBroker struct {
	params   Params
	projects []*Project
	log      *slog.Logger

	// capitalUSD is the uncommitted private capital pool; positive net
	// market inflows top it up each year.
	capitalUSD float64

	// cumDeployGt is cumulative delivered tonnes per channel, in GtCO2.
	// Drives learning curves, scarcity, and the scale dampers.
	cumDeployGt map[Channel]float64

	// projectCount counts ever-initiated projects per channel, for the
	// depletion multiplier.
	projectCount map[Channel]int

	// cdrStopped latches once CDR buildout halts (stop year or CO2 peak).
	cdrStopped bool
}

// NewProjectsBroker builds an empty portfolio.
func NewProjectsBroker(params Params, logger *slog.Logger) *ProjectsBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectsBroker{
		params:       params,
		log:          logger.With("component", "projects-broker"),
		cumDeployGt:  map[Channel]float64{},
		projectCount: map[Channel]int{},
	}
}

// Projects returns the portfolio in insertion order.
func (b *ProjectsBroker) Projects() []*Project { return b.projects }

// CapitalPoolUSD returns the uncommitted capital pool.
func (b *ProjectsBroker) CapitalPoolUSD() float64 { return b.capitalUSD }

// CumulativeGt returns cumulative delivered GtCO2 for a channel.
func (b *ProjectsBroker) CumulativeGt(ch Channel) float64 { return b.cumDeployGt[ch] }

// CDRBuildoutStopped reports whether new CDR builds are latched off.
func (b *ProjectsBroker) CDRBuildoutStopped() bool { return b.cdrStopped }

// AddCapital tops up the pool with this year's positive net inflow.
func (b *ProjectsBroker) AddCapital(usd float64) {
	if usd > 0 {
		b.capitalUSD += usd
	}
}

// recordDelivery books delivered tonnes against a project and the channel's
// cumulative deployment. Called by the auditor on each verified year.
func (b *ProjectsBroker) recordDelivery(p *Project, tonnes float64) {
	p.LifetimeTonnes += tonnes
	b.cumDeployGt[p.Channel] += tonnes / tonnesPerGt
}

// PlannedRateGt sums annual tonnes of development plus operational projects
// for a channel, in GtCO2/year.
func (b *ProjectsBroker) PlannedRateGt(ch Channel) float64 {
	var t float64
	for _, p := range b.projects {
		if p.Channel == ch && p.Status != StatusFailed {
			t += p.AnnualTonnes
		}
	}
	return t / tonnesPerGt
}

// OperationalRateGt sums annual tonnes of operational projects only.
func (b *ProjectsBroker) OperationalRateGt(ch Channel) float64 {
	var t float64
	for _, p := range b.projects {
		if p.Channel == ch && p.Operational() {
			t += p.AnnualTonnes
		}
	}
	return t / tonnesPerGt
}

// =============================================================================
// Costs
// =============================================================================

// MarginalCost returns the current marginal cost per tonne for new builds
// of a channel: base cost x learning x depletion x scarcity x (for
// conventional) the net-zero proximity penalty.
func (b *ProjectsBroker) MarginalCost(ch Channel, esRatio float64) float64 {
	traits := ch.Traits()
	cost := traits.BaseCostPerTonne
	cost *= b.learningMultiplier(ch)
	cost *= 1 + depletionCoeff*math.Log10(float64(b.projectCount[ch]+1))
	cost *= b.scarcityCostMultiplier(ch)
	if ch == ChannelConventional {
		cost *= netZeroProximityPenalty(esRatio)
	}
	return cost
}

// learningMultiplier applies the experience curve. The reference point caps
// early-phase cost at the base value; costs only fall as deployment
// accumulates.
func (b *ProjectsBroker) learningMultiplier(ch Channel) float64 {
	lr := b.params.learningRate(ch)
	if lr <= 0 {
		return 1
	}
	if ch == ChannelCDR {
		// Learning slows as cumulative deployment approaches the taper
		// midpoint: cheap early gains, grinding later ones.
		taper := 1 / (1 + math.Exp((b.cumDeployGt[ch]-b.params.CDRLearningTaperMidGt)/b.params.CDRLearningTaperSlopeGt))
		lr *= taper
	}
	x := math.Max(b.cumDeployGt[ch], learningRefGt)
	exponent := math.Log2(1 / (1 - lr))
	return math.Pow(x/learningRefGt, -exponent)
}

// scarcityCostMultiplier prices in resource exhaustion: easy conventional
// abatement and CDR materials each follow a sigmoid toward their channel's
// maximum multiplier. Applies to new builds only, never to existing opex.
func (b *ProjectsBroker) scarcityCostMultiplier(ch Channel) float64 {
	switch ch {
	case ChannelConventional:
		u := b.cumDeployGt[ch] / easyAbatementGt
		s := sigmoid((u - convScarcityCenter) / 0.08)
		return 1 + (convScarcityMax-1)*s
	case ChannelCDR:
		u := b.cumDeployGt[ch] / b.params.CDRMaterialBudgetGt
		s := sigmoid((u - cdrScarcityCenter) / 0.08)
		return 1 + (b.params.CDRMaterialCostMultiplier-1)*s
	default:
		return 1
	}
}

// scarcityCapacityMultiplier shrinks a channel's effective capacity cap as
// its resource budget exhausts, floored per channel.
func (b *ProjectsBroker) scarcityCapacityMultiplier(ch Channel) float64 {
	switch ch {
	case ChannelConventional:
		u := b.cumDeployGt[ch] / easyAbatementGt
		s := sigmoid((u - convScarcityCenter) / 0.08)
		return math.Max(convCapacityFloor, 1-s)
	case ChannelCDR:
		u := b.cumDeployGt[ch] / b.params.CDRMaterialBudgetGt
		s := sigmoid((u - cdrScarcityCenter) / 0.08)
		return math.Max(b.params.CDRMaterialCapacityFloor, 1-s)
	default:
		return 1
	}
}

// netZeroProximityPenalty gates conventional initiation economically as the
// emissions-to-sinks ratio approaches 1: cost rises from 1x at E:S >= 6 to
// 100x at E:S = 1, phased exponentially.
func netZeroProximityPenalty(esRatio float64) float64 {
	if esRatio >= 6 {
		return 1
	}
	es := math.Max(esRatio, 1)
	return math.Pow(100, (6-es)/5)
}

// =============================================================================
// Initiation
// =============================================================================

// InitiationContext carries the cross-component reads initiation needs.
type InitiationContext struct {
	Year        int
	MarketPrice float64
	BrakeFactor float64
	Inflation   float64
	CO2PPM      float64
	ESRatio     float64

	// CO2PeakConfirmed is true once atmospheric CO2 has declined for two
	// consecutive years after first peaking.
	CO2PeakConfirmed bool
}

// Initiate runs one year of project starts. Channels allocate the shared
// capital pool in strict order: avoided deforestation, conventional, CDR.
// Returns the number of projects started.
func (b *ProjectsBroker) Initiate(ctx InitiationContext, pool *CountryPool, g *rng) int {
	b.updateCDRStop(ctx)

	urgency := urgencyMultiplier(ctx.CO2PPM, ctx.Inflation)
	started := 0
	for _, ch := range Channels {
		started += b.initiateChannel(ch, ctx, urgency, pool, g)
	}
	return started
}

// updateCDRStop latches the CDR buildout stop from either trigger.
func (b *ProjectsBroker) updateCDRStop(ctx InitiationContext) {
	if b.cdrStopped {
		return
	}
	if y := b.params.CDRBuildoutStopYear; y >= 0 && ctx.Year >= y {
		b.cdrStopped = true
		b.log.Info("cdr buildout stopped", "trigger", "stop_year", "year", ctx.Year)
		return
	}
	if b.params.CDRBuildoutStopOnCO2Peak && ctx.CO2PeakConfirmed {
		b.cdrStopped = true
		b.log.Info("cdr buildout stopped", "trigger", "co2_peak", "year", ctx.Year)
	}
}

func (b *ProjectsBroker) initiateChannel(ch Channel, ctx InitiationContext, urgency float64, pool *CountryPool, g *rng) int {
	if ch == ChannelCDR && b.cdrStopped {
		return 0
	}
	if urgency <= 0 {
		return 0
	}

	globalGt := b.globalCumulativeGt()
	countDamper := countDamperFloor + (1-countDamperFloor)*sigmoid((globalGt-0.3*b.params.ScaleDampFullScaleGt)/b.params.ScaleDampSlopeGt)
	allowed := int(math.Ceil(maxStartsPerYear * countDamper * urgency))

	capGt := b.params.maxCapacityGt(ch) * b.scarcityCapacityMultiplier(ch)

	started := 0
	for started < allowed {
		cost := b.MarginalCost(ch, ctx.ESRatio)
		if ctx.MarketPrice*ctx.BrakeFactor < cost {
			break
		}

		planned := b.PlannedRateGt(ch)
		// Capacity tapers smoothly near the frontier instead of a hard
		// wall: the closer planned rate is to cap, the smaller new
		// projects get, and at the cap nothing starts.
		headroom := 1 - planned/capGt
		if headroom <= 0.02 {
			break
		}

		tonnes := g.uniform(minProjectTonnes, maxProjectTonnes)
		tonnes *= b.scaleDamper(globalGt)
		tonnes *= math.Min(1, headroom*2)
		if planned+tonnes/tonnesPerGt > capGt {
			break
		}

		capex := cost * tonnes * capexRevenueYears
		if capex > b.capitalUSD {
			break
		}

		host := pool.pickHost(ch, g)
		if host == nil {
			break
		}

		b.capitalUSD -= capex
		b.projects = append(b.projects, b.newProject(ch, host, ctx, cost, tonnes, g))
		b.projectCount[ch]++
		started++
	}
	return started
}

// newProject locks cost and reward multiplier at initiation.
func (b *ProjectsBroker) newProject(ch Channel, host *Country, ctx InitiationContext, cost, tonnes float64, g *rng) *Project {
	devYears := 1 + g.r.Intn(4)

	baseR := 1.0
	if ch != ChannelCDR {
		// Reward multiplier anchored to relative marginal cost against
		// CDR: cheap abatement earns proportionally fewer XCR per tonne.
		cdrCost := b.MarginalCost(ChannelCDR, ctx.ESRatio)
		if cdrCost > 0 {
			baseR = clamp(cost/cdrCost, 0.05, 1.0)
		}
	}

	p := &Project{
		ID:               uuid.NewString(),
		Channel:          ch,
		Host:             host,
		HostName:         host.Name,
		StartYear:        ctx.Year,
		DevelopmentYears: devYears,
		AnnualTonnes:     tonnes,
		CostPerTonne:     cost,
		BaseR:            baseR,
		EffectiveR:       baseR,
		Status:           StatusDevelopment,
		Health:           1.0,
		MaxOperational:   ch.Traits().MaxOperationalYears,
	}
	b.log.Debug("project initiated",
		"id", p.ID,
		"channel", ch,
		"host", host.Name,
		"tonnes", tonnes,
		"costPerTonne", cost)
	return p
}

// scaleDamper shrinks sampled project size at low global deployment: the
// industry cannot absorb gigatonne-scale projects before its supply chains
// exist. Normalized so the damper is scaleDamperFloor at zero cumulative
// deployment and 1.0 at the configured full scale.
func (b *ProjectsBroker) scaleDamper(globalGt float64) float64 {
	full := b.params.ScaleDampFullScaleGt
	mid := 0.3 * full
	raw := func(x float64) float64 { return sigmoid((x - mid) / b.params.ScaleDampSlopeGt) }
	r0, r1 := raw(0), raw(full)
	if r1 <= r0 {
		return 1
	}
	frac := clamp((raw(globalGt)-r0)/(r1-r0), 0, 1)
	return scaleDamperFloor + (1-scaleDamperFloor)*frac
}

// globalCumulativeGt sums deployment over the fixed channel order so the
// floating-point result is reproducible.
func (b *ProjectsBroker) globalCumulativeGt() float64 {
	var t float64
	for _, ch := range Channels {
		t += b.cumDeployGt[ch]
	}
	return t
}

// =============================================================================
// Urgency Taper
// =============================================================================

// urgencyMultiplier throttles new starts as atmospheric CO2 approaches the
// restoration target. The taper onset shifts with realized inflation: under
// monetary stress the wind-down starts earlier (higher ppm).
func urgencyMultiplier(ppm, inflation float64) float64 {
	rho := inflationRatio(inflation)
	taperStart := 370 + 55*clamp((rho-1)/2, 0, 1)
	if ppm >= taperStart {
		return 1
	}
	highInflation := rho >= 2
	switch {
	case ppm >= 370:
		return 0.5
	case ppm >= 360:
		if highInflation {
			return 0.12
		}
		return 0.25
	case ppm >= 350:
		if highInflation {
			return 0.04
		}
		return 0.10
	default:
		return 0.02
	}
}

// =============================================================================
// Advancement & Retirement
// =============================================================================

// AdvanceResult aggregates one year of lifecycle transitions.
type AdvanceResult struct {
	Commissioned    int
	Failed          int
	Retired         int
	ReversalTonnes  float64
	ClimateRiskMult float64
}

// Advance ages every project, commissions completed developments, applies
// stochastic failure with the climate-risk multiplier, retires projects at
// end of life, and intensifies retirement in CO2 overshoot.
func (b *ProjectsBroker) Advance(temperature, ppm, inflation float64, g *rng) AdvanceResult {
	res := AdvanceResult{ClimateRiskMult: climateRiskMultiplier(temperature)}
	overshootProb := overshootRetirementProb(ppm, inflation)

	for _, p := range b.projects {
		if p.Status == StatusFailed {
			continue
		}
		p.Age++

		if p.Status == StatusDevelopment {
			if p.Age >= p.DevelopmentYears {
				p.Status = StatusOperational
				res.Commissioned++
			}
			continue
		}

		// Stochastic failure scaled by climate risk and channel fragility.
		failProb := baseFailureProb * res.ClimateRiskMult * p.Channel.Traits().FailureSensitivity
		if g.chance(failProb) {
			p.Status = StatusFailed
			res.Failed++
			res.ReversalTonnes += p.reversalTonnes()
			b.log.Debug("project failed", "id", p.ID, "channel", p.Channel, "reversalTonnes", p.reversalTonnes())
			continue
		}

		p.YearsOperational++
		if p.YearsOperational >= p.MaxOperational {
			p.Status = StatusFailed // end-of-life retirement, no reversal
			res.Retired++
			continue
		}

		// Planned retirement intensifies below the 350 ppm threshold.
		if overshootProb > 0 && g.chance(overshootProb) {
			p.Status = StatusFailed
			res.Retired++
		}
	}
	return res
}

// overshootRetirementProb scales planned retirement with overshoot severity
// below 350 ppm, adjusted by the inflation tier and capped at 0.5.
func overshootRetirementProb(ppm, inflation float64) float64 {
	if ppm >= 350 {
		return 0
	}
	overshoot := 350 - ppm
	var base float64
	switch {
	case overshoot <= 5:
		base = 0.15
	case overshoot <= 10:
		base = 0.22
	case overshoot <= 20:
		base = 0.30
	default:
		base = 0.40
	}
	rho := inflationRatio(inflation)
	var tier float64
	switch {
	case rho < 1:
		tier = 0.8
	case rho < 2:
		tier = 1.0
	case rho < 3:
		tier = 1.2
	default:
		tier = 1.4
	}
	return math.Min(0.5, base*tier)
}

// Counts returns portfolio totals by status.
func (b *ProjectsBroker) Counts() (total, operational, development, failed int) {
	for _, p := range b.projects {
		total++
		switch p.Status {
		case StatusOperational:
			operational++
		case StatusDevelopment:
			development++
		case StatusFailed:
			failed++
		}
	}
	return
}

// =============================================================================
// Shared math helpers
// =============================================================================

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// inflationRatio normalizes realized inflation against the 2% baseline.
func inflationRatio(inflation float64) float64 {
	return math.Max(inflation, 0) / 0.02
}
