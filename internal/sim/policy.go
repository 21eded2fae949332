package sim

import (
	"log/slog"
	"math"
)

// =============================================================================
// Brake Factor
// =============================================================================

// brakeInputs bundles the three drivers of the issuance brake.
type brakeInputs struct {
	StabilityRatio    float64
	Inflation         float64
	BudgetUtilization float64
}

// inflationAdjustment scales the stability-ratio thresholds by monetary
// conditions: loose conditions widen the runway (2x), stressed conditions
// shrink it toward 0.3x.
func inflationAdjustment(inflation float64) float64 {
	rho := inflationRatio(inflation)
	switch {
	case rho < 0.5:
		return 2.0
	case rho < 2.0:
		return 2.0 - 1.0*(rho-0.5)
	default:
		return math.Max(0.3, 0.5-0.05*(rho-2.0))
	}
}

// heavyBrakeFloor is the hardest allowed brake, itself tightening with
// inflation.
func heavyBrakeFloor(inflation float64) float64 {
	rho := inflationRatio(inflation)
	switch {
	case rho < 0.5:
		return 0.30
	case rho <= 2.0:
		return 0.30 - (0.30-0.055)*(rho-0.5)/1.5
	default:
		return math.Max(0.01, 0.05-0.01*(rho-2.0))
	}
}

// computeBrake is the rule-based brake: ratio brake x budget brake x
// inflation penalty, floored at the heavy-brake floor.
func computeBrake(in brakeInputs) float64 {
	adj := inflationAdjustment(in.Inflation)
	floor := heavyBrakeFloor(in.Inflation)
	brakeStart := 10 * adj
	brakeMid := 12 * adj
	brakeHeavy := 15 * adj

	r := in.StabilityRatio
	var ratioBrake float64
	switch {
	case r < brakeStart:
		ratioBrake = 1.0
	case r < brakeMid:
		ratioBrake = 1.0 - 0.5*(r-brakeStart)/(brakeMid-brakeStart)
	case r < brakeHeavy:
		t := (r - brakeMid) / (brakeHeavy - brakeMid)
		ratioBrake = 0.5 - (0.5-floor)*t*t
	default:
		ratioBrake = floor
	}

	budgetBrake := 1.0
	if u := in.BudgetUtilization; u >= 0.9 {
		budgetBrake = math.Max(0.25, 1.0-(u-0.9)/0.1)
	}

	penalty := 1.0
	if rho := inflationRatio(in.Inflation); rho > 1.0 {
		penalty = math.Max(0.2, 1.0-0.4*(rho-1.0))
	}

	return clamp(ratioBrake*budgetBrake*penalty, floor, 1.0)
}

// climateRiskMultiplier scales project failure with warming.
func climateRiskMultiplier(temperature float64) float64 {
	switch {
	case temperature < 1.5:
		return 1.0
	case temperature < 2.0:
		return 1.0 + 0.2*(temperature-1.5)
	case temperature < 3.0:
		return 1.1 + 0.3*(temperature-2.0)
	default:
		return 1.4 + 0.5*(temperature-3.0)
	}
}

// =============================================================================
// CEA Controller
// =============================================================================

// Controller parameters.
const (
	warningRatioBase    = 8.0
	floorRevisionPeriod = 5
	floorGrowthMin      = -0.02
	floorGrowthMax      = 0.10
)

// CEA is the governance controller: it computes the brake each tick,
// revises the price floor every five years against the CO2 roadmap, and
// owns the warning flag, the net-zero latch, and the CO2 peak detector.
type CEA struct {
	params Params
	log    *slog.Logger

	// brake is the pluggable brake computation; defaults to the CEA's own
	// rule-based tables.
	brake BrakePolicy

	warning            bool
	yearsSinceRevision int
	lockedFloorGrowth  float64
	netZeroEverReached bool

	// CO2 peak detection.
	prevPPM          float64
	peakPPM          float64
	peakYear         int
	consecutiveDrops int
	co2PeakConfirmed bool
}

// NewCEA builds the controller.
func NewCEA(params Params, logger *slog.Logger) *CEA {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CEA{
		params:  params,
		log:     logger.With("component", "cea"),
		prevPPM: params.InitialCO2PPM,
		peakPPM: params.InitialCO2PPM,
	}
	c.brake = c
	return c
}

// SetBrakePolicy swaps the brake computation for an alternative
// implementation.
func (c *CEA) SetBrakePolicy(p BrakePolicy) {
	if p != nil {
		c.brake = p
	}
}

// Warning reports the current stability warning flag.
func (c *CEA) Warning() bool { return c.warning }

// NetZeroLatched reports whether conventional crediting has terminated.
func (c *CEA) NetZeroLatched() bool { return c.netZeroEverReached }

// CO2PeakConfirmed reports whether atmospheric CO2 has declined for two
// consecutive years after first peaking.
func (c *CEA) CO2PeakConfirmed() bool { return c.co2PeakConfirmed }

// LockedFloorGrowth returns the annual floor growth rate locked at the
// last revision.
func (c *CEA) LockedFloorGrowth() float64 { return c.lockedFloorGrowth }

// ComputeBrake implements BrakePolicy.
func (c *CEA) ComputeBrake(stabilityRatio, inflation, budgetUtilization float64) float64 {
	return computeBrake(brakeInputs{
		StabilityRatio:    stabilityRatio,
		Inflation:         inflation,
		BudgetUtilization: budgetUtilization,
	})
}

// PolicyUpdate runs the controller's tick phase: stability ratio, warning,
// brake, and the floor schedule. Returns whether this tick raised a NEW
// warning (for the sentiment update) and whether the floor was revised
// upward.
func (c *CEA) PolicyUpdate(market *MarketState, ledger *TokenLedger, bank *CentralBankAlliance, year int, ppm, temperature float64) (newWarning, floorRaised bool) {
	ratio := market.MarketCapUSD(ledger.Supply) / math.Max(bank.AnnualBudgetUSD(), 1)
	market.StabilityRatio = ratio

	wasWarning := c.warning
	c.warning = ratio >= warningRatioBase*inflationAdjustment(market.Inflation)
	newWarning = c.warning && !wasWarning
	market.Warning = c.warning

	market.BrakeFactor = c.brake.ComputeBrake(ratio, market.Inflation, bank.BudgetUtilization())

	// Floor schedule: grow yearly at the locked rate; re-lock every five
	// years against roadmap performance.
	c.yearsSinceRevision++
	if c.yearsSinceRevision >= floorRevisionPeriod {
		c.yearsSinceRevision = 0
		prev := c.lockedFloorGrowth
		c.lockedFloorGrowth = c.reviseFloorGrowth(market, year, ppm, temperature)
		floorRaised = c.lockedFloorGrowth > prev
		c.log.Info("price floor growth revised",
			"year", year,
			"annualGrowth", c.lockedFloorGrowth,
			"roadmapGapPpm", c.roadmapGap(year, ppm))
	}
	market.PriceFloor *= 1 + c.lockedFloorGrowth

	return newWarning, floorRaised
}

// roadmapGap is current CO2 minus the linear roadmap from initial to
// target over the scenario horizon. Positive means behind schedule.
func (c *CEA) roadmapGap(year int, ppm float64) float64 {
	progress := clamp(float64(year)/float64(c.params.Years), 0, 1)
	roadmap := c.params.InitialCO2PPM + (c.params.TargetCO2PPM-c.params.InitialCO2PPM)*progress
	return ppm - roadmap
}

// reviseFloorGrowth locks the next five years of annual floor growth:
// positive when behind the roadmap, attenuated by inflation overshoot and
// warming beyond 1.5 degrees.
func (c *CEA) reviseFloorGrowth(market *MarketState, year int, ppm, temperature float64) float64 {
	gap := c.roadmapGap(year, ppm)
	mu := 0.02 + 0.002*gap
	if over := market.Inflation - c.params.InflationTarget; over > 0 {
		mu -= 2.0 * over
	}
	if temperature > 1.5 {
		mu -= 0.01 * (temperature - 1.5)
	}
	return clamp(mu, floorGrowthMin, floorGrowthMax)
}

// ObserveCO2 feeds the peak detector with this tick's post-step ppm and
// returns whether CO2 declined versus the previous tick.
func (c *CEA) ObserveCO2(year int, ppm float64) (declined bool) {
	declined = ppm < c.prevPPM
	if ppm > c.peakPPM {
		c.peakPPM = ppm
		c.peakYear = year
		c.consecutiveDrops = 0
	} else if declined {
		c.consecutiveDrops++
		if c.consecutiveDrops >= 2 && !c.co2PeakConfirmed {
			c.co2PeakConfirmed = true
			c.log.Info("co2 peak confirmed", "peakYear", c.peakYear, "peakPpm", c.peakPPM)
		}
	} else {
		c.consecutiveDrops = 0
	}
	c.prevPPM = ppm
	return declined
}

// ObserveSinks feeds the net-zero latch with this tick's emissions and
// sink fluxes (GtC/yr). Once the emissions-to-sinks ratio first reaches
// 1.0 the latch is permanent. Returns the ratio.
func (c *CEA) ObserveSinks(humanEmissions, cdrRemoval, oceanUptake, landUptake float64) float64 {
	sinks := cdrRemoval + math.Max(oceanUptake, 0) + math.Max(landUptake, 0)
	ratio := math.Inf(1)
	if sinks > 0 {
		ratio = humanEmissions / sinks
	}
	if !c.netZeroEverReached && ratio <= 1.0 {
		c.netZeroEverReached = true
		c.log.Info("net zero reached; conventional crediting terminated permanently")
	}
	return ratio
}
