package sim

import (
	"log/slog"
	"math"
)

// =============================================================================
// Carbon Cycle
// =============================================================================

// CycleState holds the four reservoir stocks and derived climate state.
// All stocks are GtC; temperature is degC above pre-industrial.
type CycleState struct {
	AtmosphereGtC   float64 `json:"atmosphereGtC"`
	SurfaceOceanGtC float64 `json:"surfaceOceanGtC"`
	DeepOceanGtC    float64 `json:"deepOceanGtC"`
	LandGtC         float64 `json:"landGtC"`
	Temperature     float64 `json:"temperature"`
	CumulativeGtC   float64 `json:"cumulativeGtC"`
	PermafrostGtC   float64 `json:"permafrostGtC"`
}

// PPM returns atmospheric CO2 in parts per million.
func (s CycleState) PPM() float64 { return s.AtmosphereGtC / gtcPerPPM }

// CycleDelta reports the fluxes of one annual step, GtC/year.
type CycleDelta struct {
	NetAnthropogenic float64 `json:"netAnthropogenic"`
	OceanUptake      float64 `json:"oceanUptake"`
	LandUptake       float64 `json:"landUptake"`
	Permafrost       float64 `json:"permafrost"`
	Fire             float64 `json:"fire"`
	AtmosphereDelta  float64 `json:"atmosphereDelta"`
	Temperature      float64 `json:"temperature"`
	Clipped          bool    `json:"clipped"`
}

// AirborneFraction is the share of the net anthropogenic flux left in the
// atmosphere. Zero when there was no positive flux.
func (d CycleDelta) AirborneFraction() float64 {
	if d.NetAnthropogenic <= 0 {
		return 0
	}
	return math.Max(0, d.AtmosphereDelta/d.NetAnthropogenic)
}

// Sink model constants. These are structural, not scenario knobs: the
// scenario-level calibration lives in ClimateParams.
const (
	preindustrialAtmGtC = 590.0
	deepMixingCoeff     = 0.01
	respirationBaseGtC  = 2.0
	respirationQ10      = 2.0
	fireBaseGtC         = 0.5
	permafrostRateCoeff = 0.005
	permafrostOnsetTemp = 1.5
	committedWarmingCap = 0.5
	committedWarmingTau = 30.0
)

// CarbonCycle advances one reservoir state by annual steps. The engine owns
// two of these: the policy path and a BAU twin driven by emissions alone,
// sharing the same sink model so the CO2-avoided comparison is fair.
type CarbonCycle struct {
	state       CycleState
	params      ClimateParams
	oceanEqGtC  float64
	yearsStable int
	log         *slog.Logger
}

// NewCarbonCycle builds a cycle at the scenario's initial stocks.
func NewCarbonCycle(initialPPM float64, params ClimateParams, logger *slog.Logger) *CarbonCycle {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CarbonCycle{
		params: params,
		state: CycleState{
			AtmosphereGtC:   initialPPM * gtcPerPPM,
			SurfaceOceanGtC: 900,
			DeepOceanGtC:    37000,
			LandGtC:         2300,
			CumulativeGtC:   params.InitialCumulativeGtC,
			PermafrostGtC:   params.PermafrostGtC,
		},
		log: logger.With("component", "carbon-cycle"),
	}
	c.oceanEqGtC = c.state.SurfaceOceanGtC
	c.state.Temperature = c.temperature(0)
	return c
}

// State returns a copy of the current reservoir state.
func (c *CarbonCycle) State() CycleState { return c.state }

// clone duplicates the cycle for the BAU twin.
func (c *CarbonCycle) clone() *CarbonCycle {
	dup := *c
	return &dup
}

// Step advances the reservoirs by one year.
//
// bauEmissions is the exogenous anthropogenic flux; convMitigation and
// avdef structurally reduce that flux (they add no sink capacity);
// cdrRemoval is verified engineered removal; reversal is failure-induced
// re-emission. All inputs are GtC/year and are clamped non-negative.
func (c *CarbonCycle) Step(bauEmissions, cdrRemoval, convMitigation, avdef, reversal float64) CycleDelta {
	bauEmissions = math.Max(0, bauEmissions)
	cdrRemoval = math.Max(0, cdrRemoval)
	avdef = math.Max(0, math.Min(avdef, bauEmissions))

	// Conventional mitigation cannot push the human flux negative; it is
	// capped at whatever emissions remain after avoided deforestation.
	convMitigation = math.Max(0, math.Min(convMitigation, bauEmissions-avdef))
	reversal = math.Max(0, reversal)

	e := bauEmissions - convMitigation - avdef
	t := c.state.Temperature

	// Ocean uptake weakens with warming and with surface saturation.
	beta := 1 - 0.03*(t-1.0)
	gamma := 1 / (1 + 0.0015*(c.state.AtmosphereGtC-preindustrialAtmGtC))
	oceanUptake := math.Max(0, c.params.OceanUptakeCoeff*e*beta*gamma)
	mix := deepMixingCoeff * (c.state.SurfaceOceanGtC - c.oceanEqGtC)

	// Land: CO2 fertilization against respiration, fire, and land use. A
	// net land source cannot release more than the land stock holds.
	fert := c.params.LandUptakeCoeff * math.Log(c.state.AtmosphereGtC/preindustrialAtmGtC)
	resp := respirationBaseGtC * math.Pow(respirationQ10, (t-1.0)/10)
	fire := fireBaseGtC * (1 + 0.3*math.Pow(math.Max(0, t-1.5), 2))
	landUptake := fert - resp - fire - c.params.LandUseChangeGtC
	if landUptake < -c.state.LandGtC {
		landUptake = -c.state.LandGtC
		c.log.Debug("land source clipped to remaining stock")
	}

	// Permafrost releases once warming crosses its onset threshold.
	var permafrost float64
	if t >= permafrostOnsetTemp && c.state.PermafrostGtC > 0 {
		permafrost = permafrostRateCoeff * (t - permafrostOnsetTemp) * c.state.PermafrostGtC
		permafrost = math.Min(permafrost, c.state.PermafrostGtC)
		c.state.PermafrostGtC -= permafrost
	}

	// Uptake cannot exceed the carbon actually available this year; scale
	// both sinks down rather than draw the atmosphere negative.
	clipped := false
	newAtm := c.state.AtmosphereGtC + e - oceanUptake - landUptake + permafrost - cdrRemoval + reversal
	if newAtm < 0 {
		deficit := -newAtm
		totalUptake := oceanUptake + math.Max(0, landUptake)
		if totalUptake > 0 {
			scale := math.Max(0, 1-deficit/totalUptake)
			oceanUptake *= scale
			if landUptake > 0 {
				landUptake *= scale
			}
		}
		newAtm = math.Max(0, c.state.AtmosphereGtC+e-oceanUptake-landUptake+permafrost-cdrRemoval+reversal)
		clipped = true
		c.log.Debug("atmospheric stock clipped", "deficit_gtc", deficit)
	}

	delta := newAtm - c.state.AtmosphereGtC
	c.state.AtmosphereGtC = newAtm
	c.state.SurfaceOceanGtC = math.Max(0, c.state.SurfaceOceanGtC+oceanUptake-mix)
	c.state.DeepOceanGtC = math.Max(0, c.state.DeepOceanGtC+mix)
	c.state.LandGtC = math.Max(0, c.state.LandGtC+landUptake)

	// Cumulative anthropogenic-equivalent emissions drive TCRE warming.
	c.state.CumulativeGtC += e + permafrost + reversal - cdrRemoval
	if e <= 0.05*c.params.InitialEmissionsGtC {
		c.yearsStable++
	}
	c.state.Temperature = c.temperature(c.yearsStable)

	return CycleDelta{
		NetAnthropogenic: e,
		OceanUptake:      oceanUptake,
		LandUptake:       landUptake,
		Permafrost:       permafrost,
		Fire:             fire,
		AtmosphereDelta:  delta,
		Temperature:      c.state.Temperature,
		Clipped:          clipped,
	}
}

// temperature applies the TCRE relation plus committed warming, which ramps
// in over ~30 years once emissions have effectively stabilized.
func (c *CarbonCycle) temperature(yearsStable int) float64 {
	committed := committedWarmingCap * (1 - math.Exp(-float64(yearsStable)/committedWarmingTau))
	return c.params.TCRE/1000*c.state.CumulativeGtC + committed
}

// =============================================================================
// BAU Trajectory
// =============================================================================

// bauEmissionsAt returns the business-as-usual emissions flux for a
// simulation year: 1%/year growth to the peak, a plateau to year 60, then a
// slow structural decline.
func bauEmissionsAt(year int, p Params) float64 {
	e := p.Climate.InitialEmissionsGtC
	switch {
	case year <= p.BAUPeakYear:
		return e * math.Pow(1.01, float64(year))
	case year <= 60:
		return e * math.Pow(1.01, float64(p.BAUPeakYear))
	default:
		peak := e * math.Pow(1.01, float64(p.BAUPeakYear))
		return peak * math.Pow(0.998, float64(year-60))
	}
}
