package sim

import (
	"log/slog"
	"math"
)

// =============================================================================
// Central Bank Alliance (Carbon Quantitative Easing)
// =============================================================================

// CQE parameters.
const (
	cqeFlowShare           = 0.05  // share of annual private inflow
	cqeGDPShare            = 0.005 // share of active-member GDP
	cqeWillingnessSlope    = 12.0
	cqeMaxSupplyPerDefense = 0.02 // fraction of float one defense may absorb
	cqeInflationImpactCap  = 0.02 // +2pp per intervention
	cqeInflationImpactK    = 5.0
	inflationReversion     = 0.30 // mean reversion toward target per year
)

// DefenseResult reports one floor defense.
type DefenseResult struct {
	SpentUSD     float64
	XCRPurchased float64
	PriceAfter   float64
	InflationAdd float64
	Defended     bool
}

// CentralBankAlliance computes the annual CQE budget and defends the price
// floor with reserve-funded XCR purchases. Budget exhaustion is a normal
// outcome: defense simply stops until the next annual budget.
type CentralBankAlliance struct {
	params Params
	log    *slog.Logger

	annualBudgetUSD float64
	annualSpentUSD  float64
	cumBudgetUSD    float64
	cumSpentUSD     float64
	cumPurchasedXCR float64
}

// NewCentralBankAlliance builds the alliance.
func NewCentralBankAlliance(params Params, logger *slog.Logger) *CentralBankAlliance {
	if logger == nil {
		logger = slog.Default()
	}
	return &CentralBankAlliance{params: params, log: logger.With("component", "cqe")}
}

// AnnualBudgetUSD returns this year's budget.
func (c *CentralBankAlliance) AnnualBudgetUSD() float64 { return c.annualBudgetUSD }

// AnnualSpentUSD returns this year's spend.
func (c *CentralBankAlliance) AnnualSpentUSD() float64 { return c.annualSpentUSD }

// CumulativeSpentUSD returns the run's total spend.
func (c *CentralBankAlliance) CumulativeSpentUSD() float64 { return c.cumSpentUSD }

// CumulativePurchasedXCR returns total XCR bought into alliance reserves.
func (c *CentralBankAlliance) CumulativePurchasedXCR() float64 { return c.cumPurchasedXCR }

// BudgetUtilization is annual spend over annual budget in [0, 1].
func (c *CentralBankAlliance) BudgetUtilization() float64 {
	if c.annualBudgetUSD <= 0 {
		return 0
	}
	return clamp(c.annualSpentUSD/c.annualBudgetUSD, 0, 1)
}

// Rollover zeroes the annual counters at the year boundary (tick phase 0).
func (c *CentralBankAlliance) Rollover() {
	c.annualBudgetUSD = 0
	c.annualSpentUSD = 0
}

// RecalculateBudget sets this year's budget: 5% of the year's private
// capital inflow, capped at 0.5% of active-member GDP. The budget is
// global; country weights attribute purchases for reporting only.
func (c *CentralBankAlliance) RecalculateBudget(annualInflowUSD, activeGDPUSD float64) float64 {
	c.annualBudgetUSD = math.Min(cqeFlowShare*math.Max(annualInflowUSD, 0), cqeGDPShare*activeGDPUSD)
	c.cumBudgetUSD += c.annualBudgetUSD
	return c.annualBudgetUSD
}

// CumulativeBudgetUSD returns the sum of all annual budgets so far.
func (c *CentralBankAlliance) CumulativeBudgetUSD() float64 { return c.cumBudgetUSD }

// Defend intervenes when the market price sits below the floor. Willingness
// collapses as realized inflation approaches 1.5x target, intervention size
// is bounded to a small fraction of outstanding supply, and each purchase
// nudges realized inflation by a bounded amount.
func (c *CentralBankAlliance) Defend(market *MarketState, ledger *TokenLedger, pool *CountryPool, activeGDPUSD float64) DefenseResult {
	gap := market.PriceFloor - market.Price
	if gap <= 0 || market.Price <= 0 || ledger.Supply <= 0 {
		return DefenseResult{PriceAfter: market.Price}
	}
	remaining := c.annualBudgetUSD - c.annualSpentUSD
	if remaining <= 0 {
		return DefenseResult{PriceAfter: market.Price}
	}

	w := c.willingness(market.Inflation)
	if w <= 0 {
		return DefenseResult{PriceAfter: market.Price}
	}

	// Sizing: enough tokens to cover the gap across a bounded slice of the
	// float, scaled by willingness and the remaining budget.
	sizingXCR := cqeMaxSupplyPerDefense * ledger.Supply
	spend := math.Min(remaining, w*gap*sizingXCR)
	if spend <= 0 {
		return DefenseResult{PriceAfter: market.Price}
	}

	purchased := spend / market.Price
	c.annualSpentUSD += spend
	c.cumSpentUSD += spend
	c.cumPurchasedXCR += purchased

	// Purchases are alliance holdings, not burns: the float shrinks but
	// supply accounting is untouched.
	c.attribute(pool, purchased)

	// Price support: the buy pressure lifts price toward (never past) the
	// floor, spread across half the float.
	impact := spend / math.Max(ledger.Supply*0.5, 1)
	market.Price = math.Min(market.PriceFloor, market.Price+impact)

	// Reserve creation leaks into realized inflation, bounded per
	// intervention.
	inflationAdd := math.Min(cqeInflationImpactCap, cqeInflationImpactK*spend/math.Max(activeGDPUSD, 1))
	market.Inflation += inflationAdd

	c.log.Debug("floor defended",
		"spentUsd", spend,
		"xcrPurchased", purchased,
		"priceAfter", market.Price,
		"inflationAdd", inflationAdd)

	return DefenseResult{
		SpentUSD:     spend,
		XCRPurchased: purchased,
		PriceAfter:   market.Price,
		InflationAdd: inflationAdd,
		Defended:     true,
	}
}

// willingness is the inflation-damped appetite for intervention. At a zero
// inflation target the alliance never intervenes.
func (c *CentralBankAlliance) willingness(inflation float64) float64 {
	target := c.params.InflationTarget
	if target <= 0 {
		return 0
	}
	return 1 / (1 + math.Exp(cqeWillingnessSlope*(inflation-1.5*target)))
}

// attribute books purchased XCR to active countries by co-benefit weight.
// Reporting only; the budget itself is global.
func (c *CentralBankAlliance) attribute(pool *CountryPool, purchased float64) {
	active := pool.Active()
	var total float64
	for _, country := range active {
		total += country.CobenefitWeight
	}
	if total <= 0 {
		return
	}
	for _, country := range active {
		country.XCRPurchased += purchased * country.CobenefitWeight / total
	}
}

// RevertInflation mean-reverts realized inflation toward the target. Runs
// every tick in the inflation-correction phase, shocks or not.
func RevertInflation(market *MarketState, target float64) {
	market.Inflation += (target - market.Inflation) * inflationReversion
}
