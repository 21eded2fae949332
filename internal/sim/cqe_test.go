package sim

import (
	"math"
	"testing"
)

func TestRecalculateBudget_MinOfFlowAndGDP(t *testing.T) {
	bank := NewCentralBankAlliance(DefaultParams(), nil)

	// Flow-limited: 5% of inflow below 0.5% of GDP.
	got := bank.RecalculateBudget(100e9, 100e12)
	if want := 5e9; got != want {
		t.Errorf("budget = %g, want flow-limited %g", got, want)
	}

	// GDP-limited.
	got = bank.RecalculateBudget(1e15, 10e12)
	if want := 0.005 * 10e12; got != want {
		t.Errorf("budget = %g, want GDP-limited %g", got, want)
	}

	// Negative inflow yields a zero budget, not a negative one.
	if got = bank.RecalculateBudget(-5e9, 100e12); got != 0 {
		t.Errorf("budget = %g, want 0 for outflow years", got)
	}
}

func TestWillingness_ZeroTargetNeverIntervenes(t *testing.T) {
	params := DefaultParams()
	params.InflationTarget = 0
	bank := NewCentralBankAlliance(params, nil)

	if w := bank.willingness(0.01); w != 0 {
		t.Errorf("willingness = %g with zero target, want 0", w)
	}
}

func TestWillingness_DampensWithInflation(t *testing.T) {
	bank := NewCentralBankAlliance(DefaultParams(), nil)

	atTarget := bank.willingness(0.02)
	elevated := bank.willingness(0.05)
	if atTarget <= elevated {
		t.Errorf("willingness must fall with inflation: %g -> %g", atTarget, elevated)
	}
	if atTarget < 0.5 || atTarget > 0.65 {
		t.Errorf("willingness at target = %g, want just above the sigmoid midpoint", atTarget)
	}
	if elevated >= 0.5 {
		t.Errorf("willingness at 2.5x target = %g, want below the midpoint", elevated)
	}
}

func TestDefend_LiftsPriceTowardFloorWithinBudget(t *testing.T) {
	params := DefaultParams()
	bank := NewCentralBankAlliance(params, nil)
	pool := NewCountryPool(nil)
	gdp := pool.ActiveGDPUSD()
	bank.RecalculateBudget(200e9, gdp)

	market := &MarketState{Price: 90, PriceFloor: 100, Inflation: params.InflationTarget}
	ledger := &TokenLedger{Supply: 1e9}

	res := bank.Defend(market, ledger, pool, gdp)
	if !res.Defended {
		t.Fatal("no defense despite price below floor and budget available")
	}
	if res.SpentUSD <= 0 || res.SpentUSD > bank.AnnualBudgetUSD() {
		t.Errorf("spend = %g, want within (0, budget]", res.SpentUSD)
	}
	if market.Price > market.PriceFloor {
		t.Errorf("defense lifted price %g past the floor", market.Price)
	}
	if market.Price <= 90 {
		t.Error("defense did not lift the price")
	}
	if res.InflationAdd < 0 || res.InflationAdd > cqeInflationImpactCap {
		t.Errorf("inflation impact = %g, want within [0, %g]", res.InflationAdd, cqeInflationImpactCap)
	}
	if bank.AnnualSpentUSD() > bank.AnnualBudgetUSD() {
		t.Error("annual spend exceeded annual budget")
	}

	// Purchases are holdings, not burns.
	if ledger.Supply != 1e9 {
		t.Errorf("defense changed supply to %g", ledger.Supply)
	}
	if res.XCRPurchased <= 0 {
		t.Error("no XCR recorded as purchased")
	}
}

func TestDefend_NoActionAtOrAboveFloor(t *testing.T) {
	params := DefaultParams()
	bank := NewCentralBankAlliance(params, nil)
	pool := NewCountryPool(nil)
	bank.RecalculateBudget(200e9, pool.ActiveGDPUSD())

	market := &MarketState{Price: 120, PriceFloor: 100, Inflation: params.InflationTarget}
	ledger := &TokenLedger{Supply: 1e9}

	if res := bank.Defend(market, ledger, pool, pool.ActiveGDPUSD()); res.Defended {
		t.Error("defended with price above floor")
	}
}

func TestDefend_BudgetExhaustionStopsQuietly(t *testing.T) {
	params := DefaultParams()
	bank := NewCentralBankAlliance(params, nil)
	pool := NewCountryPool(nil)

	// No budget recalculated this year: remaining is zero.
	market := &MarketState{Price: 50, PriceFloor: 100, Inflation: params.InflationTarget}
	ledger := &TokenLedger{Supply: 1e9}

	res := bank.Defend(market, ledger, pool, pool.ActiveGDPUSD())
	if res.Defended {
		t.Error("defended with an exhausted budget")
	}
	if market.Price != 50 {
		t.Error("price moved without a defense")
	}
}

func TestDefend_AttributesPurchasesToActiveCountries(t *testing.T) {
	params := DefaultParams()
	bank := NewCentralBankAlliance(params, nil)
	pool := NewCountryPool(nil)
	gdp := pool.ActiveGDPUSD()
	bank.RecalculateBudget(200e9, gdp)

	market := &MarketState{Price: 90, PriceFloor: 100, Inflation: params.InflationTarget}
	ledger := &TokenLedger{Supply: 1e9}
	res := bank.Defend(market, ledger, pool, gdp)

	var attributed float64
	for _, c := range pool.Countries() {
		if !c.Active && c.XCRPurchased != 0 {
			t.Errorf("inactive country %s received attribution", c.Name)
		}
		attributed += c.XCRPurchased
	}
	if math.Abs(attributed-res.XCRPurchased) > 1e-6 {
		t.Errorf("attributed %g, want %g", attributed, res.XCRPurchased)
	}
}

func TestRevertInflation_ApproachesTarget(t *testing.T) {
	market := &MarketState{Inflation: 0.10}
	target := 0.02

	prevGap := math.Abs(market.Inflation - target)
	for i := 0; i < 20; i++ {
		RevertInflation(market, target)
		gap := math.Abs(market.Inflation - target)
		if gap > prevGap {
			t.Fatalf("inflation diverged at step %d: gap %g -> %g", i, prevGap, gap)
		}
		prevGap = gap
	}
	if prevGap > 1e-3 {
		t.Errorf("inflation %g did not converge near target", market.Inflation)
	}
}
