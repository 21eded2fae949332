package sim

import (
	"math"
	"testing"
)

func testClimate() ClimateParams {
	return DefaultParams().Climate
}

func TestNewCarbonCycle_InitialState(t *testing.T) {
	c := NewCarbonCycle(420, testClimate(), nil)
	state := c.State()

	if got := state.PPM(); math.Abs(got-420) > 1e-9 {
		t.Errorf("initial ppm = %g, want 420", got)
	}
	if state.AtmosphereGtC != 420*gtcPerPPM {
		t.Errorf("atmosphere = %g GtC, want %g", state.AtmosphereGtC, 420*gtcPerPPM)
	}

	// TCRE relation with no committed warming at year zero.
	wantT := testClimate().TCRE / 1000 * testClimate().InitialCumulativeGtC
	if math.Abs(state.Temperature-wantT) > 1e-9 {
		t.Errorf("initial temperature = %g, want %g", state.Temperature, wantT)
	}
}

func TestCarbonCycle_StepEmissionsRaiseAtmosphere(t *testing.T) {
	c := NewCarbonCycle(420, testClimate(), nil)
	before := c.State()

	delta := c.Step(10.5, 0, 0, 0, 0)
	after := c.State()

	if delta.NetAnthropogenic != 10.5 {
		t.Errorf("net flux = %g, want 10.5", delta.NetAnthropogenic)
	}
	if after.AtmosphereGtC <= before.AtmosphereGtC {
		t.Errorf("atmosphere did not rise: %g -> %g", before.AtmosphereGtC, after.AtmosphereGtC)
	}
	if delta.OceanUptake <= 0 {
		t.Errorf("ocean uptake = %g, want positive", delta.OceanUptake)
	}
	if af := delta.AirborneFraction(); af <= 0 || af > 1 {
		t.Errorf("airborne fraction = %g, want (0, 1]", af)
	}
	if after.CumulativeGtC <= before.CumulativeGtC {
		t.Error("cumulative emissions did not grow")
	}
}

func TestCarbonCycle_ConventionalCappedAtRemainingEmissions(t *testing.T) {
	c := NewCarbonCycle(420, testClimate(), nil)

	// Mitigation far beyond the human flux must clip, not go negative.
	delta := c.Step(10, 0, 50, 0, 0)
	if delta.NetAnthropogenic != 0 {
		t.Errorf("net flux = %g, want 0 after cap", delta.NetAnthropogenic)
	}
}

func TestCarbonCycle_CDRRemovalLowersAtmosphere(t *testing.T) {
	withCDR := NewCarbonCycle(420, testClimate(), nil)
	without := NewCarbonCycle(420, testClimate(), nil)

	withCDR.Step(10, 2, 0, 0, 0)
	without.Step(10, 0, 0, 0, 0)

	if withCDR.State().AtmosphereGtC >= without.State().AtmosphereGtC {
		t.Error("CDR removal did not lower atmospheric stock")
	}
	if withCDR.State().CumulativeGtC >= without.State().CumulativeGtC {
		t.Error("CDR removal did not lower cumulative emissions")
	}
}

func TestCarbonCycle_ReversalRaisesAtmosphere(t *testing.T) {
	withRev := NewCarbonCycle(420, testClimate(), nil)
	without := NewCarbonCycle(420, testClimate(), nil)

	withRev.Step(10, 0, 0, 0, 1.5)
	without.Step(10, 0, 0, 0, 0)

	if withRev.State().AtmosphereGtC <= without.State().AtmosphereGtC {
		t.Error("reversal did not raise atmospheric stock")
	}
}

func TestCarbonCycle_PermafrostReleasesAboveOnset(t *testing.T) {
	params := testClimate()
	params.InitialCumulativeGtC = 3600 // T ~ 1.62 at TCRE 0.45
	c := NewCarbonCycle(420, params, nil)

	if c.State().Temperature < permafrostOnsetTemp {
		t.Fatalf("test setup: temperature %g below onset", c.State().Temperature)
	}
	before := c.State().PermafrostGtC
	delta := c.Step(10, 0, 0, 0, 0)

	if delta.Permafrost <= 0 {
		t.Errorf("permafrost flux = %g, want positive", delta.Permafrost)
	}
	if c.State().PermafrostGtC >= before {
		t.Error("permafrost stock did not deplete")
	}
}

func TestCarbonCycle_StocksStayNonNegative(t *testing.T) {
	c := NewCarbonCycle(5, testClimate(), nil) // nearly empty atmosphere

	for i := 0; i < 50; i++ {
		c.Step(0, 3, 0, 0, 0) // aggressive removal from an empty pool
		state := c.State()
		if state.AtmosphereGtC < 0 || state.SurfaceOceanGtC < 0 || state.DeepOceanGtC < 0 || state.LandGtC < 0 {
			t.Fatalf("negative stock at step %d: %+v", i, state)
		}
	}
}

func TestBAUEmissions_Profile(t *testing.T) {
	p := DefaultParams()

	if got := bauEmissionsAt(0, p); got != p.Climate.InitialEmissionsGtC {
		t.Errorf("year 0 = %g, want %g", got, p.Climate.InitialEmissionsGtC)
	}

	// Growth to the peak.
	if bauEmissionsAt(p.BAUPeakYear, p) <= bauEmissionsAt(0, p) {
		t.Error("emissions did not grow to the peak year")
	}

	// Plateau between peak and year 60.
	peak := bauEmissionsAt(p.BAUPeakYear, p)
	if got := bauEmissionsAt(30, p); math.Abs(got-peak) > 1e-9 {
		t.Errorf("plateau year 30 = %g, want %g", got, peak)
	}

	// Decline after year 60.
	if bauEmissionsAt(80, p) >= peak {
		t.Error("emissions did not decline after year 60")
	}
}

func TestCarbonCycle_CloneIsIndependent(t *testing.T) {
	c := NewCarbonCycle(420, testClimate(), nil)
	twin := c.clone()

	c.Step(10, 0, 0, 0, 0)
	if twin.State().AtmosphereGtC != 420*gtcPerPPM {
		t.Error("stepping the original mutated the clone")
	}
}
