package sim

import (
	"errors"
	"fmt"
)

// ErrInvariantViolated marks a state the engine must never reach. It is a
// fatal bug, not a recoverable condition: the run aborts at the tick
// boundary that detected it.
var ErrInvariantViolated = errors.New("sim: invariant violated")

// checkInvariants is the tick-end flux guard. Clipping decisions elsewhere
// are diagnostics; anything caught here survived clipping and is treated as
// a bug.
func (e *Engine) checkInvariants() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvariantViolated, fmt.Sprintf(format, args...))
	}

	if e.ledger.Supply < 0 {
		return fail("XCR supply negative: %g", e.ledger.Supply)
	}
	if s := e.market.Sentiment; s < sentimentFloor || s > sentimentCeiling {
		return fail("sentiment out of bounds: %g", s)
	}
	if b := e.market.BrakeFactor; b < heavyBrakeFloor(e.market.Inflation)-1e-9 || b > 1.0+1e-9 {
		return fail("brake factor out of bounds: %g", b)
	}

	state := e.cycle.State()
	switch {
	case state.AtmosphereGtC < 0:
		return fail("atmospheric stock negative: %g", state.AtmosphereGtC)
	case state.SurfaceOceanGtC < 0:
		return fail("surface ocean stock negative: %g", state.SurfaceOceanGtC)
	case state.DeepOceanGtC < 0:
		return fail("deep ocean stock negative: %g", state.DeepOceanGtC)
	case state.LandGtC < 0:
		return fail("land stock negative: %g", state.LandGtC)
	case state.PermafrostGtC < 0:
		return fail("permafrost stock negative: %g", state.PermafrostGtC)
	}

	if e.bank.AnnualSpentUSD() > e.bank.AnnualBudgetUSD()+1e-6 {
		return fail("CQE spend %g exceeds budget %g", e.bank.AnnualSpentUSD(), e.bank.AnnualBudgetUSD())
	}

	// Structural conventional reduction is expected after the net-zero
	// latch; minted conventional credit is not.
	if e.lastLatchedAudit && e.lastAudit.MintedByChannel[ChannelConventional] > 0 {
		return fail("conventional XCR minted after net-zero latch")
	}

	// Project lifecycle can only move forward; broker operations uphold
	// this, and a failed project re-entering service would corrupt every
	// downstream flux.
	for _, p := range e.broker.Projects() {
		if p.Status == StatusFailed && p.Operational() {
			return fail("failed project %s reports operational", p.ID)
		}
		if p.YearsOperational > p.MaxOperational {
			return fail("project %s exceeded max operational years", p.ID)
		}
	}
	return nil
}
