package sim

import (
	"log/slog"
	"math"
)

// =============================================================================
// Token Ledger
// =============================================================================

// TokenLedger tracks the XCR supply. Supply is always the exact running sum
// of mints minus burns; underruns clip at zero and are counted in
// Clipped.
type TokenLedger struct {
	Supply           float64 `json:"supply"`
	AnnualMinted     float64 `json:"annualMinted"`
	AnnualBurned     float64 `json:"annualBurned"`
	CumulativeBurned float64 `json:"cumulativeBurned"`
	CobenefitPool    float64 `json:"cobenefitPool"`

	// Clipped counts burn requests that exceeded supply this run.
	Clipped int `json:"clipped"`
}

// Rollover resets the annual counters. Runs as tick phase zero.
func (l *TokenLedger) Rollover() {
	l.AnnualMinted = 0
	l.AnnualBurned = 0
}

// Mint creates xcr tokens.
func (l *TokenLedger) Mint(xcr float64) {
	if xcr <= 0 {
		return
	}
	l.Supply += xcr
	l.AnnualMinted += xcr
}

// Burn destroys up to xcr tokens, clipping at zero supply. Returns the
// amount actually burned.
func (l *TokenLedger) Burn(xcr float64) float64 {
	if xcr <= 0 {
		return 0
	}
	if xcr > l.Supply {
		xcr = l.Supply
		l.Clipped++
	}
	l.Supply -= xcr
	l.AnnualBurned += xcr
	l.CumulativeBurned += xcr
	return xcr
}

// =============================================================================
// Auditor
// =============================================================================

// Auditor parameters.
const (
	healthAuditFailCoeff = 0.01
	independentFailProb  = 0.01
	clawbackFraction     = 0.50
	cobenefitShare       = 0.15
	healthDecayPerAudit  = 0.005
	healthFloor          = 0.30
)

// AuditResult aggregates one tick of verification.
type AuditResult struct {
	MintedXCR           float64
	MintedByChannel     map[Channel]float64
	CobenefitXCR        float64
	BurnedXCR           float64
	ReversalTonnes      float64
	DeliveredTonnes     map[Channel]float64
	CreditedTonnes      float64
	VerificationsFailed int
}

// Auditor verifies operational projects, mints XCR against delivered
// tonnes, and claws back on verification failure. It mutates projects only
// through the defined operations: record delivery, mint, decrement health,
// mark failed.
type Auditor struct {
	params Params
	log    *slog.Logger
}

// NewAuditor builds the auditor.
func NewAuditor(params Params, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{params: params, log: logger.With("component", "auditor")}
}

// Audit runs one tick over the portfolio in insertion order.
//
// Every operational project that passes verification delivers its annual
// tonnes; minting applies the brake, the per-channel capacity fraction, and
// the net-zero latch (a latched conventional project still delivers its
// structural reduction, it just mints nothing). The co-benefit overlay
// reserves 15% of minted XCR into a shared pool redistributed at the end of
// the tick. With audits disabled nothing verifies, so nothing is delivered
// or minted: the portfolio idles unverified.
func (a *Auditor) Audit(broker *ProjectsBroker, ledger *TokenLedger, pool *CountryPool, brakeFactor float64, netZeroLatched bool, g *rng) AuditResult {
	res := AuditResult{
		DeliveredTonnes: map[Channel]float64{},
		MintedByChannel: map[Channel]float64{},
	}
	if !a.params.EnableAudits {
		return res
	}

	capFraction := map[Channel]float64{}
	for _, ch := range Channels {
		capFraction[ch] = capacityFraction(broker.OperationalRateGt(ch), a.params.maxCapacityGt(ch))
	}

	var overlayRecipients []*Project
	for _, p := range broker.Projects() {
		if !p.Operational() {
			continue
		}

		// Two independent ways to fail: health-scaled scrutiny and a
		// baseline false-negative rate.
		healthFail := g.chance(healthAuditFailCoeff * (1 - p.Health))
		baseFail := g.chance(independentFailProb)
		if healthFail || baseFail {
			res.VerificationsFailed++
			burned := ledger.Burn(p.TotalXCRMinted * clawbackFraction)
			res.BurnedXCR += burned
			res.ReversalTonnes += p.reversalTonnes()
			p.Status = StatusFailed
			a.log.Debug("verification failed",
				"project", p.ID,
				"burnedXcr", burned,
				"reversalTonnes", p.reversalTonnes())
			continue
		}
		p.Health = math.Max(healthFloor, p.Health-healthDecayPerAudit*g.r.Float64())

		broker.recordDelivery(p, p.AnnualTonnes)
		res.DeliveredTonnes[p.Channel] += p.AnnualTonnes

		if netZeroLatched && p.Channel.Traits().LatchesAtNetZero {
			// Structural reduction continues; crediting is over.
			continue
		}

		mint := p.AnnualTonnes * p.EffectiveR * brakeFactor * capFraction[p.Channel]
		if mint <= 0 {
			continue
		}
		overlay := mint * cobenefitShare
		direct := mint - overlay
		ledger.Mint(mint)
		ledger.CobenefitPool += overlay
		p.TotalXCRMinted += direct
		if p.Host != nil {
			p.Host.XCREarned += direct
		}
		res.MintedXCR += mint
		res.MintedByChannel[p.Channel] += mint
		res.CreditedTonnes += p.AnnualTonnes
		overlayRecipients = append(overlayRecipients, p)
	}

	res.CobenefitXCR = a.distributeOverlay(ledger, overlayRecipients)
	return res
}

// distributeOverlay pays out the co-benefit pool to this tick's credited
// projects, weighted by host-country co-benefit weight (optionally scaled
// by project tonnes). Overlay XCR carries no tonnes.
func (a *Auditor) distributeOverlay(ledger *TokenLedger, recipients []*Project) float64 {
	if ledger.CobenefitPool <= 0 || len(recipients) == 0 {
		return 0
	}
	var total float64
	weights := make([]float64, len(recipients))
	for i, p := range recipients {
		w := 1.0
		if p.Host != nil {
			w = p.Host.CobenefitWeight
		}
		if !a.params.CobenefitCountryWeightOnly {
			w *= p.AnnualTonnes
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return 0
	}
	paid := ledger.CobenefitPool
	for i, p := range recipients {
		share := paid * weights[i] / total
		p.TotalXCRMinted += share
		if p.Host != nil {
			p.Host.XCREarned += share
		}
	}
	ledger.CobenefitPool = 0
	return paid
}

// capacityFraction discounts minting once a channel's operational rate
// exceeds its capacity cap: beyond the cap, credited output saturates.
func capacityFraction(operationalGt, capGt float64) float64 {
	if capGt <= 0 || operationalGt <= capGt {
		return 1
	}
	return capGt / operationalGt
}
