package sim

import (
	"log/slog"
	"math"
)

// =============================================================================
// Market State
// =============================================================================

// MarketState is the shared monetary and market block. It is owned by the
// engine; the investor market, capital market, alliance, and controller
// each mutate their slice of it within their tick phase.
type MarketState struct {
	Price      float64 `json:"price"`
	PriceFloor float64 `json:"priceFloor"`
	Sentiment  float64 `json:"sentiment"`
	Inflation  float64 `json:"inflation"`

	BrakeFactor    float64 `json:"brakeFactor"`
	StabilityRatio float64 `json:"stabilityRatio"`
	Warning        bool    `json:"warning"`

	NetCapitalFlowUSD       float64 `json:"netCapitalFlowUsd"`
	CumulativeInflowUSD     float64 `json:"cumulativeInflowUsd"`
	CapitalDemandPremiumUSD float64 `json:"capitalDemandPremiumUsd"`
	ForwardGuidance         float64 `json:"forwardGuidance"`
}

// MarketCapUSD is supply times price.
func (m *MarketState) MarketCapUSD(supply float64) float64 { return supply * m.Price }

// =============================================================================
// Decision Interfaces
// =============================================================================

// The four decision points below are the swap surface for alternative
// (e.g. agentic) implementations: each sees only ledger/market reads and
// returns its decision, so replacing one never touches the engine loop.

// SentimentPolicy updates investor sentiment for one tick.
type SentimentPolicy interface {
	UpdateSentiment(market *MarketState, obs SentimentObservation)
}

// CapitalFlowPolicy decides the year's net capital flow, demand premium,
// and forward guidance.
type CapitalFlowPolicy interface {
	UpdateCapital(market *MarketState, obs CapitalObservation)
}

// BrakePolicy computes the issuance brake factor.
type BrakePolicy interface {
	ComputeBrake(stabilityRatio, inflation, budgetUtilization float64) float64
}

// DefensePolicy runs the price-floor defense.
type DefensePolicy interface {
	Defend(market *MarketState, ledger *TokenLedger, pool *CountryPool, activeGDPUSD float64) DefenseResult
}

// =============================================================================
// Investor Market (sentiment)
// =============================================================================

// Sentiment bounds and adjustment factors.
const (
	sentimentFloor   = 0.10
	sentimentCeiling = 1.0

	newWarningDecay        = 0.97
	persistentWarningDecay = 0.995
	inflationDecayMild     = 0.995 // pi > 1.5x target
	inflationDecayElevated = 0.97  // pi > 2x target
	inflationDecaySevere   = 0.94  // pi > 3x target
	recoveryGainRate       = 0.02
	co2ProgressBonus       = 0.01
	guidanceBonusMax       = 0.02
)

// SentimentObservation is what the investor market sees each tick.
type SentimentObservation struct {
	NewWarning        bool
	PersistentWarning bool
	CO2Declined       bool
	FloorRaised       bool
}

// InvestorMarket maintains the scalar trust signal in [0.1, 1.0] and the
// price discovery rule.
type InvestorMarket struct {
	params Params
	log    *slog.Logger
}

// NewInvestorMarket builds the rule-based sentiment policy.
func NewInvestorMarket(params Params, logger *slog.Logger) *InvestorMarket {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvestorMarket{params: params, log: logger.With("component", "investor-market")}
}

// UpdateSentiment applies the tick's multiplicative penalties, recovery,
// and progress bonuses, then clamps.
func (im *InvestorMarket) UpdateSentiment(market *MarketState, obs SentimentObservation) {
	s := market.Sentiment

	if obs.NewWarning {
		s *= newWarningDecay
	} else if obs.PersistentWarning {
		s *= persistentWarningDecay
	}

	target := im.params.InflationTarget
	pi := market.Inflation
	switch {
	case target > 0 && pi > 3*target:
		s *= inflationDecaySevere
	case target > 0 && pi > 2*target:
		s *= inflationDecayElevated
	case target > 0 && pi > 1.5*target:
		s *= inflationDecayMild
	}

	// Calm conditions rebuild trust slowly.
	if !obs.NewWarning && !obs.PersistentWarning && math.Abs(pi-target) <= 0.5*target {
		s += recoveryGainRate * (sentimentCeiling - s)
	}

	if obs.CO2Declined {
		s += co2ProgressBonus
	}
	if obs.FloorRaised || market.ForwardGuidance >= 0.8 {
		s += guidanceBonusMax
	}

	market.Sentiment = clamp(s, sentimentFloor, sentimentCeiling)
}

// Price discovery: floor plus a sentiment-scaled premium plus the capital
// demand premium.
const sentimentPriceCoeff = 50.0

// DiscoverPrice recomputes the market price from the current state.
func DiscoverPrice(market *MarketState) {
	market.Price = market.PriceFloor + sentimentPriceCoeff*market.Sentiment + market.CapitalDemandPremiumUSD
}

// =============================================================================
// Capital Market
// =============================================================================

// Capital market coefficients. Attractiveness blends climate urgency,
// inflation-hedge demand, sentiment, and forward guidance; flows happen on
// the gap against a neutrality threshold that falls as liquidity deepens.
const (
	attractUrgencyWeight   = 0.30
	attractHedgeWeight     = 0.25
	attractSentimentWeight = 0.30
	attractGuidanceWeight  = 0.15

	neutralityStart     = 0.60
	neutralityFloor     = 0.30
	neutralityRampYears = 10

	flowScaleUSD      = 100e9
	premiumGapCoeff   = 40.0
	urgencyPPMBase    = 350.0
	urgencyPPMRange   = 100.0
	hedgeRatioCeiling = 4.0
)

// CapitalObservation is what the capital market sees each tick.
type CapitalObservation struct {
	Year            int
	CO2PPM          float64
	SupplyXCR       float64
	LockedFloorRate float64
}

// CapitalMarket decides net capital flow, the demand premium, and forward
// guidance.
type CapitalMarket struct {
	params Params
	log    *slog.Logger
	seeded bool
}

// NewCapitalMarket builds the rule-based capital flow policy.
func NewCapitalMarket(params Params, logger *slog.Logger) *CapitalMarket {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapitalMarket{params: params, log: logger.With("component", "capital-market")}
}

// UpdateCapital computes this year's net flow, premium, and guidance, and
// accrues the non-decreasing cumulative inflow.
func (cm *CapitalMarket) UpdateCapital(market *MarketState, obs CapitalObservation) {
	urgency := clamp((obs.CO2PPM-urgencyPPMBase)/urgencyPPMRange, 0, 1)
	hedge := clamp(inflationRatio(market.Inflation)/hedgeRatioCeiling, 0, 1)

	// Forward guidance: locked floor growth signals commitment; inflation
	// overshoot erodes it. Monotone in both.
	guidance := clamp(0.5+5*obs.LockedFloorRate-5*math.Max(0, market.Inflation-cm.params.InflationTarget), 0, 1)
	market.ForwardGuidance = guidance

	attractiveness := attractUrgencyWeight*urgency +
		attractHedgeWeight*hedge +
		attractSentimentWeight*market.Sentiment +
		attractGuidanceWeight*guidance

	// Liquidity deepens over the first decade: the bar for net inflows
	// ramps down from 0.6 to 0.3.
	ramp := clamp(float64(obs.Year)/neutralityRampYears, 0, 1)
	neutrality := neutralityStart - (neutralityStart-neutralityFloor)*ramp

	flow := (attractiveness - neutrality) * flowScaleUSD * (1 + hedge)

	// One-time seed capital bootstraps the market while it is still small.
	if !cm.seeded && market.MarketCapUSD(obs.SupplyXCR) < seedCapitalCutoffUSD {
		flow += cm.params.OneTimeSeedCapitalUSD
		cm.seeded = true
		cm.log.Info("seed capital injected", "usd", cm.params.OneTimeSeedCapitalUSD)
	}

	market.NetCapitalFlowUSD = flow
	if flow > 0 {
		market.CumulativeInflowUSD += flow
	}
	market.CapitalDemandPremiumUSD = math.Max(0, premiumGapCoeff*(attractiveness-neutrality)) * (1 + hedge)
}
