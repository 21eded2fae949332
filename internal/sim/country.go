package sim

import (
	"log/slog"
	"math"
)

// =============================================================================
// Countries
// =============================================================================

// Country is one member of the adoption pool. Identity fields are fixed at
// construction; only the active flag and the attribution accumulators
// mutate, and active only ever flips false -> true.
type Country struct {
	Name         string  `json:"name"`
	GDPTrillions float64 `json:"gdpTrillions"`
	Tier         int     `json:"tier"` // 1 advanced, 2 emerging, 3 developing
	Region       string  `json:"region"`
	OECD         bool    `json:"oecd"`
	Tropical     bool    `json:"tropical"`

	// HistoricalEmissionsGtC informs nothing mechanical yet but is carried
	// for per-country reporting.
	HistoricalEmissionsGtC float64 `json:"historicalEmissionsGtC"`

	// CobenefitWeight (base_cqe) weights co-benefit overlay distribution
	// and CQE purchase attribution. It does not size the CQE budget.
	CobenefitWeight float64 `json:"cobenefitWeight"`

	Active bool `json:"active"`

	// Attribution accumulators, mutated once per tick.
	XCREarned    float64 `json:"xcrEarned"`
	XCRPurchased float64 `json:"xcrPurchased"`
}

// CountryPool owns the 50-country roster and the adoption process.
type CountryPool struct {
	countries []*Country
	log       *slog.Logger
}

// countrySeed is one row of the static roster.
type countrySeed struct {
	name     string
	gdp      float64 // trillions USD
	tier     int
	region   string
	oecd     bool
	tropical bool
	histGtC  float64
	cqe      float64
}

// The roster is fixed: five founders first, then the rest of the pool in a
// stable order so adoption draws are reproducible.
var countryRoster = []countrySeed{
	// Founding alliance members, active from tick zero.
	{"United States", 27.0, 1, "north_america", true, false, 115, 1.0},
	{"European Union", 18.5, 1, "europe", true, false, 95, 1.0},
	{"Japan", 4.2, 1, "east_asia", true, false, 17, 0.8},
	{"United Kingdom", 3.4, 1, "europe", true, false, 21, 0.8},
	{"Canada", 2.2, 1, "north_america", true, false, 9, 0.8},
	// Adoption pool.
	{"China", 18.0, 2, "east_asia", false, false, 70, 0.9},
	{"India", 3.9, 2, "south_asia", false, true, 15, 1.2},
	{"Brazil", 2.2, 2, "south_america", false, true, 5, 1.4},
	{"South Korea", 1.8, 1, "east_asia", true, false, 5, 0.7},
	{"Australia", 1.8, 1, "oceania", true, false, 5, 0.7},
	{"Mexico", 1.8, 2, "north_america", true, true, 5, 1.1},
	{"Indonesia", 1.5, 2, "southeast_asia", false, true, 4, 1.4},
	{"Saudi Arabia", 1.1, 2, "middle_east", false, false, 6, 0.6},
	{"Turkey", 1.1, 2, "middle_east", true, false, 3, 0.9},
	{"Switzerland", 0.9, 1, "europe", true, false, 1, 0.7},
	{"Taiwan", 0.8, 1, "east_asia", false, true, 2, 0.7},
	{"Argentina", 0.65, 2, "south_america", false, false, 2, 1.1},
	{"Russia", 2.0, 2, "europe", false, false, 30, 0.5},
	{"Norway", 0.6, 1, "europe", true, false, 1, 0.7},
	{"Thailand", 0.55, 2, "southeast_asia", false, true, 2, 1.2},
	{"Israel", 0.55, 1, "middle_east", true, false, 1, 0.7},
	{"Singapore", 0.5, 1, "southeast_asia", false, true, 1, 0.7},
	{"United Arab Emirates", 0.5, 2, "middle_east", false, false, 2, 0.6},
	{"Poland", 0.8, 1, "europe", true, false, 5, 0.8},
	{"Vietnam", 0.45, 3, "southeast_asia", false, true, 1, 1.3},
	{"Bangladesh", 0.45, 3, "south_asia", false, true, 0.5, 1.4},
	{"Malaysia", 0.43, 2, "southeast_asia", false, true, 1.5, 1.2},
	{"Philippines", 0.44, 3, "southeast_asia", false, true, 1, 1.3},
	{"South Africa", 0.4, 2, "africa", false, false, 5, 1.2},
	{"Colombia", 0.36, 2, "south_america", false, true, 1, 1.3},
	{"Egypt", 0.4, 3, "africa", false, false, 2, 1.2},
	{"Chile", 0.33, 2, "south_america", true, false, 1, 1.0},
	{"Nigeria", 0.36, 3, "africa", false, true, 1, 1.4},
	{"Pakistan", 0.34, 3, "south_asia", false, false, 1.5, 1.3},
	{"Peru", 0.27, 3, "south_america", false, true, 0.5, 1.3},
	{"Kazakhstan", 0.26, 2, "central_asia", false, false, 2, 0.9},
	{"New Zealand", 0.25, 1, "oceania", true, false, 0.5, 0.8},
	{"Ukraine", 0.18, 3, "europe", false, false, 4, 1.0},
	{"Morocco", 0.14, 3, "africa", false, false, 0.5, 1.2},
	{"Ecuador", 0.12, 3, "south_america", false, true, 0.3, 1.3},
	{"Kenya", 0.11, 3, "africa", false, true, 0.2, 1.4},
	{"Ethiopia", 0.16, 3, "africa", false, true, 0.2, 1.4},
	{"Ghana", 0.08, 3, "africa", false, true, 0.2, 1.4},
	{"Tanzania", 0.08, 3, "africa", false, true, 0.1, 1.4},
	{"Ivory Coast", 0.08, 3, "africa", false, true, 0.1, 1.4},
	{"DR Congo", 0.07, 3, "africa", false, true, 0.1, 1.5},
	{"Bolivia", 0.05, 3, "south_america", false, true, 0.1, 1.4},
	{"Cameroon", 0.05, 3, "africa", false, true, 0.1, 1.4},
	{"Gabon", 0.02, 3, "africa", false, true, 0.05, 1.5},
	{"Papua New Guinea", 0.03, 3, "oceania", false, true, 0.05, 1.5},
}

// founderCount is how many roster entries start active.
const founderCount = 5

// NewCountryPool builds the roster with the five founders active.
func NewCountryPool(logger *slog.Logger) *CountryPool {
	if logger == nil {
		logger = slog.Default()
	}
	pool := &CountryPool{log: logger.With("component", "countries")}
	for i, seed := range countryRoster {
		pool.countries = append(pool.countries, &Country{
			Name:                   seed.name,
			GDPTrillions:           seed.gdp,
			Tier:                   seed.tier,
			Region:                 seed.region,
			OECD:                   seed.oecd,
			Tropical:               seed.tropical,
			HistoricalEmissionsGtC: seed.histGtC,
			CobenefitWeight:        seed.cqe,
			Active:                 i < founderCount,
		})
	}
	return pool
}

// Countries returns the full roster in stable order.
func (p *CountryPool) Countries() []*Country { return p.countries }

// Active returns the active members in roster order.
func (p *CountryPool) Active() []*Country {
	var out []*Country
	for _, c := range p.countries {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// ActiveCount returns the number of active members.
func (p *CountryPool) ActiveCount() int {
	n := 0
	for _, c := range p.countries {
		if c.Active {
			n++
		}
	}
	return n
}

// ActiveGDPUSD sums active-member GDP in USD.
func (p *CountryPool) ActiveGDPUSD() float64 {
	var t float64
	for _, c := range p.countries {
		if c.Active {
			t += c.GDPTrillions * usdPerTrillion
		}
	}
	return t
}

// Adopt runs one year of adoption: the integer part of rate countries join
// deterministically, the fractional remainder joins with that probability.
// Candidates are drawn GDP-weighted from the inactive pool. Adoption is
// monotonic; nothing ever deactivates.
func (p *CountryPool) Adopt(rate float64, g *rng) int {
	if rate <= 0 {
		return 0
	}
	joins := int(rate)
	if g.chance(rate - float64(joins)) {
		joins++
	}
	adopted := 0
	for i := 0; i < joins; i++ {
		idx := p.pickInactive(g)
		if idx < 0 {
			break
		}
		p.countries[idx].Active = true
		adopted++
		p.log.Debug("country adopted", "country", p.countries[idx].Name)
	}
	return adopted
}

// pickInactive draws an inactive country with probability proportional to
// GDP. Returns -1 when the pool is exhausted.
func (p *CountryPool) pickInactive(g *rng) int {
	weights := make([]float64, len(p.countries))
	any := false
	for i, c := range p.countries {
		if !c.Active {
			weights[i] = c.GDPTrillions
			any = true
		}
	}
	if !any {
		return -1
	}
	return g.weightedIndex(weights)
}

// pickHost selects an active host country for a new project of the given
// channel: channel preference x sqrt(GDP), with +/-50% jitter. Returns nil
// when no country is active.
func (p *CountryPool) pickHost(ch Channel, g *rng) *Country {
	weights := make([]float64, len(p.countries))
	any := false
	for i, c := range p.countries {
		if !c.Active {
			continue
		}
		w := ch.hostPreference(c) * math.Sqrt(c.GDPTrillions) * g.jitter(0.5)
		if w > 0 {
			weights[i] = w
			any = true
		}
	}
	if !any {
		return nil
	}
	idx := g.weightedIndex(weights)
	if idx < 0 {
		return nil
	}
	return p.countries[idx]
}
