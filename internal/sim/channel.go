package sim

// Channel identifies a mitigation channel. Every project belongs to exactly
// one channel, and all channel-specific parameters are colocated here so a
// new channel cannot be added without filling in its full table.
type Channel string

const (
	// ChannelCDR is engineered carbon dioxide removal (DACCS, BECCS,
	// enhanced weathering). Rewarded at R = 1.0 by definition.
	ChannelCDR Channel = "cdr"

	// ChannelConventional is conventional mitigation: structural emission
	// reductions (renewables, efficiency, electrification).
	ChannelConventional Channel = "conventional"

	// ChannelAvoidedDeforestation is avoided deforestation and forest
	// degradation (REDD+ style).
	ChannelAvoidedDeforestation Channel = "avoided_deforestation"
)

// Channels lists all channels in their initiation order: avoided
// deforestation is cheapest and allocated first, CDR last. The order is
// load-bearing for capital allocation and for RNG draw ordering.
var Channels = []Channel{
	ChannelAvoidedDeforestation,
	ChannelConventional,
	ChannelCDR,
}

// channelTraits holds the static per-channel parameter table.
type channelTraits struct {
	// MaxOperationalYears is the project lifetime after which a project is
	// retired without a reversal.
	MaxOperationalYears int

	// BaseCostPerTonne is the unlearned marginal cost in USD per tonne CO2.
	BaseCostPerTonne float64

	// LearningRate is the cost reduction per doubling of cumulative
	// deployment (0.20 means each doubling cuts cost by 20%).
	LearningRate float64

	// MaxCapacityGtPerYear caps the planned (operational + development)
	// annual rate in GtCO2/year.
	MaxCapacityGtPerYear float64

	// FailureSensitivity scales the base stochastic failure probability.
	FailureSensitivity float64

	// ReversalFraction is the share of lifetime sequestration re-emitted
	// when a project fails.
	ReversalFraction float64

	// LatchesAtNetZero marks channels whose crediting terminates
	// permanently once the net-zero latch trips (only conventional).
	LatchesAtNetZero bool
}

var channelTable = map[Channel]channelTraits{
	ChannelCDR: {
		MaxOperationalYears:  100,
		BaseCostPerTonne:     320,
		LearningRate:         0.20,
		MaxCapacityGtPerYear: 20,
		FailureSensitivity:   1.0,
		ReversalFraction:     0.10,
	},
	ChannelConventional: {
		MaxOperationalYears:  25,
		BaseCostPerTonne:     55,
		LearningRate:         0.12,
		MaxCapacityGtPerYear: 30,
		FailureSensitivity:   1.2,
		ReversalFraction:     0.50,
		LatchesAtNetZero:     true,
	},
	ChannelAvoidedDeforestation: {
		MaxOperationalYears:  50,
		BaseCostPerTonne:     18,
		LearningRate:         0.0, // no learning curve: cost is land access, not technology
		MaxCapacityGtPerYear: 5,
		FailureSensitivity:   1.5,
		ReversalFraction:     0.50,
	},
}

// Traits returns the static parameter table for the channel.
func (c Channel) Traits() channelTraits { return channelTable[c] }

// Valid reports whether c is one of the defined channels.
func (c Channel) Valid() bool {
	_, ok := channelTable[c]
	return ok
}

// hostPreference weights country selection for new projects of this
// channel. CDR and avoided deforestation prefer tropical and developing
// hosts, conventional prefers Tier 1 industrial bases.
func (c Channel) hostPreference(country *Country) float64 {
	switch c {
	case ChannelConventional:
		switch country.Tier {
		case 1:
			return 3.0
		case 2:
			return 1.5
		default:
			return 1.0
		}
	case ChannelCDR:
		w := 1.0
		if country.Tier >= 2 {
			w *= 2.0
		}
		if country.Tropical {
			w *= 1.5
		}
		return w
	case ChannelAvoidedDeforestation:
		if country.Tropical {
			return 5.0
		}
		return 0.25
	}
	return 1.0
}
