package valuation

// Follower tier names, smallest first.
const (
	TierNano        = "nano"
	TierMicro       = "micro"
	TierRising      = "rising"
	TierMid         = "mid"
	TierEstablished = "established"
	TierElite       = "elite"
)

var tierOrder = [...]string{TierNano, TierMicro, TierRising, TierMid, TierEstablished, TierElite}

// TierIndex returns the position of a tier name on the six-level scale, or -1.
func TierIndex(name string) int {
	for i, t := range tierOrder {
		if t == name {
			return i
		}
	}
	return -1
}

// Tier is a follower band with its base annual value range.
type Tier struct {
	Name     string
	Min      int64
	BaseLow  float64
	BaseHigh float64
}

// EngagementBracket maps rates at or above MinRate to Multiplier.
type EngagementBracket struct {
	MinRate    float64
	Multiplier float64
}

// RateCard is a per-post price range for one content type at one tier.
type RateCard struct {
	Platform    string
	ContentType string
	Tier        string
	RateLow     float64
	RateHigh    float64
}

// Tables holds the fixed lookup data the engine reads. Engine copies it on
// construction so later edits to a Tables value do not leak into a running engine.
type Tables struct {
	// Tiers must be sorted by Min ascending and start at 0.
	Tiers              []Tier
	SportMultipliers   map[string]float64
	SkillMultipliers   map[string]float64
	SkillBonus         map[string]int
	EngagementBrackets []EngagementBracket // descending by MinRate
	EngagementFloor    float64
	DefaultRateCards   []RateCard
}

// DefaultTables returns the built-in market tables.
func DefaultTables() Tables {
	return Tables{
		Tiers: []Tier{
			{TierNano, 0, 500, 2000},
			{TierMicro, 1000, 1500, 5000},
			{TierRising, 5000, 4000, 12000},
			{TierMid, 15000, 10000, 35000},
			{TierEstablished, 50000, 25000, 80000},
			{TierElite, 150000, 50000, 200000},
		},
		SportMultipliers: map[string]float64{
			"basketball": 1.3,
			"football":   1.3,
			"gymnastics": 1.2,
			"volleyball": 1.15,
			"soccer":     1.0,
			"baseball":   1.0,
			"track":      0.9,
			"tennis":     0.9,
			"softball":   0.85,
			"swimming":   0.8,
			SportOther:   0.75,
		},
		SkillMultipliers: map[string]float64{
			"d1_starter":  1.3,
			"d1_rotation": 1.1,
			"d1_bench":    0.9,
			"d2":          0.7,
			"d3":          0.5,
			"naia":        0.5,
			"juco":        0.4,
		},
		SkillBonus: map[string]int{
			"d1_starter":  8,
			"d1_rotation": 6,
			"d1_bench":    3,
			"d2":          1,
			"d3":          0,
			"naia":        0,
			"juco":        -2,
		},
		EngagementBrackets: []EngagementBracket{
			{6.0, 1.4},
			{4.0, 1.2},
			{2.5, 1.0},
			{1.0, 0.8},
		},
		EngagementFloor:  0.6,
		DefaultRateCards: defaultRateCards(),
	}
}

func defaultRateCards() []RateCard {
	type row struct {
		contentType, platform string
		rates                 [6][2]float64 // nano..elite
	}
	rows := []row{
		{"ig_post", "instagram", [6][2]float64{{25, 75}, {75, 200}, {200, 500}, {500, 1250}, {1250, 3500}, {3500, 10000}}},
		{"ig_reel", "instagram", [6][2]float64{{50, 150}, {100, 350}, {300, 800}, {750, 2000}, {2000, 5000}, {5000, 15000}}},
		{"ig_story", "instagram", [6][2]float64{{15, 50}, {50, 125}, {100, 300}, {250, 700}, {700, 1800}, {1800, 5000}}},
		{"ig_carousel", "instagram", [6][2]float64{{30, 100}, {100, 275}, {250, 650}, {600, 1500}, {1500, 4000}, {4000, 12000}}},
		{"tiktok_post", "tiktok", [6][2]float64{{50, 150}, {100, 400}, {300, 900}, {750, 2000}, {2000, 5500}, {5500, 15000}}},
		{"yt_short", "youtube", [6][2]float64{{25, 75}, {75, 200}, {150, 450}, {400, 1000}, {1000, 2750}, {2750, 8000}}},
		{"yt_video", "youtube", [6][2]float64{{100, 300}, {250, 750}, {500, 1500}, {1500, 4000}, {4000, 10000}, {10000, 30000}}},
		{"x_post", "x", [6][2]float64{{15, 50}, {50, 125}, {100, 300}, {250, 650}, {650, 1750}, {1750, 5000}}},
	}

	cards := make([]RateCard, 0, len(rows)*len(tierOrder))
	for ti, tier := range tierOrder {
		for _, r := range rows {
			cards = append(cards, RateCard{
				Platform:    r.platform,
				ContentType: r.contentType,
				Tier:        tier,
				RateLow:     r.rates[ti][0],
				RateHigh:    r.rates[ti][1],
			})
		}
	}
	return cards
}

func (t Tables) clone() Tables {
	c := Tables{
		Tiers:              append([]Tier(nil), t.Tiers...),
		SportMultipliers:   make(map[string]float64, len(t.SportMultipliers)),
		SkillMultipliers:   make(map[string]float64, len(t.SkillMultipliers)),
		SkillBonus:         make(map[string]int, len(t.SkillBonus)),
		EngagementBrackets: append([]EngagementBracket(nil), t.EngagementBrackets...),
		EngagementFloor:    t.EngagementFloor,
		DefaultRateCards:   append([]RateCard(nil), t.DefaultRateCards...),
	}
	for k, v := range t.SportMultipliers {
		c.SportMultipliers[k] = v
	}
	for k, v := range t.SkillMultipliers {
		c.SkillMultipliers[k] = v
	}
	for k, v := range t.SkillBonus {
		c.SkillBonus[k] = v
	}
	return c
}
