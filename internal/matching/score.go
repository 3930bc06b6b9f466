package matching

import (
	"math"
	"strings"

	"github.com/TobiSchelling/nilintel/internal/valuation"
)

// MinScore is the total below which a pair is never stored.
const MinScore = 0.30

// Fixed scores for factors without a model behind them yet.
const (
	PlaceholderContent = 0.5
	PlaceholderDemo    = 0.5
)

var (
	sportsAdjacentKeywords = []string{
		"fitness", "athletic", "sports", "nutrition", "supplement",
		"apparel", "sneaker", "shoe", "energy", "hydration",
	}
	lifestyleKeywords = []string{
		"lifestyle", "fashion", "beauty", "food", "beverage",
		"tech", "gaming", "entertainment",
	}

	// Typical engagement rate (%) per follower tier.
	tierAverageEngagement = map[string]float64{
		valuation.TierNano:        5.0,
		valuation.TierMicro:       4.0,
		valuation.TierRising:      3.0,
		valuation.TierMid:         2.5,
		valuation.TierEstablished: 2.0,
		valuation.TierElite:       1.5,
	}
	unknownTierAverageEngagement = 3.0
)

// Weights are the factor weights of the total score.
type Weights struct {
	Category     float64
	Content      float64
	Platform     float64
	Demo         float64
	Engagement   float64
	Availability float64
	Budget       float64
}

// DefaultWeights returns the standard weighting. The weights sum to 1.0.
func DefaultWeights() Weights {
	return Weights{
		Category:     0.25,
		Content:      0.10,
		Platform:     0.15,
		Demo:         0.20,
		Engagement:   0.10,
		Availability: 0.10,
		Budget:       0.10,
	}
}

// Sum returns the sum of all weights.
func (w Weights) Sum() float64 {
	return w.Category + w.Content + w.Platform + w.Demo + w.Engagement + w.Availability + w.Budget
}

// Breakdown holds the sub-scores of one pair. It is stored as JSON on the match.
type Breakdown struct {
	Category     float64 `json:"category"`
	Content      float64 `json:"content"`
	Platform     float64 `json:"platform"`
	Demo         float64 `json:"demo"`
	Engagement   float64 `json:"engagement"`
	Availability float64 `json:"availability"`
	Budget       float64 `json:"budget"`
}

// Total returns the weighted sum of the breakdown.
func (w Weights) Total(b Breakdown) float64 {
	return b.Category*w.Category +
		b.Content*w.Content +
		b.Platform*w.Platform +
		b.Demo*w.Demo +
		b.Engagement*w.Engagement +
		b.Availability*w.Availability +
		b.Budget*w.Budget
}

// Pair is everything the scorer needs to know about one athlete/brand pair.
type Pair struct {
	BrandCategory   string
	BrandBudgetTier string
	BrandPlatforms  []string

	AthleteSport     string
	AthleteTags      []string
	AthletePlatforms []string
	EngagementRate   *float64
	FollowerTier     string
	ValuationTier    string

	HasExclusiveDeal bool
	OpenDeals        int
}

// Score computes every sub-score for a pair.
func Score(p Pair) Breakdown {
	return Breakdown{
		Category:     CategoryScore(p.BrandCategory, p.AthleteSport, p.AthleteTags),
		Content:      PlaceholderContent,
		Platform:     PlatformScore(p.AthletePlatforms, p.BrandPlatforms),
		Demo:         PlaceholderDemo,
		Engagement:   EngagementScore(p.EngagementRate, p.FollowerTier),
		Availability: AvailabilityScore(p.HasExclusiveDeal, p.OpenDeals),
		Budget:       BudgetScore(p.BrandBudgetTier, p.ValuationTier),
	}
}

// CategoryScore rates how well a brand category fits an athlete's sport and tags.
// Substring checks run in both directions, so "basketball" matches a
// "basketball gear" category and vice versa. Empty sports and tags never match.
func CategoryScore(category, sport string, tags []string) float64 {
	bc := normalize(category)
	if bc == "" {
		return 0.3
	}

	if s := normalize(sport); s != "" && (strings.Contains(bc, s) || strings.Contains(s, bc)) {
		return 1.0
	}
	if containsAny(bc, sportsAdjacentKeywords) {
		return 0.7
	}
	for _, tag := range tags {
		t := normalize(tag)
		if t != "" && (strings.Contains(bc, t) || strings.Contains(t, bc)) {
			return 0.6
		}
	}
	if containsAny(bc, lifestyleKeywords) {
		return 0.4
	}
	return 0.2
}

// PlatformScore is the share of the brand's signal platforms the athlete is on.
func PlatformScore(athletePlatforms, brandPlatforms []string) float64 {
	brand := make(map[string]bool, len(brandPlatforms))
	for _, p := range brandPlatforms {
		if p = normalize(p); p != "" {
			brand[p] = true
		}
	}
	if len(brand) == 0 {
		return 0.5
	}

	athlete := make(map[string]bool, len(athletePlatforms))
	for _, p := range athletePlatforms {
		if p = normalize(p); p != "" {
			athlete[p] = true
		}
	}
	if len(athlete) == 0 {
		return 0.2
	}

	overlap := 0
	for p := range athlete {
		if brand[p] {
			overlap++
		}
	}
	return math.Min(1.0, float64(overlap)/float64(len(brand)))
}

// EngagementScore compares an athlete's rate with the average for their tier.
func EngagementScore(rate *float64, followerTier string) float64 {
	if rate == nil || *rate <= 0 {
		return 0.5
	}

	tier := normalize(followerTier)
	if tier == "" {
		tier = valuation.TierMicro
	}
	avg, ok := tierAverageEngagement[tier]
	if !ok {
		avg = unknownTierAverageEngagement
	}

	switch ratio := *rate / avg; {
	case ratio >= 1.5:
		return 1.0
	case ratio >= 1.0:
		return 0.7
	case ratio >= 0.7:
		return 0.5
	default:
		return 0.3
	}
}

// AvailabilityScore penalizes exclusive commitments and busy calendars.
func AvailabilityScore(hasExclusiveDeal bool, openDeals int) float64 {
	if hasExclusiveDeal {
		return 0.0
	}
	if openDeals > 3 {
		return 0.5
	}
	return 1.0
}

// BudgetScore compares a brand's budget tier with an athlete's valuation tier.
func BudgetScore(brandTier, athleteTier string) float64 {
	bi := valuation.TierIndex(normalize(brandTier))
	ai := valuation.TierIndex(normalize(athleteTier))
	if bi < 0 || ai < 0 {
		return 0.5
	}

	d := bi - ai
	if d < 0 {
		d = -d
	}
	switch d {
	case 0:
		return 1.0
	case 1:
		return 0.7
	case 2:
		return 0.4
	default:
		return 0.2
	}
}

// roundScore rounds to two decimals for storage.
func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
