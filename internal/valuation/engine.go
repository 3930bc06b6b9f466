// Package valuation estimates an athlete's annual NIL value range from
// audience size, sport, skill level and engagement.
package valuation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	// SportOther is the fallback sport for unknown inputs.
	SportOther = "other"

	unknownSkillMultiplier     = 0.5
	defaultEngagementRate      = 2.5
	activePlatformMinFollowers = 100
	multiPlatformBonusRate     = 0.08
	minCombinedMultiplier      = 0.4
	maxCombinedMultiplier      = 2.0
)

// Driver directions.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// Handle is one social platform account.
type Handle struct {
	Platform       string   `json:"platform"`
	Followers      int64    `json:"followers"`
	EngagementRate *float64 `json:"engagement_rate,omitempty"`
}

// Input describes the athlete being valued.
type Input struct {
	Sport          string   `json:"sport"`
	SkillLevel     string   `json:"skill_level"`
	Handles        []Handle `json:"handles"`
	EngagementRate *float64 `json:"engagement_rate,omitempty"`
}

// PerPostRate is the price range for one deliverable.
type PerPostRate struct {
	Platform    string  `json:"platform"`
	ContentType string  `json:"content_type"`
	RateLow     float64 `json:"rate_low"`
	RateHigh    float64 `json:"rate_high"`
}

// Driver explains one factor's effect on the valuation.
type Driver struct {
	Direction string `json:"direction"`
	Label     string `json:"label"`
}

// Result is the computed valuation.
type Result struct {
	AnnualLow    int64         `json:"annual_low"`
	AnnualHigh   int64         `json:"annual_high"`
	FollowerTier string        `json:"follower_tier"`
	PerPostRates []PerPostRate `json:"per_post_rates"`
	Percentile   int           `json:"percentile"`
	Drivers      []Driver      `json:"drivers"`

	TotalFollowers     int64   `json:"-"`
	EngagementRate     float64 `json:"-"`
	CombinedMultiplier float64 `json:"-"`
}

// Engine computes valuations against a fixed set of tables.
type Engine struct {
	tables Tables
}

// New returns an engine bound to a private copy of tables.
func New(tables Tables) *Engine {
	return &Engine{tables: tables.clone()}
}

// Compute values an athlete. It never fails: unknown sports, skill levels and
// platforms fall back to default multipliers. cards are aggregated rate cards;
// when none match the athlete's tier and platforms the built-in table is used.
func (e *Engine) Compute(in Input, cards []RateCard) Result {
	var total int64
	for _, h := range in.Handles {
		if h.Followers > 0 {
			total += h.Followers
		}
	}

	tier, tierIndex := e.FollowerTier(total)
	sportMult := e.SportMultiplier(in.Sport)
	skillMult := e.SkillMultiplier(in.SkillLevel)
	engagement := effectiveEngagement(in)
	engagementMult := e.EngagementMultiplier(engagement)

	active := activePlatformCount(in.Handles)
	platformMult := 1 + multiPlatformBonusRate*float64(max(0, active-1))

	combined := clamp(sportMult*skillMult*engagementMult*platformMult, minCombinedMultiplier, maxCombinedMultiplier)

	return Result{
		AnnualLow:          int64(math.Round(tier.BaseLow * combined)),
		AnnualHigh:         int64(math.Round(tier.BaseHigh * combined)),
		FollowerTier:       tier.Name,
		PerPostRates:       e.perPostRates(in.Handles, tier.Name, cards),
		Percentile:         e.percentile(tierIndex, engagement, in.SkillLevel),
		Drivers:            e.drivers(in, tier.Name, total, sportMult, skillMult, engagement, engagementMult, active),
		TotalFollowers:     total,
		EngagementRate:     engagement,
		CombinedMultiplier: combined,
	}
}

// FollowerTier returns the tier containing total and its index. Negative
// totals land in the lowest tier.
func (e *Engine) FollowerTier(total int64) (Tier, int) {
	for i := len(e.tables.Tiers) - 1; i >= 0; i-- {
		if total >= e.tables.Tiers[i].Min {
			return e.tables.Tiers[i], i
		}
	}
	return e.tables.Tiers[0], 0
}

// SportMultiplier returns the demand multiplier for a sport.
func (e *Engine) SportMultiplier(sport string) float64 {
	if m, ok := e.tables.SportMultipliers[normalize(sport)]; ok {
		return m
	}
	return e.tables.SportMultipliers[SportOther]
}

// SkillMultiplier returns the multiplier for a competition level.
func (e *Engine) SkillMultiplier(level string) float64 {
	if m, ok := e.tables.SkillMultipliers[normalize(level)]; ok {
		return m
	}
	return unknownSkillMultiplier
}

// KnownSport reports whether sport has its own multiplier.
func (e *Engine) KnownSport(sport string) bool {
	_, ok := e.tables.SportMultipliers[normalize(sport)]
	return ok
}

// KnownSkill reports whether level is a recognised competition level.
func (e *Engine) KnownSkill(level string) bool {
	_, ok := e.tables.SkillMultipliers[normalize(level)]
	return ok
}

// EngagementMultiplier maps an engagement rate (percent) to its bracket.
func (e *Engine) EngagementMultiplier(rate float64) float64 {
	for _, b := range e.tables.EngagementBrackets {
		if rate >= b.MinRate {
			return b.Multiplier
		}
	}
	return e.tables.EngagementFloor
}

func (e *Engine) perPostRates(handles []Handle, tier string, cards []RateCard) []PerPostRate {
	platforms := make(map[string]bool)
	for _, h := range handles {
		if h.Followers > 0 {
			platforms[normalize(h.Platform)] = true
		}
	}

	rates := matchCards(cards, tier, platforms)
	if len(rates) == 0 {
		rates = matchCards(e.tables.DefaultRateCards, tier, platforms)
	}
	return rates
}

func matchCards(cards []RateCard, tier string, platforms map[string]bool) []PerPostRate {
	rates := []PerPostRate{}
	for _, c := range cards {
		if c.Tier != tier || !platforms[c.Platform] {
			continue
		}
		rates = append(rates, PerPostRate{
			Platform:    c.Platform,
			ContentType: c.ContentType,
			RateLow:     c.RateLow,
			RateHigh:    c.RateHigh,
		})
	}
	return rates
}

// percentile is a heuristic rank, not a statistical percentile.
func (e *Engine) percentile(tierIndex int, engagement float64, skill string) int {
	var bonus int
	switch {
	case engagement >= 6:
		bonus = 10
	case engagement >= 4:
		bonus = 7
	case engagement >= 2.5:
		bonus = 4
	case engagement >= 1:
		bonus = 1
	}
	raw := 10 + 15*tierIndex + bonus + e.tables.SkillBonus[normalize(skill)]
	return min(99, max(1, raw))
}

func (e *Engine) drivers(in Input, tier string, total int64, sportMult, skillMult, engagement, engagementMult float64, active int) []Driver {
	var drivers []Driver
	followers := humanize.Comma(total)

	switch tier {
	case TierElite, TierEstablished:
		drivers = append(drivers, Driver{Positive,
			fmt.Sprintf("%s total followers place you in the %s tier", followers, tier)})
	case TierNano:
		drivers = append(drivers, Driver{Negative,
			fmt.Sprintf("%s total followers place you in the nano tier; growing your audience will significantly increase your value", followers)})
	default:
		drivers = append(drivers, Driver{Neutral,
			fmt.Sprintf("%s total followers place you in the %s tier", followers, tier)})
	}

	sport := normalize(in.Sport)
	if sport == "" {
		sport = SportOther
	}
	switch {
	case sportMult > 1.0:
		drivers = append(drivers, Driver{Positive,
			fmt.Sprintf("%s is a high-demand sport for NIL deals (%sx multiplier)", sport, formatMult(sportMult))})
	case sportMult < 1.0:
		drivers = append(drivers, Driver{Negative,
			fmt.Sprintf("%s has lower NIL market demand (%sx multiplier)", sport, formatMult(sportMult))})
	default:
		drivers = append(drivers, Driver{Neutral, fmt.Sprintf("%s has average NIL market demand", sport)})
	}

	skill := strings.ReplaceAll(normalize(in.SkillLevel), "_", " ")
	if skill == "" {
		skill = "unrated"
	}
	switch {
	case skillMult >= 1.1:
		drivers = append(drivers, Driver{Positive,
			fmt.Sprintf("%s skill level boosts your value (%sx)", skill, formatMult(skillMult))})
	case skillMult <= 0.7:
		drivers = append(drivers, Driver{Negative,
			fmt.Sprintf("%s division level reduces your baseline (%sx)", skill, formatMult(skillMult))})
	}

	switch {
	case engagementMult >= 1.2:
		drivers = append(drivers, Driver{Positive,
			fmt.Sprintf("Strong engagement rate (%.1f%%) significantly increases your value", engagement)})
	case engagementMult <= 0.8:
		drivers = append(drivers, Driver{Negative,
			fmt.Sprintf("Low engagement rate (%.1f%%) reduces your value; focus on authentic content to improve", engagement)})
	}

	if active > 1 {
		drivers = append(drivers, Driver{Positive,
			fmt.Sprintf("Active on %d platforms (+%d%% multi-platform bonus)", active, (active-1)*8)})
	} else {
		drivers = append(drivers, Driver{Negative,
			"Only active on 1 platform; expanding to additional platforms can increase your value by 8% each"})
	}

	return drivers
}

// effectiveEngagement picks the explicit rate, else the follower-weighted
// average of handles that report one, else the neutral default.
func effectiveEngagement(in Input) float64 {
	if in.EngagementRate != nil && *in.EngagementRate > 0 {
		return *in.EngagementRate
	}
	var weighted, followers float64
	for _, h := range in.Handles {
		if h.EngagementRate == nil || *h.EngagementRate <= 0 || h.Followers <= 0 {
			continue
		}
		weighted += *h.EngagementRate * float64(h.Followers)
		followers += float64(h.Followers)
	}
	if followers == 0 {
		return defaultEngagementRate
	}
	return weighted / followers
}

func activePlatformCount(handles []Handle) int {
	var n int
	for _, h := range handles {
		if h.Followers > activePlatformMinFollowers {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func formatMult(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
