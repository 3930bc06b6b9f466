// Package ratecard turns priced deal observations into percentile-based
// market benchmarks.
package ratecard

import (
	"math"
	"sort"
)

// MinSamples is the smallest group that is ever written out.
const MinSamples = 3

// Observation sources.
const (
	SourceDeal      = "deal"
	SourceDealIntel = "deal_intel"
)

// GroupKey identifies one benchmark bucket.
type GroupKey struct {
	Sport          string
	Platform       string
	ContentType    string
	FollowerTier   string
	EngagementTier string
}

// Observation is one priced data point. Weight expresses how much the source
// is trusted: 1.0 for confirmed deals, extraction confidence for scraped intel.
type Observation struct {
	Value  float64
	Weight float64
	Source string
	Key    GroupKey
}

// Card is an aggregated benchmark for one group.
type Card struct {
	Key        GroupKey
	RateLow    float64
	RateMedian float64
	RateHigh   float64
	SampleSize int
}

// WeightedPercentile returns the value at which cumulative weight first
// reaches p percent of the total. It returns 0 for no observations and the
// smallest value when every weight is zero.
func WeightedPercentile(obs []Observation, p float64) float64 {
	if len(obs) == 0 {
		return 0
	}
	if len(obs) == 1 {
		return obs[0].Value
	}

	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })

	var total float64
	for _, o := range sorted {
		total += o.Weight
	}
	if total <= 0 {
		return sorted[0].Value
	}

	target := p / 100 * total
	var cum float64
	for _, o := range sorted {
		cum += o.Weight
		if cum >= target {
			return o.Value
		}
	}
	return sorted[len(sorted)-1].Value
}

// Aggregate groups observations and computes p25/p50/p75 for every group with
// at least minSamples observations. Groups below the threshold are counted in
// skipped and produce no card. Cards are ordered by key.
func Aggregate(obs []Observation, minSamples int) (cards []Card, skipped int) {
	if minSamples < MinSamples {
		minSamples = MinSamples
	}

	groups := make(map[GroupKey][]Observation)
	for _, o := range obs {
		if o.Value <= 0 {
			continue
		}
		groups[o.Key] = append(groups[o.Key], o)
	}

	for key, group := range groups {
		if len(group) < minSamples {
			skipped++
			continue
		}
		cards = append(cards, Card{
			Key:        key,
			RateLow:    math.Round(WeightedPercentile(group, 25)),
			RateMedian: math.Round(WeightedPercentile(group, 50)),
			RateHigh:   math.Round(WeightedPercentile(group, 75)),
			SampleSize: len(group),
		})
	}

	sort.Slice(cards, func(i, j int) bool { return lessKey(cards[i].Key, cards[j].Key) })
	return cards, skipped
}

func lessKey(a, b GroupKey) bool {
	if a.Sport != b.Sport {
		return a.Sport < b.Sport
	}
	if a.Platform != b.Platform {
		return a.Platform < b.Platform
	}
	if a.ContentType != b.ContentType {
		return a.ContentType < b.ContentType
	}
	if a.FollowerTier != b.FollowerTier {
		return a.FollowerTier < b.FollowerTier
	}
	return a.EngagementTier < b.EngagementTier
}
