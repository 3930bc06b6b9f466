package ratecard

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/nilintel/internal/database"
	"github.com/TobiSchelling/nilintel/internal/valuation"
)

// Fallbacks for observations that do not carry the field.
const (
	DefaultSport       = "other"
	DefaultPlatform    = "instagram"
	DefaultContentType = "ig_post"

	// Deal intel never carries audience data, so it always lands in these
	// buckets. This biases the micro/moderate cards toward scraped values.
	IntelFollowerTier   = valuation.TierMicro
	IntelEngagementTier = valuation.EngagementModerate

	defaultIntelWeight = 0.5
)

// Result holds the results of a rate card build.
type Result struct {
	Observations    int
	GroupsProcessed int
	CardsUpdated    int
	CardsSkipped    int
	Failed          int
}

// Builder rebuilds the rate_cards table from recent deals and deal intel.
type Builder struct {
	db           *database.DB
	lookbackDays int
	minSamples   int
	now          func() time.Time
}

// NewBuilder creates a rate card builder.
func NewBuilder(db *database.DB, lookbackDays, minSamples int) *Builder {
	if lookbackDays <= 0 {
		lookbackDays = 180
	}
	if minSamples < MinSamples {
		minSamples = MinSamples
	}
	return &Builder{db: db, lookbackDays: lookbackDays, minSamples: minSamples, now: time.Now}
}

// Build reads observations inside the lookback window and upserts one card
// per surviving group. A failed write is logged and counted; the remaining
// groups are still written.
func (b *Builder) Build() (*Result, error) {
	since := database.FormatTime(b.now().AddDate(0, 0, -b.lookbackDays))

	obs, err := b.Observations(since)
	if err != nil {
		return nil, err
	}

	cards, skipped := Aggregate(obs, b.minSamples)
	r := &Result{
		Observations:    len(obs),
		GroupsProcessed: len(cards) + skipped,
		CardsSkipped:    skipped,
	}

	for _, c := range cards {
		err := b.db.UpsertRateCard(database.RateCard{
			Sport:          c.Key.Sport,
			Platform:       c.Key.Platform,
			ContentType:    c.Key.ContentType,
			FollowerTier:   c.Key.FollowerTier,
			EngagementTier: c.Key.EngagementTier,
			RateLow:        c.RateLow,
			RateMedian:     c.RateMedian,
			RateHigh:       c.RateHigh,
			SampleSize:     c.SampleSize,
		})
		if err != nil {
			log.WithFields(log.Fields{
				"sport":        c.Key.Sport,
				"platform":     c.Key.Platform,
				"content_type": c.Key.ContentType,
			}).Errorf("rate card upsert failed: %v", err)
			r.Failed++
			continue
		}
		r.CardsUpdated++
	}

	log.Printf("Rate cards: %d observations, %d groups, %d updated, %d skipped (<%d samples)",
		r.Observations, r.GroupsProcessed, r.CardsUpdated, r.CardsSkipped, b.minSamples)
	return r, nil
}

// Observations loads both weighted observation streams created at or after since.
func (b *Builder) Observations(since string) ([]Observation, error) {
	intel, err := b.db.GetPricedDealIntelSince(since)
	if err != nil {
		return nil, fmt.Errorf("loading deal intel: %w", err)
	}
	deals, err := b.db.GetValuedDealsSince(since)
	if err != nil {
		return nil, fmt.Errorf("loading deals: %w", err)
	}

	obs := make([]Observation, 0, len(intel)+len(deals))
	for _, d := range intel {
		if o, ok := FromDealIntel(d); ok {
			obs = append(obs, o)
		}
	}
	for _, d := range deals {
		if o, ok := FromDeal(d); ok {
			obs = append(obs, o)
		}
	}
	return obs, nil
}

// FromDealIntel converts a scraped record. The value is the midpoint of the
// amount range when both ends are known.
func FromDealIntel(d database.DealIntel) (Observation, bool) {
	if d.AmountLow == nil {
		return Observation{}, false
	}
	value := *d.AmountLow
	if d.AmountHigh != nil && *d.AmountLow > 0 && *d.AmountHigh > 0 {
		value = (*d.AmountLow + *d.AmountHigh) / 2
	}
	if value <= 0 {
		return Observation{}, false
	}

	weight := d.ExtractionConfidence
	if weight < 0 {
		weight = defaultIntelWeight
	}
	return Observation{
		Value:  value,
		Weight: weight,
		Source: SourceDealIntel,
		Key: GroupKey{
			Sport:          orDefault(d.Sport, DefaultSport),
			Platform:       orDefault(d.Platform, DefaultPlatform),
			ContentType:    orDefault(d.ContentType, DefaultContentType),
			FollowerTier:   IntelFollowerTier,
			EngagementTier: IntelEngagementTier,
		},
	}, true
}

// FromDeal converts a confirmed internal deal, weighted 1.0.
func FromDeal(d database.DealSample) (Observation, bool) {
	if d.DealValue <= 0 {
		return Observation{}, false
	}
	return Observation{
		Value:  d.DealValue,
		Weight: 1.0,
		Source: SourceDeal,
		Key: GroupKey{
			Sport:          orDefault(d.Sport, DefaultSport),
			Platform:       orDefault(d.Platform, DefaultPlatform),
			ContentType:    orDefault(d.ContentType, DefaultContentType),
			FollowerTier:   orDefault(d.FollowerTier, valuation.TierMicro),
			EngagementTier: valuation.EngagementTier(d.EngagementRate),
		},
	}, true
}

func orDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
