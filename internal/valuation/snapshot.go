package valuation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/nilintel/internal/database"
)

// Engagement tiers used to bucket rate cards.
const (
	EngagementHigh     = "high"
	EngagementModerate = "moderate"
	EngagementLow      = "low"
)

const (
	snapshotDefaultSkill  = "d1_rotation"
	defaultCompAgeDays    = 90
	confidenceFieldsTotal = 6
	fallbackUnitLow       = 50
	fallbackUnitHigh      = 200
)

// ErrAthleteNotFound is returned when a requested athlete does not exist.
var ErrAthleteNotFound = errors.New("athlete not found")

// EngagementTier buckets an engagement rate. A nil rate is treated as moderate.
func EngagementTier(rate *float64) string {
	if rate == nil {
		return EngagementModerate
	}
	switch {
	case *rate >= 4:
		return EngagementHigh
	case *rate >= 2:
		return EngagementModerate
	default:
		return EngagementLow
	}
}

// Deliverable is one line of a package.
type Deliverable struct {
	ContentType  string  `json:"content_type"`
	Quantity     int     `json:"quantity"`
	UnitRateLow  float64 `json:"unit_rate_low"`
	UnitRateHigh float64 `json:"unit_rate_high"`
	TotalLow     float64 `json:"total_low"`
	TotalHigh    float64 `json:"total_high"`
}

// Package is a priced bundle of deliverables offered to brands.
type Package struct {
	Name             string        `json:"name"`
	Deliverables     []Deliverable `json:"deliverables"`
	TotalLow         float64       `json:"total_low"`
	TotalHigh        float64       `json:"total_high"`
	UsageDays        int           `json:"usage_days"`
	UsageType        string        `json:"usage_type"`
	ExclusivityDays  int           `json:"exclusivity_days"`
	ExclusivityScope string        `json:"exclusivity_scope"`
}

type packageItem struct {
	contentType string
	quantity    int
}

type packageSpec struct {
	name             string
	items            []packageItem
	usageDays        int
	usageType        string
	exclusivityDays  int
	exclusivityScope string
}

var packageSpecs = []packageSpec{
	{"Starter", []packageItem{{"ig_reel", 1}, {"ig_story", 3}}, 30, "organic", 0, "none"},
	{"Growth", []packageItem{{"ig_reel", 2}, {"ig_story", 6}, {"tiktok_post", 1}}, 60, "organic", 30, "category"},
	{"Signature", []packageItem{{"ig_reel", 3}, {"ig_story", 9}, {"tiktok_post", 2}}, 90, "paid whitelisting optional", 60, "category"},
}

// BuildPackages prices the standard bundles from per-post rates. Content
// types with no rate use a flat 50-200 unit price.
func BuildPackages(rates []PerPostRate) []Package {
	byType := make(map[string]PerPostRate, len(rates))
	for _, r := range rates {
		byType[r.ContentType] = r
	}

	packages := make([]Package, 0, len(packageSpecs))
	for _, spec := range packageSpecs {
		p := Package{
			Name:             spec.name,
			UsageDays:        spec.usageDays,
			UsageType:        spec.usageType,
			ExclusivityDays:  spec.exclusivityDays,
			ExclusivityScope: spec.exclusivityScope,
		}
		for _, item := range spec.items {
			low, high := float64(fallbackUnitLow), float64(fallbackUnitHigh)
			if r, ok := byType[item.contentType]; ok {
				low, high = r.RateLow, r.RateHigh
			}
			d := Deliverable{
				ContentType:  item.contentType,
				Quantity:     item.quantity,
				UnitRateLow:  low,
				UnitRateHigh: high,
				TotalLow:     low * float64(item.quantity),
				TotalHigh:    high * float64(item.quantity),
			}
			p.Deliverables = append(p.Deliverables, d)
			p.TotalLow += d.TotalLow
			p.TotalHigh += d.TotalHigh
		}
		packages = append(packages, p)
	}
	return packages
}

// Confidence scores how much a snapshot can be trusted, 0-100. Each of
// sample size, source verification, recency and profile completeness
// contributes up to 25 points.
func Confidence(sampleSize int, avgVerification, medianAgeDays float64, fieldsPresent, totalFields int) int {
	sample := 25 * math.Min(1, float64(sampleSize)/10)
	verification := 25 * math.Min(1, avgVerification/0.8)
	recency := 25 * clamp(1-medianAgeDays/180, 0, 1)
	var completeness float64
	if totalFields > 0 {
		completeness = 25 * float64(fieldsPresent) / float64(totalFields)
	}
	return int(math.Round(sample + verification + recency + completeness))
}

// CardsFromRateCards converts stored benchmarks into engine rate cards. For
// each (platform, content type, tier) the row for engagementTier is used when
// present, otherwise the row with the largest sample.
func CardsFromRateCards(rows []database.RateCard, engagementTier string) []RateCard {
	type key struct{ platform, contentType, tier string }
	best := make(map[key]database.RateCard)
	var order []key
	for _, r := range rows {
		k := key{r.Platform, r.ContentType, r.FollowerTier}
		cur, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = r
			continue
		}
		if cur.EngagementTier == engagementTier {
			continue
		}
		if r.EngagementTier == engagementTier || r.SampleSize > cur.SampleSize {
			best[k] = r
		}
	}

	cards := make([]RateCard, 0, len(order))
	for _, k := range order {
		r := best[k]
		cards = append(cards, RateCard{
			Platform:    r.Platform,
			ContentType: r.ContentType,
			Tier:        r.FollowerTier,
			RateLow:     r.RateLow,
			RateHigh:    r.RateHigh,
		})
	}
	return cards
}

// Comparable is a deal intel record used as market evidence for a snapshot.
type Comparable struct {
	DealIntelID int64    `json:"deal_intel_id"`
	Rank        int      `json:"rank"`
	BrandName   *string  `json:"brand_name,omitempty"`
	AmountLow   *float64 `json:"amount_low,omitempty"`
	AmountHigh  *float64 `json:"amount_high,omitempty"`
	Sport       *string  `json:"sport,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// SnapshotData is the JSON document stored with each snapshot.
type SnapshotData struct {
	AnnualLow       int64                    `json:"annual_low"`
	AnnualHigh      int64                    `json:"annual_high"`
	FollowerTier    string                   `json:"follower_tier"`
	Percentile      int                      `json:"percentile"`
	PerPost         map[string][]PerPostRate `json:"per_post"`
	Packages        []Package                `json:"packages"`
	Drivers         []Driver                 `json:"drivers"`
	Confidence      int                      `json:"confidence"`
	ComparableCount int                      `json:"comparable_count"`
	Comparables     []Comparable             `json:"comparables"`
}

// SnapshotOptions bounds the comparables search.
type SnapshotOptions struct {
	ComparableLimit        int
	ComparableLookbackDays int
}

// SnapshotResult holds the results of a snapshot run.
type SnapshotResult struct {
	AthletesProcessed int
	ValuationsUpdated int
	Skipped           int
	Failed            int
}

// Snapshotter stores dated valuations for rostered athletes.
type Snapshotter struct {
	db     *database.DB
	engine *Engine
	opts   SnapshotOptions
	now    func() time.Time
}

// NewSnapshotter creates a snapshotter.
func NewSnapshotter(db *database.DB, engine *Engine, opts SnapshotOptions) *Snapshotter {
	if opts.ComparableLimit <= 0 {
		opts.ComparableLimit = 10
	}
	if opts.ComparableLookbackDays <= 0 {
		opts.ComparableLookbackDays = 180
	}
	return &Snapshotter{db: db, engine: engine, opts: opts, now: time.Now}
}

// Run values one athlete (athleteID > 0) or every active athlete. Failures
// for a single athlete are logged and counted; the run continues.
func (s *Snapshotter) Run(athleteID int64) (*SnapshotResult, error) {
	var athletes []database.Athlete
	if athleteID > 0 {
		a, err := s.db.GetAthlete(athleteID)
		if err != nil {
			return nil, fmt.Errorf("loading athlete %d: %w", athleteID, err)
		}
		if a == nil {
			return nil, fmt.Errorf("%w: %d", ErrAthleteNotFound, athleteID)
		}
		athletes = []database.Athlete{*a}
	} else {
		var err error
		athletes, err = s.db.GetActiveAthletes(math.MaxInt32)
		if err != nil {
			return nil, fmt.Errorf("loading active athletes: %w", err)
		}
	}

	r := &SnapshotResult{}
	asOf := s.now().UTC().Format("2006-01-02")
	for _, a := range athletes {
		r.AthletesProcessed++
		updated, err := s.snapshot(a, asOf)
		switch {
		case err != nil:
			log.WithFields(log.Fields{"athlete_id": a.ID}).Errorf("valuation snapshot failed: %v", err)
			r.Failed++
		case !updated:
			r.Skipped++
		default:
			r.ValuationsUpdated++
		}
	}

	log.Printf("Valuation snapshots: %d processed, %d updated, %d skipped, %d failed",
		r.AthletesProcessed, r.ValuationsUpdated, r.Skipped, r.Failed)
	return r, nil
}

func (s *Snapshotter) snapshot(a database.Athlete, asOf string) (bool, error) {
	profiles, err := s.db.GetSocialProfiles(a.ID)
	if err != nil {
		return false, fmt.Errorf("loading social profiles: %w", err)
	}
	if len(profiles) == 0 {
		log.WithFields(log.Fields{"athlete_id": a.ID}).Debug("no social profiles, skipping")
		return false, nil
	}

	in := Input{Sport: SportOther, SkillLevel: snapshotDefaultSkill, EngagementRate: a.EngagementRate}
	if a.Sport != nil && *a.Sport != "" {
		in.Sport = *a.Sport
	}
	if a.SkillLevel != nil && *a.SkillLevel != "" {
		in.SkillLevel = *a.SkillLevel
	}
	for _, p := range profiles {
		in.Handles = append(in.Handles, Handle{Platform: p.Platform, Followers: p.Followers, EngagementRate: p.EngagementRate})
	}

	rows, err := s.db.GetRateCards(in.Sport)
	if err != nil {
		return false, fmt.Errorf("loading rate cards: %w", err)
	}
	result := s.engine.Compute(in, CardsFromRateCards(rows, EngagementTier(a.EngagementRate)))

	since := database.FormatTime(s.now().AddDate(0, 0, -s.opts.ComparableLookbackDays))
	comps, err := s.db.GetComparableDealIntel(in.Sport, since, s.opts.ComparableLimit)
	if err != nil {
		return false, fmt.Errorf("loading comparables: %w", err)
	}

	confidence := Confidence(len(comps), averageConfidence(comps), s.medianAgeDays(comps),
		fieldsPresent(a, profiles), confidenceFieldsTotal)

	data := SnapshotData{
		AnnualLow:       result.AnnualLow,
		AnnualHigh:      result.AnnualHigh,
		FollowerTier:    result.FollowerTier,
		Percentile:      result.Percentile,
		PerPost:         groupByPlatform(result.PerPostRates),
		Packages:        BuildPackages(result.PerPostRates),
		Drivers:         result.Drivers,
		Confidence:      confidence,
		ComparableCount: len(comps),
		Comparables:     toComparables(comps),
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("encoding valuation data: %w", err)
	}

	err = s.db.UpsertValuation(database.AthleteValuation{
		AthleteID:       a.ID,
		AsOf:            asOf,
		AnnualLow:       result.AnnualLow,
		AnnualHigh:      result.AnnualHigh,
		FollowerTier:    result.FollowerTier,
		Percentile:      result.Percentile,
		Confidence:      confidence,
		ComparableCount: len(comps),
		ValuationData:   string(payload),
	})
	if err != nil {
		return false, fmt.Errorf("storing valuation: %w", err)
	}
	return true, nil
}

func (s *Snapshotter) medianAgeDays(comps []database.DealIntel) float64 {
	if len(comps) == 0 {
		return defaultCompAgeDays
	}
	now := s.now().UTC()
	ages := make([]float64, 0, len(comps))
	for _, c := range comps {
		created, err := time.Parse(database.TimeLayout, c.CreatedAt)
		if err != nil {
			ages = append(ages, defaultCompAgeDays)
			continue
		}
		ages = append(ages, math.Round(now.Sub(created).Hours()/24))
	}
	sort.Float64s(ages)
	return ages[len(ages)/2]
}

func averageConfidence(comps []database.DealIntel) float64 {
	if len(comps) == 0 {
		return 0
	}
	var sum float64
	for _, c := range comps {
		sum += c.ExtractionConfidence
	}
	return sum / float64(len(comps))
}

// fieldsPresent counts profile completeness out of six: sport, skill level,
// any handle, engagement rate, a named handle, and the athlete record itself.
func fieldsPresent(a database.Athlete, profiles []database.SocialProfile) int {
	n := 1
	if a.Sport != nil && *a.Sport != "" {
		n++
	}
	if a.SkillLevel != nil && *a.SkillLevel != "" {
		n++
	}
	if len(profiles) > 0 {
		n++
	}
	if a.EngagementRate != nil && *a.EngagementRate > 0 {
		n++
	}
	for _, p := range profiles {
		if p.Handle != nil && *p.Handle != "" {
			n++
			break
		}
	}
	return n
}

func groupByPlatform(rates []PerPostRate) map[string][]PerPostRate {
	grouped := make(map[string][]PerPostRate)
	for _, r := range rates {
		grouped[r.Platform] = append(grouped[r.Platform], r)
	}
	return grouped
}

func toComparables(comps []database.DealIntel) []Comparable {
	out := make([]Comparable, 0, len(comps))
	for i, c := range comps {
		out = append(out, Comparable{
			DealIntelID: c.ID,
			Rank:        i + 1,
			BrandName:   c.BrandName,
			AmountLow:   c.AmountLow,
			AmountHigh:  c.AmountHigh,
			Sport:       c.Sport,
			Confidence:  c.ExtractionConfidence,
		})
	}
	return out
}
