// Package matching scores athlete/brand compatibility and maintains the
// matches table without touching human decisions.
package matching

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/nilintel/internal/database"
)

const (
	brandStatusBlacklisted = "blacklisted"
	athleteStatusPaused    = "paused"
	athleteStatusArchived  = "archived"
)

// Options configures a matching run. Zero values take the defaults.
type Options struct {
	BatchSize    int
	AthleteLimit int
	BrandLimit   int
	MinScore     float64
	TTL          time.Duration
	SignalWindow time.Duration
	Weights      *Weights
}

// Scope restricts a run to one athlete and/or one brand. Zero means unrestricted.
type Scope struct {
	AthleteID int64
	BrandID   int64
}

// Result holds the results of a matching run.
type Result struct {
	Expired           int64
	BrandsProcessed   int
	AthletesEvaluated int
	PairsScored       int
	Filtered          int
	Protected         int
	BelowThreshold    int
	MatchesUpserted   int64
	FailedChunks      int
}

// Engine runs the matching job against the store.
type Engine struct {
	db      *database.DB
	opts    Options
	weights Weights
	now     func() time.Time
}

// NewEngine creates a matching engine.
func NewEngine(db *database.DB, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.AthleteLimit <= 0 {
		opts.AthleteLimit = 500
	}
	if opts.BrandLimit <= 0 {
		opts.BrandLimit = 50
	}
	if opts.MinScore < MinScore {
		opts.MinScore = MinScore
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	if opts.SignalWindow <= 0 {
		opts.SignalWindow = 30 * 24 * time.Hour
	}
	w := DefaultWeights()
	if opts.Weights != nil {
		w = *opts.Weights
	}
	return &Engine{db: db, opts: opts, weights: w, now: time.Now}
}

// Run expires stale matches, then scores every candidate pair in scope and
// upserts the survivors in chunks. A failed chunk is logged and counted and
// the remaining chunks still run.
func (e *Engine) Run(scope Scope) (*Result, error) {
	now := e.now().UTC()
	stamp := database.FormatTime(now)
	r := &Result{}

	expired, err := e.db.ExpireMatches(stamp, expirableStatuses())
	if err != nil {
		return nil, fmt.Errorf("expiring matches: %w", err)
	}
	r.Expired = expired
	if expired > 0 {
		log.Printf("Expired %d stale matches", expired)
	}

	brands, err := e.candidateBrands(scope, now)
	if err != nil {
		return nil, err
	}
	r.BrandsProcessed = len(brands)
	if len(brands) == 0 {
		log.Println("No candidate brands, nothing to match")
		return r, nil
	}

	athletes, err := e.candidateAthletes(scope)
	if err != nil {
		return nil, err
	}
	r.AthletesEvaluated = len(athletes)
	if len(athletes) == 0 {
		log.Println("No candidate athletes, nothing to match")
		return r, nil
	}

	c, err := e.loadContext(athletes, brands)
	if err != nil {
		return nil, err
	}

	expiresAt := database.FormatTime(now.Add(e.opts.TTL))
	var pending []database.MatchUpsert
	for _, b := range brands {
		if b.Status == brandStatusBlacklisted {
			r.Filtered += len(athletes)
			continue
		}
		for _, a := range athletes {
			if a.Status == athleteStatusPaused || a.Status == athleteStatusArchived {
				r.Filtered++
				continue
			}
			key := database.PairKey{AthleteID: a.ID, BrandID: b.ID}
			if c.dealPairs[key] {
				r.Filtered++
				continue
			}
			if st, ok := c.statuses[key]; ok && Status(st).Protected() {
				r.Protected++
				continue
			}

			breakdown := Score(c.pair(a, b))
			total := e.weights.Total(breakdown)
			r.PairsScored++
			if total < e.opts.MinScore {
				r.BelowThreshold++
				continue
			}

			data, err := json.Marshal(breakdown)
			if err != nil {
				return nil, fmt.Errorf("encoding score breakdown: %w", err)
			}
			pending = append(pending, database.MatchUpsert{
				AthleteID:      a.ID,
				BrandID:        b.ID,
				MatchScore:     roundScore(total),
				ScoreBreakdown: string(data),
				ExpiresAt:      expiresAt,
			})
		}
	}

	for start := 0; start < len(pending); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(pending))
		n, err := e.db.UpsertMatches(pending[start:end], ProtectedStatuses(), stamp)
		if err != nil {
			log.WithFields(log.Fields{"chunk_start": start, "chunk_size": end - start}).
				Errorf("match upsert failed: %v", err)
			r.FailedChunks++
			continue
		}
		r.MatchesUpserted += n
	}

	log.Printf("Matching complete: %d brands x %d athletes, %d scored, %d upserted, %d below threshold, %d filtered, %d protected",
		r.BrandsProcessed, r.AthletesEvaluated, r.PairsScored, r.MatchesUpserted, r.BelowThreshold, r.Filtered, r.Protected)
	return r, nil
}

func (e *Engine) candidateBrands(scope Scope, now time.Time) ([]database.Brand, error) {
	var ids []int64
	if scope.BrandID > 0 {
		ids = []int64{scope.BrandID}
	} else {
		since := database.FormatTime(now.Add(-e.opts.SignalWindow))
		signaled, err := e.db.GetSignaledBrandIDs(since, e.opts.BrandLimit)
		if err != nil {
			return nil, fmt.Errorf("loading signaled brands: %w", err)
		}
		watched, err := e.db.GetWatchlistBrandIDs(e.opts.BrandLimit)
		if err != nil {
			return nil, fmt.Errorf("loading watchlist: %w", err)
		}
		ids = dedupe(append(signaled, watched...))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	brands, err := e.db.GetBrandsByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("loading brands: %w", err)
	}
	return brands, nil
}

func (e *Engine) candidateAthletes(scope Scope) ([]database.Athlete, error) {
	if scope.AthleteID > 0 {
		a, err := e.db.GetAthlete(scope.AthleteID)
		if err != nil {
			return nil, fmt.Errorf("loading athlete %d: %w", scope.AthleteID, err)
		}
		if a == nil {
			return nil, nil
		}
		return []database.Athlete{*a}, nil
	}

	athletes, err := e.db.GetActiveAthletes(e.opts.AthleteLimit)
	if err != nil {
		return nil, fmt.Errorf("loading athletes: %w", err)
	}
	return athletes, nil
}

// runContext is the bulk-loaded state shared by every pair in a run.
type runContext struct {
	platforms      map[int64][]string
	dealPairs      map[database.PairKey]bool
	openDeals      map[int64]int
	exclusive      map[int64]bool
	statuses       map[database.PairKey]string
	valuationTiers map[int64]string
}

func (e *Engine) loadContext(athletes []database.Athlete, brands []database.Brand) (*runContext, error) {
	athleteIDs := make([]int64, len(athletes))
	for i, a := range athletes {
		athleteIDs[i] = a.ID
	}
	brandIDs := make([]int64, len(brands))
	for i, b := range brands {
		brandIDs[i] = b.ID
	}

	c := &runContext{
		platforms: make(map[int64][]string),
		dealPairs: make(map[database.PairKey]bool),
		openDeals: make(map[int64]int),
		exclusive: make(map[int64]bool),
	}

	profiles, err := e.db.GetSocialProfilesForAthletes(athleteIDs)
	if err != nil {
		return nil, fmt.Errorf("loading social profiles: %w", err)
	}
	for id, ps := range profiles {
		for _, p := range ps {
			c.platforms[id] = append(c.platforms[id], p.Platform)
		}
	}

	deals, err := e.db.GetOpenDealsForAthletes(athleteIDs)
	if err != nil {
		return nil, fmt.Errorf("loading open deals: %w", err)
	}
	for _, d := range deals {
		c.dealPairs[database.PairKey{AthleteID: d.AthleteID, BrandID: d.BrandID}] = true
		c.openDeals[d.AthleteID]++
		if d.Exclusivity {
			c.exclusive[d.AthleteID] = true
		}
	}

	if c.statuses, err = e.db.GetMatchStatuses(athleteIDs, brandIDs); err != nil {
		return nil, fmt.Errorf("loading match statuses: %w", err)
	}
	if c.valuationTiers, err = e.db.GetLatestValuationTiers(athleteIDs); err != nil {
		return nil, fmt.Errorf("loading valuation tiers: %w", err)
	}
	return c, nil
}

func (c *runContext) pair(a database.Athlete, b database.Brand) Pair {
	p := Pair{
		BrandCategory:    deref(b.Category),
		BrandBudgetTier:  deref(b.BudgetTier),
		BrandPlatforms:   b.SignalPlatforms,
		AthleteSport:     deref(a.Sport),
		AthleteTags:      a.Tags,
		AthletePlatforms: c.platforms[a.ID],
		EngagementRate:   a.EngagementRate,
		FollowerTier:     deref(a.FollowerTier),
		ValuationTier:    c.valuationTiers[a.ID],
		HasExclusiveDeal: c.exclusive[a.ID],
		OpenDeals:        c.openDeals[a.ID],
	}
	if p.ValuationTier == "" {
		p.ValuationTier = deref(a.ValuationTier)
	}
	return p
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
