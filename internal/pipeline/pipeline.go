package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/nilintel/internal/config"
	"github.com/TobiSchelling/nilintel/internal/database"
	"github.com/TobiSchelling/nilintel/internal/dealintel"
	"github.com/TobiSchelling/nilintel/internal/digest"
	"github.com/TobiSchelling/nilintel/internal/fetch"
	"github.com/TobiSchelling/nilintel/internal/matching"
	"github.com/TobiSchelling/nilintel/internal/metrics"
	"github.com/TobiSchelling/nilintel/internal/ratecard"
	"github.com/TobiSchelling/nilintel/internal/valuation"
)

// Job names, in data-flow order.
const (
	JobHarvest    = "harvest"
	JobRateCards  = "ratecards"
	JobValuations = "valuations"
	JobMatching   = "matching"
	JobDigest     = "digest"
)

// ErrUnknownJob is returned by RunJob for a name not in JobNames.
var ErrUnknownJob = errors.New("unknown job")

// JobNames lists every job RunJob accepts, in the order Run executes them.
func JobNames() []string {
	return []string{JobHarvest, JobRateCards, JobValuations, JobMatching, JobDigest}
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline runs the intelligence jobs against one store.
type Pipeline struct {
	cfg     *config.Config
	db      *database.DB
	metrics *metrics.Recorder

	// searcher overrides the configured search source when set.
	searcher dealintel.Searcher
}

// New creates a new pipeline. rec may be nil.
func New(cfg *config.Config, db *database.DB, rec *metrics.Recorder) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, metrics: rec}
}

// WithSearcher replaces the configured search source.
func (p *Pipeline) WithSearcher(s dealintel.Searcher) *Pipeline {
	p.searcher = s
	return p
}

// Run executes every job in data-flow order. Each job reads whatever the
// store holds, so a failed step does not stop the ones after it.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}
	names := JobNames()
	for i, name := range names {
		log.Printf("Step %d/%d: %s...", i+1, len(names), stepTitle(name))
		step, _ := p.RunJob(ctx, name)
		if step.Err != nil {
			log.WithFields(log.Fields{"step": name}).Errorf("step failed: %v", step.Err)
		}
		r.Steps = append(r.Steps, step)
	}
	return r
}

// RunJob runs one job by name with its configured defaults.
func (p *Pipeline) RunJob(ctx context.Context, name string) (StepResult, error) {
	switch name {
	case JobHarvest:
		return p.harvestStep(ctx), nil
	case JobRateCards:
		return p.rateCardStep(), nil
	case JobValuations:
		return p.valuationStep(), nil
	case JobMatching:
		return p.matchingStep(), nil
	case JobDigest:
		return p.digestStep(), nil
	}
	return StepResult{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun() *Result {
	r := &Result{}

	queries := p.cfg.DealIntel.Queries
	if len(queries) == 0 {
		queries = dealintel.DefaultQueries
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    stepTitle(JobHarvest),
		Summary: fmt.Sprintf("[dry-run] Would search %d queries via %s", len(queries), p.cfg.DealIntel.Provider),
	})

	since := database.FormatTime(time.Now().AddDate(0, 0, -p.cfg.RateCards.LookbackDays))
	intel, _ := p.db.GetPricedDealIntelSince(since)
	deals, _ := p.db.GetValuedDealsSince(since)
	r.Steps = append(r.Steps, StepResult{
		Name:    stepTitle(JobRateCards),
		Summary: fmt.Sprintf("[dry-run] %d priced deal intel records and %d valued deals in window", len(intel), len(deals)),
	})

	athletes, _ := p.db.GetActiveAthletes(p.cfg.Matching.AthleteLimit)
	r.Steps = append(r.Steps, StepResult{
		Name:    stepTitle(JobValuations),
		Summary: fmt.Sprintf("[dry-run] %d active athletes to value", len(athletes)),
	})

	signalSince := database.FormatTime(time.Now().AddDate(0, 0, -p.cfg.Matching.SignalWindowDays))
	signaled, _ := p.db.GetSignaledBrandIDs(signalSince, p.cfg.Matching.BrandLimit)
	watched, _ := p.db.GetWatchlistBrandIDs(p.cfg.Matching.BrandLimit)
	r.Steps = append(r.Steps, StepResult{
		Name: stepTitle(JobMatching),
		Summary: fmt.Sprintf("[dry-run] %d signaled and %d watchlisted brands against %d athletes",
			len(signaled), len(watched), len(athletes)),
	})

	existing, _ := p.db.GetDigest(database.GetToday())
	if existing != nil {
		r.Steps = append(r.Steps, StepResult{
			Name:    stepTitle(JobDigest),
			Summary: fmt.Sprintf("[dry-run] Digest already exists for %s and would be replaced", existing.DigestDate),
		})
	} else {
		r.Steps = append(r.Steps, StepResult{
			Name:    stepTitle(JobDigest),
			Summary: fmt.Sprintf("[dry-run] Would compose digest for %s", database.GetToday()),
		})
	}

	return r
}

// Harvest searches the configured source (or queries, when given) and stores new deal intel.
func (p *Pipeline) Harvest(ctx context.Context, queries []string) (res *dealintel.HarvestResult, err error) {
	defer p.observe(JobHarvest, time.Now(), &err)

	searcher := p.searcher
	if searcher == nil {
		searcher, err = NewSearcher(p.cfg.DealIntel)
		if err != nil {
			return nil, err
		}
	}

	opts := dealintel.Options{
		Queries:           p.cfg.DealIntel.Queries,
		RequestsPerSecond: p.cfg.DealIntel.RequestsPerSecond,
	}
	if p.cfg.DealIntel.FetchArticles {
		opts.Fetcher = fetch.New(time.Duration(p.cfg.DealIntel.FetchTimeoutSecs) * time.Second)
	}

	h := dealintel.NewHarvester(p.db, searcher, dealintel.NewRegexExtractor(), opts)
	res, err = h.Run(ctx, queries)
	if res != nil && p.metrics != nil {
		p.metrics.AddItems(JobHarvest, "found", int64(res.RecordsFound))
		p.metrics.AddItems(JobHarvest, "ingested", int64(res.RecordsIngested))
		p.metrics.AddItems(JobHarvest, "duplicate", int64(res.DuplicatesSkipped))
	}
	return res, err
}

// BuildRateCards rebuilds rate cards from the last lookbackDays of data.
// lookbackDays <= 0 uses the configured window.
func (p *Pipeline) BuildRateCards(lookbackDays int) (res *ratecard.Result, err error) {
	defer p.observe(JobRateCards, time.Now(), &err)

	if lookbackDays <= 0 {
		lookbackDays = p.cfg.RateCards.LookbackDays
	}
	res, err = ratecard.NewBuilder(p.db, lookbackDays, p.cfg.RateCards.MinSamples).Build()
	if res != nil && p.metrics != nil {
		p.metrics.AddItems(JobRateCards, "card", int64(res.CardsUpdated))
	}
	return res, err
}

// Valuate snapshots one athlete (athleteID > 0) or every active athlete.
func (p *Pipeline) Valuate(athleteID int64) (res *valuation.SnapshotResult, err error) {
	defer p.observe(JobValuations, time.Now(), &err)

	engine := valuation.New(valuation.DefaultTables())
	s := valuation.NewSnapshotter(p.db, engine, valuation.SnapshotOptions{
		ComparableLimit:        p.cfg.Valuation.ComparableLimit,
		ComparableLookbackDays: p.cfg.Valuation.ComparableLookbackDays,
	})
	res, err = s.Run(athleteID)
	if res != nil && p.metrics != nil {
		p.metrics.AddItems(JobValuations, "valuation", int64(res.ValuationsUpdated))
	}
	return res, err
}

// Match runs the matching engine. batchSize <= 0 uses the configured size.
func (p *Pipeline) Match(scope matching.Scope, batchSize int) (res *matching.Result, err error) {
	defer p.observe(JobMatching, time.Now(), &err)

	mc := p.cfg.Matching
	if batchSize <= 0 {
		batchSize = mc.BatchSize
	}
	engine := matching.NewEngine(p.db, matching.Options{
		BatchSize:    batchSize,
		AthleteLimit: mc.AthleteLimit,
		BrandLimit:   mc.BrandLimit,
		MinScore:     mc.MinScore,
		TTL:          time.Duration(mc.ExpiryDays) * 24 * time.Hour,
		SignalWindow: time.Duration(mc.SignalWindowDays) * 24 * time.Hour,
	})
	res, err = engine.Run(scope)
	if res != nil && p.metrics != nil {
		p.metrics.AddItems(JobMatching, "upserted", res.MatchesUpserted)
		p.metrics.AddItems(JobMatching, "expired", res.Expired)
	}
	return res, err
}

// ComposeDigest builds and stores today's digest.
func (p *Pipeline) ComposeDigest() (d *database.Digest, err error) {
	defer p.observe(JobDigest, time.Now(), &err)
	return digest.NewComposer(p.db).Compose()
}

// NewSearcher builds the search source named by cfg.Provider. Google
// credentials are read from the environment variables the config names.
func NewSearcher(cfg config.DealIntel) (dealintel.Searcher, error) {
	timeout := time.Duration(cfg.FetchTimeoutSecs) * time.Second
	switch cfg.Provider {
	case "", "google":
		return dealintel.NewGoogleSearcher(dealintel.GoogleOptions{
			BaseURL:      cfg.Google.BaseURL,
			APIKey:       os.Getenv(cfg.Google.APIKeyEnv),
			EngineID:     os.Getenv(cfg.Google.EngineIDEnv),
			Num:          cfg.Google.Num,
			DateRestrict: cfg.Google.DateRestrict,
			Timeout:      timeout,
		})
	case "feed":
		return dealintel.NewFeedSearcher(cfg.Feed.URLTemplate, cfg.Feed.MaxItems, timeout)
	}
	return nil, fmt.Errorf("unknown deal intel provider %q", cfg.Provider)
}

func (p *Pipeline) harvestStep(ctx context.Context) StepResult {
	res, err := p.Harvest(ctx, nil)
	if err != nil {
		return StepResult{Name: stepTitle(JobHarvest), Err: err}
	}
	return StepResult{
		Name: stepTitle(JobHarvest),
		Summary: fmt.Sprintf("Found %d results, %d new, %d duplicates, %d query errors",
			res.RecordsFound, res.RecordsIngested, res.DuplicatesSkipped, len(res.Errors)),
	}
}

func (p *Pipeline) rateCardStep() StepResult {
	res, err := p.BuildRateCards(0)
	if err != nil {
		return StepResult{Name: stepTitle(JobRateCards), Err: err}
	}
	return StepResult{
		Name: stepTitle(JobRateCards),
		Summary: fmt.Sprintf("Updated %d rate cards from %d observations (%d groups below minimum sample)",
			res.CardsUpdated, res.Observations, res.CardsSkipped),
	}
}

func (p *Pipeline) valuationStep() StepResult {
	res, err := p.Valuate(0)
	if err != nil {
		return StepResult{Name: stepTitle(JobValuations), Err: err}
	}
	return StepResult{
		Name: stepTitle(JobValuations),
		Summary: fmt.Sprintf("Valued %d athletes, %d updated, %d failed",
			res.AthletesProcessed, res.ValuationsUpdated, res.Failed),
	}
}

func (p *Pipeline) matchingStep() StepResult {
	res, err := p.Match(matching.Scope{}, 0)
	if err != nil {
		return StepResult{Name: stepTitle(JobMatching), Err: err}
	}
	return StepResult{
		Name: stepTitle(JobMatching),
		Summary: fmt.Sprintf("Scored %d pairs, upserted %d matches, expired %d",
			res.PairsScored, res.MatchesUpserted, res.Expired),
	}
}

func (p *Pipeline) digestStep() StepResult {
	d, err := p.ComposeDigest()
	if err != nil {
		return StepResult{Name: stepTitle(JobDigest), Err: err}
	}
	return StepResult{
		Name: stepTitle(JobDigest),
		Summary: fmt.Sprintf("Digest composed for %s: %d matches, %d deal intel, %d deals",
			d.DigestDate, d.TopMatches, d.DealIntel, d.RecentDeals),
	}
}

func (p *Pipeline) observe(job string, start time.Time, err *error) {
	if p.metrics != nil {
		p.metrics.ObserveJob(job, start, *err)
	}
}

func stepTitle(job string) string {
	switch job {
	case JobHarvest:
		return "Harvest"
	case JobRateCards:
		return "Rate Cards"
	case JobValuations:
		return "Valuations"
	case JobMatching:
		return "Matching"
	case JobDigest:
		return "Digest"
	}
	return job
}
