package dealintel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/nilintel/internal/database"
)

// DefaultQueries are searched when no queries are configured.
var DefaultQueries = []string{
	`"NIL deal" college athlete 2026`,
	`"NIL partnership" announcement`,
	"college athlete sponsorship deal",
	"NIL marketplace deal value",
}

// Scrape run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
)

// ArticleFetcher returns the readable text of a web page.
type ArticleFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HarvestResult holds the results of a harvest run.
type HarvestResult struct {
	RunID             string
	QueriesRun        int
	RecordsFound      int
	RecordsIngested   int
	DuplicatesSkipped int
	ItemsFailed       int
	Enriched          int
	Errors            []database.ScrapeError
}

// Options configures a Harvester.
type Options struct {
	Queries           []string
	RequestsPerSecond float64

	// Fetcher enriches results whose title and snippet carry no amount. Nil disables it.
	Fetcher ArticleFetcher
}

// Harvester searches for deal news and stores new results as deal intel.
type Harvester struct {
	db        *database.DB
	searcher  Searcher
	extractor Extractor
	fetcher   ArticleFetcher
	limiter   *rate.Limiter
	queries   []string
	now       func() time.Time
}

// NewHarvester creates a harvester.
func NewHarvester(db *database.DB, searcher Searcher, extractor Extractor, opts Options) *Harvester {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	queries := opts.Queries
	if len(queries) == 0 {
		queries = DefaultQueries
	}
	return &Harvester{
		db:        db,
		searcher:  searcher,
		extractor: extractor,
		fetcher:   opts.Fetcher,
		limiter:   rate.NewLimiter(limit, 1),
		queries:   queries,
		now:       time.Now,
	}
}

// Fingerprint returns the hex SHA-256 of a source URL.
func Fingerprint(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}

// Run searches every query (the configured ones when queries is empty) and
// ingests the results. A failing query is logged and recorded on the audit
// row; the remaining queries still run.
func (h *Harvester) Run(ctx context.Context, queries []string) (*HarvestResult, error) {
	if len(queries) == 0 {
		queries = h.queries
	}

	r := &HarvestResult{RunID: uuid.NewString()}
	run := database.ScrapeRun{
		ID:        r.RunID,
		Status:    RunRunning,
		StartedAt: database.FormatTime(h.now()),
		Queries:   queries,
	}
	if err := h.db.InsertScrapeRun(run); err != nil {
		return nil, fmt.Errorf("creating scrape run: %w", err)
	}

	for _, q := range queries {
		if err := h.limiter.Wait(ctx); err != nil {
			h.queryFailed(r, q, err)
			break
		}
		r.QueriesRun++

		results, err := h.searcher.Search(ctx, q)
		if err != nil {
			h.queryFailed(r, q, err)
			continue
		}
		r.RecordsFound += len(results)
		log.WithFields(log.Fields{"query": q, "results": len(results)}).Debug("search complete")

		for _, res := range results {
			h.ingest(ctx, r, res)
		}
	}

	completed := database.FormatTime(h.now())
	run.Status = RunCompleted
	run.CompletedAt = &completed
	run.RecordsFound = r.RecordsFound
	run.RecordsIngested = r.RecordsIngested
	run.DuplicatesSkipped = r.DuplicatesSkipped
	run.Errors = r.Errors
	if err := h.db.CompleteScrapeRun(run); err != nil {
		return r, fmt.Errorf("completing scrape run: %w", err)
	}

	log.Printf("Harvest complete: %d queries, %d found, %d new, %d duplicates, %d errors",
		r.QueriesRun, r.RecordsFound, r.RecordsIngested, r.DuplicatesSkipped, len(r.Errors))
	return r, nil
}

func (h *Harvester) queryFailed(r *HarvestResult, query string, err error) {
	log.WithFields(log.Fields{"query": query, "source": h.searcher.Name()}).Errorf("search failed: %v", err)
	r.Errors = append(r.Errors, database.ScrapeError{Query: query, Error: err.Error()})
}

func (h *Harvester) ingest(ctx context.Context, r *HarvestResult, res Result) {
	if res.Link == "" {
		r.ItemsFailed++
		return
	}

	fp := Fingerprint(res.Link)
	exists, err := h.db.DealIntelExists(fp, res.Link)
	if err != nil {
		log.WithFields(log.Fields{"url": res.Link}).Errorf("duplicate check failed: %v", err)
		r.ItemsFailed++
		return
	}
	if exists {
		r.DuplicatesSkipped++
		return
	}

	fields := h.extractor.Extract(res.Title + " " + res.Snippet)
	if fields.AmountLow == nil && h.fetcher != nil {
		text, err := h.fetcher.Fetch(ctx, res.Link)
		if err != nil {
			log.WithFields(log.Fields{"url": res.Link}).Debugf("article fetch failed: %v", err)
		} else if text != "" {
			fields = fields.Merge(h.extractor.Extract(text))
			r.Enriched++
		}
	}

	inserted, err := h.db.InsertDealIntel(database.DealIntel{
		SourceType:           h.searcher.Name(),
		SourceURL:            res.Link,
		SourceTitle:          optional(res.Title),
		SourceSnippet:        optional(res.Snippet),
		Fingerprint:          fp,
		BrandName:            optional(fields.BrandName),
		AthleteName:          optional(fields.AthleteName),
		AmountLow:            fields.AmountLow,
		AmountHigh:           fields.AmountHigh,
		Sport:                optional(fields.Sport),
		ExtractionConfidence: fields.Confidence,
	})
	switch {
	case err != nil:
		log.WithFields(log.Fields{"url": res.Link}).Errorf("deal intel insert failed: %v", err)
		r.ItemsFailed++
	case !inserted:
		r.DuplicatesSkipped++
	default:
		r.RecordsIngested++
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
