package dealintel

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/nilintel/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeSearcher struct {
	results map[string][]Result
	errs    map[string]error
	calls   []string
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	f.calls = append(f.calls, query)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

type fakeFetcher struct {
	pages map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.calls++
	text, ok := f.pages[url]
	if !ok {
		return "", errors.New("not found")
	}
	return text, nil
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("https://news.test/a")
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a != Fingerprint("https://news.test/a") {
		t.Error("expected fingerprint to be deterministic")
	}
	if a == Fingerprint("https://news.test/b") {
		t.Error("expected different URLs to differ")
	}
}

func TestHarvestRun(t *testing.T) {
	db := openTestDB(t)
	searcher := &fakeSearcher{
		results: map[string][]Result{
			"first": {
				{Title: "Jane Smith signs NIL deal with Nike.", Snippet: "Basketball guard gets $50,000", Link: "https://news.test/jane"},
				{Title: "Campus roundup", Snippet: "Nothing priced here", Link: "https://news.test/roundup"},
			},
			"third": {
				{Title: "Jane Smith signs NIL deal with Nike", Snippet: "syndicated copy", Link: "https://news.test/jane"},
				{Title: "Quarterback deal", Snippet: "Worth $1.2 million", Link: "https://news.test/qb"},
				{Title: "No link", Snippet: "", Link: ""},
			},
		},
		errs: map[string]error{"second": errors.New("search API returned 500")},
	}

	h := NewHarvester(db, searcher, NewRegexExtractor(), Options{})
	r, err := h.Run(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(searcher.calls) != 3 || r.QueriesRun != 3 {
		t.Errorf("expected all 3 queries to run despite a failure, got %v", searcher.calls)
	}
	if r.RecordsFound != 5 {
		t.Errorf("expected 5 records found, got %d", r.RecordsFound)
	}
	if r.RecordsIngested != 3 {
		t.Errorf("expected 3 ingested, got %d", r.RecordsIngested)
	}
	if r.DuplicatesSkipped != 1 {
		t.Errorf("expected 1 duplicate, got %d", r.DuplicatesSkipped)
	}
	if r.ItemsFailed != 1 {
		t.Errorf("expected 1 failed item, got %d", r.ItemsFailed)
	}
	if len(r.Errors) != 1 || r.Errors[0].Query != "second" {
		t.Errorf("expected error for query 'second', got %+v", r.Errors)
	}

	run, err := db.GetScrapeRun(r.RunID)
	if err != nil || run == nil {
		t.Fatalf("expected scrape run row: %v", err)
	}
	if run.Status != RunCompleted || run.CompletedAt == nil {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if run.RecordsFound != 5 || run.RecordsIngested != 3 || run.DuplicatesSkipped != 1 {
		t.Errorf("unexpected audit counters: %+v", run)
	}
	if len(run.Errors) != 1 || len(run.Queries) != 3 {
		t.Errorf("expected 1 error and 3 queries on audit row, got %d/%d", len(run.Errors), len(run.Queries))
	}

	records, err := db.GetRecentDealIntel(10)
	if err != nil {
		t.Fatalf("loading records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 stored records, got %d", len(records))
	}
	byURL := make(map[string]database.DealIntel)
	for _, rec := range records {
		byURL[rec.SourceURL] = rec
	}

	jane := byURL["https://news.test/jane"]
	if jane.Fingerprint != Fingerprint("https://news.test/jane") {
		t.Error("expected fingerprint of source URL")
	}
	if jane.SourceType != "fake" || jane.Reviewed {
		t.Errorf("unexpected source type/reviewed: %s/%v", jane.SourceType, jane.Reviewed)
	}
	if jane.AmountLow == nil || *jane.AmountLow != 50000 {
		t.Errorf("expected amount 50000, got %v", jane.AmountLow)
	}
	if jane.ExtractionConfidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", jane.ExtractionConfidence)
	}

	roundup := byURL["https://news.test/roundup"]
	if roundup.AmountLow != nil || roundup.ExtractionConfidence != 0 {
		t.Errorf("expected sparse record to be stored anyway, got %+v", roundup)
	}

	qb := byURL["https://news.test/qb"]
	if qb.AmountLow == nil || *qb.AmountLow != 1_200_000 || qb.Sport == nil || *qb.Sport != "football" {
		t.Errorf("unexpected qb record: %+v", qb)
	}
}

func TestHarvestRerunIsDeduplicated(t *testing.T) {
	db := openTestDB(t)
	searcher := &fakeSearcher{results: map[string][]Result{
		"q": {{Title: "Deal", Snippet: "$5,000", Link: "https://news.test/1"}},
	}}
	h := NewHarvester(db, searcher, NewRegexExtractor(), Options{Queries: []string{"q"}})

	if _, err := h.Run(context.Background(), nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	r, err := h.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if r.RecordsIngested != 0 || r.DuplicatesSkipped != 1 {
		t.Errorf("expected dedup on rerun, got %+v", r)
	}
	records, _ := db.GetRecentDealIntel(10)
	if len(records) != 1 {
		t.Errorf("expected exactly one stored record, got %d", len(records))
	}
}

func TestHarvestEnrichesFromArticle(t *testing.T) {
	db := openTestDB(t)
	searcher := &fakeSearcher{results: map[string][]Result{
		"q": {
			{Title: "Jane Smith signs with Nike.", Snippet: "Details inside", Link: "https://news.test/jane"},
			{Title: "Priced already", Snippet: "$9,000", Link: "https://news.test/priced"},
			{Title: "Dead link", Snippet: "", Link: "https://news.test/gone"},
		},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://news.test/jane": "The volleyball star's agreement is reportedly worth $40,000 over two years.",
	}}

	h := NewHarvester(db, searcher, NewRegexExtractor(), Options{Queries: []string{"q"}, Fetcher: fetcher})
	r, err := h.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if fetcher.calls != 2 {
		t.Errorf("expected fetches only for unpriced results, got %d", fetcher.calls)
	}
	if r.Enriched != 1 || r.RecordsIngested != 3 {
		t.Errorf("expected 1 enriched of 3 ingested, got %+v", r)
	}

	records, _ := db.GetRecentDealIntel(10)
	for _, rec := range records {
		if rec.SourceURL != "https://news.test/jane" {
			continue
		}
		if rec.AmountLow == nil || *rec.AmountLow != 40000 {
			t.Errorf("expected enriched amount 40000, got %v", rec.AmountLow)
		}
		if rec.Sport == nil || *rec.Sport != "volleyball" {
			t.Errorf("expected enriched sport, got %v", rec.Sport)
		}
		if rec.BrandName == nil || *rec.BrandName != "Nike" {
			t.Errorf("expected brand from title kept, got %v", rec.BrandName)
		}
		if rec.ExtractionConfidence != 1.0 {
			t.Errorf("expected recomputed confidence 1.0, got %v", rec.ExtractionConfidence)
		}
	}
}

func TestNewHarvesterDefaultQueries(t *testing.T) {
	h := NewHarvester(nil, &fakeSearcher{}, NewRegexExtractor(), Options{})
	if len(h.queries) != len(DefaultQueries) {
		t.Errorf("expected default queries, got %v", h.queries)
	}
}
