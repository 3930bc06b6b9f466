package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/nilintel/internal/config"
	"github.com/TobiSchelling/nilintel/internal/database"
	"github.com/TobiSchelling/nilintel/internal/valuation"
)

const testSecret = "s3cret"

func init() {
	gin.SetMode(gin.TestMode)
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, db *database.DB, tweak func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.CronSecretEnv = "NILINTEL_TEST_CRON_SECRET"
	t.Setenv("NILINTEL_TEST_CRON_SECRET", testSecret)
	if tweak != nil {
		tweak(cfg)
	}
	srv, err := New(cfg, db, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func do(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const calculatorBody = `{"sport":"basketball","skill_level":"d1_starter","handles":[{"platform":"instagram","followers":200000,"engagement_rate":7}]}`

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)
	rec := do(srv, "GET", "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestCalculatorRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)
	rec := do(srv, "POST", "/api/v1/valuation", calculatorBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var res valuation.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.FollowerTier != valuation.TierElite {
		t.Errorf("expected elite tier, got %q", res.FollowerTier)
	}
	if res.AnnualLow != 100000 || res.AnnualHigh != 400000 {
		t.Errorf("expected 100000-400000, got %d-%d", res.AnnualLow, res.AnnualHigh)
	}
	if len(res.PerPostRates) == 0 || len(res.Drivers) == 0 {
		t.Error("expected per-post rates and drivers")
	}
}

func TestCalculatorValidation(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)
	cases := map[string]string{
		"bad json":      `{"sport":`,
		"unknown sport": `{"sport":"curling","skill_level":"d1_starter","handles":[{"platform":"instagram","followers":10}]}`,
		"unknown skill": `{"sport":"soccer","skill_level":"pro","handles":[{"platform":"instagram","followers":10}]}`,
		"no followers":  `{"sport":"soccer","skill_level":"d2","handles":[{"platform":"instagram","followers":0}]}`,
		"negative":      `{"sport":"soccer","skill_level":"d2","handles":[{"platform":"instagram","followers":-5}]}`,
		"engagement":    `{"sport":"soccer","skill_level":"d2","handles":[{"platform":"instagram","followers":10}],"engagement_rate":140}`,
	}
	for name, body := range cases {
		if rec := do(srv, "POST", "/api/v1/valuation", body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestCalculatorRateLimit(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), func(cfg *config.Config) {
		cfg.Server.CalculatorPerHour = 2
		cfg.Server.CalculatorBurst = 2
	})
	client := map[string]string{"X-Forwarded-For": "198.51.100.7"}

	for i := 0; i < 2; i++ {
		if rec := do(srv, "POST", "/api/v1/valuation", calculatorBody, client); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if rec := do(srv, "POST", "/api/v1/valuation", calculatorBody, client); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the bucket is empty, got %d", rec.Code)
	}

	other := map[string]string{"X-Forwarded-For": "203.0.113.9"}
	if rec := do(srv, "POST", "/api/v1/valuation", calculatorBody, other); rec.Code != http.StatusOK {
		t.Errorf("expected another client to be unaffected, got %d", rec.Code)
	}
}

func TestRateCardsRoute(t *testing.T) {
	db := openTestDB(t)
	db.UpsertRateCard(database.RateCard{
		Sport: "soccer", Platform: "instagram", ContentType: "ig_reel", FollowerTier: "mid",
		EngagementTier: "moderate", RateLow: 900, RateMedian: 1000, RateHigh: 1100, SampleSize: 3,
	})
	srv := newTestServer(t, db, nil)

	if rec := do(srv, "GET", "/api/v1/ratecards", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without sport, got %d", rec.Code)
	}

	rec := do(srv, "GET", "/api/v1/ratecards?sport=Soccer", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		RateCards []rateCardResponse `json:"rate_cards"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.RateCards) != 1 || body.RateCards[0].RateMedian != 1000 {
		t.Errorf("unexpected rate cards: %+v", body.RateCards)
	}
}

func TestAthleteValuationRoute(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.UpsertAthlete(database.Athlete{FullName: "Jane Doe", Status: "active"})
	srv := newTestServer(t, db, nil)

	if rec := do(srv, "GET", "/api/v1/athletes/abc/valuation", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
	if rec := do(srv, "GET", "/api/v1/athletes/1/valuation", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a valuation, got %d", rec.Code)
	}

	db.UpsertValuation(database.AthleteValuation{
		AthleteID: id, AsOf: "2026-10-16", AnnualLow: 5000, AnnualHigh: 15000, FollowerTier: "rising",
		Percentile: 40, Confidence: 55, ValuationData: `{"annual_low":5000}`,
	})
	rec := do(srv, "GET", "/api/v1/athletes/1/valuation", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":{"annual_low":5000}`) {
		t.Errorf("expected raw valuation data, got %s", rec.Body.String())
	}
}

func TestJobRouteRequiresSecret(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)

	if rec := do(srv, "POST", "/api/v1/jobs/ratecards", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without secret, got %d", rec.Code)
	}
	wrong := map[string]string{CronSecretHeader: "nope"}
	if rec := do(srv, "POST", "/api/v1/jobs/ratecards", "", wrong); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong secret, got %d", rec.Code)
	}

	auth := map[string]string{CronSecretHeader: testSecret}
	rec := do(srv, "POST", "/api/v1/jobs/ratecards", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Updated 0 rate cards") {
		t.Errorf("unexpected job summary: %s", rec.Body.String())
	}

	if rec := do(srv, "POST", "/api/v1/jobs/reindex", "", auth); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestJobRouteRejectsWhenSecretUnset(t *testing.T) {
	t.Setenv("NILINTEL_TEST_UNSET_SECRET", "")
	srv := newTestServer(t, openTestDB(t), func(cfg *config.Config) {
		cfg.Server.CronSecretEnv = "NILINTEL_TEST_UNSET_SECRET"
	})
	rec := do(srv, "POST", "/api/v1/jobs/ratecards", "", map[string]string{CronSecretHeader: ""})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 when no secret is configured, got %d", rec.Code)
	}
}

func TestDealIntelRoutes(t *testing.T) {
	db := openTestDB(t)
	db.InsertDealIntel(database.DealIntel{SourceType: "google", SourceURL: "https://news.test/a", Fingerprint: "fa"})
	srv := newTestServer(t, db, nil)

	rec := do(srv, "GET", "/api/v1/deal-intel?limit=5", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "https://news.test/a") {
		t.Fatalf("unexpected listing: %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(srv, "POST", "/api/v1/deal-intel/1/review", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without secret, got %d", rec.Code)
	}
	rec = do(srv, "POST", "/api/v1/deal-intel/1/review", "", map[string]string{CronSecretHeader: testSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	records, _ := db.GetRecentDealIntel(1)
	if !records[0].Reviewed {
		t.Error("expected record to be marked reviewed")
	}

	rec = do(srv, "POST", "/api/v1/deal-intel/999/review", "", map[string]string{CronSecretHeader: testSecret})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown record, got %d", rec.Code)
	}
}

func TestSignalRoute(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, nil)
	auth := map[string]string{CronSecretHeader: testSecret}
	body := `{"signal_type":"instagram_post","brand_name":"Acme","source_url":"https://instagram.test/p/1","detected_at":"2026-10-16T12:00:00Z","raw_data":{"likes":3}}`

	if rec := do(srv, "POST", "/api/v1/signals", body, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without secret, got %d", rec.Code)
	}

	rec := do(srv, "POST", "/api/v1/signals", body, auth)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		SignalID   int64 `json:"signal_id"`
		BrandID    int64 `json:"brand_id"`
		NewBrand   bool  `json:"is_new_brand"`
		Duplicated bool  `json:"deduplicated"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.SignalID == 0 || !created.NewBrand || created.Duplicated {
		t.Errorf("unexpected response: %s", rec.Body.String())
	}

	rec = do(srv, "POST", "/api/v1/signals", body, auth)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"deduplicated":true`) {
		t.Errorf("expected dedup outcome, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(srv, "POST", "/api/v1/signals", `{"brand_name":"Acme"}`, auth)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "signal_type is required") {
		t.Errorf("expected 400 for missing type, got %d %s", rec.Code, rec.Body.String())
	}

	stats, _ := db.GetStats()
	if stats.Signals != 1 || stats.Brands != 1 {
		t.Errorf("expected one signal on one brand, got %+v", stats)
	}
}

func TestMatchStatusRoute(t *testing.T) {
	db := openTestDB(t)
	athlete, _ := db.UpsertAthlete(database.Athlete{FullName: "Jane Doe", Status: "active"})
	brand, _ := db.UpsertBrand(database.Brand{Name: "Acme", Status: "active"})
	db.UpsertMatches([]database.MatchUpsert{{
		AthleteID: athlete, BrandID: brand, MatchScore: 0.6, ScoreBreakdown: `{}`,
		ExpiresAt: database.FormatTime(time.Now().Add(time.Hour)),
	}}, nil, database.FormatTime(time.Now()))
	m, _ := db.GetMatch(athlete, brand)
	path := fmt.Sprintf("/api/v1/matches/%d/status", m.ID)
	auth := map[string]string{CronSecretHeader: testSecret}

	s := newTestServer(t, db, nil)
	if rec := do(s, "POST", path, `{"status":"approved"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without secret, got %d", rec.Code)
	}

	rec := do(s, "POST", path, `{"status":"Approved"}`, auth)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"approved"`) {
		t.Fatalf("expected approval, got %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(s, "POST", path, `{"status":"new"}`, auth); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for approved -> new, got %d", rec.Code)
	}
	if rec := do(s, "POST", path, `{}`, auth); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without status, got %d", rec.Code)
	}
	if rec := do(s, "POST", "/api/v1/matches/999/status", `{"status":"reviewed"}`, auth); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown match, got %d", rec.Code)
	}

	stored, _ := db.GetMatchByID(m.ID)
	if stored.Status != "approved" {
		t.Errorf("expected stored status approved, got %s", stored.Status)
	}
}

func TestDigestRoutes(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDigest(database.Digest{
		DigestDate: "2026-10-16", TLDR: "- 1 match open", BodyMarkdown: "## Top Matches\n\n- **Jane Doe** x **Acme**: 0.72 (new)",
		TopMatches: 1, GeneratedAt: "2026-10-16 07:00:00",
	})
	srv := newTestServer(t, db, nil)

	rec := do(srv, "GET", "/", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/digest/2026-10-16") {
		t.Errorf("expected digest link on index, got %d", rec.Code)
	}

	rec = do(srv, "GET", "/digest/2026-10-16", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2>Top Matches</h2>") || !strings.Contains(body, "<strong>Jane Doe</strong>") {
		t.Errorf("expected rendered markdown, got:\n%s", body)
	}

	if rec := do(srv, "GET", "/digest/2020-01-01", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing digest, got %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), nil)
	do(srv, "GET", "/healthz", "", nil)

	rec := do(srv, "GET", "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `nilintel_http_requests_total{code="200",route="/healthz"} 1`) {
		t.Errorf("expected request counter in metrics output")
	}
}
