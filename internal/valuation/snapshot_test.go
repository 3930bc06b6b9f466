package valuation

import (
	"encoding/json"
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

func ptr(s string) *string { return &s }

func seedAthlete(t *testing.T, db *database.DB, name string, profiles ...database.SocialProfile) int64 {
	t.Helper()
	id, err := db.UpsertAthlete(database.Athlete{
		FullName:   name,
		Sport:      ptr("basketball"),
		SkillLevel: ptr("d1_starter"),
		Status:     "active",
	})
	if err != nil {
		t.Fatalf("seeding athlete: %v", err)
	}
	for _, p := range profiles {
		p.AthleteID = id
		if err := db.UpsertSocialProfile(p); err != nil {
			t.Fatalf("seeding profile: %v", err)
		}
	}
	return id
}

func newSnapshotter(db *database.DB) *Snapshotter {
	return NewSnapshotter(db, New(DefaultTables()), SnapshotOptions{})
}

func TestSnapshotStoresValuation(t *testing.T) {
	db := openTestDB(t)
	id := seedAthlete(t, db, "Jane Doe",
		database.SocialProfile{Platform: "instagram", Handle: ptr("janedoe"), Followers: 60000, EngagementRate: rate(4.5)},
		database.SocialProfile{Platform: "tiktok", Followers: 20000},
	)

	res, err := newSnapshotter(db).Run(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ValuationsUpdated != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	v, err := db.GetLatestValuation(id)
	if err != nil || v == nil {
		t.Fatalf("expected stored valuation, got %v / %v", v, err)
	}
	if v.FollowerTier != TierEstablished {
		t.Errorf("expected established tier, got %q", v.FollowerTier)
	}
	if v.AsOf != database.GetToday() {
		t.Errorf("expected as_of today, got %q", v.AsOf)
	}
	// No comparables: 0 + 0 + 12.5 recency + 25*5/6 completeness
	if v.Confidence != 33 {
		t.Errorf("expected confidence 33, got %d", v.Confidence)
	}

	var data SnapshotData
	if err := json.Unmarshal([]byte(v.ValuationData), &data); err != nil {
		t.Fatalf("decoding valuation data: %v", err)
	}
	if len(data.Packages) != 3 {
		t.Errorf("expected 3 packages, got %d", len(data.Packages))
	}
	if len(data.PerPost["instagram"]) != 4 || len(data.PerPost["tiktok"]) != 1 {
		t.Errorf("unexpected per-post grouping: %+v", data.PerPost)
	}
	if len(data.Drivers) == 0 {
		t.Error("expected drivers in valuation data")
	}
}

func TestSnapshotSameDayOverwrites(t *testing.T) {
	db := openTestDB(t)
	id := seedAthlete(t, db, "Jane Doe", database.SocialProfile{Platform: "instagram", Followers: 2000})
	s := newSnapshotter(db)

	if _, err := s.Run(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.UpsertSocialProfile(database.SocialProfile{AthleteID: id, Platform: "instagram", Followers: 20000})
	if _, err := s.Run(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, _ := db.GetValuationHistory(id)
	if len(history) != 1 {
		t.Fatalf("expected one row per date, got %d", len(history))
	}
	if history[0].FollowerTier != TierMid {
		t.Errorf("expected rerun to overwrite with mid tier, got %q", history[0].FollowerTier)
	}
}

func TestSnapshotSkipsAthleteWithoutProfiles(t *testing.T) {
	db := openTestDB(t)
	seedAthlete(t, db, "No Handles")

	res, err := newSnapshotter(db).Run(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped != 1 || res.ValuationsUpdated != 0 {
		t.Errorf("expected one skipped athlete, got %+v", res)
	}
}

func TestSnapshotUnknownAthlete(t *testing.T) {
	db := openTestDB(t)
	_, err := newSnapshotter(db).Run(42)
	if !errors.Is(err, ErrAthleteNotFound) {
		t.Errorf("expected ErrAthleteNotFound, got %v", err)
	}
}

func TestSnapshotUsesComparablesAndRateCards(t *testing.T) {
	db := openTestDB(t)
	id := seedAthlete(t, db, "Jane Doe", database.SocialProfile{Platform: "instagram", Handle: ptr("jd"), Followers: 2000})

	for i, url := range []string{"https://a", "https://b"} {
		amount := float64(1000 * (i + 1))
		db.InsertDealIntel(database.DealIntel{SourceType: "feed", SourceURL: url, Fingerprint: url,
			Sport: ptr("basketball"), AmountLow: &amount, ExtractionConfidence: 0.75})
	}
	db.UpsertRateCard(database.RateCard{Sport: "basketball", Platform: "instagram", ContentType: "ig_reel",
		FollowerTier: TierMicro, EngagementTier: EngagementModerate, RateLow: 400, RateMedian: 500, RateHigh: 600, SampleSize: 3})

	if _, err := newSnapshotter(db).Run(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := db.GetLatestValuation(id)
	if v.ComparableCount != 2 {
		t.Errorf("expected 2 comparables, got %d", v.ComparableCount)
	}
	// 25*0.2 + 25*0.9375 + 25*1 + 25*5/6
	if v.Confidence != 74 {
		t.Errorf("expected confidence 74, got %d", v.Confidence)
	}

	var data SnapshotData
	json.Unmarshal([]byte(v.ValuationData), &data)
	rates := data.PerPost["instagram"]
	if len(rates) != 1 || rates[0].ContentType != "ig_reel" || rates[0].RateLow != 400 {
		t.Errorf("expected aggregated ig_reel rate, got %+v", rates)
	}
	starter := data.Packages[0]
	// 1 reel at 400 + 3 stories at the fallback 50
	if starter.TotalLow != 550 {
		t.Errorf("expected starter total_low 550, got %v", starter.TotalLow)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		avg, age float64
		fields   int
		want     int
	}{
		{"empty", 0, 0, 90, 0, 13},
		{"saturated", 10, 0.8, 0, 6, 100},
		{"over-saturated", 25, 1, -5, 6, 100},
		{"stale", 5, 0.4, 400, 3, 38},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.n, tt.avg, tt.age, tt.fields, 6)
			if got != tt.want {
				t.Errorf("Confidence() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildPackagesFallbackRate(t *testing.T) {
	pkgs := BuildPackages(nil)
	if len(pkgs) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(pkgs))
	}
	growth := pkgs[1]
	// 9 units at 50/200
	if growth.TotalLow != 450 || growth.TotalHigh != 1800 {
		t.Errorf("unexpected growth totals: %v/%v", growth.TotalLow, growth.TotalHigh)
	}
	if growth.ExclusivityDays != 30 || growth.ExclusivityScope != "category" {
		t.Errorf("unexpected growth terms: %+v", growth)
	}
	if pkgs[2].UsageType != "paid whitelisting optional" {
		t.Errorf("unexpected signature usage type %q", pkgs[2].UsageType)
	}
}

func TestEngagementTier(t *testing.T) {
	if EngagementTier(nil) != EngagementModerate {
		t.Error("expected nil rate to be moderate")
	}
	if EngagementTier(rate(4)) != EngagementHigh {
		t.Error("expected 4 to be high")
	}
	if EngagementTier(rate(2)) != EngagementModerate {
		t.Error("expected 2 to be moderate")
	}
	if EngagementTier(rate(1.9)) != EngagementLow {
		t.Error("expected 1.9 to be low")
	}
}

func TestCardsFromRateCardsPrefersEngagementTier(t *testing.T) {
	rows := []database.RateCard{
		{Platform: "instagram", ContentType: "ig_post", FollowerTier: "micro", EngagementTier: "low", RateLow: 1, SampleSize: 9},
		{Platform: "instagram", ContentType: "ig_post", FollowerTier: "micro", EngagementTier: "high", RateLow: 2, SampleSize: 3},
		{Platform: "instagram", ContentType: "ig_post", FollowerTier: "micro", EngagementTier: "moderate", RateLow: 3, SampleSize: 4},
		{Platform: "tiktok", ContentType: "tiktok_post", FollowerTier: "micro", EngagementTier: "low", RateLow: 4, SampleSize: 3},
		{Platform: "tiktok", ContentType: "tiktok_post", FollowerTier: "micro", EngagementTier: "moderate", RateLow: 5, SampleSize: 8},
	}
	cards := CardsFromRateCards(rows, "high")
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].RateLow != 2 {
		t.Errorf("expected matching engagement tier row, got %v", cards[0].RateLow)
	}
	if cards[1].RateLow != 5 {
		t.Errorf("expected largest sample fallback, got %v", cards[1].RateLow)
	}
}
