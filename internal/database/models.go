package database

// Athlete is a rostered athlete. The intelligence jobs only read it.
type Athlete struct {
	ID             int64
	FullName       string
	Sport          *string
	SkillLevel     *string
	Status         string
	Tags           []string
	EngagementRate *float64
	FollowerTier   *string
	ValuationTier  *string
	CreatedAt      *string
}

// SocialProfile is one platform handle for an athlete.
type SocialProfile struct {
	ID             int64
	AthleteID      int64
	Platform       string
	Handle         *string
	Followers      int64
	EngagementRate *float64
	UpdatedAt      *string
}

// Brand is a prospective or active sponsor.
type Brand struct {
	ID              int64
	Name            string
	Category        *string
	Status          string
	BudgetTier      *string
	SignalPlatforms []string
	CreatedAt       *string
}

// BrandSignal records that a brand was seen doing NIL activity.
type BrandSignal struct {
	ID          int64
	BrandID     int64
	AthleteID   *int64
	Source      string
	SourceURL   *string
	RawData     *string // JSON
	Fingerprint *string
	DetectedAt  string
}

// Deal is an internally tracked athlete/brand agreement.
type Deal struct {
	ID          int64
	AthleteID   int64
	BrandID     int64
	Status      string
	Exclusivity bool
	DealValue   *float64
	Sport       *string
	Platform    *string
	ContentType *string
	CreatedAt   string
}

// DealSummary is a deal with display names.
type DealSummary struct {
	ID          int64
	AthleteName string
	BrandName   string
	Status      string
	DealValue   *float64
	CreatedAt   string
}

// DealSample is a valued deal joined with the athlete's tier data.
type DealSample struct {
	DealID         int64
	DealValue      float64
	Sport          *string
	Platform       *string
	ContentType    *string
	FollowerTier   *string
	EngagementRate *float64
	CreatedAt      string
}

// Match is a scored athlete/brand pairing.
type Match struct {
	ID             int64
	AthleteID      int64
	BrandID        int64
	MatchScore     float64
	ScoreBreakdown string // JSON
	Status         string
	ExpiresAt      *string
	CreatedAt      *string
	UpdatedAt      *string
}

// MatchSummary is an open match with display names.
type MatchSummary struct {
	ID          int64
	AthleteName string
	BrandName   string
	MatchScore  float64
	Status      string
	ExpiresAt   *string
}

// MatchUpsert is one row written by the matching job.
type MatchUpsert struct {
	AthleteID      int64
	BrandID        int64
	MatchScore     float64
	ScoreBreakdown string
	ExpiresAt      string
}

// PairKey identifies an athlete/brand pair.
type PairKey struct {
	AthleteID int64
	BrandID   int64
}

// RateCard is an aggregated pricing benchmark.
type RateCard struct {
	ID             int64
	Sport          string
	Platform       string
	ContentType    string
	FollowerTier   string
	EngagementTier string
	RateLow        float64
	RateMedian     float64
	RateHigh       float64
	SampleSize     int
	UpdatedAt      *string
}

// DealIntel is an externally sourced, unreviewed deal signal.
type DealIntel struct {
	ID                   int64
	SourceType           string
	SourceURL            string
	SourceTitle          *string
	SourceSnippet        *string
	Fingerprint          string
	BrandName            *string
	AthleteName          *string
	AmountLow            *float64
	AmountHigh           *float64
	Sport                *string
	Platform             *string
	ContentType          *string
	ExtractionConfidence float64
	Reviewed             bool
	CreatedAt            string
}

// ScrapeError is a per-query failure stored on a scrape run.
type ScrapeError struct {
	Query string `json:"query"`
	Error string `json:"error"`
}

// ScrapeRun is the audit row for one deal intel harvest.
type ScrapeRun struct {
	ID                string
	Status            string
	StartedAt         string
	CompletedAt       *string
	Queries           []string
	RecordsFound      int
	RecordsIngested   int
	DuplicatesSkipped int
	Errors            []ScrapeError
}

// AthleteValuation is a dated valuation snapshot.
type AthleteValuation struct {
	ID              int64
	AthleteID       int64
	AsOf            string
	AnnualLow       int64
	AnnualHigh      int64
	FollowerTier    string
	Percentile      int
	Confidence      int
	ComparableCount int
	ValuationData   string // JSON
	CreatedAt       *string
}

// Digest is a stored daily summary of open matches, deal intel and deals.
type Digest struct {
	ID           int64
	DigestDate   string
	TLDR         string
	BodyMarkdown string
	TopMatches   int
	DealIntel    int
	RecentDeals  int
	GeneratedAt  string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Athletes         int
	ActiveAthletes   int
	Brands           int
	Deals            int
	Signals          int
	Matches          int
	ProtectedMatches int
	RateCards        int
	DealIntel        int
	UnreviewedIntel  int
	Valuations       int
	Digests          int
	LastScrapeRun    *string
}
