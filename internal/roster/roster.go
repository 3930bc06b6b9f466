// Package roster loads athletes, brands, deals and brand signals from a YAML
// file into the store. It stands in for the roster-management system the
// intelligence jobs read from.
package roster

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/nilintel/internal/database"
	"github.com/TobiSchelling/nilintel/internal/signals"
	"github.com/TobiSchelling/nilintel/internal/valuation"
)

// File is the top-level roster document.
type File struct {
	Athletes []Athlete `yaml:"athletes"`
	Brands   []Brand   `yaml:"brands"`
	Deals    []Deal    `yaml:"deals"`
}

type Athlete struct {
	Name           string   `yaml:"name"`
	Sport          string   `yaml:"sport"`
	SkillLevel     string   `yaml:"skill_level"`
	Status         string   `yaml:"status"`
	Tags           []string `yaml:"tags"`
	EngagementRate *float64 `yaml:"engagement_rate"`
	FollowerTier   string   `yaml:"follower_tier"`
	ValuationTier  string   `yaml:"valuation_tier"`
	Handles        []Handle `yaml:"handles"`
}

type Handle struct {
	Platform       string   `yaml:"platform"`
	Handle         string   `yaml:"handle"`
	Followers      int64    `yaml:"followers"`
	EngagementRate *float64 `yaml:"engagement_rate"`
}

type Brand struct {
	Name            string   `yaml:"name"`
	Category        string   `yaml:"category"`
	Status          string   `yaml:"status"`
	BudgetTier      string   `yaml:"budget_tier"`
	SignalPlatforms []string `yaml:"signal_platforms"`
	Watchlist       *bool    `yaml:"watchlist"`
	Signals         []Signal `yaml:"signals"`
}

type Signal struct {
	Source     string `yaml:"source"`
	Athlete    string `yaml:"athlete"`
	DetectedAt string `yaml:"detected_at"`
}

type Deal struct {
	Athlete     string   `yaml:"athlete"`
	Brand       string   `yaml:"brand"`
	Status      string   `yaml:"status"`
	Exclusivity bool     `yaml:"exclusivity"`
	Value       *float64 `yaml:"value"`
	Sport       string   `yaml:"sport"`
	Platform    string   `yaml:"platform"`
	ContentType string   `yaml:"content_type"`
}

// Result holds the counts of an import.
type Result struct {
	Athletes    int
	Profiles    int
	Brands      int
	Watchlisted int
	Signals     int
	SignalsSeen int
	Deals       int
}

// Parse decodes and validates a roster document.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	var problems []string
	athletes := make(map[string]bool, len(f.Athletes))
	for i, a := range f.Athletes {
		if strings.TrimSpace(a.Name) == "" {
			problems = append(problems, fmt.Sprintf("athletes[%d]: name is required", i))
			continue
		}
		athletes[a.Name] = true
		for j, h := range a.Handles {
			if h.Platform == "" {
				problems = append(problems, fmt.Sprintf("athletes[%d].handles[%d]: platform is required", i, j))
			}
			if h.Followers < 0 {
				problems = append(problems, fmt.Sprintf("athletes[%d].handles[%d]: followers must not be negative", i, j))
			}
		}
	}

	brands := make(map[string]bool, len(f.Brands))
	for i, b := range f.Brands {
		if strings.TrimSpace(b.Name) == "" {
			problems = append(problems, fmt.Sprintf("brands[%d]: name is required", i))
			continue
		}
		brands[b.Name] = true
		for j, s := range b.Signals {
			if s.Source == "" {
				problems = append(problems, fmt.Sprintf("brands[%d].signals[%d]: source is required", i, j))
			}
			if s.Athlete != "" && !athletes[s.Athlete] {
				problems = append(problems, fmt.Sprintf("brands[%d].signals[%d]: unknown athlete %q", i, j, s.Athlete))
			}
		}
	}

	for i, d := range f.Deals {
		if !athletes[d.Athlete] {
			problems = append(problems, fmt.Sprintf("deals[%d]: unknown athlete %q", i, d.Athlete))
		}
		if !brands[d.Brand] {
			problems = append(problems, fmt.Sprintf("deals[%d]: unknown brand %q", i, d.Brand))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid roster:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Importer writes roster documents to the store.
type Importer struct {
	db      *database.DB
	engine  *valuation.Engine
	signals *signals.Ingester
}

// NewImporter creates an importer. Follower tiers left blank in the file are
// derived from the athlete's total followers.
func NewImporter(db *database.DB) *Importer {
	return &Importer{
		db:      db,
		engine:  valuation.New(valuation.DefaultTables()),
		signals: signals.NewIngester(db),
	}
}

// ImportFile parses and imports the roster at path.
func (im *Importer) ImportFile(path string) (*Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster: %w", err)
	}
	defer fh.Close()

	f, err := Parse(fh)
	if err != nil {
		return nil, err
	}
	return im.Import(f)
}

// Import upserts athletes and brands by name. Signals already recorded for
// the same source, brand and day are skipped. Deals are appended.
func (im *Importer) Import(f *File) (*Result, error) {
	r := &Result{}
	athleteIDs := make(map[string]int64, len(f.Athletes))

	for _, a := range f.Athletes {
		id, err := im.db.UpsertAthlete(im.athleteRow(a))
		if err != nil {
			return r, fmt.Errorf("importing athlete %q: %w", a.Name, err)
		}
		athleteIDs[a.Name] = id
		r.Athletes++

		for _, h := range a.Handles {
			err := im.db.UpsertSocialProfile(database.SocialProfile{
				AthleteID:      id,
				Platform:       strings.ToLower(h.Platform),
				Handle:         optional(h.Handle),
				Followers:      h.Followers,
				EngagementRate: h.EngagementRate,
			})
			if err != nil {
				return r, fmt.Errorf("importing %s handle for %q: %w", h.Platform, a.Name, err)
			}
			r.Profiles++
		}
	}

	brandIDs := make(map[string]int64, len(f.Brands))
	for _, b := range f.Brands {
		id, err := im.db.UpsertBrand(database.Brand{
			Name:            b.Name,
			Category:        optional(b.Category),
			Status:          b.Status,
			BudgetTier:      optional(b.BudgetTier),
			SignalPlatforms: b.SignalPlatforms,
		})
		if err != nil {
			return r, fmt.Errorf("importing brand %q: %w", b.Name, err)
		}
		brandIDs[b.Name] = id
		r.Brands++

		if b.Watchlist != nil {
			if err := im.db.SetWatchlist(id, *b.Watchlist); err != nil {
				return r, fmt.Errorf("setting watchlist for %q: %w", b.Name, err)
			}
			if *b.Watchlist {
				r.Watchlisted++
			}
		}

		for _, s := range b.Signals {
			var athleteID *int64
			if s.Athlete != "" {
				aid := athleteIDs[s.Athlete]
				athleteID = &aid
			}
			out, err := im.signals.Ingest(signals.Signal{
				Type:       s.Source,
				BrandName:  b.Name,
				DetectedAt: s.DetectedAt,
				AthleteID:  athleteID,
			})
			if err != nil {
				return r, fmt.Errorf("importing signal for %q: %w", b.Name, err)
			}
			if out.Deduplicated {
				r.SignalsSeen++
				continue
			}
			r.Signals++
		}
	}

	for _, d := range f.Deals {
		_, err := im.db.InsertDeal(database.Deal{
			AthleteID:   athleteIDs[d.Athlete],
			BrandID:     brandIDs[d.Brand],
			Status:      d.Status,
			Exclusivity: d.Exclusivity,
			DealValue:   d.Value,
			Sport:       optional(d.Sport),
			Platform:    optional(d.Platform),
			ContentType: optional(d.ContentType),
		})
		if err != nil {
			return r, fmt.Errorf("importing deal %s/%s: %w", d.Athlete, d.Brand, err)
		}
		r.Deals++
	}

	log.Printf("Roster imported: %d athletes, %d handles, %d brands, %d signals (%d already seen), %d deals",
		r.Athletes, r.Profiles, r.Brands, r.Signals, r.SignalsSeen, r.Deals)
	return r, nil
}

func (im *Importer) athleteRow(a Athlete) database.Athlete {
	tier := a.FollowerTier
	if tier == "" && len(a.Handles) > 0 {
		var total int64
		for _, h := range a.Handles {
			if h.Followers > 0 {
				total += h.Followers
			}
		}
		t, _ := im.engine.FollowerTier(total)
		tier = t.Name
	}
	return database.Athlete{
		FullName:       a.Name,
		Sport:          optional(strings.ToLower(a.Sport)),
		SkillLevel:     optional(strings.ToLower(a.SkillLevel)),
		Status:         a.Status,
		Tags:           a.Tags,
		EngagementRate: a.EngagementRate,
		FollowerTier:   optional(tier),
		ValuationTier:  optional(a.ValuationTier),
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
