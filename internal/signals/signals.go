// Package signals ingests brand activity signals. Each signal is keyed by a
// fingerprint of its type, brand, source URL and detection date, so the same
// sighting reported twice is stored once.
package signals

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/nilintel/internal/database"
)

var (
	ErrMissingType      = errors.New("signal_type is required")
	ErrMissingBrand     = errors.New("brand_name is required")
	ErrInvalidTimestamp = errors.New("detected_at is not a valid timestamp")
	ErrInvalidRawData   = errors.New("raw_data is not valid JSON")
)

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// Signal is one observation of a brand doing NIL activity.
type Signal struct {
	Type       string          `json:"signal_type"`
	BrandName  string          `json:"brand_name"`
	SourceURL  string          `json:"source_url,omitempty"`
	RawData    json.RawMessage `json:"raw_data,omitempty"`
	DetectedAt string          `json:"detected_at,omitempty"`
	AthleteID  *int64          `json:"athlete_id,omitempty"`
}

// Outcome reports what Ingest did with a signal.
type Outcome struct {
	SignalID     int64 `json:"signal_id"`
	BrandID      int64 `json:"brand_id,omitempty"`
	NewBrand     bool  `json:"is_new_brand"`
	Deduplicated bool  `json:"deduplicated"`
}

// Fingerprint returns the hex SHA-256 of type, brand, URL and the
// YYYY-MM-DD detection date.
func Fingerprint(signalType, brandName, sourceURL, detectedDate string) string {
	sum := sha256.Sum256([]byte(signalType + brandName + sourceURL + detectedDate))
	return hex.EncodeToString(sum[:])
}

// Ingester writes signals to the store.
type Ingester struct {
	db  *database.DB
	now func() time.Time
}

// NewIngester creates an ingester.
func NewIngester(db *database.DB) *Ingester {
	return &Ingester{db: db, now: time.Now}
}

// Ingest validates s, skips it when its fingerprint is already stored, and
// otherwise resolves the brand by name (creating it if unknown) and stores
// the signal.
func (in *Ingester) Ingest(s Signal) (*Outcome, error) {
	s.Type = strings.TrimSpace(s.Type)
	s.BrandName = strings.TrimSpace(s.BrandName)
	if s.Type == "" {
		return nil, ErrMissingType
	}
	if s.BrandName == "" {
		return nil, ErrMissingBrand
	}
	if len(s.RawData) > 0 && !json.Valid(s.RawData) {
		return nil, ErrInvalidRawData
	}

	detected := in.now().UTC()
	if s.DetectedAt != "" {
		t, err := parseTimestamp(s.DetectedAt)
		if err != nil {
			return nil, err
		}
		detected = t
	}

	fp := Fingerprint(s.Type, s.BrandName, s.SourceURL, detected.Format("2006-01-02"))
	existing, err := in.db.GetBrandSignalByFingerprint(fp)
	if err != nil {
		return nil, fmt.Errorf("checking fingerprint: %w", err)
	}
	if existing != nil {
		return &Outcome{SignalID: existing.ID, BrandID: existing.BrandID, Deduplicated: true}, nil
	}

	brandID, created, err := in.db.ResolveBrand(s.BrandName)
	if err != nil {
		return nil, fmt.Errorf("resolving brand %q: %w", s.BrandName, err)
	}

	row := database.BrandSignal{
		BrandID:     brandID,
		AthleteID:   s.AthleteID,
		Source:      s.Type,
		Fingerprint: &fp,
		DetectedAt:  database.FormatTime(detected),
	}
	if s.SourceURL != "" {
		row.SourceURL = &s.SourceURL
	}
	if len(s.RawData) > 0 {
		raw := string(s.RawData)
		row.RawData = &raw
	}

	id, inserted, err := in.db.InsertBrandSignal(row)
	if err != nil {
		return nil, fmt.Errorf("storing signal: %w", err)
	}
	if !inserted {
		return &Outcome{SignalID: id, BrandID: brandID, NewBrand: created, Deduplicated: true}, nil
	}

	log.WithFields(log.Fields{"brand": s.BrandName, "type": s.Type, "new_brand": created}).Debug("signal ingested")
	return &Outcome{SignalID: id, BrandID: brandID, NewBrand: created}, nil
}

func parseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, v)
}
