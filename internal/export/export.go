// Package export writes rate cards, open matches and deal intel to an XLSX
// workbook for pricing and partnerships staff.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/nilintel/internal/database"
)

// Sheet names, in workbook order.
const (
	SheetRateCards = "Rate Cards"
	SheetMatches   = "Matches"
	SheetDealIntel = "Deal Intel"
)

// Options limits the row counts of the list sheets.
type Options struct {
	Sport       string
	MatchLimit  int
	IntelLimit  int
	GeneratedAt string
}

// Counts reports how many data rows each sheet received.
type Counts struct {
	RateCards int
	Matches   int
	DealIntel int
}

var nowFunc = time.Now

type sheet struct {
	name    string
	headers []string
	rows    [][]any
}

// Write builds the workbook and writes it to w.
func Write(db *database.DB, w io.Writer, opts Options) (*Counts, error) {
	if opts.MatchLimit <= 0 {
		opts.MatchLimit = 500
	}
	if opts.IntelLimit <= 0 {
		opts.IntelLimit = 500
	}
	if opts.GeneratedAt == "" {
		opts.GeneratedAt = database.GetToday()
	}

	sheets, counts, err := load(db, opts)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"13294B"}},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return nil, fmt.Errorf("renaming default sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("creating sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s, header); err != nil {
			return nil, fmt.Errorf("writing sheet %s: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)
	f.SetDocProps(&excelize.DocProperties{
		Title:   "NIL market intelligence " + opts.GeneratedAt,
		Creator: "nilintel",
	})

	if _, err := f.WriteTo(w); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return counts, nil
}

// SaveFile writes the workbook to path.
func SaveFile(db *database.DB, path string, opts Options) (*Counts, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	counts, err := Write(db, f, opts)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", path, cerr)
	}
	return counts, err
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return os.Create(path)
}

func load(db *database.DB, opts Options) ([]sheet, *Counts, error) {
	cards, err := db.GetRateCards(opts.Sport)
	if err != nil {
		return nil, nil, fmt.Errorf("loading rate cards: %w", err)
	}
	matches, err := db.GetOpenMatchSummaries(database.FormatTime(nowFunc()), opts.MatchLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("loading matches: %w", err)
	}
	intel, err := db.GetRecentDealIntel(opts.IntelLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("loading deal intel: %w", err)
	}

	rc := sheet{
		name: SheetRateCards,
		headers: []string{"Sport", "Platform", "Content Type", "Follower Tier", "Engagement Tier",
			"Rate Low", "Rate Median", "Rate High", "Samples", "Updated"},
	}
	for _, c := range cards {
		rc.rows = append(rc.rows, []any{c.Sport, c.Platform, c.ContentType, c.FollowerTier, c.EngagementTier,
			c.RateLow, c.RateMedian, c.RateHigh, c.SampleSize, deref(c.UpdatedAt)})
	}

	ms := sheet{
		name:    SheetMatches,
		headers: []string{"Match ID", "Athlete", "Brand", "Score", "Status", "Expires"},
	}
	for _, m := range matches {
		ms.rows = append(ms.rows, []any{m.ID, m.AthleteName, m.BrandName, m.MatchScore, m.Status, deref(m.ExpiresAt)})
	}

	di := sheet{
		name: SheetDealIntel,
		headers: []string{"Found", "Source", "Title", "URL", "Brand", "Athlete", "Amount Low", "Amount High",
			"Sport", "Confidence", "Reviewed"},
	}
	for _, d := range intel {
		di.rows = append(di.rows, []any{d.CreatedAt, d.SourceType, deref(d.SourceTitle), d.SourceURL,
			deref(d.BrandName), deref(d.AthleteName), amount(d.AmountLow), amount(d.AmountHigh),
			deref(d.Sport), d.ExtractionConfidence, d.Reviewed})
	}

	counts := &Counts{RateCards: len(rc.rows), Matches: len(ms.rows), DealIntel: len(di.rows)}
	return []sheet{rc, ms, di}, counts, nil
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	headers := make([]any, len(s.headers))
	for i, h := range s.headers {
		headers[i] = h
	}
	if err := f.SetSheetRow(s.name, "A1", &headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(s.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(s.headers))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(s.name, "A", lastCol, 16); err != nil {
		return err
	}
	return f.SetPanes(s.name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// amount leaves the cell empty rather than writing 0 for a missing value.
func amount(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
