package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/nilintel/internal/database"
)

const (
	MatchLimit  = 10
	ListLimit   = 20
	IntelWindow = 48 * time.Hour
	DealWindow  = 24 * time.Hour
)

var linkEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

// Composer builds the daily digest from open matches, unreviewed deal intel
// and recently created deals.
type Composer struct {
	db  *database.DB
	now func() time.Time
}

// NewComposer creates a new digest composer.
func NewComposer(db *database.DB) *Composer {
	return &Composer{db: db, now: time.Now}
}

// Compose builds the digest for the current UTC date and stores it,
// replacing any digest already stored for that date.
func (c *Composer) Compose() (*database.Digest, error) {
	now := c.now().UTC()

	matches, err := c.db.GetOpenMatchSummaries(database.FormatTime(now), MatchLimit)
	if err != nil {
		return nil, fmt.Errorf("loading open matches: %w", err)
	}
	intel, err := c.db.GetUnreviewedDealIntelSince(database.FormatTime(now.Add(-IntelWindow)), ListLimit)
	if err != nil {
		return nil, fmt.Errorf("loading deal intel: %w", err)
	}
	deals, err := c.db.GetDealSummariesSince(database.FormatTime(now.Add(-DealWindow)), ListLimit)
	if err != nil {
		return nil, fmt.Errorf("loading deals: %w", err)
	}

	d := database.Digest{
		DigestDate:   now.Format("2006-01-02"),
		TLDR:         tldr(matches, intel, deals),
		BodyMarkdown: assembleBody(matches, intel, deals),
		TopMatches:   len(matches),
		DealIntel:    len(intel),
		RecentDeals:  len(deals),
		GeneratedAt:  database.FormatTime(now),
	}
	if err := c.db.UpsertDigest(d); err != nil {
		return nil, fmt.Errorf("storing digest: %w", err)
	}
	log.Printf("Digest composed for %s: %d matches, %d deal intel, %d deals",
		d.DigestDate, d.TopMatches, d.DealIntel, d.RecentDeals)

	return c.db.GetDigest(d.DigestDate)
}

// Markdown renders a stored digest as one document.
func Markdown(d *database.Digest) string {
	return fmt.Sprintf("# NIL Digest %s\n\n%s\n\n---\n\n%s\n", d.DigestDate, d.TLDR, d.BodyMarkdown)
}

func tldr(matches []database.MatchSummary, intel []database.DealIntel, deals []database.DealSummary) string {
	if len(matches) == 0 && len(intel) == 0 && len(deals) == 0 {
		return "- Nothing new today."
	}

	var bullets []string
	if len(matches) > 0 {
		top := matches[0]
		bullets = append(bullets, fmt.Sprintf("- %s open, best is %s x %s at %.2f",
			english.Plural(len(matches), "match", "matches"), top.AthleteName, top.BrandName, top.MatchScore))
	}
	if len(intel) > 0 {
		bullets = append(bullets, fmt.Sprintf("- %s to review", english.Plural(len(intel), "deal intel record", "")))
	}
	if len(deals) > 0 {
		bullets = append(bullets, fmt.Sprintf("- %s created in the last 24 hours", english.Plural(len(deals), "deal", "")))
	}
	return strings.Join(bullets, "\n")
}

func assembleBody(matches []database.MatchSummary, intel []database.DealIntel, deals []database.DealSummary) string {
	var matchLines []string
	for _, m := range matches {
		matchLines = append(matchLines, fmt.Sprintf("- **%s** x **%s**: %.2f (%s)", m.AthleteName, m.BrandName, m.MatchScore, m.Status))
	}

	var intelLines []string
	for _, d := range intel {
		title := d.SourceURL
		if d.SourceTitle != nil && *d.SourceTitle != "" {
			title = *d.SourceTitle
		}
		line := fmt.Sprintf("- [%s](%s)", linkEscaper.Replace(title), d.SourceURL)

		var details []string
		if d.BrandName != nil {
			details = append(details, "brand "+*d.BrandName)
		}
		if d.AthleteName != nil {
			details = append(details, "athlete "+*d.AthleteName)
		}
		if amount := formatRange(d.AmountLow, d.AmountHigh); amount != "" {
			details = append(details, amount)
		}
		if len(details) > 0 {
			line += ": " + strings.Join(details, ", ")
		}
		intelLines = append(intelLines, line)
	}

	var dealLines []string
	for _, d := range deals {
		value := "undisclosed"
		if d.DealValue != nil {
			value = "$" + humanize.Comma(int64(*d.DealValue))
		}
		dealLines = append(dealLines, fmt.Sprintf("- %s / %s: %s (%s)", d.AthleteName, d.BrandName, value, d.Status))
	}

	sections := []string{
		section("Top Matches", matchLines),
		section("Deal Intel to Review", intelLines),
		section("Recent Deals", dealLines),
	}
	return strings.Join(sections, "\n\n---\n\n")
}

func section(title string, lines []string) string {
	if len(lines) == 0 {
		return fmt.Sprintf("## %s\n\n_None._", title)
	}
	return fmt.Sprintf("## %s\n\n%s", title, strings.Join(lines, "\n"))
}

func formatRange(low, high *float64) string {
	switch {
	case low == nil && high == nil:
		return ""
	case low == nil:
		return "$" + humanize.Comma(int64(*high))
	case high == nil || *high == *low:
		return "$" + humanize.Comma(int64(*low))
	default:
		return fmt.Sprintf("$%s-$%s", humanize.Comma(int64(*low)), humanize.Comma(int64(*high)))
	}
}
