// Package dealintel harvests NIL deal mentions from web search results and
// stores them as unreviewed deal intel.
package dealintel

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	maxAmount      = 100_000_000
	minPlainAmount = 100
	extractedMax   = 4
)

var (
	millionRe  = regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d{1,2})?)\s*(?:million|mil|m\b)`)
	thousandRe = regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d{1,2})?)\s*(?:thousand|k\b)`)
	plainRe    = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{1,2})?)`)

	brandRe = regexp.MustCompile(
		`\b(?:with|signs? with|partners? with|by)\s+([A-Z][A-Za-z\s&'.]+?)(?:\s+(?:for|in|on|to|NIL|deal|partnership|signs?)|\.|,|$)`)

	athleteRe = regexp.MustCompile(
		`(?:athlete|star|player|(\b[A-Z][a-z]+\s[A-Z][a-z]+\b))(?:\s+(?:signs?|lands?|secures?|gets?))`)
)

type sportKeywords struct {
	sport    string
	keywords []string
}

// Checked in order; the first sport with a matching keyword wins.
var sportTable = []sportKeywords{
	{"basketball", []string{"basketball", "hoops", "ncaa basketball"}},
	{"football", []string{"football", "quarterback", "wide receiver", "ncaa football"}},
	{"volleyball", []string{"volleyball"}},
	{"gymnastics", []string{"gymnastics", "gymnast"}},
	{"soccer", []string{"soccer"}},
	{"softball", []string{"softball"}},
	{"baseball", []string{"baseball"}},
	{"swimming", []string{"swimming", "swimmer"}},
	{"track", []string{"track", "track and field", "sprinter"}},
	{"tennis", []string{"tennis"}},
}

// Fields are the facts pulled out of a piece of text. Empty strings and nil
// amounts mean the field was not found.
type Fields struct {
	BrandName   string
	AthleteName string
	AmountLow   *float64
	AmountHigh  *float64
	Sport       string
	Confidence  float64
}

// Count returns how many of brand, athlete, amount and sport were found.
func (f Fields) Count() int {
	n := 0
	if f.BrandName != "" {
		n++
	}
	if f.AthleteName != "" {
		n++
	}
	if f.AmountLow != nil {
		n++
	}
	if f.Sport != "" {
		n++
	}
	return n
}

// Merge fills fields missing from f with values from other and recomputes
// the confidence.
func (f Fields) Merge(other Fields) Fields {
	if f.BrandName == "" {
		f.BrandName = other.BrandName
	}
	if f.AthleteName == "" {
		f.AthleteName = other.AthleteName
	}
	if f.AmountLow == nil {
		f.AmountLow, f.AmountHigh = other.AmountLow, other.AmountHigh
	}
	if f.Sport == "" {
		f.Sport = other.Sport
	}
	f.Confidence = confidence(f.Count())
	return f
}

// Extractor turns free text into structured deal fields.
type Extractor interface {
	Extract(text string) Fields
}

// RegexExtractor is a keyword and pattern based Extractor. It is best-effort:
// its output is meant for human triage.
type RegexExtractor struct{}

// NewRegexExtractor creates a RegexExtractor.
func NewRegexExtractor() RegexExtractor {
	return RegexExtractor{}
}

// Extract implements Extractor.
func (RegexExtractor) Extract(text string) Fields {
	f := Fields{
		BrandName:   ExtractBrand(text),
		AthleteName: ExtractAthlete(text),
		Sport:       ExtractSport(text),
	}
	f.AmountLow, f.AmountHigh = ExtractAmount(text)
	f.Confidence = confidence(f.Count())
	return f
}

// ExtractAmount finds dollar amounts in three passes: millions, then
// thousands, then plain amounts. The first pass that yields an amount in
// [$1, $100M) wins; out-of-range matches fall through to the next pass.
// Plain amounts below $100 are ignored as noise. low and high are the
// smallest and largest amounts found by the winning pass.
func ExtractAmount(text string) (low, high *float64) {
	var amounts []float64
	for _, p := range amountPasses {
		if amounts = scanAmounts(text, p.re, p.scale, p.floor); len(amounts) > 0 {
			break
		}
	}
	if len(amounts) == 0 {
		return nil, nil
	}

	sort.Float64s(amounts)
	lo, hi := amounts[0], amounts[len(amounts)-1]
	return &lo, &hi
}

var amountPasses = []struct {
	re           *regexp.Regexp
	scale, floor float64
}{
	{millionRe, 1_000_000, 0},
	{thousandRe, 1_000, 0},
	{plainRe, 1, minPlainAmount},
}

func scanAmounts(text string, re *regexp.Regexp, scale, floor float64) []float64 {
	var amounts []float64
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		v = math.Round(v * scale)
		if v > 0 && v >= floor && v < maxAmount {
			amounts = append(amounts, v)
		}
	}
	return amounts
}

// ExtractSport returns the first sport whose keywords appear in text.
func ExtractSport(text string) string {
	lower := strings.ToLower(text)
	for _, s := range sportTable {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				return s.sport
			}
		}
	}
	return ""
}

// ExtractBrand returns the capitalized phrase after "with", "signs with",
// "partners with" or "by".
func ExtractBrand(text string) string {
	m := brandRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ExtractAthlete returns a "Firstname Lastname" directly followed by a verb
// such as signs, lands, secures or gets.
func ExtractAthlete(text string) string {
	for _, m := range athleteRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			return m[1]
		}
	}
	return ""
}

func confidence(count int) float64 {
	c := float64(count) / extractedMax
	if c > 1 {
		return 1
	}
	return c
}
