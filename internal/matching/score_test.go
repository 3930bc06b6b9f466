package matching

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func rate(f float64) *float64 { return &f }

func TestWeights(t *testing.T) {
	Convey("The default weights", t, func() {
		w := DefaultWeights()

		Convey("Sum to exactly one", func() {
			So(w.Sum(), ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("Weight a perfect breakdown to one", func() {
			b := Breakdown{1, 1, 1, 1, 1, 1, 1}
			So(w.Total(b), ShouldAlmostEqual, 1.0, 1e-12)
		})
	})
}

func TestCategoryScore(t *testing.T) {
	Convey("Category affinity", t, func() {
		Convey("A missing brand category is neutral-low", func() {
			So(CategoryScore("", "basketball", nil), ShouldEqual, 0.3)
			So(CategoryScore("   ", "basketball", nil), ShouldEqual, 0.3)
		})

		Convey("A category naming the sport is a direct match in either direction", func() {
			So(CategoryScore("Basketball", "basketball", nil), ShouldEqual, 1.0)
			So(CategoryScore("basketball gear", "Basketball", nil), ShouldEqual, 1.0)
			So(CategoryScore("track", "track and field", nil), ShouldEqual, 1.0)
		})

		Convey("An empty sport never produces a direct match", func() {
			So(CategoryScore("gaming", "", nil), ShouldEqual, 0.4)
		})

		Convey("Sports-adjacent categories beat tags", func() {
			So(CategoryScore("Athletic Apparel", "soccer", []string{"apparel"}), ShouldEqual, 0.7)
			So(CategoryScore("energy drinks", "tennis", nil), ShouldEqual, 0.7)
		})

		Convey("Tag overlap scores 0.6", func() {
			So(CategoryScore("Luxury Watches", "soccer", []string{"watches"}), ShouldEqual, 0.6)
		})

		Convey("Empty tags are ignored", func() {
			So(CategoryScore("insurance", "soccer", []string{""}), ShouldEqual, 0.2)
		})

		Convey("Lifestyle categories score 0.4", func() {
			So(CategoryScore("Fashion", "golf", nil), ShouldEqual, 0.4)
			So(CategoryScore("consumer tech", "golf", nil), ShouldEqual, 0.4)
		})

		Convey("Anything else scores 0.2", func() {
			So(CategoryScore("banking", "golf", []string{"music"}), ShouldEqual, 0.2)
		})
	})
}

func TestPlatformScore(t *testing.T) {
	Convey("Platform overlap", t, func() {
		Convey("No brand platforms is neutral", func() {
			So(PlatformScore([]string{"instagram"}, nil), ShouldEqual, 0.5)
		})

		Convey("No athlete platforms scores 0.2", func() {
			So(PlatformScore(nil, []string{"instagram"}), ShouldEqual, 0.2)
		})

		Convey("The score is the share of brand platforms covered", func() {
			So(PlatformScore([]string{"instagram"}, []string{"instagram", "tiktok"}), ShouldEqual, 0.5)
			So(PlatformScore([]string{"Instagram", "tiktok", "x"}, []string{"instagram", "tiktok"}), ShouldEqual, 1.0)
			So(PlatformScore([]string{"youtube"}, []string{"instagram", "tiktok"}), ShouldEqual, 0.0)
		})
	})
}

func TestEngagementScore(t *testing.T) {
	Convey("Engagement relative to the tier average", t, func() {
		Convey("A missing or zero rate is neutral", func() {
			So(EngagementScore(nil, "micro"), ShouldEqual, 0.5)
			So(EngagementScore(rate(0), "micro"), ShouldEqual, 0.5)
		})

		Convey("Ratios are bucketed", func() {
			So(EngagementScore(rate(6.0), "micro"), ShouldEqual, 1.0)
			So(EngagementScore(rate(4.0), "micro"), ShouldEqual, 0.7)
			So(EngagementScore(rate(3.0), "micro"), ShouldEqual, 0.5)
			So(EngagementScore(rate(1.0), "micro"), ShouldEqual, 0.3)
		})

		Convey("A missing tier is treated as micro", func() {
			So(EngagementScore(rate(4.0), ""), ShouldEqual, 0.7)
		})

		Convey("An unknown tier uses a 3.0 average", func() {
			So(EngagementScore(rate(4.5), "superstar"), ShouldEqual, 1.0)
			So(EngagementScore(rate(3.0), "superstar"), ShouldEqual, 0.7)
		})

		Convey("Elite athletes are held to a lower average", func() {
			So(EngagementScore(rate(2.25), "elite"), ShouldEqual, 1.0)
		})
	})
}

func TestAvailabilityScore(t *testing.T) {
	Convey("Availability", t, func() {
		So(AvailabilityScore(true, 0), ShouldEqual, 0.0)
		So(AvailabilityScore(true, 5), ShouldEqual, 0.0)
		So(AvailabilityScore(false, 4), ShouldEqual, 0.5)
		So(AvailabilityScore(false, 3), ShouldEqual, 1.0)
		So(AvailabilityScore(false, 0), ShouldEqual, 1.0)
	})
}

func TestBudgetScore(t *testing.T) {
	Convey("Budget fit by tier distance", t, func() {
		So(BudgetScore("mid", "mid"), ShouldEqual, 1.0)
		So(BudgetScore("mid", "Established"), ShouldEqual, 0.7)
		So(BudgetScore("micro", "mid"), ShouldEqual, 0.4)
		So(BudgetScore("nano", "elite"), ShouldEqual, 0.2)

		Convey("Missing or unknown tiers are neutral", func() {
			So(BudgetScore("", "mid"), ShouldEqual, 0.5)
			So(BudgetScore("mid", ""), ShouldEqual, 0.5)
			So(BudgetScore("enterprise", "mid"), ShouldEqual, 0.5)
		})
	})
}

func TestScore(t *testing.T) {
	Convey("Given a strong basketball pairing", t, func() {
		p := Pair{
			BrandCategory:    "basketball",
			BrandBudgetTier:  "mid",
			BrandPlatforms:   []string{"instagram", "tiktok"},
			AthleteSport:     "basketball",
			AthletePlatforms: []string{"instagram", "tiktok"},
			EngagementRate:   rate(5.0),
			FollowerTier:     "mid",
			ValuationTier:    "mid",
		}
		b := Score(p)

		Convey("Placeholders are fixed", func() {
			So(b.Content, ShouldEqual, PlaceholderContent)
			So(b.Demo, ShouldEqual, PlaceholderDemo)
		})

		Convey("The total is the weighted sum", func() {
			So(DefaultWeights().Total(b), ShouldAlmostEqual, 0.85, 1e-9)
			So(roundScore(DefaultWeights().Total(b)), ShouldEqual, 0.85)
		})

		Convey("An exclusive deal elsewhere zeroes availability", func() {
			p.HasExclusiveDeal = true
			So(Score(p).Availability, ShouldEqual, 0.0)
			So(DefaultWeights().Total(Score(p)), ShouldAlmostEqual, 0.75, 1e-9)
		})
	})
}
