package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/nilintel/internal/config"
	"github.com/TobiSchelling/nilintel/internal/database"
	"github.com/TobiSchelling/nilintel/internal/digest"
	"github.com/TobiSchelling/nilintel/internal/export"
	"github.com/TobiSchelling/nilintel/internal/matching"
	"github.com/TobiSchelling/nilintel/internal/metrics"
	"github.com/TobiSchelling/nilintel/internal/pipeline"
	"github.com/TobiSchelling/nilintel/internal/roster"
	"github.com/TobiSchelling/nilintel/internal/server"
	"github.com/TobiSchelling/nilintel/internal/valuation"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "nilintel",
	Short:   "NIL market intelligence",
	Long:    "nilintel values athletes, aggregates rate cards, matches athletes to brands, and mines public NIL deal reports.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level, err := log.ParseLevel(cfg.Logging.Level)
		if err != nil {
			level = log.InfoLevel
		}
		if verbose {
			level = log.DebugLevel
			log.SetReportCaller(true)
		}
		log.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(rateCardsCmd)
	rootCmd.AddCommand(valuateCmd)
	rootCmd.AddCommand(calcCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("nilintel", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/nilintel/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure search queries, credentials, and matching thresholds.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n\n", database.GetToday())
		fmt.Println("Roster:")
		fmt.Printf("  Athletes: %d (%d active)\n", stats.Athletes, stats.ActiveAthletes)
		fmt.Printf("  Brands: %d\n", stats.Brands)
		fmt.Printf("  Deals: %d\n", stats.Deals)
		fmt.Printf("  Brand signals: %d\n", stats.Signals)
		fmt.Println("\nIntelligence:")
		fmt.Printf("  Deal intel records: %d (%d unreviewed)\n", stats.DealIntel, stats.UnreviewedIntel)
		fmt.Printf("  Rate cards: %d\n", stats.RateCards)
		fmt.Printf("  Valuations: %d\n", stats.Valuations)
		fmt.Printf("  Matches: %d (%d protected)\n", stats.Matches, stats.ProtectedMatches)
		fmt.Printf("  Digests: %d\n", stats.Digests)
		if stats.LastScrapeRun != nil {
			fmt.Printf("  Last harvest: %s\n", *stats.LastScrapeRun)
		}
		return nil
	},
}

// --- job commands ---

var harvestQueries []string

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Search public sources for NIL deal reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(p *pipeline.Pipeline) error {
			res, err := p.Harvest(context.Background(), harvestQueries)
			if err != nil {
				return err
			}
			fmt.Println("Harvest complete:")
			fmt.Printf("  Queries run: %d\n", res.QueriesRun)
			fmt.Printf("  Results found: %d\n", res.RecordsFound)
			fmt.Printf("  New records: %d\n", res.RecordsIngested)
			fmt.Printf("  Duplicates skipped: %d\n", res.DuplicatesSkipped)
			fmt.Printf("  Articles enriched: %d\n", res.Enriched)
			for _, e := range res.Errors {
				fmt.Printf("  Error (%s): %s\n", e.Query, e.Error)
			}
			return nil
		})
	},
}

var lookbackDays int

var rateCardsCmd = &cobra.Command{
	Use:   "ratecards",
	Short: "Rebuild rate cards from recent deals and deal intel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(p *pipeline.Pipeline) error {
			res, err := p.BuildRateCards(lookbackDays)
			if err != nil {
				return err
			}
			fmt.Println("Rate cards rebuilt:")
			fmt.Printf("  Observations: %d\n", res.Observations)
			fmt.Printf("  Groups: %d\n", res.GroupsProcessed)
			fmt.Printf("  Cards updated: %d\n", res.CardsUpdated)
			fmt.Printf("  Below minimum sample: %d\n", res.CardsSkipped)
			return nil
		})
	},
}

var valuateAthlete int64

var valuateCmd = &cobra.Command{
	Use:   "valuate",
	Short: "Store today's valuation snapshot for active athletes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(p *pipeline.Pipeline) error {
			res, err := p.Valuate(valuateAthlete)
			if err != nil {
				return err
			}
			fmt.Println("Valuations complete:")
			fmt.Printf("  Athletes processed: %d\n", res.AthletesProcessed)
			fmt.Printf("  Updated: %d\n", res.ValuationsUpdated)
			fmt.Printf("  Skipped: %d\n", res.Skipped)
			fmt.Printf("  Failed: %d\n", res.Failed)
			return nil
		})
	},
}

var (
	matchAthlete   int64
	matchBrand     int64
	matchBatchSize int
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score athlete/brand pairs and refresh suggested matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(p *pipeline.Pipeline) error {
			res, err := p.Match(matching.Scope{AthleteID: matchAthlete, BrandID: matchBrand}, matchBatchSize)
			if err != nil {
				return err
			}
			fmt.Println("Matching complete:")
			fmt.Printf("  Expired: %d\n", res.Expired)
			fmt.Printf("  Brands: %d\n", res.BrandsProcessed)
			fmt.Printf("  Athletes: %d\n", res.AthletesEvaluated)
			fmt.Printf("  Pairs scored: %d\n", res.PairsScored)
			fmt.Printf("  Filtered: %d, protected: %d, below threshold: %d\n",
				res.Filtered, res.Protected, res.BelowThreshold)
			fmt.Printf("  Matches upserted: %d\n", res.MatchesUpserted)
			return nil
		})
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Compose and print today's digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(p *pipeline.Pipeline) error {
			d, err := p.ComposeDigest()
			if err != nil {
				return err
			}
			fmt.Print(digest.Markdown(d))
			return nil
		})
	},
}

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every job: harvest -> ratecards -> valuations -> matching -> digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(p *pipeline.Pipeline) error {
			var result *pipeline.Result
			if dryRun {
				result = p.DryRun()
			} else {
				result = p.Run(context.Background())
			}

			for i, step := range result.Steps {
				fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
				if step.Err != nil {
					fmt.Printf("  Error: %v\n", step.Err)
				} else {
					fmt.Printf("  %s\n", step.Summary)
				}
			}

			if !dryRun {
				fmt.Println("\nPipeline complete! Run 'nilintel serve' to view the digest.")
			}
			if result.Failed() {
				cmd.SilenceUsage = true
				return errors.New("one or more steps failed")
			}
			return nil
		})
	},
}

func init() {
	harvestCmd.Flags().StringSliceVarP(&harvestQueries, "query", "q", nil, "Search query (repeatable, overrides config)")
	rateCardsCmd.Flags().IntVar(&lookbackDays, "lookback-days", 0, "Override the observation window (days)")
	valuateCmd.Flags().Int64Var(&valuateAthlete, "athlete", 0, "Only value this athlete ID")
	matchCmd.Flags().Int64Var(&matchAthlete, "athlete", 0, "Only score this athlete ID")
	matchCmd.Flags().Int64Var(&matchBrand, "brand", 0, "Only score this brand ID")
	matchCmd.Flags().IntVar(&matchBatchSize, "batch-size", 0, "Override the upsert batch size")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// --- calc command ---

var (
	calcSport      string
	calcSkill      string
	calcHandles    []string
	calcEngagement float64
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Estimate an athlete's annual NIL value",
	Example: "  nilintel calc --sport basketball --skill d1_starter --handle instagram:200000:7.5 --handle tiktok:50000",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := valuation.Input{Sport: calcSport, SkillLevel: calcSkill}
		for _, raw := range calcHandles {
			h, err := parseHandle(raw)
			if err != nil {
				return err
			}
			in.Handles = append(in.Handles, h)
		}
		if cmd.Flags().Changed("engagement") {
			in.EngagementRate = &calcEngagement
		}

		engine := valuation.New(valuation.DefaultTables())
		if !engine.KnownSport(in.Sport) {
			return fmt.Errorf("unknown sport %q", in.Sport)
		}
		if !engine.KnownSkill(in.SkillLevel) {
			return fmt.Errorf("unknown skill level %q", in.SkillLevel)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rows, err := db.GetRateCards(strings.ToLower(in.Sport))
		if err != nil {
			return fmt.Errorf("loading rate cards: %w", err)
		}
		res := engine.Compute(in, valuation.CardsFromRateCards(rows, valuation.EngagementTier(in.EngagementRate)))

		fmt.Printf("Estimated annual value: $%s - $%s\n", humanize.Comma(res.AnnualLow), humanize.Comma(res.AnnualHigh))
		fmt.Printf("Follower tier: %s (%s total)\n", res.FollowerTier, humanize.Comma(res.TotalFollowers))
		fmt.Printf("Percentile: %d\n", res.Percentile)
		if len(res.PerPostRates) > 0 {
			fmt.Println("\nPer-post rates:")
			for _, r := range res.PerPostRates {
				fmt.Printf("  %s %s: $%s - $%s\n", r.Platform, r.ContentType,
					humanize.Commaf(r.RateLow), humanize.Commaf(r.RateHigh))
			}
		}
		fmt.Println("\nDrivers:")
		for _, d := range res.Drivers {
			fmt.Printf("  [%s] %s\n", d.Direction, d.Label)
		}
		return nil
	},
}

func init() {
	calcCmd.Flags().StringVar(&calcSport, "sport", "", "Sport, e.g. basketball")
	calcCmd.Flags().StringVar(&calcSkill, "skill", "", "Skill level, e.g. d1_starter")
	calcCmd.Flags().StringArrayVar(&calcHandles, "handle", nil, "platform:followers[:engagement_rate] (repeatable)")
	calcCmd.Flags().Float64Var(&calcEngagement, "engagement", 0, "Overall engagement rate in percent")
	calcCmd.MarkFlagRequired("sport")
	calcCmd.MarkFlagRequired("skill")
}

// parseHandle parses "platform:followers[:rate]".
func parseHandle(raw string) (valuation.Handle, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return valuation.Handle{}, fmt.Errorf("invalid handle %q, want platform:followers[:rate]", raw)
	}
	followers, err := strconv.ParseInt(strings.ReplaceAll(parts[1], ",", ""), 10, 64)
	if err != nil || followers < 0 {
		return valuation.Handle{}, fmt.Errorf("invalid follower count in %q", raw)
	}
	h := valuation.Handle{Platform: strings.ToLower(parts[0]), Followers: followers}
	if len(parts) == 3 {
		rate, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || rate < 0 || rate > 100 {
			return valuation.Handle{}, fmt.Errorf("invalid engagement rate in %q", raw)
		}
		h.EngagementRate = &rate
	}
	return h, nil
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cfg, db, metrics.New())
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- export / import ---

var (
	exportOut   string
	exportSport string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write rate cards, open matches, and deal intel to an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		out := exportOut
		if out == "" {
			out = filepath.Join(cfg.GetDataDir(), "exports", "nilintel-"+database.GetToday()+".xlsx")
		}
		counts, err := export.SaveFile(db, out, export.Options{Sport: exportSport})
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", out)
		fmt.Printf("  Rate cards: %d\n  Matches: %d\n  Deal intel: %d\n",
			counts.RateCards, counts.Matches, counts.DealIntel)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [roster.yaml]",
	Short: "Import athletes, brands, signals, and deals from a YAML roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := roster.NewImporter(db).ImportFile(args[0])
		if err != nil {
			return err
		}
		fmt.Println("Import complete:")
		fmt.Printf("  Athletes: %d (%d handles)\n", res.Athletes, res.Profiles)
		fmt.Printf("  Brands: %d (%d watchlisted)\n", res.Brands, res.Watchlisted)
		fmt.Printf("  Signals: %d\n", res.Signals)
		if res.SignalsSeen > 0 {
			fmt.Printf("  Signals already seen: %d\n", res.SignalsSeen)
		}
		fmt.Printf("  Deals: %d\n", res.Deals)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output path (default: data dir)")
	exportCmd.Flags().StringVar(&exportSport, "sport", "", "Only export rate cards for this sport")
}

func withPipeline(fn func(p *pipeline.Pipeline) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(pipeline.New(cfg, db, nil))
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "nilintel.db")
	return database.Open(dbPath)
}
