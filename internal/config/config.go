package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// EnvPrefix is the prefix for environment overrides, e.g.
// NILINTEL_MATCHING__BATCH_SIZE=200.
const EnvPrefix = "NILINTEL_"

type Config struct {
	DealIntel DealIntel `yaml:"deal_intel"`
	RateCards RateCards `yaml:"rate_cards"`
	Valuation Valuation `yaml:"valuation"`
	Matching  Matching  `yaml:"matching"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type DealIntel struct {
	Provider          string       `yaml:"provider"`
	Queries           []string     `yaml:"queries"`
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	FetchArticles     bool         `yaml:"fetch_articles"`
	FetchTimeoutSecs  int          `yaml:"fetch_timeout_seconds"`
	Google            GoogleSearch `yaml:"google"`
	Feed              FeedSearch   `yaml:"feed"`
}

type GoogleSearch struct {
	BaseURL      string `yaml:"base_url"`
	APIKeyEnv    string `yaml:"api_key_env"`
	EngineIDEnv  string `yaml:"engine_id_env"`
	Num          int    `yaml:"num"`
	DateRestrict string `yaml:"date_restrict"`
}

type FeedSearch struct {
	URLTemplate string `yaml:"url_template"`
	MaxItems    int    `yaml:"max_items"`
}

type RateCards struct {
	LookbackDays int `yaml:"lookback_days"`
	MinSamples   int `yaml:"min_samples"`
}

type Valuation struct {
	ComparableLimit        int `yaml:"comparable_limit"`
	ComparableLookbackDays int `yaml:"comparable_lookback_days"`
}

type Matching struct {
	BatchSize        int     `yaml:"batch_size"`
	AthleteLimit     int     `yaml:"athlete_limit"`
	BrandLimit       int     `yaml:"brand_limit"`
	MinScore         float64 `yaml:"min_score"`
	ExpiryDays       int     `yaml:"expiry_days"`
	SignalWindowDays int     `yaml:"signal_window_days"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port              int    `yaml:"port"`
	CronSecretEnv     string `yaml:"cron_secret_env"`
	CalculatorPerHour int    `yaml:"calculator_per_hour"`
	CalculatorBurst   int    `yaml:"calculator_burst"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for nilintel.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "nilintel")
}

// DataDir returns the XDG data directory for nilintel.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "nilintel")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/nilintel/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'nilintel init' to create a default config",
		xdgConfig,
	)
}

// Load reads a config YAML file and layers NILINTEL_* environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config populated with built-in defaults only.
func Defaults() *Config {
	return &Config{
		DealIntel: DealIntel{
			Provider:          "google",
			RequestsPerSecond: 1,
			FetchTimeoutSecs:  15,
			Google: GoogleSearch{
				BaseURL:      "https://www.googleapis.com/customsearch/v1",
				APIKeyEnv:    "GOOGLE_CUSTOM_SEARCH_KEY",
				EngineIDEnv:  "GOOGLE_SEARCH_ENGINE_ID",
				Num:          10,
				DateRestrict: "d7",
			},
			Feed: FeedSearch{
				URLTemplate: "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en",
				MaxItems:    20,
			},
		},
		RateCards: RateCards{LookbackDays: 180, MinSamples: 3},
		Valuation: Valuation{ComparableLimit: 10, ComparableLookbackDays: 180},
		Matching: Matching{
			BatchSize:        100,
			AthleteLimit:     500,
			BrandLimit:       50,
			MinScore:         0.30,
			ExpiryDays:       30,
			SignalWindowDays: 30,
		},
		Server: Server{
			Port:              8000,
			CronSecretEnv:     "CRON_SECRET",
			CalculatorPerHour: 10,
			CalculatorBurst:   10,
		},
		Logging: Logging{Level: "INFO"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays NILINTEL_<SECTION>__<KEY> variables onto cfg. Keys not
// present in the environment keep their current values.
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	provider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(provider, nil); err != nil {
		return err
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	return k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"})
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
