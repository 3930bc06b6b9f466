package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.DealIntel.Queries) == 0 {
		t.Error("expected deal intel queries to be populated")
	}
	if cfg.DealIntel.Provider != "google" {
		t.Errorf("expected provider 'google', got %q", cfg.DealIntel.Provider)
	}
	if cfg.RateCards.MinSamples != 3 {
		t.Errorf("expected min_samples 3, got %d", cfg.RateCards.MinSamples)
	}
	if cfg.Matching.MinScore != 0.30 {
		t.Errorf("expected min_score 0.30, got %v", cfg.Matching.MinScore)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
deal_intel:
  provider: feed
matching:
  batch_size: 25
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.DealIntel.Provider != "feed" {
		t.Errorf("expected provider 'feed', got %q", cfg.DealIntel.Provider)
	}
	if cfg.Matching.BatchSize != 25 {
		t.Errorf("expected batch_size 25, got %d", cfg.Matching.BatchSize)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Matching.AthleteLimit != 500 {
		t.Errorf("expected default athlete_limit 500, got %d", cfg.Matching.AthleteLimit)
	}
	if cfg.RateCards.LookbackDays != 180 {
		t.Errorf("expected default lookback_days 180, got %d", cfg.RateCards.LookbackDays)
	}
	if cfg.DealIntel.Google.APIKeyEnv != "GOOGLE_CUSTOM_SEARCH_KEY" {
		t.Errorf("expected default api_key_env, got %q", cfg.DealIntel.Google.APIKeyEnv)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := parse([]byte("matching: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.DealIntel.Queries) != 4 {
		t.Errorf("expected 4 queries from file, got %d", len(cfg.DealIntel.Queries))
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	t.Setenv("NILINTEL_MATCHING__BATCH_SIZE", "40")
	t.Setenv("NILINTEL_DEAL_INTEL__PROVIDER", "feed")
	t.Setenv("NILINTEL_RATE_CARDS__LOOKBACK_DAYS", "90")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Matching.BatchSize != 40 {
		t.Errorf("expected batch_size 40 from env, got %d", cfg.Matching.BatchSize)
	}
	if cfg.DealIntel.Provider != "feed" {
		t.Errorf("expected provider 'feed' from env, got %q", cfg.DealIntel.Provider)
	}
	if cfg.RateCards.LookbackDays != 90 {
		t.Errorf("expected lookback_days 90 from env, got %d", cfg.RateCards.LookbackDays)
	}
	// Untouched values survive the overlay
	if cfg.Matching.AthleteLimit != 500 {
		t.Errorf("expected athlete_limit 500, got %d", cfg.Matching.AthleteLimit)
	}
	if len(cfg.DealIntel.Queries) != 4 {
		t.Errorf("expected queries to survive env overlay, got %d", len(cfg.DealIntel.Queries))
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
