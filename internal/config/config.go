// Package config defines service configuration and its defaults.
package config

import (
	"fmt"
	"time"

	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Environment is the deployment name. "development" exposes error details.
	Environment string `koanf:"environment"`

	// Addr configures the HTTP listen address, e.g. ":3000".
	Addr string `koanf:"addr"`

	// AdminToken guards /api/admin. Empty leaves the admin routes unmounted.
	AdminToken string `koanf:"admin_token"`

	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// RegistryPath is the enrolled participants JSON document.
	RegistryPath string `koanf:"registry_path"`

	// RegistryWatch reloads the registry when the file changes.
	RegistryWatch bool `koanf:"registry_watch"`

	// TestModeSize caps the cohort when a request asks for test mode.
	TestModeSize int `koanf:"test_mode_size"`

	// WorkerCount sets the number of cohort pass workers.
	WorkerCount int `koanf:"worker_count"`

	// UnitTimeoutMS bounds one participant's fetch and score in a cohort pass.
	UnitTimeoutMS int `koanf:"unit_timeout_ms"`

	FetchTimeoutMS   int     `koanf:"fetch_timeout_ms"`
	FetchRatePerSec  float64 `koanf:"fetch_rate_per_sec"`
	FetchBurst       int     `koanf:"fetch_burst"`
	FetchCacheSize   int     `koanf:"fetch_cache_size"`
	FetchCacheTTLSec int     `koanf:"fetch_cache_ttl_sec"`
	UserAgent        string  `koanf:"user_agent"`

	// GameKeywords mark a profile card as a game when found in its title.
	GameKeywords []string `koanf:"game_keywords"`

	// CompletionBaseline is the item count that counts as fully complete.
	CompletionBaseline int `koanf:"completion_baseline"`

	// LeaderboardSize caps the cohort report leaderboard.
	LeaderboardSize int `koanf:"leaderboard_size"`

	Scoring Scoring `koanf:"scoring"`
}

// Scoring mirrors scoring.Policy with plain keys.
type Scoring struct {
	PointsPerBadge   map[string]int `koanf:"points_per_badge"`
	PointsPerGame    map[string]int `koanf:"points_per_game"`
	TotalBadgeTarget int            `koanf:"total_badge_target"`
	TotalGameTarget  int            `koanf:"total_game_target"`
}

// New returns a Config with defaults.
func New() *Config {
	p := scoring.DefaultPolicy()
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Environment:        "production",
		Addr:               ":3000",
		MetricsNamespace:   "boostcalc",
		MetricsSubsystem:   "engine",
		RegistryPath:       "config/enrolledParticipants.json",
		RegistryWatch:      true,
		TestModeSize:       30,
		WorkerCount:        8,
		UnitTimeoutMS:      30_000,
		FetchTimeoutMS:     15_000,
		FetchRatePerSec:    5,
		FetchBurst:         5,
		FetchCacheSize:     512,
		FetchCacheTTLSec:   300,
		UserAgent:          "Mozilla/5.0 (compatible; boostcalc/1.0)",
		GameKeywords:       []string{"arcade", "trivia", "game", "level"},
		CompletionBaseline: 20,
		LeaderboardSize:    10,
		Scoring: Scoring{
			PointsPerBadge:   weights(p.PointsPerBadge),
			PointsPerGame:    weights(p.PointsPerGame),
			TotalBadgeTarget: p.TotalBadgeTarget,
			TotalGameTarget:  p.TotalGameTarget,
		},
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MetricsNamespace == "":
		return fmt.Errorf("%w: metrics_namespace must not be empty", ErrInvalidConfig)
	case c.RegistryPath == "":
		return fmt.Errorf("%w: registry_path must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.TestModeSize <= 0:
		return fmt.Errorf("%w: test_mode_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.UnitTimeoutMS <= 0 || c.FetchTimeoutMS <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.FetchRatePerSec < 0 || c.FetchBurst < 0 || c.FetchCacheSize < 0 || c.FetchCacheTTLSec < 0:
		return fmt.Errorf("%w: fetch limits must not be negative", ErrInvalidConfig)
	case c.CompletionBaseline <= 0:
		return fmt.Errorf("%w: completion_baseline must be positive", ErrInvalidConfig)
	case c.LeaderboardSize < 0:
		return fmt.Errorf("%w: leaderboard_size must not be negative", ErrInvalidConfig)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Policy converts the scoring section into a scoring.Policy.
func (c *Config) Policy() scoring.Policy {
	return scoring.Policy{
		PointsPerBadge:   difficulties(c.Scoring.PointsPerBadge),
		PointsPerGame:    difficulties(c.Scoring.PointsPerGame),
		TotalBadgeTarget: c.Scoring.TotalBadgeTarget,
		TotalGameTarget:  c.Scoring.TotalGameTarget,
	}
}

func (c *Config) UnitTimeout() time.Duration {
	return time.Duration(c.UnitTimeoutMS) * time.Millisecond
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

func (c *Config) FetchCacheTTL() time.Duration {
	return time.Duration(c.FetchCacheTTLSec) * time.Second
}

func weights(in map[model.Difficulty]int) map[string]int {
	out := make(map[string]int, len(in))
	for d, w := range in {
		out[string(d)] = w
	}
	return out
}

func difficulties(in map[string]int) map[model.Difficulty]int {
	out := make(map[model.Difficulty]int, len(in))
	for d, w := range in {
		out[model.Difficulty(d)] = w
	}
	return out
}
