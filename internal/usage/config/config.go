package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"

	"chalk/internal/usage/models"
)

// Config holds the per-tier quota limits the engine enforces.
type Config struct {
	// Limits per tier. models.Unlimited (-1) disables a cap.
	Limits map[models.Tier]models.LimitSet
}

// DefaultConfig returns the shipped tier table.
func DefaultConfig() *Config {
	return &Config{
		Limits: map[models.Tier]models.LimitSet{
			models.TierFree: {
				MonthlyGenerations: 10,
				MonthlyDownloads:   10,
				HourlyGenerations:  5,
			},
			models.TierPremium: {
				MonthlyGenerations: models.Unlimited,
				MonthlyDownloads:   models.Unlimited,
				HourlyGenerations:  15,
			},
		},
	}
}

type envLimits struct {
	FreeMonthlyGenerations    int `env:"QUOTA_FREE_MONTHLY_GENERATIONS" envDefault:"10"`
	FreeMonthlyDownloads      int `env:"QUOTA_FREE_MONTHLY_DOWNLOADS" envDefault:"10"`
	FreeHourlyGenerations     int `env:"QUOTA_FREE_HOURLY_GENERATIONS" envDefault:"5"`
	PremiumMonthlyGenerations int `env:"QUOTA_PREMIUM_MONTHLY_GENERATIONS" envDefault:"-1"`
	PremiumMonthlyDownloads   int `env:"QUOTA_PREMIUM_MONTHLY_DOWNLOADS" envDefault:"-1"`
	PremiumHourlyGenerations  int `env:"QUOTA_PREMIUM_HOURLY_GENERATIONS" envDefault:"15"`
}

// FromEnv builds the limit table from environment overrides, falling back
// to the shipped defaults, and validates the result.
func FromEnv() (*Config, error) {
	var e envLimits
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse quota limits from env: %w", err)
	}
	cfg := &Config{
		Limits: map[models.Tier]models.LimitSet{
			models.TierFree: {
				MonthlyGenerations: e.FreeMonthlyGenerations,
				MonthlyDownloads:   e.FreeMonthlyDownloads,
				HourlyGenerations:  e.FreeHourlyGenerations,
			},
			models.TierPremium: {
				MonthlyGenerations: e.PremiumMonthlyGenerations,
				MonthlyDownloads:   e.PremiumMonthlyDownloads,
				HourlyGenerations:  e.PremiumHourlyGenerations,
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LimitsFor returns the limit set for a tier. Unknown tiers get the free
// table, keeping lookups fail-closed.
func (c *Config) LimitsFor(tier models.Tier) models.LimitSet {
	if l, ok := c.Limits[tier]; ok {
		return l
	}
	return c.Limits[models.TierFree]
}

// Validate checks the table is usable at boot: both tiers present, every
// known tier only, every cap either non-negative or the unlimited sentinel.
func (c *Config) Validate() error {
	for _, tier := range []models.Tier{models.TierFree, models.TierPremium} {
		if _, ok := c.Limits[tier]; !ok {
			return fmt.Errorf("limits missing for tier %q", tier)
		}
	}
	for tier, l := range c.Limits {
		if !tier.IsValid() {
			return fmt.Errorf("unknown tier %q in limits table", tier)
		}
		for _, v := range []int{l.MonthlyGenerations, l.MonthlyDownloads, l.HourlyGenerations} {
			if v < models.Unlimited {
				return fmt.Errorf("invalid cap %d for tier %q: must be >= -1", v, tier)
			}
		}
	}
	return nil
}
