// Package config loads server settings from environment variables and the
// optional economy tuning file (economy.yaml).
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetEnv returns the value of an environment variable or a fallback.
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Economy holds the tunable coin amounts and caps of the economy core.
type Economy struct {
	DailyBonusAmount           int64 `yaml:"daily_bonus_amount"`
	ReferrerRewardOnSignup     int64 `yaml:"referrer_reward_on_signup"`
	ReferredRewardOnSignup     int64 `yaml:"referred_reward_on_signup"`
	FirstPurchaseBonusReferrer int64 `yaml:"first_purchase_bonus_referrer"`
	FirstPurchaseBonusReferred int64 `yaml:"first_purchase_bonus_referred"`
	MaxReferralsPerMonth       int   `yaml:"max_referrals_per_month"`
	ReferralExpiryDays         int   `yaml:"referral_expiry_days"`
}

// DefaultEconomy returns the built-in reward amounts, used when no economy
// file is present.
func DefaultEconomy() Economy {
	return Economy{
		DailyBonusAmount:           5,
		ReferrerRewardOnSignup:     3,
		ReferredRewardOnSignup:     3,
		FirstPurchaseBonusReferrer: 10,
		FirstPurchaseBonusReferred: 10,
		MaxReferralsPerMonth:       10,
		ReferralExpiryDays:         30,
	}
}

// LoadEconomy reads the economy tuning file at path and merges it over the
// defaults. A missing file is not an error; a malformed one is.
func LoadEconomy(path string) (Economy, error) {
	cfg := DefaultEconomy()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading economy config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing economy config: %w", err)
	}

	if cfg.DailyBonusAmount < 0 || cfg.ReferrerRewardOnSignup < 0 || cfg.ReferredRewardOnSignup < 0 ||
		cfg.FirstPurchaseBonusReferrer < 0 || cfg.FirstPurchaseBonusReferred < 0 {
		return cfg, fmt.Errorf("economy config: reward amounts must not be negative")
	}

	return cfg, nil
}

// AdminIDs parses the comma-separated ADMIN_IDS style value into a set of
// account ids granted the admin capability.
func AdminIDs(raw string) map[string]bool {
	ids := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id != "" {
			ids[id] = true
		}
	}
	return ids
}
