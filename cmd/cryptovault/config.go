package main

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/btcdanaindiaoff-arch/CryptoVault-Wallet/vault"
)

// Config is read from CRYPTOVAULT_* environment variables, with an optional
// .env file for local development.
type Config struct {
	StorePath      string `envconfig:"STORE_PATH" default:"./cryptovault.db"`
	AccessPolicy   string `envconfig:"ACCESS_POLICY" default:"unlocked+biometric-or-passcode"`
	MaxAttempts    int    `envconfig:"MAX_ATTEMPTS" default:"5"`
	LockoutMinutes int    `envconfig:"LOCKOUT_MINUTES" default:"5"`
	Verbose        bool   `envconfig:"VERBOSE" default:"false"`
}

func loadConfig() (Config, error) {
	_ = godotenv.Load() // missing .env is fine

	var cfg Config
	if err := envconfig.Process("CRYPTOVAULT", &cfg); err != nil {
		return Config{}, fmt.Errorf("process config: %w", err)
	}
	return cfg, nil
}

func (c Config) unlockPolicy() vault.UnlockPolicy {
	policy := vault.DefaultUnlockPolicy()
	if c.MaxAttempts > 0 {
		policy.MaxAttempts = c.MaxAttempts
	}
	if c.LockoutMinutes > 0 {
		policy.LockoutWindow = time.Duration(c.LockoutMinutes) * time.Minute
	}
	return policy
}
