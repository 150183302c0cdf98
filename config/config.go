package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"vertix/crypto"
	"vertix/native/escrow"
	"vertix/native/fees"
)

// EscrowConfig carries the tunable settlement economics. The dispute grace
// window is protocol and deliberately absent here.
type EscrowConfig struct {
	PlatformFeeBps         uint32 `toml:"PlatformFeeBps"`
	CancellationPenaltyBps uint32 `toml:"CancellationPenaltyBps"`
	MinDurationSeconds     uint64 `toml:"MinDurationSeconds"`
	MaxDurationSeconds     uint64 `toml:"MaxDurationSeconds"`
	MinEscrowAmount        string `toml:"MinEscrowAmount"`
	MaxListingPrice        string `toml:"MaxListingPrice"`
	SocialMediaCap         string `toml:"SocialMediaCap"`
	OtherCap               string `toml:"OtherCap"`
}

type Config struct {
	RPCAddress             string       `toml:"RPCAddress"`
	RPCAuthToken           string       `toml:"RPCAuthToken"`
	DataDir                string       `toml:"DataDir"`
	Treasury               string       `toml:"Treasury"`
	Admins                 []string     `toml:"Admins"`
	FeeManagers            []string     `toml:"FeeManagers"`
	Arbitrators            []string     `toml:"Arbitrators"`
	AuthorizedMarketplaces []string     `toml:"AuthorizedMarketplaces"`
	Escrow                 EscrowConfig `toml:"Escrow"`
}

// Load loads the configuration from the given path, writing a commented
// default file on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	defaults := defaultEscrowConfig()
	if cfg.Escrow.MinDurationSeconds == 0 {
		cfg.Escrow.MinDurationSeconds = defaults.MinDurationSeconds
	}
	if cfg.Escrow.MaxDurationSeconds == 0 {
		cfg.Escrow.MaxDurationSeconds = defaults.MaxDurationSeconds
	}
	if strings.TrimSpace(cfg.Escrow.MinEscrowAmount) == "" {
		cfg.Escrow.MinEscrowAmount = defaults.MinEscrowAmount
	}
	if strings.TrimSpace(cfg.Escrow.MaxListingPrice) == "" {
		cfg.Escrow.MaxListingPrice = defaults.MaxListingPrice
	}
	if strings.TrimSpace(cfg.Escrow.SocialMediaCap) == "" {
		cfg.Escrow.SocialMediaCap = defaults.SocialMediaCap
	}
	if strings.TrimSpace(cfg.Escrow.OtherCap) == "" {
		cfg.Escrow.OtherCap = defaults.OtherCap
	}
}

func defaultEscrowConfig() EscrowConfig {
	limits := escrow.DefaultLimits()
	return EscrowConfig{
		PlatformFeeBps:         250,
		CancellationPenaltyBps: 500,
		MinDurationSeconds:     limits.MinDuration,
		MaxDurationSeconds:     limits.MaxDuration,
		MinEscrowAmount:        limits.MinEscrowAmount.String(),
		MaxListingPrice:        limits.MaxListingPrice.String(),
		SocialMediaCap:         limits.SocialMediaCap.String(),
		OtherCap:               limits.OtherCap.String(),
	}
}

// Validate rejects configurations that the engine would refuse at runtime.
func (c *Config) Validate() error {
	if c.Escrow.PlatformFeeBps > fees.MaxBps {
		return fmt.Errorf("config: PlatformFeeBps %d exceeds %d", c.Escrow.PlatformFeeBps, fees.MaxBps)
	}
	if c.Escrow.CancellationPenaltyBps > fees.MaxBps {
		return fmt.Errorf("config: CancellationPenaltyBps %d exceeds %d", c.Escrow.CancellationPenaltyBps, fees.MaxBps)
	}
	if c.Escrow.MinDurationSeconds == 0 || c.Escrow.MinDurationSeconds > c.Escrow.MaxDurationSeconds {
		return fmt.Errorf("config: duration bounds inverted (%d > %d)", c.Escrow.MinDurationSeconds, c.Escrow.MaxDurationSeconds)
	}
	if _, err := c.Limits(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Treasury) != "" {
		treasury, err := crypto.ParseAddress(c.Treasury)
		if err != nil {
			return fmt.Errorf("config: Treasury: %w", err)
		}
		if treasury == escrow.VaultAddress {
			return fmt.Errorf("config: Treasury must not be the escrow custody vault")
		}
	}
	for _, group := range [][]string{c.Admins, c.FeeManagers, c.Arbitrators, c.AuthorizedMarketplaces} {
		for _, addr := range group {
			if _, err := crypto.ParseAddress(addr); err != nil {
				return fmt.Errorf("config: %w", err)
			}
		}
	}
	return nil
}

// Limits converts the configured amounts into engine policy bounds.
func (c *Config) Limits() (escrow.Limits, error) {
	limits := escrow.Limits{
		MinDuration: c.Escrow.MinDurationSeconds,
		MaxDuration: c.Escrow.MaxDurationSeconds,
	}
	fields := []struct {
		name  string
		value string
		out   **big.Int
	}{
		{"MinEscrowAmount", c.Escrow.MinEscrowAmount, &limits.MinEscrowAmount},
		{"MaxListingPrice", c.Escrow.MaxListingPrice, &limits.MaxListingPrice},
		{"SocialMediaCap", c.Escrow.SocialMediaCap, &limits.SocialMediaCap},
		{"OtherCap", c.Escrow.OtherCap, &limits.OtherCap},
	}
	for _, field := range fields {
		trimmed := strings.TrimSpace(field.value)
		if trimmed == "" {
			continue
		}
		parsed, ok := new(big.Int).SetString(trimmed, 10)
		if !ok || parsed.Sign() < 0 {
			return escrow.Limits{}, fmt.Errorf("config: %s must be a non-negative decimal amount", field.name)
		}
		*field.out = parsed
	}
	return limits, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress: "127.0.0.1:8645",
		DataDir:    "./data",
		Escrow:     defaultEscrowConfig(),
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
