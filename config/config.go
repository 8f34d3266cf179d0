// Package config loads cmd/lendingd's TOML runtime configuration: the
// daemon-level surface (listen addresses, operator key, telemetry) plus the
// per-market risk/fee tables native/lending.Config describes.
package config

import (
	"encoding/hex"
	"os"

	"github.com/BurntSushi/toml"

	"nhblend/crypto"
	"nhblend/native/lending"
)

// Config is cmd/lendingd's top-level configuration file.
type Config struct {
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	OperatorKey    string `toml:"OperatorKey"`
	Environment    string `toml:"Environment"`

	OTELEndpoint string `toml:"OTELEndpoint"`
	OTELInsecure bool   `toml:"OTELInsecure"`

	Global Global `toml:"global"`

	// Markets maps a market id to its governance-controlled risk and fee
	// parameters, mirroring native/lending.Config per market.
	Markets map[string]lending.Config `toml:"markets"`
}

// Load reads path, generating a default operator key and writing it back
// if one was omitted.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	for id, mkt := range cfg.Markets {
		mkt.EnsureDefaults()
		cfg.Markets[id] = mkt
	}
	if err := ValidateConfig(cfg.Global); err != nil {
		return nil, err
	}

	if cfg.OperatorKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.OperatorKey = hex.EncodeToString(key.Bytes())

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MetricsAddress: ":9090",
		DataDir:        "./lendingd-data",
		OperatorKey:    hex.EncodeToString(key.Bytes()),
		Global: Global{
			Governance: Governance{QuorumBPS: 5000, PassThresholdBPS: 5000, VotingPeriodSecs: MinVotingPeriodSeconds},
			Oracle:     OracleDefaults{MaxAgeBlocks: 50, MaxDeviationBps: 500},
			Events:     EventExport{BatchSize: 256, FlushInterval: 30},
		},
		Markets: map[string]lending.Config{},
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
