package config

// Package config loads a node's TOML configuration file: the keypair it
// signs as, its role, whether it should seed a fresh genesis block, and
// where its embedded store lives.

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/viper"

	"synnergychain/core"
	"synnergychain/pkg/utils"
)

// NodeType enumerates the two roles a configured node may take.
type NodeType string

const (
	NodeTypeFullnode  NodeType = "fullnode"
	NodeTypeValidator NodeType = "validator"
)

// Config is a node's on-disk TOML configuration.
type Config struct {
	Public       string   `mapstructure:"public"`
	Secret       string   `mapstructure:"secret"`
	NodeType     NodeType `mapstructure:"node_type"`
	GenesisBlock bool     `mapstructure:"genesis_block"`
	DBPath       string   `mapstructure:"dbpath"`
}

// AppConfig holds the most recently loaded configuration.
var AppConfig Config

// Load reads the TOML file at path, validates it, and derives the node's
// keypair from its secret. A mismatch between the declared public address
// and the one derived from secret is fatal — a corrupted or edited config
// file must never let a node run under the wrong identity.
func Load(path string) (*Config, core.Keypair, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("toml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, core.Keypair{}, utils.Wrap(err, "load config")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, core.Keypair{}, utils.Wrap(err, "unmarshal config")
	}

	if cfg.NodeType != NodeTypeFullnode && cfg.NodeType != NodeTypeValidator {
		return nil, core.Keypair{}, fmt.Errorf("config: node_type must be %q or %q, got %q", NodeTypeFullnode, NodeTypeValidator, cfg.NodeType)
	}
	if cfg.DBPath == "" {
		return nil, core.Keypair{}, fmt.Errorf("config: dbpath is required")
	}

	seed, err := hex.DecodeString(cfg.Secret)
	if err != nil {
		return nil, core.Keypair{}, fmt.Errorf("config: secret is not valid hex: %w", err)
	}
	kp, err := core.NewKeypairFromSeed(seed)
	if err != nil {
		return nil, core.Keypair{}, fmt.Errorf("config: derive keypair from secret: %w", err)
	}
	if string(kp.Address()) != cfg.Public {
		return nil, core.Keypair{}, fmt.Errorf("config: public %q does not match the address derived from secret (%q)", cfg.Public, kp.Address())
	}

	AppConfig = cfg
	return &cfg, kp, nil
}

// DefaultPath returns the config file path an operator should be pointed at
// when no explicit --config flag is given: the SYNN_CONFIG environment
// variable if set, otherwise "config.toml" in the working directory.
func DefaultPath() string {
	return utils.EnvOrDefault("SYNN_CONFIG", "config.toml")
}
