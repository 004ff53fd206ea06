// Package config loads the ALKANES indexer's network, fuel, storage, and
// logging configuration from YAML files and environment overrides.
//
// Version: v0.1.0
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/kungfuflex/alkanes/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for one ALKANES indexer process. It
// mirrors the YAML files under cmd/config.
type Config struct {
	Network struct {
		Name             string  `mapstructure:"name" json:"name"`
		ActivationHeight uint64  `mapstructure:"activation_height" json:"activation_height"`
		ReservedIDs      []int64 `mapstructure:"reserved_ids" json:"reserved_ids"`
	} `mapstructure:"network" json:"network"`

	Fuel struct {
		BudgetPerVByte uint64 `mapstructure:"budget_per_vbyte" json:"budget_per_vbyte"`
		BudgetFloor    uint64 `mapstructure:"budget_floor" json:"budget_floor"`
		PerMessageCap  uint64 `mapstructure:"per_message_cap" json:"per_message_cap"`
		CarryOverMax   uint64 `mapstructure:"carry_over_max" json:"carry_over_max"`
		WeightPerByte  uint64 `mapstructure:"weight_per_byte" json:"weight_per_byte"`
	} `mapstructure:"fuel" json:"fuel"`

	Storage struct {
		DBPath        string `mapstructure:"db_path" json:"db_path"`
		TraceEnabled  bool   `mapstructure:"trace_enabled" json:"trace_enabled"`
		MaxCodeBytes  int    `mapstructure:"max_code_bytes" json:"max_code_bytes"`
		MaxStackDepth int    `mapstructure:"max_stack_depth" json:"max_stack_depth"`
	} `mapstructure:"storage" json:"storage"`

	View struct {
		ListenAddr  string `mapstructure:"listen_addr" json:"listen_addr"`
		StaticFuel  uint64 `mapstructure:"static_fuel" json:"static_fuel"`
	} `mapstructure:"view" json:"view"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads cmd/config/default.yaml plus an optional per-network overlay
// named by network, merges environment overrides, and stores the result in
// AppConfig.
func Load(network string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if network != "" {
		viper.SetConfigName(network)
		if err := viper.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", network))
			}
		}
	}

	viper.SetEnvPrefix("ALKANES")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ALKANES_NETWORK environment
// variable to select the network overlay.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("ALKANES_NETWORK", "mainnet"))
}
