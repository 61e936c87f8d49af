package main

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds the ambient configuration the CLI loads from flags,
// environment variables (ATTACHCRYPTO_*), or an optional rc file,
// grounded on the teacher pack's viper+mapstructure config layer.
type Config struct {
	KeystorePath string `mapstructure:"keystore_path"`
	LogLevel     string `mapstructure:"log_level"`
	ChunkSize    int    `mapstructure:"chunk_size"`
}

// DefaultConfig returns the CLI's baseline configuration.
func DefaultConfig() Config {
	return Config{
		KeystorePath: "attachcrypto.keystore",
		LogLevel:     "info",
		ChunkSize:    32 * 1024,
	}
}

// loadConfig decodes viper's merged flag/env/file state into a Config
// using mapstructure, the same decode path the teacher pack's FSIM
// params use.
func loadConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}
