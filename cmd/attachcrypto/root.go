// Package main is the command-line front-end for the attachcrypto
// engine: encrypt, decrypt, and reencrypt subcommands operating on real
// files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/streamvault/attachcrypto"
)

var v = viper.New()

// appConfig holds the merged flag/env/rc-file configuration resolved in
// rootCmd's PersistentPreRunE, ahead of any subcommand running.
var appConfig Config

var rootCmd = &cobra.Command{
	Use:   "attachcrypto",
	Short: "Encrypt, decrypt, and rekey attachment ciphertext frames",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newEngine builds the Engine every subcommand runs against, logging at
// the level appConfig.LogLevel names and reading in appConfig.ChunkSize
// chunks.
func newEngine() *attachcrypto.Engine {
	return attachcrypto.NewEngine(
		attachcrypto.WithLogger(attachcrypto.NewLoggerAtLevel(appConfig.LogLevel)),
		attachcrypto.WithBufferSize(appConfig.ChunkSize),
	)
}

func init() {
	defaults := DefaultConfig()
	rootCmd.PersistentFlags().String("keystore", defaults.KeystorePath, "path to the local keystore file")
	rootCmd.PersistentFlags().String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	_ = v.BindPFlag("keystore_path", rootCmd.PersistentFlags().Lookup("keystore"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	v.SetEnvPrefix("ATTACHCRYPTO")
	v.AutomaticEnv()
	_ = v.BindEnv("chunk_size")
	v.SetConfigName(".attachcryptorc")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	_ = v.ReadInConfig() // absent config file is not an error

	rootCmd.AddCommand(encryptCmd, decryptCmd, reencryptCmd)
}

func main() {
	Execute()
}
