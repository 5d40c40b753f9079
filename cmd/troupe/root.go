package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/troupe/internal/cli"
	"github.com/aretw0/troupe/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "troupe",
	Short: "Troupe runs statecharts as persistent actors",
	Long: `Troupe interprets statecharts written in YAML or JSON, runs them as actors
and keeps their sessions in memory, on disk, in SQLite or in Redis.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the troupe project")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn or error")
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")
	level, err := logging.ParseLevel(raw)
	if err != nil {
		return nil, err
	}
	return logging.New(level), nil
}

// addStoreFlags registers the flags read by storeConfig.
func addStoreFlags(f *pflag.FlagSet) {
	f.String("store", cli.StoreFile, "Session store: memory, file, sqlite or redis")
	f.String("redis-addr", "localhost:6379", "Redis address (redis store)")
	f.String("redis-password", "", "Redis password (redis store)")
	f.Int("redis-db", 0, "Redis database (redis store)")
	f.Duration("redis-ttl", 0, "Expiry of saved sessions (redis store, 0 keeps them)")
	f.String("encryption-key", "", "32 byte key, hex or base64, to encrypt saved sessions (env TROUPE_ENCRYPTION_KEY)")
	f.StringSlice("mask", nil, "Regular expressions of context keys to mask before saving")
}

func storeConfig(cmd *cobra.Command) cli.StoreConfig {
	f := cmd.Flags()
	cfg := cli.StoreConfig{}
	cfg.Dir, _ = f.GetString("dir")
	cfg.Kind, _ = f.GetString("store")
	cfg.RedisAddr, _ = f.GetString("redis-addr")
	cfg.RedisPassword, _ = f.GetString("redis-password")
	cfg.RedisDB, _ = f.GetInt("redis-db")
	cfg.RedisTTL, _ = f.GetDuration("redis-ttl")
	cfg.EncryptionKey, _ = f.GetString("encryption-key")
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = strings.TrimSpace(os.Getenv("TROUPE_ENCRYPTION_KEY"))
	}
	cfg.MaskPatterns, _ = f.GetStringSlice("mask")
	return cfg
}

// projectDir returns the first argument, or --dir when there is none.
func projectDir(cmd *cobra.Command, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	dir, _ := cmd.Flags().GetString("dir")
	return dir
}
