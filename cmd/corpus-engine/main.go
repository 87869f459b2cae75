// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the corpus-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/corpus-engine/internal/secrets"
	"github.com/pdiddy/corpus-engine/internal/store"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const defaultUserAgent = "corpus-engine/0.1"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is the process-wide structured logger, configured in the root
// command's PersistentPreRunE.
var logger zerolog.Logger

// secretDefault returns fallback when set, otherwise the secret value for
// key, otherwise empty.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the corpus-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "corpus-engine",
	Short: "Build and maintain a scored, deduplicated document corpus",
	Long: `corpus-engine ingests document candidates from discovery sources,
scores their topical relevance, consolidates duplicates, and retrieves
open-access artifacts with full provenance.

Each pipeline stage is a subcommand: discover, score, dedup, fetch, and
export. Stages are idempotent and can be re-run as new candidates arrive.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
			Level(level).With().Timestamp().Logger()

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug().Strs("keys", keys).Msg("secrets loaded")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./corpus-engine.yaml or ~/.config/corpus-engine/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (default corpus.db)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("corpus-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "corpus-engine"))
		}
	}

	viper.SetEnvPrefix("CORPUS_ENGINE")
	viper.AutomaticEnv()

	viper.SetDefault("store.db_path", "corpus.db")
	viper.SetDefault("http.user_agent", defaultUserAgent)
	viper.SetDefault("http.timeout", "60s")
	viper.SetDefault("fetch.artifacts_dir", "artifacts")
	viper.SetDefault("fetch.host_interval", "1s")
	viper.SetDefault("fetch.jitter_bound", "250ms")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// pipelineConfig assembles the stage configurations from the config file,
// environment, flags, and secrets.
func pipelineConfig() types.PipelineConfig {
	httpCfg := types.HTTPConfig{
		Timeout:   viper.GetDuration("http.timeout"),
		UserAgent: viper.GetString("http.user_agent"),
	}

	cfg := types.PipelineConfig{
		Store: types.StoreConfig{DBPath: viper.GetString("store.db_path")},
		Discovery: types.DiscoveryConfig{
			HTTPConfig:   httpCfg,
			Keywords:     viper.GetStringSlice("discovery.keywords"),
			MaxRecords:   viper.GetInt("discovery.max_records"),
			YearFrom:     viper.GetInt("discovery.year_from"),
			ContactEmail: secretDefault("contact-email", viper.GetString("discovery.contact_email")),
			SeedPages:    viper.GetStringSlice("discovery.seed_pages"),
		},
		Scoring: types.ScoringConfig{
			Keywords:       viper.GetStringSlice("scoring.keywords"),
			TitleWeight:    viper.GetFloat64("scoring.title_weight"),
			AbstractWeight: viper.GetFloat64("scoring.abstract_weight"),
		},
		Dedup: types.DedupConfig{SourceRank: viperSourceRank()},
		Fetch: types.FetchConfig{
			HTTPConfig:   httpCfg,
			RetryBudget:  viper.GetInt("fetch.retry_budget"),
			BackoffBase:  viper.GetDuration("fetch.backoff_base"),
			HostInterval: viper.GetDuration("fetch.host_interval"),
			JitterBound:  viper.GetDuration("fetch.jitter_bound"),
			Workers:      viper.GetInt("fetch.workers"),
			ArtifactsDir: viper.GetString("fetch.artifacts_dir"),
		},
		Export: types.ExportConfig{
			MinScore: viper.GetFloat64("export.min_score"),
			YearFrom: viper.GetInt("export.year_from"),
		},
	}

	// Scoring keywords default to the discovery keyword set.
	if len(cfg.Scoring.Keywords) == 0 {
		cfg.Scoring.Keywords = cfg.Discovery.Keywords
	}
	if db, _ := rootCmd.PersistentFlags().GetString("db"); db != "" {
		cfg.Store.DBPath = db
	}
	return cfg
}

func viperSourceRank() map[string]int {
	raw := viper.GetStringMap("dedup.source_rank")
	if len(raw) == 0 {
		return nil
	}
	rank := make(map[string]int, len(raw))
	for k := range raw {
		rank[k] = viper.GetInt("dedup.source_rank." + k)
	}
	return rank
}

func openStore(cfg types.PipelineConfig) (*store.Store, error) {
	s, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", cfg.Store.DBPath, err)
	}
	return s, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
