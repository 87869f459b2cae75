// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/discover"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Pull candidate metadata from discovery sources",
	Long: `Discover queries the configured sources (OpenAlex, Crossref, seed
pages) with the topic keywords, normalizes the results, and inserts new
candidate records. Candidates whose identifier or normalized title is
already in the corpus are skipped, so repeated runs converge.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().String("topic-file", "", "YAML topic file with keywords and filters")
	discoverCmd.Flags().StringSlice("keywords", nil, "topic keywords (overrides config)")
	discoverCmd.Flags().StringSlice("sources", []string{"openalex", "crossref"}, "sources to query: openalex, crossref, seedpage")
	discoverCmd.Flags().StringSlice("seed-page", nil, "HTML listing page to harvest (implies the seedpage source)")
	discoverCmd.Flags().Int("max-records", 0, "maximum candidates per source")
	discoverCmd.Flags().Int("year-from", 0, "skip candidates published before this year")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	if keywords, _ := cmd.Flags().GetStringSlice("keywords"); len(keywords) > 0 {
		cfg.Discovery.Keywords = keywords
	}
	if maxRecords, _ := cmd.Flags().GetInt("max-records"); maxRecords > 0 {
		cfg.Discovery.MaxRecords = maxRecords
	}
	if yearFrom, _ := cmd.Flags().GetInt("year-from"); yearFrom > 0 {
		cfg.Discovery.YearFrom = yearFrom
	}
	if pages, _ := cmd.Flags().GetStringSlice("seed-page"); len(pages) > 0 {
		cfg.Discovery.SeedPages = pages
	}
	if topicPath, _ := cmd.Flags().GetString("topic-file"); topicPath != "" {
		tf, err := discover.ReadTopicFile(topicPath)
		if err != nil {
			return err
		}
		tf.Apply(&cfg.Discovery)
	}
	if len(cfg.Discovery.Keywords) == 0 && len(cfg.Discovery.SeedPages) == 0 {
		return fmt.Errorf("no keywords configured: set --keywords, --topic-file, or discovery.keywords in the config")
	}

	names, _ := cmd.Flags().GetStringSlice("sources")
	if len(cfg.Discovery.SeedPages) > 0 && !contains(names, "seedpage") {
		names = append(names, "seedpage")
	}
	client := &http.Client{Timeout: cfg.Discovery.Timeout}
	sources, err := buildSources(names, client)
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	runner := discover.NewRunner(s, sources, cfg.Discovery, logger)
	report, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "discover run %s: %d inserted, %d skipped, %d failed\n",
		report.RunID, report.Inserted, report.Skipped, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d candidate(s) failed ingestion", report.Failed)
	}
	return nil
}

func buildSources(names []string, client *http.Client) ([]discover.Source, error) {
	var sources []discover.Source
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "openalex":
			sources = append(sources, &discover.OpenAlexSource{Client: client})
		case "crossref":
			sources = append(sources, &discover.CrossrefSource{
				Client:   client,
				APIToken: secretDefault("crossref-api-token", ""),
			})
		case "seedpage":
			sources = append(sources, &discover.SeedPageSource{Client: client})
		default:
			return nil, fmt.Errorf("unknown discovery source %q", name)
		}
	}
	return sources, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
