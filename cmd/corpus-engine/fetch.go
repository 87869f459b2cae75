// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/fetch"
	"github.com/pdiddy/corpus-engine/internal/store"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Retrieve open-access artifacts for scored records",
	Long: `Fetch walks each eligible record's candidate URLs in order, retrying
transient failures with backoff and advancing past permanent ones. Retrieved
bytes are hashed, stored once per distinct content, and committed together
with full provenance. Requests to the same host are paced.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Int("limit", 0, "maximum records to fetch this run (0 = all)")
	fetchCmd.Flags().Int("workers", 0, "concurrent fetch workers (default 4)")
	fetchCmd.Flags().String("artifacts-dir", "", "directory for stored artifacts")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Fetch.Workers = workers
	}
	if dir, _ := cmd.Flags().GetString("artifacts-dir"); dir != "" {
		cfg.Fetch.ArtifactsDir = dir
	}
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	sink := store.NewFSArtifactSink(cfg.Fetch.ArtifactsDir)
	engine := fetch.New(s, sink, cfg.Fetch, nil, logger)
	report, err := engine.Run(cmd.Context(), limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "fetch run %s: %d fetched, %d failed, %d skipped, %d attempts\n",
		report.RunID, report.Fetched, report.Failed, report.Skipped, report.Attempts)
	for _, d := range report.Duplicates {
		fmt.Fprintf(os.Stdout, "  duplicate artifact: record %d matches record %d (sha256 %s)\n",
			d.RecordID, d.DuplicateOf, d.ContentHash)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stdout, "  failed: record %d after %d attempt(s): %s\n", f.RecordID, f.Attempts, f.Err)
	}
	if report.HasFailures() {
		return fmt.Errorf("%d record(s) failed fetching", report.Failed)
	}
	return nil
}
