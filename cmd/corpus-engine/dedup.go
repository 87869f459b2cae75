// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/dedup"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Consolidate duplicate records",
	Long: `Dedup groups live records by identifier, then by normalized title
within compatible venues, elects one survivor per group, migrates missing
fields from the losers, and marks the losers merged_away. Groups whose
members carry distinct identifiers are reported as conflicts and left
untouched.`,
	RunE: runDedup,
}

func init() {
	rootCmd.AddCommand(dedupCmd)
}

func runDedup(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	resolver := dedup.New(s, cfg.Dedup, logger)
	report, err := resolver.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "dedup run %s: %d groups, %d merged away, %d conflicts, %d failed\n",
		report.RunID, report.Groups, report.MergedAway, len(report.Conflicts), report.Failed)
	for _, c := range report.Conflicts {
		fmt.Fprintf(os.Stdout, "  conflict %q: records %v carry identifiers %s\n",
			c.TitleNorm, c.RecordIDs, strings.Join(c.Identifiers, ", "))
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d merge group(s) failed", report.Failed)
	}
	return nil
}
