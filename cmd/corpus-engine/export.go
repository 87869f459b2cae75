// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a filtered view of the corpus as JSONL or CSV",
	Long: `Export writes every record that was not merged away, ordered by
relevance score then year, optionally filtered by a minimum score and a
publication-year floor. JSONL carries the full record; CSV a flat summary.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("format", "jsonl", "output format: jsonl or csv")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	exportCmd.Flags().Float64("min-score", 0, "exclude records scoring below this value")
	exportCmd.Flags().Int("year-from", 0, "exclude records published before this year")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	if minScore, _ := cmd.Flags().GetFloat64("min-score"); minScore > 0 {
		cfg.Export.MinScore = minScore
	}
	if yearFrom, _ := cmd.Flags().GetInt("year-from"); yearFrom > 0 {
		cfg.Export.YearFrom = yearFrom
	}
	formatName, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := export.Run(cmd.Context(), s, cfg.Export, format, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d record(s)\n", n)
	return nil
}
