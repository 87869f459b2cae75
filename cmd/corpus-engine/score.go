// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/discover"
	"github.com/pdiddy/corpus-engine/internal/score"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute relevance scores for all live records",
	Long: `Score matches every live record's title and abstract against the
topic keywords and writes a relevance score in [0, 1] together with the
keywords that matched. Scores are recomputed from scratch, so re-running
after a keyword change rescores the whole corpus.`,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().String("topic-file", "", "YAML topic file with keywords")
	scoreCmd.Flags().StringSlice("keywords", nil, "topic keywords (overrides config)")
	scoreCmd.Flags().Float64("title-weight", 0, "title match weight (default 0.8)")
	scoreCmd.Flags().Float64("abstract-weight", 0, "abstract match weight (default 0.2)")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	if keywords, _ := cmd.Flags().GetStringSlice("keywords"); len(keywords) > 0 {
		cfg.Scoring.Keywords = keywords
	}
	if topicPath, _ := cmd.Flags().GetString("topic-file"); topicPath != "" {
		tf, err := discover.ReadTopicFile(topicPath)
		if err != nil {
			return err
		}
		cfg.Scoring.Keywords = tf.Keywords
	}
	if w, _ := cmd.Flags().GetFloat64("title-weight"); w > 0 {
		cfg.Scoring.TitleWeight = w
	}
	if w, _ := cmd.Flags().GetFloat64("abstract-weight"); w > 0 {
		cfg.Scoring.AbstractWeight = w
	}
	if len(cfg.Scoring.Keywords) == 0 {
		return fmt.Errorf("no keywords configured: set --keywords, --topic-file, or scoring.keywords in the config")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	runner := score.NewRunner(s, score.New(cfg.Scoring), logger)
	report, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "score run %s: %d scored, %d failed\n", report.RunID, report.Scored, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d record(s) failed scoring", report.Failed)
	}
	return nil
}
