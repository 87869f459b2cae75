// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Repository is the narrow store contract the scoring pass depends on.
type Repository interface {
	// ListEligibleForScoring returns every live record. Scoring recomputes
	// scores from scratch, so already-scored records are included.
	ListEligibleForScoring(ctx context.Context) ([]*types.Record, error)

	// UpdateScore persists the score and matched keywords, promoting
	// metadata_only records to scored without regressing later statuses.
	UpdateScore(ctx context.Context, id int64, score float64, keywordsFound []string) error
}

// Runner applies a Scorer to every live record.
type Runner struct {
	repo   Repository
	scorer *Scorer
	logger zerolog.Logger
}

func NewRunner(repo Repository, scorer *Scorer, logger zerolog.Logger) *Runner {
	return &Runner{repo: repo, scorer: scorer, logger: logger}
}

// Run recomputes the relevance score of every live record. A write failure
// on one record is tallied and the pass continues.
func (r *Runner) Run(ctx context.Context) (types.ScoreReport, error) {
	report := types.ScoreReport{RunID: uuid.NewString()}

	records, err := r.repo.ListEligibleForScoring(ctx)
	if err != nil {
		return report, fmt.Errorf("listing records for scoring: %w", err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		value, keywords := r.scorer.Score(rec)
		if err := r.repo.UpdateScore(ctx, rec.ID, value, keywords); err != nil {
			r.logger.Warn().Err(err).Int64("record", rec.ID).Msg("score write failed")
			report.Failed++
			continue
		}
		report.Scored++
	}

	r.logger.Info().Str("run", report.RunID).Int("scored", report.Scored).Int("failed", report.Failed).Msg("scoring pass complete")
	return report, nil
}
