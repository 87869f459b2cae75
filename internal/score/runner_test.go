// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

type fakeRepo struct {
	records []*types.Record
	scores  map[int64]float64
	failOn  map[int64]bool
}

func (f *fakeRepo) ListEligibleForScoring(ctx context.Context) ([]*types.Record, error) {
	return f.records, nil
}

func (f *fakeRepo) UpdateScore(ctx context.Context, id int64, score float64, keywordsFound []string) error {
	if f.failOn[id] {
		return fmt.Errorf("locked")
	}
	if f.scores == nil {
		f.scores = make(map[int64]float64)
	}
	f.scores[id] = score
	return nil
}

func TestRunnerScoresAllLiveRecords(t *testing.T) {
	repo := &fakeRepo{records: []*types.Record{
		{ID: 1, TitleNorm: "passive sonar detection"},
		{ID: 2, TitleNorm: "unrelated gardening tips"},
	}}
	scorer := New(types.ScoringConfig{Keywords: []string{"sonar"}})
	runner := NewRunner(repo, scorer, zerolog.Nop())

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scored)
	assert.Equal(t, 0, report.Failed)

	assert.Greater(t, repo.scores[1], 0.0)
	assert.Equal(t, 0.0, repo.scores[2], "non-matching records still get an explicit zero score")
}

func TestRunnerToleratesWriteFailures(t *testing.T) {
	repo := &fakeRepo{
		records: []*types.Record{{ID: 1, TitleNorm: "a"}, {ID: 2, TitleNorm: "b"}},
		failOn:  map[int64]bool{1: true},
	}
	runner := NewRunner(repo, New(types.ScoringConfig{}), zerolog.Nop())

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scored)
	assert.Equal(t, 1, report.Failed)
}
