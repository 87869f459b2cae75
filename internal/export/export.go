// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes filtered views of the corpus for downstream tools.
// JSONL carries the full record; CSV carries a flat summary suitable for
// spreadsheets.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Repository is the narrow store contract export depends on.
type Repository interface {
	// ListForExport returns every record that was not merged away.
	ListForExport(ctx context.Context) ([]*types.Record, error)
}

// Format selects the output encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jsonl", "":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q (jsonl or csv)", name)
	}
}

// Run writes the filtered corpus to w and returns the number of records
// written. Records are ordered by relevance score descending, then year
// descending, then id for stability.
func Run(ctx context.Context, repo Repository, cfg types.ExportConfig, format Format, w io.Writer) (int, error) {
	records, err := repo.ListForExport(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing records for export: %w", err)
	}

	filtered := records[:0:0]
	for _, rec := range records {
		if cfg.MinScore > 0 && (rec.RelevanceScore == nil || *rec.RelevanceScore < cfg.MinScore) {
			continue
		}
		if cfg.YearFrom > 0 && rec.Year > 0 && rec.Year < cfg.YearFrom {
			continue
		}
		filtered = append(filtered, rec)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		si, sj := scoreOf(filtered[i]), scoreOf(filtered[j])
		if si != sj {
			return si > sj
		}
		if filtered[i].Year != filtered[j].Year {
			return filtered[i].Year > filtered[j].Year
		}
		return filtered[i].ID < filtered[j].ID
	})

	switch format {
	case FormatCSV:
		err = writeCSV(filtered, w)
	default:
		err = writeJSONL(filtered, w)
	}
	if err != nil {
		return 0, err
	}
	return len(filtered), nil
}

func scoreOf(rec *types.Record) float64 {
	if rec.RelevanceScore == nil {
		return -1
	}
	return *rec.RelevanceScore
}

func writeJSONL(records []*types.Record, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record %d: %w", rec.ID, err)
		}
	}
	return nil
}

var csvHeader = []string{
	"id", "identifier", "title", "venue", "authors", "year",
	"source", "relevance_score", "status", "storage_ref",
}

func writeCSV(records []*types.Record, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, rec := range records {
		score := ""
		if rec.RelevanceScore != nil {
			score = strconv.FormatFloat(*rec.RelevanceScore, 'f', 4, 64)
		}
		year := ""
		if rec.Year > 0 {
			year = strconv.Itoa(rec.Year)
		}
		storageRef := ""
		if rec.Artifact != nil {
			storageRef = rec.Artifact.StorageRef
		}
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Identifier,
			rec.Title,
			rec.Venue,
			strings.Join(rec.Authors, "; "),
			year,
			rec.Source,
			score,
			string(rec.Status),
			storageRef,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row for record %d: %w", rec.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
