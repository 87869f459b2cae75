// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// TopicFile is the on-disk representation of a discovery topic: the
// keyword set and filters a corpus is built around. Keeping the topic in a
// file makes repeated discovery runs reproducible and reviewable.
type TopicFile struct {
	// Keywords drive both discovery queries and relevance scoring.
	Keywords []string `yaml:"keywords"`

	YearFrom   int      `yaml:"year_from,omitempty"`
	MaxRecords int      `yaml:"max_records,omitempty"`
	SeedPages  []string `yaml:"seed_pages,omitempty"`
}

// ReadTopicFile loads a topic definition from a YAML file.
func ReadTopicFile(path string) (*TopicFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topic file: %w", err)
	}
	var tf TopicFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing topic file: %w", err)
	}
	if len(tf.Keywords) == 0 {
		return nil, fmt.Errorf("topic file %s defines no keywords", path)
	}
	return &tf, nil
}

// Apply overlays the topic onto a discovery configuration. File values win
// over whatever the configuration already holds.
func (tf *TopicFile) Apply(cfg *types.DiscoveryConfig) {
	cfg.Keywords = tf.Keywords
	if tf.YearFrom > 0 {
		cfg.YearFrom = tf.YearFrom
	}
	if tf.MaxRecords > 0 {
		cfg.MaxRecords = tf.MaxRecords
	}
	if len(tf.SeedPages) > 0 {
		cfg.SeedPages = tf.SeedPages
	}
}
