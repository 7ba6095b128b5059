// Package config loads the engine's YAML configuration and centralizes the
// on-disk path layout shared by segment, partition, topic and meta.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultDataPath is used when Config.DataPath is left empty.
const defaultDataPath = "data"

// defaultSegmentSize is the rollover threshold in bytes when Segment.Size is
// left at zero.
const defaultSegmentSize = 16 * 1024 * 1024

// defaultNumPartitions is the default partition count for newly created
// topics when Topic.NumPartitions is left at zero.
const defaultNumPartitions = 1

// Segment holds segment-related tunables.
type Segment struct {
	Size uint64 `yaml:"size"`
}

// Topic holds topic-related tunables.
type Topic struct {
	NumPartitions int `yaml:"num_partitions"`
}

// Config is the engine's top-level configuration, loaded from YAML.
type Config struct {
	DataPath string  `yaml:"data_path"`
	Segment  Segment `yaml:"segment"`
	Topic    Topic   `yaml:"topic"`
}

// New returns a Config with defaults applied for any zero-valued field.
func New() Config {
	return Config{
		DataPath: defaultDataPath,
		Segment:  Segment{Size: defaultSegmentSize},
		Topic:    Topic{NumPartitions: defaultNumPartitions},
	}
}

// WithDefaults returns a copy of c with zero-valued fields replaced by their
// defaults, so a partially specified YAML document still yields a usable
// Config.
func (c Config) WithDefaults() Config {
	out := c
	if out.DataPath == "" {
		out.DataPath = defaultDataPath
	}
	if out.Segment.Size == 0 {
		out.Segment.Size = defaultSegmentSize
	}
	if out.Topic.NumPartitions == 0 {
		out.Topic.NumPartitions = defaultNumPartitions
	}
	return out
}

// LoadFile reads and parses a YAML configuration document at path, then
// fills in defaults for any field left unset.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return c.WithDefaults(), nil
}

// SegmentSize returns the configured rollover threshold.
func (c Config) SegmentSize() uint64 {
	return c.Segment.Size
}

// DefaultNumPartitions returns the configured default partition count.
func (c Config) DefaultNumPartitions() int {
	return c.Topic.NumPartitions
}

// TopicsPath returns the base directory holding every topic's subdirectory.
func (c Config) TopicsPath() string {
	return filepath.Join(c.DataPath, "topics")
}

// TopicPath returns the directory for one topic.
func (c Config) TopicPath(topicID uint64) string {
	return filepath.Join(c.TopicsPath(), fmt.Sprintf("%d", topicID))
}

// PartitionsPath returns the directory holding a topic's partitions.
func (c Config) PartitionsPath(topicID uint64) string {
	return filepath.Join(c.TopicPath(topicID), "partitions")
}

// PartitionPath returns the directory for one partition.
func (c Config) PartitionPath(topicID, partitionID uint64) string {
	return filepath.Join(c.PartitionsPath(topicID), fmt.Sprintf("%d", partitionID))
}

// SegmentPath returns the extensionless path stem for one segment.
func (c Config) SegmentPath(topicID, partitionID, startOffset uint64) string {
	return filepath.Join(c.PartitionPath(topicID, partitionID), fmt.Sprintf("%010d", startOffset))
}

// LogPath returns the path of one segment's log file.
func (c Config) LogPath(topicID, partitionID, startOffset uint64) string {
	return c.SegmentPath(topicID, partitionID, startOffset) + ".log"
}

// IndexPath returns the path of one segment's index file.
func (c Config) IndexPath(topicID, partitionID, startOffset uint64) string {
	return c.SegmentPath(topicID, partitionID, startOffset) + ".index"
}
