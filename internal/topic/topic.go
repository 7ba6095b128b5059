// Package topic implements a topic: a fixed-arity vector of partitions plus
// its name and id.
package topic

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stijnveenman/pigeon/internal/config"
	"github.com/stijnveenman/pigeon/internal/partition"
	"github.com/stijnveenman/pigeon/internal/pigeonerr"
	"github.com/stijnveenman/pigeon/internal/record"
)

// internalPrefix marks a topic name as internal.
const internalPrefix = "__"

// PartitionState is a point-in-time projection of one partition.
type PartitionState struct {
	PartitionID   uint64 `json:"partition_id"`
	CurrentOffset uint64 `json:"current_offset"`
	SegmentCount  int    `json:"segment_count"`
}

// TopicState is a point-in-time projection of one topic.
type TopicState struct {
	TopicID    uint64           `json:"topic_id"`
	Name       string           `json:"name"`
	Partitions []PartitionState `json:"partitions"`
}

// Topic owns a fixed vector of partitions, indexed by partition id.
type Topic struct {
	cfg config.Config

	topicID    uint64
	name       string
	partitions []*partition.Partition
}

// LoadFromDisk constructs all partitionCount partitions concurrently and
// order-independently, rather than loading them one at a time.
func LoadFromDisk(cfg config.Config, topicID uint64, name string, partitionCount int) (*Topic, error) {
	partitions := make([]*partition.Partition, partitionCount)

	var g errgroup.Group
	for i := 0; i < partitionCount; i++ {
		i := i
		g.Go(func() error {
			p, err := partition.Load(cfg, topicID, uint64(i))
			if err != nil {
				return err
			}
			partitions[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("topic: load partition: %w", err)
	}

	return &Topic{cfg: cfg, topicID: topicID, name: name, partitions: partitions}, nil
}

// ID returns the topic's id.
func (t *Topic) ID() uint64 {
	return t.topicID
}

// Name returns the topic's name.
func (t *Topic) Name() string {
	return t.name
}

// IsInternal reports whether the topic's name begins with "__".
func (t *Topic) IsInternal() bool {
	return strings.HasPrefix(t.name, internalPrefix)
}

// PartitionCount returns the fixed number of partitions.
func (t *Topic) PartitionCount() int {
	return len(t.partitions)
}

func (t *Topic) partitionAt(partitionID uint64) (*partition.Partition, error) {
	if partitionID >= uint64(len(t.partitions)) {
		return nil, pigeonerr.ErrPartitionNotFound
	}
	return t.partitions[partitionID], nil
}

// Append indexes into the partition vector and forwards.
func (t *Topic) Append(partitionID uint64, key, value []byte, headers []record.Header) (uint64, error) {
	p, err := t.partitionAt(partitionID)
	if err != nil {
		return 0, err
	}
	return p.Append(key, value, headers)
}

// ReadExact forwards to the given partition.
func (t *Topic) ReadExact(partitionID, offset uint64) (record.Record, bool, error) {
	p, err := t.partitionAt(partitionID)
	if err != nil {
		return record.Record{}, false, err
	}
	return p.ReadExact(offset)
}

// Read forwards an OffsetSelection query to the given partition.
func (t *Topic) Read(partitionID uint64, sel record.OffsetSelection) (record.Record, bool, error) {
	p, err := t.partitionAt(partitionID)
	if err != nil {
		return record.Record{}, false, err
	}
	return p.Read(sel)
}

// State returns a projection of every partition's current state.
func (t *Topic) State() TopicState {
	states := make([]PartitionState, len(t.partitions))
	for i, p := range t.partitions {
		states[i] = PartitionState{
			PartitionID:   uint64(i),
			CurrentOffset: p.NextOffset(),
			SegmentCount:  p.SegmentCount(),
		}
	}
	return TopicState{TopicID: t.topicID, Name: t.name, Partitions: states}
}

// ReadStats sums ReadExact/ReadRange activity across every partition.
func (t *Topic) ReadStats() (reads, bytesRead int64) {
	for _, p := range t.partitions {
		r, b := p.ReadStats()
		reads += r
		bytesRead += b
	}
	return reads, bytesRead
}

// Delete deletes every partition, then removes the partitions directory and
// the topic directory.
func (t *Topic) Delete() error {
	for _, p := range t.partitions {
		if err := p.Delete(); err != nil {
			return err
		}
	}
	if err := os.Remove(t.cfg.PartitionsPath(t.topicID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(t.cfg.TopicPath(t.topicID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close releases every partition's handles without deleting anything.
func (t *Topic) Close() error {
	for _, p := range t.partitions {
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
