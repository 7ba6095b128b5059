// Package broker implements the broker state registry: the topic_id→Topic
// and name→topic_id mappings, id allocation, and per-topic broadcast buses.
package broker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stijnveenman/pigeon/internal/broadcast"
	"github.com/stijnveenman/pigeon/internal/config"
	"github.com/stijnveenman/pigeon/internal/meta"
	"github.com/stijnveenman/pigeon/internal/pigeonerr"
	"github.com/stijnveenman/pigeon/internal/record"
	"github.com/stijnveenman/pigeon/internal/topic"
)

// internalPrefix marks a topic name as internal and reserved.
const internalPrefix = "__"

var (
	metricTopicsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pigeon",
		Name:      "topics_total",
		Help:      "Total number of live topics in the broker registry.",
	})
	metricProducedRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pigeon",
		Name:      "produced_records_total",
		Help:      "Total number of records successfully produced, by topic.",
	}, []string{"topic"})
	metricLaggedSubscribersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pigeon",
		Name:      "lagged_subscribers_total",
		Help:      "Total number of times a fetch subscriber dropped buffered messages after falling behind, by topic.",
	}, []string{"topic"})
)

// RecordLaggedSubscriber increments the lagged-subscriber counter for the
// topic identified by topicID and logs a warning. Called by the fetch
// coordinator when a broadcast subscriber drops buffered messages after
// falling behind.
func (b *Broker) RecordLaggedSubscriber(topicID uint64) {
	b.mu.RLock()
	name := "unknown"
	if tp, ok := b.topics[topicID]; ok {
		name = tp.Name()
	}
	b.mu.RUnlock()

	level.Warn(b.logger).Log("msg", "fetch subscriber lagged, dropped buffered messages", "topic_id", topicID, "topic", name)
	metricLaggedSubscribersTotal.WithLabelValues(name).Inc()
}

// ReadStats sums ReadExact/ReadRange activity across every loaded topic's
// segments, under the reader lock.
func (b *Broker) ReadStats() (reads, bytesRead int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, tp := range b.topics {
		r, bt := tp.ReadStats()
		reads += r
		bytesRead += bt
	}
	return reads, bytesRead
}

// Broker holds the full in-memory topic registry and guards it with a
// single readers-writer lock. Produce, CreateTopic,
// DeleteTopic, and Subscribe take the writer role; Fetch's historical phase
// and state queries take the reader role.
type Broker struct {
	cfg    config.Config
	logger log.Logger

	mu          sync.RWMutex
	topics      map[uint64]*topic.Topic
	topicIDs    map[string]uint64
	nextTopicID uint64
	listeners   map[uint64]*broadcast.Bus

	metaTopic *topic.Topic
}

// Open constructs the broker: loads (or creates) the metadata journal
// topic, replays it, reconciles against on-disk topic directories, and
// loads every topic the replay believes should exist.
func Open(cfg config.Config, logger log.Logger) (*Broker, error) {
	if err := os.MkdirAll(cfg.TopicsPath(), 0755); err != nil {
		return nil, errors.Wrap(err, "broker: mkdir topics path")
	}

	metaTopic, err := topic.LoadFromDisk(cfg, meta.MetadataTopicID, meta.MetadataTopicName, 1)
	if err != nil {
		return nil, errors.Wrap(err, "broker: load metadata topic")
	}

	replayed, err := meta.Replay(metaTopic)
	if err != nil {
		return nil, errors.Wrap(err, "broker: replay metadata")
	}

	onDisk, err := scanTopicDirectories(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "broker: scan topic directories")
	}

	for _, orphan := range meta.Reconcile(replayed, onDisk) {
		if orphan == meta.MetadataTopicID {
			continue
		}
		level.Warn(logger).Log("msg", "removing orphan topic directory with no metadata entry", "topic_id", orphan)
		if err := os.RemoveAll(cfg.TopicPath(orphan)); err != nil {
			return nil, errors.Wrap(err, "broker: remove orphan topic directory")
		}
	}

	b := &Broker{
		cfg:       cfg,
		logger:    logger,
		topics:    make(map[uint64]*topic.Topic),
		topicIDs:  make(map[string]uint64),
		listeners: make(map[uint64]*broadcast.Bus),
		metaTopic: metaTopic,
	}
	b.topics[meta.MetadataTopicID] = metaTopic
	b.topicIDs[meta.MetadataTopicName] = meta.MetadataTopicID
	b.nextTopicID = meta.MetadataTopicID + 1

	for id, tm := range replayed.Topics {
		if id == meta.MetadataTopicID {
			continue
		}
		tp, err := topic.LoadFromDisk(cfg, id, tm.Name, tm.Partitions)
		if err != nil {
			return nil, errors.Wrapf(err, "broker: load topic %d", id)
		}
		b.topics[id] = tp
		b.topicIDs[tm.Name] = id
		if id >= b.nextTopicID {
			b.nextTopicID = id + 1
		}
	}

	metricTopicsTotal.Set(float64(len(b.topics)))
	level.Info(logger).Log("msg", "broker state loaded", "topics", len(b.topics))

	return b, nil
}

// scanTopicDirectories enumerates numeric subdirectories of the topics
// path; a name that doesn't parse is a malformed foreign entry and ignored
// (an unexpected file or directory is ignored, not an error).
func scanTopicDirectories(cfg config.Config) ([]uint64, error) {
	entries, err := os.ReadDir(cfg.TopicsPath())
	if err != nil {
		return nil, err
	}

	var ids []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreateTopic allocates (or validates) a topic id, loads the topic on
// disk, registers it, then commits a CreateTopic metadata entry. The
// metadata append is the commit point; see DESIGN.md for the open
// question on partial-failure rollback.
func (b *Broker) CreateTopic(topicID *uint64, name string, partitionCount *int) (uint64, error) {
	if name == "" {
		return 0, pigeonerr.ErrEmptyTopicName
	}
	if strings.HasPrefix(name, internalPrefix) {
		return 0, pigeonerr.ErrReservedTopicName
	}
	return b.createTopicInternal(topicID, name, partitionCount)
}

// createTopicInternal is CreateTopic without the empty-name and
// reserved-name checks. The metadata topic itself is not created through it:
// Open loads that topic directly with topic.LoadFromDisk.
func (b *Broker) createTopicInternal(topicID *uint64, name string, partitionCount *int) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, err := b.allocateTopicID(topicID)
	if err != nil {
		return 0, err
	}

	if _, ok := b.topicIDs[name]; ok {
		return 0, pigeonerr.ErrTopicNameInUse
	}

	count := b.cfg.DefaultNumPartitions()
	if partitionCount != nil {
		count = *partitionCount
	}

	level.Info(b.logger).Log("msg", "creating topic", "topic_id", id, "name", name, "partitions", count)

	tp, err := topic.LoadFromDisk(b.cfg, id, name, count)
	if err != nil {
		return 0, errors.Wrap(err, "broker: load topic")
	}

	b.topics[id] = tp
	b.topicIDs[name] = id

	if _, err := meta.Append(b.metaTopic, meta.NewCreateTopic(id, name, count)); err != nil {
		return 0, errors.Wrap(err, "broker: append CreateTopic metadata")
	}

	metricTopicsTotal.Set(float64(len(b.topics)))
	return id, nil
}

// allocateTopicID returns the caller-supplied id if present and free, or
// allocates the next free id from nextTopicID.
func (b *Broker) allocateTopicID(topicID *uint64) (uint64, error) {
	if topicID != nil {
		if _, ok := b.topics[*topicID]; ok {
			return 0, pigeonerr.ErrTopicIDInUse
		}
		return *topicID, nil
	}

	for {
		id := b.nextTopicID
		if _, ok := b.topics[id]; !ok {
			b.nextTopicID = id + 1
			return id, nil
		}
		if id == ^uint64(0) {
			return 0, pigeonerr.ErrMaxTopicIDReached
		}
		b.nextTopicID++
	}
}

// DeleteTopic appends the DeleteTopic metadata entry first, then removes
// the topic from both maps, then deletes it on disk. This order guarantees
// the startup reconciliation in Open can recover from a crash between the
// two steps.
func (b *Broker) DeleteTopic(identifier Identifier) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp, err := b.lookupLocked(identifier)
	if err != nil {
		return err
	}
	if tp.IsInternal() {
		return pigeonerr.ErrInternalTopicName
	}

	level.Info(b.logger).Log("msg", "deleting topic", "topic_id", tp.ID())

	if _, err := meta.Append(b.metaTopic, meta.NewDeleteTopic(tp.ID())); err != nil {
		return errors.Wrap(err, "broker: append DeleteTopic metadata")
	}

	delete(b.topicIDs, tp.Name())
	delete(b.topics, tp.ID())

	if bus, ok := b.listeners[tp.ID()]; ok {
		bus.Close()
		delete(b.listeners, tp.ID())
	}

	if err := tp.Delete(); err != nil {
		return errors.Wrap(err, "broker: delete topic files")
	}

	metricTopicsTotal.Set(float64(len(b.topics)))
	return nil
}

// Identifier resolves a topic by id or by name.
type Identifier struct {
	ID   *uint64
	Name *string
}

// ByID builds an Identifier that resolves by topic id.
func ByID(id uint64) Identifier { return Identifier{ID: &id} }

// ByName builds an Identifier that resolves by topic name.
func ByName(name string) Identifier { return Identifier{Name: &name} }

func (b *Broker) lookupLocked(identifier Identifier) (*topic.Topic, error) {
	if identifier.ID != nil {
		tp, ok := b.topics[*identifier.ID]
		if !ok {
			return nil, pigeonerr.ErrTopicIDNotFound
		}
		return tp, nil
	}

	id, ok := b.topicIDs[*identifier.Name]
	if !ok {
		return nil, pigeonerr.ErrTopicNameNotFound
	}
	tp, ok := b.topics[id]
	if !ok {
		return nil, pigeonerr.ErrTopicIDNotFound
	}
	return tp, nil
}

// GetTopic resolves identifier under the reader lock.
func (b *Broker) GetTopic(identifier Identifier) (*topic.Topic, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lookupLocked(identifier)
}

// Produce appends a record to the given partition of the identified topic,
// then broadcasts it to any subscribers. Internal topics reject produce
// from external callers.
func (b *Broker) Produce(identifier Identifier, partitionID uint64, key, value []byte, headers []record.Header) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp, err := b.lookupLocked(identifier)
	if err != nil {
		return 0, err
	}
	if tp.IsInternal() {
		return 0, pigeonerr.ErrInternalTopicName
	}

	offset, err := tp.Append(partitionID, key, value, headers)
	if err != nil {
		level.Warn(b.logger).Log("msg", "produce failed", "topic_id", tp.ID(), "err", err)
		return 0, err
	}

	metricProducedRecordsTotal.WithLabelValues(tp.Name()).Inc()

	if bus, ok := b.listeners[tp.ID()]; ok {
		bus.Send(broadcast.Message{PartitionID: partitionID, Offset: offset})
	}

	return offset, nil
}

// Subscribe returns a receiver bound to the identified topic's broadcast
// bus, creating the bus lazily on first subscriber with a fixed ring
// capacity (broadcast.Capacity).
func (b *Broker) Subscribe(identifier Identifier) (*broadcast.Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp, err := b.lookupLocked(identifier)
	if err != nil {
		return nil, err
	}

	bus, ok := b.listeners[tp.ID()]
	if !ok {
		bus = broadcast.New()
		b.listeners[tp.ID()] = bus
	}

	return bus.Subscribe(), nil
}

// GetTopicState returns a state projection of the identified topic.
func (b *Broker) GetTopicState(identifier Identifier) (topic.TopicState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tp, err := b.lookupLocked(identifier)
	if err != nil {
		return topic.TopicState{}, err
	}
	return tp.State(), nil
}

// GetAllTopics returns a state projection of every topic.
func (b *Broker) GetAllTopics() map[uint64]topic.TopicState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[uint64]topic.TopicState, len(b.topics))
	for id, tp := range b.topics {
		states[id] = tp.State()
	}
	return states
}

// ReadExact reads the reader-locked historical state of one record; used
// by the fetch coordinator's historical phase.
func (b *Broker) ReadExact(identifier Identifier, partitionID, offset uint64) (record.Record, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tp, err := b.lookupLocked(identifier)
	if err != nil {
		return record.Record{}, false, err
	}
	return tp.ReadExact(partitionID, offset)
}

// Read resolves one OffsetSelection under the reader lock; used by the
// fetch coordinator's historical phase.
func (b *Broker) Read(identifier Identifier, partitionID uint64, sel record.OffsetSelection) (record.Record, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tp, err := b.lookupLocked(identifier)
	if err != nil {
		return record.Record{}, false, err
	}
	return tp.Read(partitionID, sel)
}

// RLock/RUnlock expose the broker's reader lock directly, so the fetch
// coordinator can hold it across multiple reads within one historical
// phase without re-resolving the topic on every call.
func (b *Broker) RLock()   { b.mu.RLock() }
func (b *Broker) RUnlock() { b.mu.RUnlock() }

// GetTopicLocked resolves identifier assuming the caller already holds
// RLock (or the write lock).
func (b *Broker) GetTopicLocked(identifier Identifier) (*topic.Topic, error) {
	return b.lookupLocked(identifier)
}

// Close releases every topic's file handles without deleting anything.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, bus := range b.listeners {
		bus.Close()
	}
	for _, tp := range b.topics {
		if err := tp.Close(); err != nil {
			return fmt.Errorf("broker: close topic %d: %w", tp.ID(), err)
		}
	}
	return nil
}
