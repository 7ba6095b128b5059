// Package meta implements the metadata journal: the internal "__metadata"
// topic recording topic lifecycle events, and the startup replay/
// reconciliation algorithm.
package meta

import (
	"encoding/json"
	"fmt"
)

// createTopicEntry is the payload of a CreateTopic metadata entry.
type createTopicEntry struct {
	TopicID    uint64 `json:"topic_id"`
	Name       string `json:"name"`
	Partitions int    `json:"partitions"`
}

// deleteTopicEntry is the payload of a DeleteTopic metadata entry.
type deleteTopicEntry struct {
	TopicID uint64 `json:"topic_id"`
}

// envelope mirrors serde's default externally-tagged enum encoding: exactly
// one of the two fields is present in any given JSON document.
type envelope struct {
	CreateTopic *createTopicEntry `json:"CreateTopic,omitempty"`
	DeleteTopic *deleteTopicEntry `json:"DeleteTopic,omitempty"`
}

// Entry is a tagged metadata journal entry.
type Entry struct {
	create *createTopicEntry
	delete *deleteTopicEntry
}

// NewCreateTopic builds a CreateTopic entry.
func NewCreateTopic(topicID uint64, name string, partitions int) Entry {
	return Entry{create: &createTopicEntry{TopicID: topicID, Name: name, Partitions: partitions}}
}

// NewDeleteTopic builds a DeleteTopic entry.
func NewDeleteTopic(topicID uint64) Entry {
	return Entry{delete: &deleteTopicEntry{TopicID: topicID}}
}

// Marshal encodes the entry as its JSON wire form.
func (e Entry) Marshal() ([]byte, error) {
	env := envelope{CreateTopic: e.create, DeleteTopic: e.delete}
	return json.Marshal(env)
}

// Unmarshal decodes a metadata entry from its JSON wire form.
func Unmarshal(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("meta: unmarshal entry: %w", err)
	}
	if env.CreateTopic == nil && env.DeleteTopic == nil {
		return Entry{}, fmt.Errorf("meta: entry has neither CreateTopic nor DeleteTopic tag")
	}
	return Entry{create: env.CreateTopic, delete: env.DeleteTopic}, nil
}

// TopicMeta is one topic's folded metadata state.
type TopicMeta struct {
	TopicID    uint64
	Name       string
	Partitions int
}

// Metadata is the in-memory fold of the journal: the set of topics believed
// to exist.
type Metadata struct {
	Topics map[uint64]TopicMeta
}

// FromEntries folds a sequence of journal entries, applied in order:
// CreateTopic inserts, DeleteTopic removes.
func FromEntries(entries []Entry) Metadata {
	m := Metadata{Topics: make(map[uint64]TopicMeta)}
	for _, e := range entries {
		switch {
		case e.create != nil:
			m.Topics[e.create.TopicID] = TopicMeta{
				TopicID:    e.create.TopicID,
				Name:       e.create.Name,
				Partitions: e.create.Partitions,
			}
		case e.delete != nil:
			delete(m.Topics, e.delete.TopicID)
		}
	}
	return m
}
