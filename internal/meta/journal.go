package meta

import (
	"fmt"

	"github.com/stijnveenman/pigeon/internal/topic"
)

// MetadataTopicID is the fixed id the engine allocates to the metadata
// journal topic at first boot.
const MetadataTopicID = 0

// MetadataTopicName is the fixed name of the metadata journal topic.
const MetadataTopicName = "__metadata"

// Append serializes entry and appends it to the metadata topic's sole
// partition. Callers must call this before announcing the corresponding
// broker state change to future reads.
func Append(metaTopic *topic.Topic, entry Entry) (uint64, error) {
	value, err := entry.Marshal()
	if err != nil {
		return 0, err
	}
	return metaTopic.Append(0, nil, value, nil)
}

// Replay reads every record of the metadata topic's sole partition in
// order and folds them into a Metadata snapshot.
func Replay(metaTopic *topic.Topic) (Metadata, error) {
	var entries []Entry

	offset := uint64(0)
	for {
		rec, ok, err := metaTopic.ReadExact(0, offset)
		if err != nil {
			return Metadata{}, fmt.Errorf("meta: replay record %d: %w", offset, err)
		}
		if !ok {
			break
		}

		entry, err := Unmarshal(rec.Value)
		if err != nil {
			return Metadata{}, err
		}
		entries = append(entries, entry)

		offset = rec.Offset + 1
	}

	return FromEntries(entries), nil
}
