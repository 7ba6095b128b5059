package ingress

import (
	"time"

	"github.com/stijnveenman/pigeon/internal/broker"
	"github.com/stijnveenman/pigeon/internal/fetch"
	"github.com/stijnveenman/pigeon/internal/record"
)

// TopicIdentifier names a topic by id or by name, mirroring the wire
// surface's Identifier union.
type TopicIdentifier struct {
	ID   *uint64
	Name *string
}

func (t TopicIdentifier) resolve() broker.Identifier {
	if t.ID != nil {
		return broker.ByID(*t.ID)
	}
	return broker.ByName(*t.Name)
}

// CreateTopicCommand is the create_topic verb's parameters.
type CreateTopicCommand struct {
	TopicID    *uint64
	Name       string
	Partitions *int
}

// Apply runs the command against b.
func (c CreateTopicCommand) Apply(b *broker.Broker) (uint64, error) {
	return b.CreateTopic(c.TopicID, c.Name, c.Partitions)
}

// DeleteTopicCommand is the delete_topic verb's parameters.
type DeleteTopicCommand struct {
	Topic TopicIdentifier
}

// Apply runs the command against b.
func (c DeleteTopicCommand) Apply(b *broker.Broker) error {
	return b.DeleteTopic(c.Topic.resolve())
}

// ProduceHeaderCommand is one header field on the wire.
type ProduceHeaderCommand struct {
	Key   string
	Value string
}

// ProduceCommand is the produce verb's parameters. Key, Value, and header
// Values are encoded per Encoding.
type ProduceCommand struct {
	Topic       TopicIdentifier
	PartitionID uint64
	Key         string
	Value       string
	Encoding    Encoding
	Headers     []ProduceHeaderCommand
}

// Apply decodes the command's encoded fields and appends the resulting
// record via b.
func (c ProduceCommand) Apply(b *broker.Broker) (uint64, error) {
	key, err := c.Encoding.Decode(c.Key)
	if err != nil {
		return 0, err
	}
	value, err := c.Encoding.Decode(c.Value)
	if err != nil {
		return 0, err
	}

	headers := make([]record.Header, len(c.Headers))
	for i, h := range c.Headers {
		v, err := c.Encoding.Decode(h.Value)
		if err != nil {
			return 0, err
		}
		headers[i] = record.Header{Key: h.Key, Value: v}
	}

	return b.Produce(c.Topic.resolve(), c.PartitionID, key, value, headers)
}

// FetchPartitionCommand asks for one partition's records.
type FetchPartitionCommand struct {
	PartitionID uint64
	Offset      record.OffsetSelection
}

// FetchTopicCommand asks for one topic's partitions.
type FetchTopicCommand struct {
	Topic      TopicIdentifier
	Partitions []FetchPartitionCommand
}

// FetchCommand is the fetch verb's parameters.
type FetchCommand struct {
	Encoding  Encoding
	TimeoutMs uint64
	MinBytes  int
	MaxBytes  int
	Topics    []FetchTopicCommand
}

// FetchedRecordResponse is one record translated back to wire form.
type FetchedRecordResponse struct {
	TopicID     uint64
	PartitionID uint64
	Offset      uint64
	Timestamp   uint64
	Key         string
	Value       string
	Headers     []ProduceHeaderCommand
}

// FetchResponse is the fetch verb's encoded result.
type FetchResponse struct {
	Records []FetchedRecordResponse
}

// ToRequest translates the wire command into a fetch.Request.
func (c FetchCommand) ToRequest() fetch.Request {
	topics := make([]fetch.TopicRequest, len(c.Topics))
	for i, t := range c.Topics {
		partitions := make([]fetch.PartitionRequest, len(t.Partitions))
		for j, p := range t.Partitions {
			partitions[j] = fetch.PartitionRequest{PartitionID: p.PartitionID, Selection: p.Offset}
		}
		topics[i] = fetch.TopicRequest{Topic: t.Topic.resolve(), Partitions: partitions}
	}

	return fetch.Request{
		Timeout:  time.Duration(c.TimeoutMs) * time.Millisecond,
		MinBytes: c.MinBytes,
		MaxBytes: c.MaxBytes,
		Topics:   topics,
	}
}

// EncodeResponse translates a fetch.Response back to wire form using the
// command's encoding.
func (c FetchCommand) EncodeResponse(resp fetch.Response) (FetchResponse, error) {
	out := FetchResponse{Records: make([]FetchedRecordResponse, 0, len(resp.Records))}

	for _, f := range resp.Records {
		key, err := c.Encoding.Encode(f.Record.Key)
		if err != nil {
			return FetchResponse{}, err
		}
		value, err := c.Encoding.Encode(f.Record.Value)
		if err != nil {
			return FetchResponse{}, err
		}

		headers := make([]ProduceHeaderCommand, len(f.Record.Headers))
		for i, h := range f.Record.Headers {
			v, err := c.Encoding.Encode(h.Value)
			if err != nil {
				return FetchResponse{}, err
			}
			headers[i] = ProduceHeaderCommand{Key: h.Key, Value: v}
		}

		out.Records = append(out.Records, FetchedRecordResponse{
			TopicID:     f.TopicID,
			PartitionID: f.PartitionID,
			Offset:      f.Record.Offset,
			Timestamp:   f.Record.Timestamp,
			Key:         key,
			Value:       value,
			Headers:     headers,
		})
	}

	return out, nil
}
