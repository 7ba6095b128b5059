// Package pigeonerr defines the sentinel error kinds shared across the
// storage engine and broker, so callers can distinguish caller errors
// (surfaced to a request boundary) from internal failures with errors.Is.
package pigeonerr

import "errors"

var (
	// ErrSegmentFull is returned by Segment.Append when the segment has
	// already reached its configured size. Internal: the partition reacts
	// by rolling over to a new segment.
	ErrSegmentFull = errors.New("pigeon: segment is full")

	// ErrOffsetOutOfRange is returned by range reads when no index entry
	// exists at or beyond the requested low offset.
	ErrOffsetOutOfRange = errors.New("pigeon: offset out of range")

	// ErrPartitionNotFound is a caller error: the requested partition id
	// does not exist in the topic.
	ErrPartitionNotFound = errors.New("pigeon: partition not found")

	// ErrInvalidLogFilename is a startup-only error: a file under a
	// partition directory matched the .log suffix but its stem did not
	// parse as a decimal start offset.
	ErrInvalidLogFilename = errors.New("pigeon: invalid log filename")

	// ErrTopicIDInUse is a caller error on create: the requested topic id
	// is already assigned.
	ErrTopicIDInUse = errors.New("pigeon: topic id already in use")

	// ErrTopicNameInUse is a caller error on create: the requested topic
	// name is already assigned.
	ErrTopicNameInUse = errors.New("pigeon: topic name already in use")

	// ErrMaxTopicIDReached is a caller error: the id allocator reached
	// math.MaxUint64 without finding a free slot.
	ErrMaxTopicIDReached = errors.New("pigeon: max topic id reached")

	// ErrReservedTopicName is a caller error: an external caller tried to
	// create a topic whose name begins with "__".
	ErrReservedTopicName = errors.New("pigeon: topic name is reserved")

	// ErrInternalTopicName is a caller error: an external caller tried to
	// produce to or delete an internal topic.
	ErrInternalTopicName = errors.New("pigeon: topic is internal")

	// ErrTopicIDNotFound is a caller error: no topic exists with the given
	// id.
	ErrTopicIDNotFound = errors.New("pigeon: topic id not found")

	// ErrTopicNameNotFound is a caller error: no topic exists with the
	// given name.
	ErrTopicNameNotFound = errors.New("pigeon: topic name not found")

	// ErrEmptyTopicName is a caller error: topic names must be non-empty.
	ErrEmptyTopicName = errors.New("pigeon: topic name must not be empty")

	// ErrEncodingError is a caller error: invalid base64, or non-utf8 bytes
	// where utf8 was requested.
	ErrEncodingError = errors.New("pigeon: invalid value encoding")
)
