// Package record defines the durable record type, its on-disk frame codec,
// and the OffsetSelection cursor used to request either a single offset or
// a stream starting at one.
package record

// Header is one ordered (key, value) pair attached to a Record. Keys are
// utf-8; values are opaque bytes.
type Header struct {
	Key   string
	Value []byte
}

// Record is the immutable unit of storage. Offset and Timestamp are
// assigned at append time by the partition/segment, never by the caller.
type Record struct {
	Offset    uint64
	Timestamp uint64 // microseconds since Unix epoch
	Key       []byte
	Value     []byte
	Headers   []Header
}
