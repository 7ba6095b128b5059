// Package segment implements one partition segment: an append-only log file
// paired with a sparse index.
package segment

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/atomic"

	"github.com/stijnveenman/pigeon/internal/index"
	"github.com/stijnveenman/pigeon/internal/pigeonerr"
	"github.com/stijnveenman/pigeon/internal/record"
)

// Segment owns one append-only log file (a write handle plus a separate
// read-only handle for random access) and its Index. The start offset is
// the offset of the first record the segment may ever hold; maxLogSize is
// the rollover threshold.
type Segment struct {
	startOffset uint64
	maxLogSize  uint64

	logPath string

	writeFile *os.File
	readFile  *os.File
	index     *index.Index

	logSize uint64

	// reads/bytesRead count ReadExact/ReadRange activity for the read-path
	// metrics the broker exposes; atomic because reads run under the
	// broker's reader lock, which permits concurrent callers.
	reads     *atomic.Int64
	bytesRead *atomic.Int64
}

// Open loads (or creates) the segment at startOffset whose log and index
// files live at logPath and indexPath (see Config's on-disk layout).
func Open(logPath, indexPath string, startOffset, maxLogSize uint64) (*Segment, error) {
	writeFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("segment: open log for write: %w", err)
	}

	stat, err := writeFile.Stat()
	if err != nil {
		return nil, err
	}

	readFile, err := os.OpenFile(logPath, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("segment: open log for read: %w", err)
	}

	idx, err := index.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("segment: open index: %w", err)
	}

	return &Segment{
		startOffset: startOffset,
		maxLogSize:  maxLogSize,
		logPath:     logPath,
		writeFile:   writeFile,
		readFile:    readFile,
		index:       idx,
		logSize:     uint64(stat.Size()),
		reads:       atomic.NewInt64(0),
		bytesRead:   atomic.NewInt64(0),
	}, nil
}

// StartOffset returns the first offset the segment may hold.
func (s *Segment) StartOffset() uint64 {
	return s.startOffset
}

// LogSize returns the current byte length of the log file.
func (s *Segment) LogSize() uint64 {
	return s.logSize
}

// IsFull reports whether the segment has reached its configured size. A
// full segment still serves reads but rejects further appends.
func (s *Segment) IsFull() bool {
	return s.logSize >= s.maxLogSize
}

// Append writes rec's frame to the log and records its position in the
// index. Rejects with ErrSegmentFull iff IsFull() holds before the attempt,
// so the file may grow up to one record past maxLogSize. Callers must pass
// records in strictly increasing offset order; violating this is a
// programmer error, not a runtime failure.
func (s *Segment) Append(rec record.Record) error {
	if s.IsFull() {
		return pigeonerr.ErrSegmentFull
	}

	preAppendSize := s.logSize

	if err := record.Encode(s.writeFile, rec); err != nil {
		return fmt.Errorf("segment: encode record: %w", err)
	}

	// The index entry is recorded only after the bytes are written, so an
	// index entry never references an unwritten position.
	if err := s.index.Append(rec.Offset, preAppendSize); err != nil {
		return fmt.Errorf("segment: append index: %w", err)
	}

	pos, err := s.writeFile.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	s.logSize = uint64(pos)

	return nil
}

// ReadExact returns the record whose offset exactly equals the query, or
// (Record{}, false, nil) if the offset is not present in the sparse index.
func (s *Segment) ReadExact(offset uint64) (record.Record, bool, error) {
	entry, ok := s.index.FirstAtOrAfter(offset)
	if !ok || entry.Offset != offset {
		return record.Record{}, false, nil
	}

	length := s.recordLengthAt(entry)

	rec, err := record.DecodeAt(s.readFile, int64(entry.Position), int64(length))
	if err != nil {
		return record.Record{}, false, err
	}
	s.reads.Inc()
	s.bytesRead.Add(int64(length))
	return rec, true, nil
}

// ReadRange decodes every record with offset in [lo, hi), in ascending
// order. Returns ErrOffsetOutOfRange iff there is no index entry at or
// beyond lo.
func (s *Segment) ReadRange(lo, hi uint64) ([]record.Record, error) {
	if _, ok := s.index.FirstAtOrAfter(lo); !ok {
		return nil, pigeonerr.ErrOffsetOutOfRange
	}

	startEntry, _ := s.index.FirstAtOrAfter(lo)
	startPos := startEntry.Position

	var endPos uint64
	if endEntry, ok := s.index.FirstAtOrAfter(hi); ok {
		endPos = endEntry.Position
	} else {
		endPos = s.logSize
	}

	if startPos >= endPos {
		return nil, nil
	}

	sr := io.NewSectionReader(s.readFile, int64(startPos), int64(endPos-startPos))
	var records []record.Record
	for {
		rec, err := record.Decode(sr)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	s.reads.Inc()
	s.bytesRead.Add(int64(endPos - startPos))
	return records, nil
}

// recordLengthAt returns the byte length of the frame starting at entry's
// position: the distance to the next index entry, or to the end of the log
// if entry is the last one.
func (s *Segment) recordLengthAt(entry index.Entry) uint64 {
	next, ok := s.index.FirstAtOrAfter(entry.Offset + 1)
	if !ok {
		return s.logSize - entry.Position
	}
	return next.Position - entry.Position
}

// ReadStats returns the cumulative read count and bytes read serviced by
// ReadExact/ReadRange since the segment was opened.
func (s *Segment) ReadStats() (reads, bytesRead int64) {
	return s.reads.Load(), s.bytesRead.Load()
}

// MinOffset returns the smallest offset held by this segment's index.
func (s *Segment) MinOffset() (uint64, bool) {
	return s.index.MinOffset()
}

// MaxOffset returns the largest offset held by this segment's index.
func (s *Segment) MaxOffset() (uint64, bool) {
	return s.index.MaxOffset()
}

// Close releases the segment's file handles without deleting anything.
func (s *Segment) Close() error {
	if err := s.index.Close(); err != nil {
		return err
	}
	if err := s.readFile.Close(); err != nil {
		return err
	}
	return s.writeFile.Close()
}

// Delete releases handles and removes the index then the log file. Index
// first, so a crash mid-delete leaves at most an orphan log file,
// detectable on the next startup scan.
func (s *Segment) Delete() error {
	if err := s.index.Delete(); err != nil {
		return err
	}
	if err := s.readFile.Close(); err != nil {
		return err
	}
	if err := s.writeFile.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.logPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
