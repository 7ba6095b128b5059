// Package index implements the sparse offset→file-position index persisted
// alongside each segment: a flat sequence of (offset, position) big-endian
// uint64 pairs, held in memory as an ordered slice for binary-searchable
// range queries.
package index

import (
	"encoding/binary"
	"io"
	"os"
	"sort"
)

// entryWidth is the on-disk width of one (offset, position) pair: two
// big-endian uint64s.
const entryWidth = 16

// Entry is one offset→position mapping.
type Entry struct {
	Offset   uint64
	Position uint64
}

// Index is a per-segment sparse index. It is not safe for concurrent
// mutation; callers serialize Append the same way segment appends are
// serialized.
type Index struct {
	path    string
	file    *os.File
	entries []Entry
}

// Open loads the index at path, replaying it into memory. A missing file is
// treated as an empty index. A file ending on a partial trailing pair (an
// unexpected EOF mid-entry) has that partial suffix discarded; the
// preceding complete prefix is authoritative.
func Open(path string) (*Index, error) {
	entries, err := loadEntries(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(len(entries)) * entryWidth); err != nil {
		f.Close()
		return nil, err
	}

	return &Index{path: path, file: f, entries: entries}, nil
}

func loadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	buf := make([]byte, entryWidth)
	for {
		n, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// Partial trailing pair: truncate the tail, keep what is
			// already in entries.
			break
		}
		if err != nil {
			return nil, err
		}
		if n < entryWidth {
			break
		}
		entries = append(entries, Entry{
			Offset:   binary.BigEndian.Uint64(buf[0:8]),
			Position: binary.BigEndian.Uint64(buf[8:16]),
		})
	}

	return entries, nil
}

// Append records that the record at offset begins at byte position in the
// log file. Entries must be appended in strictly increasing offset order;
// this is a programmer invariant upheld by Segment, not re-validated here.
func (idx *Index) Append(offset, position uint64) error {
	var buf [entryWidth]byte
	binary.BigEndian.PutUint64(buf[0:8], offset)
	binary.BigEndian.PutUint64(buf[8:16], position)

	if _, err := idx.file.Write(buf[:]); err != nil {
		return err
	}

	idx.entries = append(idx.entries, Entry{Offset: offset, Position: position})
	return nil
}

// Range returns the entries whose offset lies in [lo, hi), in ascending
// order. hi == 0 means "no upper bound".
func (idx *Index) Range(lo, hi uint64) []Entry {
	start := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Offset >= lo
	})

	if hi == 0 {
		return idx.entries[start:]
	}

	end := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Offset >= hi
	})
	if start >= end {
		return nil
	}
	return idx.entries[start:end]
}

// FirstAtOrAfter returns the first entry with Offset >= offset, if any.
func (idx *Index) FirstAtOrAfter(offset uint64) (Entry, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Offset >= offset
	})
	if i >= len(idx.entries) {
		return Entry{}, false
	}
	return idx.entries[i], true
}

// MinOffset returns the smallest indexed offset.
func (idx *Index) MinOffset() (uint64, bool) {
	if len(idx.entries) == 0 {
		return 0, false
	}
	return idx.entries[0].Offset, true
}

// MaxOffset returns the largest indexed offset.
func (idx *Index) MaxOffset() (uint64, bool) {
	if len(idx.entries) == 0 {
		return 0, false
	}
	return idx.entries[len(idx.entries)-1].Offset, true
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Close releases the underlying file handle without deleting it.
func (idx *Index) Close() error {
	return idx.file.Close()
}

// Delete closes the file and unlinks it. Ordering within Segment.Delete
// deletes the index before the log, so a partial failure leaves at most an
// orphan log file, detectable on next startup.
func (idx *Index) Delete() error {
	if err := idx.file.Close(); err != nil {
		return err
	}
	if err := os.Remove(idx.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
