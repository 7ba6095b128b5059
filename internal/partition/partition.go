// Package partition implements a partition: an ordered set of segments that
// allocates offsets and rolls over on segment fill.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/stijnveenman/pigeon/internal/config"
	"github.com/stijnveenman/pigeon/internal/pigeonerr"
	"github.com/stijnveenman/pigeon/internal/record"
	"github.com/stijnveenman/pigeon/internal/segment"
)

// logExt is the extension segment log files carry on disk.
const logExt = ".log"

// Partition owns an ordered start_offset → Segment map and the offset
// allocator for one (topic, partition) pair.
type Partition struct {
	cfg         config.Config
	topicID     uint64
	partitionID uint64

	nextOffset uint64
	starts     []uint64
	segments   map[uint64]*segment.Segment
}

// Load enumerates the partition's on-disk segments, opening each, and
// computes next_offset from the newest segment that has ever held a
// record. If no log file exists a single segment at start offset 0 is
// created.
func Load(cfg config.Config, topicID, partitionID uint64) (*Partition, error) {
	dir := cfg.PartitionPath(topicID, partitionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("partition: mkdir %s: %w", dir, err)
	}

	starts, err := scanSegmentStarts(dir)
	if err != nil {
		return nil, err
	}
	if len(starts) == 0 {
		starts = []uint64{0}
	}

	p := &Partition{
		cfg:         cfg,
		topicID:     topicID,
		partitionID: partitionID,
		starts:      starts,
		segments:    make(map[uint64]*segment.Segment, len(starts)),
	}

	for _, start := range starts {
		seg, err := segment.Open(
			cfg.LogPath(topicID, partitionID, start),
			cfg.IndexPath(topicID, partitionID, start),
			start,
			cfg.SegmentSize(),
		)
		if err != nil {
			return nil, fmt.Errorf("partition: open segment %d: %w", start, err)
		}
		p.segments[start] = seg
	}

	p.nextOffset = computeNextOffset(p.starts, p.segments)

	return p, nil
}

// scanSegmentStarts enumerates `<10-digit-zero-padded>.log` files in dir and
// parses each stem as a start offset, returned sorted ascending.
func scanSegmentStarts(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("partition: read dir %s: %w", dir, err)
	}

	var starts []uint64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != logExt {
			continue
		}
		stem := e.Name()[:len(e.Name())-len(logExt)]
		start, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", pigeonerr.ErrInvalidLogFilename, e.Name())
		}
		starts = append(starts, start)
	}

	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}

// computeNextOffset walks segments from the highest start offset downward
// until one reports a max offset.
func computeNextOffset(starts []uint64, segments map[uint64]*segment.Segment) uint64 {
	for i := len(starts) - 1; i >= 0; i-- {
		if max, ok := segments[starts[i]].MaxOffset(); ok {
			return max + 1
		}
	}
	return 0
}

// lastSegment returns the tail segment, the only one eligible to receive
// appends.
func (p *Partition) lastSegment() *segment.Segment {
	return p.segments[p.starts[len(p.starts)-1]]
}

// Append constructs a record from the given payload, assigning offset and
// timestamp, rolling over to a new segment first if the tail is full.
func (p *Partition) Append(key, value []byte, headers []record.Header) (uint64, error) {
	if p.lastSegment().IsFull() {
		if err := p.roll(); err != nil {
			return 0, err
		}
	}

	offset := p.nextOffset
	p.nextOffset++

	rec := record.Record{
		Offset:    offset,
		Timestamp: uint64(time.Now().UnixMicro()),
		Key:       key,
		Value:     value,
		Headers:   headers,
	}

	if err := p.lastSegment().Append(rec); err != nil {
		return 0, err
	}

	return offset, nil
}

// roll creates a new tail segment starting at nextOffset.
func (p *Partition) roll() error {
	start := p.nextOffset
	seg, err := segment.Open(
		p.cfg.LogPath(p.topicID, p.partitionID, start),
		p.cfg.IndexPath(p.topicID, p.partitionID, start),
		start,
		p.cfg.SegmentSize(),
	)
	if err != nil {
		return fmt.Errorf("partition: roll segment %d: %w", start, err)
	}

	p.starts = append(p.starts, start)
	p.segments[start] = seg
	return nil
}

// segmentFor returns the segment whose start_offset is the greatest one
// ≤ offset, or false if offset precedes every segment.
func (p *Partition) segmentFor(offset uint64) (*segment.Segment, bool) {
	i := sort.Search(len(p.starts), func(i int) bool { return p.starts[i] > offset })
	if i == 0 {
		return nil, false
	}
	return p.segments[p.starts[i-1]], true
}

// ReadExact delegates to the segment whose range contains offset.
func (p *Partition) ReadExact(offset uint64) (record.Record, bool, error) {
	seg, ok := p.segmentFor(offset)
	if !ok {
		return record.Record{}, false, nil
	}
	return seg.ReadExact(offset)
}

// Read resolves one OffsetSelection to at most one record. Exact(k)
// delegates to ReadExact. From(k) walks segments from newest to oldest and
// returns the record with the smallest offset >= k.
func (p *Partition) Read(sel record.OffsetSelection) (record.Record, bool, error) {
	if sel.Kind == record.Exact {
		return p.ReadExact(sel.Offset)
	}

	var found record.Record
	hit := false
	for i := len(p.starts) - 1; i >= 0; i-- {
		seg := p.segments[p.starts[i]]
		min, ok := seg.MinOffset()
		if !ok {
			continue
		}
		max, _ := seg.MaxOffset()
		if max < sel.Offset {
			continue
		}
		searchFrom := sel.Offset
		if searchFrom < min {
			searchFrom = min
		}
		rng, err := seg.ReadRange(searchFrom, max+1)
		if err != nil {
			return record.Record{}, false, err
		}
		for _, rec := range rng {
			if rec.Offset >= sel.Offset {
				found, hit = rec, true
				break
			}
		}
	}

	return found, hit, nil
}

// NextOffset returns one past the highest offset ever appended, or 0 if
// none.
func (p *Partition) NextOffset() uint64 {
	return p.nextOffset
}

// SegmentCount returns the number of segments currently held.
func (p *Partition) SegmentCount() int {
	return len(p.starts)
}

// ReadStats sums ReadExact/ReadRange activity across every segment the
// partition currently holds.
func (p *Partition) ReadStats() (reads, bytesRead int64) {
	for _, seg := range p.segments {
		r, b := seg.ReadStats()
		reads += r
		bytesRead += b
	}
	return reads, bytesRead
}

// Delete deletes every segment, then removes the partition directory.
func (p *Partition) Delete() error {
	for _, start := range p.starts {
		if err := p.segments[start].Delete(); err != nil {
			return err
		}
	}
	dir := p.cfg.PartitionPath(p.topicID, p.partitionID)
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close releases every segment's handles without deleting anything.
func (p *Partition) Close() error {
	for _, start := range p.starts {
		if err := p.segments[start].Close(); err != nil {
			return err
		}
	}
	return nil
}
