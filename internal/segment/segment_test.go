package segment_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stijnveenman/pigeon/internal/pigeonerr"
	"github.com/stijnveenman/pigeon/internal/record"
	"github.com/stijnveenman/pigeon/internal/segment"
)

func paths(dir string) (string, string) {
	return filepath.Join(dir, "0000000000.log"), filepath.Join(dir, "0000000000.index")
}

func TestSegmentBasicReadWrite(t *testing.T) {
	dir := t.TempDir()
	logPath, indexPath := paths(dir)

	seg, err := segment.Open(logPath, indexPath, 0, 1024)
	require.NoError(t, err)
	defer seg.Close()

	rec := record.Record{Offset: 0, Timestamp: 1, Key: []byte("k"), Value: []byte("v")}
	require.NoError(t, seg.Append(rec))

	got, ok, err := seg.ReadExact(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)

	_, ok, err = seg.ReadExact(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSegmentContinueOnExistingSegment(t *testing.T) {
	dir := t.TempDir()
	logPath, indexPath := paths(dir)

	seg, err := segment.Open(logPath, indexPath, 0, 1024)
	require.NoError(t, err)

	first := record.Record{Offset: 0, Timestamp: 1, Key: []byte("a"), Value: []byte("1")}
	second := record.Record{Offset: 1, Timestamp: 2, Key: []byte("b"), Value: []byte("22")}
	require.NoError(t, seg.Append(first))
	require.NoError(t, seg.Append(second))
	require.NoError(t, seg.Close())

	reopened, err := segment.Open(logPath, indexPath, 0, 1024)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.ReadExact(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second, got)

	third := record.Record{Offset: 2, Timestamp: 3, Key: []byte("c"), Value: []byte("333")}
	require.NoError(t, reopened.Append(third))

	all, err := reopened.ReadRange(0, 3)
	require.NoError(t, err)
	require.Equal(t, []record.Record{first, second, third}, all)
}

func TestSegmentIsFull(t *testing.T) {
	dir := t.TempDir()
	logPath, indexPath := paths(dir)

	seg, err := segment.Open(logPath, indexPath, 0, 1)
	require.NoError(t, err)
	defer seg.Close()

	require.False(t, seg.IsFull())

	rec := record.Record{Offset: 0, Timestamp: 1, Key: []byte("k"), Value: []byte("v")}
	require.NoError(t, seg.Append(rec))

	require.True(t, seg.IsFull())

	err = seg.Append(record.Record{Offset: 1, Timestamp: 2, Key: []byte("k"), Value: []byte("v")})
	require.ErrorIs(t, err, pigeonerr.ErrSegmentFull)
}

func TestSegmentReadStats(t *testing.T) {
	dir := t.TempDir()
	logPath, indexPath := paths(dir)

	seg, err := segment.Open(logPath, indexPath, 0, 1024)
	require.NoError(t, err)
	defer seg.Close()

	reads, bytesRead := seg.ReadStats()
	require.Zero(t, reads)
	require.Zero(t, bytesRead)

	rec := record.Record{Offset: 0, Timestamp: 1, Key: []byte("k"), Value: []byte("v")}
	require.NoError(t, seg.Append(rec))

	_, ok, err := seg.ReadExact(0)
	require.NoError(t, err)
	require.True(t, ok)

	reads, bytesRead = seg.ReadStats()
	require.Equal(t, int64(1), reads)
	require.Positive(t, bytesRead)
}

func TestSegmentDelete(t *testing.T) {
	dir := t.TempDir()
	logPath, indexPath := paths(dir)

	seg, err := segment.Open(logPath, indexPath, 0, 1024)
	require.NoError(t, err)
	require.NoError(t, seg.Append(record.Record{Offset: 0, Timestamp: 1, Key: []byte("k"), Value: []byte("v")}))
	require.NoError(t, seg.Delete())

	reopened, err := segment.Open(logPath, indexPath, 0, 1024)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, uint64(0), reopened.LogSize())
}
