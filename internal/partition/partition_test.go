package partition_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stijnveenman/pigeon/internal/config"
	"github.com/stijnveenman/pigeon/internal/partition"
	"github.com/stijnveenman/pigeon/internal/record"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{DataPath: t.TempDir()}.WithDefaults()
}

func TestPartitionBasicReadWrite(t *testing.T) {
	cfg := testConfig(t)

	p, err := partition.Load(cfg, 0, 0)
	require.NoError(t, err)
	defer p.Close()

	offset, err := p.Append([]byte("foo"), []byte("bar"), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), offset)

	offset, err = p.Append([]byte("foo"), []byte("bar2"), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), offset)

	rec, ok, err := p.ReadExact(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("foo"), rec.Key)
	require.Equal(t, []byte("bar2"), rec.Value)
	require.Equal(t, uint64(1), rec.Offset)
}

func TestPartitionReloadFromDisk(t *testing.T) {
	cfg := testConfig(t)

	p, err := partition.Load(cfg, 0, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := p.Append([]byte("k"), []byte("v"), nil)
		require.NoError(t, err)
	}
	require.NoError(t, p.Close())

	reloaded, err := partition.Load(cfg, 0, 0)
	require.NoError(t, err)
	defer reloaded.Close()

	require.Equal(t, uint64(5), reloaded.NextOffset())

	rec, ok, err := reloaded.ReadExact(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), rec.Offset)
}

func TestPartitionRollsOverOnSegmentFull(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segment.Size = 1

	p, err := partition.Load(cfg, 0, 0)
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 3; i++ {
		_, err := p.Append([]byte("k"), []byte("v"), nil)
		require.NoError(t, err)
	}

	require.Equal(t, 3, p.SegmentCount())
}

func TestPartitionReadFromSelection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segment.Size = 1

	p, err := partition.Load(cfg, 0, 0)
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 3; i++ {
		_, err := p.Append([]byte("k"), []byte("v"), nil)
		require.NoError(t, err)
	}

	rec, ok, err := p.Read(record.NewFrom(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), rec.Offset)

	_, ok, err = p.Read(record.NewFrom(10))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPartitionDelete(t *testing.T) {
	cfg := testConfig(t)

	p, err := partition.Load(cfg, 0, 0)
	require.NoError(t, err)
	_, err = p.Append([]byte("k"), []byte("v"), nil)
	require.NoError(t, err)

	require.NoError(t, p.Delete())
}
