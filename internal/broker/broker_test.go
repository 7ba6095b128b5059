package broker_test

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stijnveenman/pigeon/internal/broker"
	"github.com/stijnveenman/pigeon/internal/config"
	"github.com/stijnveenman/pigeon/internal/pigeonerr"
)

func testBroker(t *testing.T) *broker.Broker {
	t.Helper()
	cfg := config.Config{DataPath: t.TempDir()}.WithDefaults()
	b, err := broker.Open(cfg, log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestCreateTopicAndProduce(t *testing.T) {
	b := testBroker(t)

	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	offset, err := b.Produce(broker.ByID(id), 0, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), offset)

	rec, ok, err := b.ReadExact(broker.ByName("orders"), 0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), rec.Value)
}

func TestReadStatsAccumulateAcrossReads(t *testing.T) {
	b := testBroker(t)

	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)
	_, err = b.Produce(broker.ByID(id), 0, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)

	reads, bytesRead := b.ReadStats()
	require.Zero(t, reads)
	require.Zero(t, bytesRead)

	_, ok, err := b.ReadExact(broker.ByID(id), 0, 0)
	require.NoError(t, err)
	require.True(t, ok)

	reads, bytesRead = b.ReadStats()
	require.Equal(t, int64(1), reads)
	require.Positive(t, bytesRead)
}

func TestRecordLaggedSubscriberLogsAndCounts(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{DataPath: t.TempDir()}.WithDefaults()
	b, err := broker.Open(cfg, log.NewLogfmtLogger(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	b.RecordLaggedSubscriber(id)

	require.Contains(t, buf.String(), "lagged")
	require.Contains(t, buf.String(), "orders")

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "pigeon_lagged_subscribers_total" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCreateTopicRejectsReservedName(t *testing.T) {
	b := testBroker(t)

	_, err := b.CreateTopic(nil, "__reserved", nil)
	require.ErrorIs(t, err, pigeonerr.ErrReservedTopicName)
}

func TestCreateTopicRejectsDuplicateName(t *testing.T) {
	b := testBroker(t)

	_, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	_, err = b.CreateTopic(nil, "orders", nil)
	require.ErrorIs(t, err, pigeonerr.ErrTopicNameInUse)
}

func TestCreateTopicRejectsDuplicateID(t *testing.T) {
	b := testBroker(t)

	id := uint64(7)
	_, err := b.CreateTopic(&id, "orders", nil)
	require.NoError(t, err)

	_, err = b.CreateTopic(&id, "payments", nil)
	require.ErrorIs(t, err, pigeonerr.ErrTopicIDInUse)
}

func TestProduceRejectsInternalTopic(t *testing.T) {
	b := testBroker(t)

	_, err := b.Produce(broker.ByName("__metadata"), 0, []byte("k"), []byte("v"), nil)
	require.ErrorIs(t, err, pigeonerr.ErrInternalTopicName)
}

func TestDeleteTopic(t *testing.T) {
	b := testBroker(t)

	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	require.NoError(t, b.DeleteTopic(broker.ByID(id)))

	_, err = b.GetTopic(broker.ByID(id))
	require.ErrorIs(t, err, pigeonerr.ErrTopicIDNotFound)
}

func TestDeleteTopicRejectsInternal(t *testing.T) {
	b := testBroker(t)

	err := b.DeleteTopic(broker.ByName("__metadata"))
	require.ErrorIs(t, err, pigeonerr.ErrInternalTopicName)
}

func TestSubscribeReceivesProducedRecord(t *testing.T) {
	b := testBroker(t)

	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(broker.ByID(id))
	require.NoError(t, err)

	_, err = b.Produce(broker.ByID(id), 0, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)

	msg, lagged, ok := sub.Recv(nil)
	require.True(t, ok)
	require.False(t, lagged)
	require.Equal(t, uint64(0), msg.Offset)
}

func TestGetTopicStateAndAllTopics(t *testing.T) {
	b := testBroker(t)

	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	state, err := b.GetTopicState(broker.ByID(id))
	require.NoError(t, err)
	require.Equal(t, "orders", state.Name)

	all := b.GetAllTopics()
	require.Contains(t, all, id)
	require.Contains(t, all, uint64(0)) // __metadata
}

func TestReopenReplaysMetadataAndTopicsSurvive(t *testing.T) {
	cfg := config.Config{DataPath: t.TempDir()}.WithDefaults()

	b, err := broker.Open(cfg, log.NewNopLogger())
	require.NoError(t, err)

	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)
	_, err = b.Produce(broker.ByID(id), 0, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened, err := broker.Open(cfg, log.NewNopLogger())
	require.NoError(t, err)
	defer reopened.Close()

	rec, ok, err := reopened.ReadExact(broker.ByName("orders"), 0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), rec.Value)
}
