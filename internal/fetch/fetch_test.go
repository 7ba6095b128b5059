package fetch_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/stijnveenman/pigeon/internal/broker"
	"github.com/stijnveenman/pigeon/internal/config"
	"github.com/stijnveenman/pigeon/internal/fetch"
	"github.com/stijnveenman/pigeon/internal/record"
)

func testBroker(t *testing.T) *broker.Broker {
	t.Helper()
	cfg := config.Config{DataPath: t.TempDir()}.WithDefaults()
	b, err := broker.Open(cfg, log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestFetchHistoricalReturnsEveryDurableRecord(t *testing.T) {
	b := testBroker(t)
	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := b.Produce(broker.ByID(id), 0, []byte("k"), []byte("v"), nil)
		require.NoError(t, err)
	}

	coord := fetch.New(b)
	resp, err := coord.Fetch(context.Background(), fetch.Request{
		Timeout: 0,
		Topics: []fetch.TopicRequest{{
			Topic:      broker.ByID(id),
			Partitions: []fetch.PartitionRequest{{PartitionID: 0, Selection: record.NewFrom(0)}},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Records, 5)
	for i, rec := range resp.Records {
		require.Equal(t, uint64(i), rec.Record.Offset)
	}
}

func TestFetchLiveReceivesProducedRecord(t *testing.T) {
	b := testBroker(t)
	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	coord := fetch.New(b)

	type result struct {
		resp fetch.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := coord.Fetch(context.Background(), fetch.Request{
			Timeout:  5 * time.Second,
			MinBytes: 1,
			Topics: []fetch.TopicRequest{{
				Topic:      broker.ByID(id),
				Partitions: []fetch.PartitionRequest{{PartitionID: 0, Selection: record.NewFrom(0)}},
			}},
		})
		done <- result{resp, err}
	}()

	time.Sleep(50 * time.Millisecond)
	_, err = b.Produce(broker.ByID(id), 0, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Len(t, r.resp.Records, 1)
		require.Equal(t, uint64(0), r.resp.Records[0].Record.Offset)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after live record arrived")
	}
}

func TestFetchDeadlineReturnsWhatAccumulated(t *testing.T) {
	b := testBroker(t)
	id, err := b.CreateTopic(nil, "orders", nil)
	require.NoError(t, err)

	coord := fetch.New(b)
	resp, err := coord.Fetch(context.Background(), fetch.Request{
		Timeout:  50 * time.Millisecond,
		MinBytes: 1000,
		Topics: []fetch.TopicRequest{{
			Topic:      broker.ByID(id),
			Partitions: []fetch.PartitionRequest{{PartitionID: 0, Selection: record.NewFrom(0)}},
		}},
	})
	require.NoError(t, err)
	require.Empty(t, resp.Records)
}
