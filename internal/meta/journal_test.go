package meta_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stijnveenman/pigeon/internal/config"
	"github.com/stijnveenman/pigeon/internal/meta"
	"github.com/stijnveenman/pigeon/internal/topic"
)

func TestJournalAppendAndReplay(t *testing.T) {
	cfg := config.Config{DataPath: t.TempDir()}.WithDefaults()

	metaTopic, err := topic.LoadFromDisk(cfg, meta.MetadataTopicID, meta.MetadataTopicName, 1)
	require.NoError(t, err)
	defer metaTopic.Close()

	_, err = meta.Append(metaTopic, meta.NewCreateTopic(1, "orders", 2))
	require.NoError(t, err)
	_, err = meta.Append(metaTopic, meta.NewCreateTopic(2, "payments", 1))
	require.NoError(t, err)
	_, err = meta.Append(metaTopic, meta.NewDeleteTopic(1))
	require.NoError(t, err)

	replayed, err := meta.Replay(metaTopic)
	require.NoError(t, err)

	require.Len(t, replayed.Topics, 1)
	require.Equal(t, "payments", replayed.Topics[2].Name)
}
