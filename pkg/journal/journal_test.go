package journal

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/aeolun/nanopubsub/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

var source = &net.UDPAddr{IP: net.IPv4(192, 168, 0, 12), Port: 40123}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)

	messages := []protocol.Message{
		protocol.NewSubscribe("client1", "weather"),
		protocol.NewStandard("client1", "weather", "Sunny today"),
		protocol.NewUnsubscribe("client1", "weather"),
	}
	for i, msg := range messages {
		id, err := j.Record(ctx, msg, source, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first
	for i, e := range entries {
		want := messages[len(messages)-1-i]
		got, err := e.Message()
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, "192.168.0.12:40123", e.Source)
	}
	assert.Equal(t, "Sunny today", entries[1].Body)
	assert.Empty(t, entries[0].Body)
	assert.True(t, entries[2].ReceivedAt.Equal(base))

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, protocol.KindUnsubscribe, limited[0].Kind)
}

func TestByTopic(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	_, err := j.Record(ctx, protocol.NewStandard("a", "weather", "rain"), source, now)
	require.NoError(t, err)
	_, err = j.Record(ctx, protocol.NewStandard("b", "traffic", "jam"), source, now)
	require.NoError(t, err)
	_, err = j.Record(ctx, protocol.NewStandard("c", "weather", "snow"), source, now.Add(time.Second))
	require.NoError(t, err)

	entries, err := j.ByTopic(ctx, "weather", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "snow", entries[0].Body)
	assert.Equal(t, "rain", entries[1].Body)

	entries, err = j.ByTopic(ctx, "sports", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordRejectsInvalidMessage(t *testing.T) {
	j := openTestJournal(t)

	_, err := j.Record(context.Background(), protocol.NewStandard("a", "weather", ""), source, time.Now())
	assert.ErrorIs(t, err, protocol.ErrMissingField)

	_, err = j.Record(context.Background(), nil, source, time.Now())
	assert.ErrorIs(t, err, protocol.ErrNullMessage)
}

func TestRecordWithoutSource(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	_, err := j.Record(ctx, protocol.NewSubscribe("a", "weather"), nil, time.Now())
	require.NoError(t, err)

	entries, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries[0].Source)
}

func TestInvalidLimit(t *testing.T) {
	j := openTestJournal(t)

	_, err := j.Recent(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = j.ByTopic(context.Background(), "weather", -1)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestPrune(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	_, err := j.Record(ctx, protocol.NewStandard("a", "t", "old"), source, now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = j.Record(ctx, protocol.NewStandard("a", "t", "new"), source, now)
	require.NoError(t, err)

	n, err := j.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Body)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Record(ctx, protocol.NewSubscribe("a", "weather"), source, time.Now())
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEntryMessageUnknownKind(t *testing.T) {
	e := &Entry{ID: 9, Kind: protocol.Kind(7), ClientID: "a", Topic: "t"}
	_, err := e.Message()
	assert.ErrorIs(t, err, protocol.ErrInvalidKind)
}
