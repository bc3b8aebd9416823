package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrfLottery/internal/model"
)

const raffleAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestFileStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "raffle.json")}

	_, ok, err := store.LoadSnapshot(ctx, raffleAddress)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := model.RaffleSnapshot{
		Address:          raffleAddress,
		State:            "CLOSING",
		Round:            2,
		Players:          []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		Balance:          "100",
		LastTimestamp:    1700000000,
		PendingRequestID: "5",
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, ok, err := store.LoadSnapshot(ctx, raffleAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	_, ok, err = store.LoadSnapshot(ctx, "0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.False(t, ok, "snapshot of another raffle is ignored")
}

func TestFileStateStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raffle.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, _, err := (&FileStateStore{Path: path}).LoadSnapshot(context.Background(), raffleAddress)
	assert.Error(t, err)
}

func TestJsonlStorageAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "events.jsonl")
	journal := NewJsonlStorage(path)

	records, err := journal.ReadLogs(nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, journal.PutLogBatch([]model.LogRecord{{BlockNumber: 1, TxHash: "0x01"}}))
	require.NoError(t, journal.PutLogBatch([]model.LogRecord{{BlockNumber: 1, TxHash: "0x02"}, {BlockNumber: 2, TxHash: "0x03"}}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var bad []int
	records, err = journal.ReadLogs(func(line int, _ error) { bad = append(bad, line) })
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "0x03", records[2].TxHash)
	assert.Equal(t, []int{4}, bad)
}
