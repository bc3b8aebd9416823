package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrfLottery/internal/model"
)

const raffleAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func openInMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotUpsert(t *testing.T) {
	ctx := context.Background()
	store := openInMemory(t)

	_, ok, err := store.LoadSnapshot(ctx, raffleAddress)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := model.RaffleSnapshot{
		Address:       raffleAddress,
		State:         "OPEN",
		Round:         1,
		Players:       []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		Balance:       "100",
		LastTimestamp: 1700000000,
		UpdatedAt:     "2024-01-01T00:00:00Z",
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, ok, err := store.LoadSnapshot(ctx, raffleAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	snap.State = "CLOSING"
	snap.PendingRequestID = "9"
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, ok, err = store.LoadSnapshot(ctx, raffleAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CLOSING", got.State)
	assert.Equal(t, "9", got.PendingRequestID)
}

func TestSnapshotEmptyPlayers(t *testing.T) {
	ctx := context.Background()
	store := openInMemory(t)

	require.NoError(t, store.SaveSnapshot(ctx, model.RaffleSnapshot{Address: raffleAddress, State: "OPEN", Balance: "0"}))
	got, ok, err := store.LoadSnapshot(ctx, raffleAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{}, got.Players)
	assert.NotEmpty(t, got.UpdatedAt)
}

func TestWinnersHistory(t *testing.T) {
	ctx := context.Background()
	store := openInMemory(t)
	picked := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for round := uint64(1); round <= 3; round++ {
		require.NoError(t, store.PutWinner(ctx, model.WinnerRecord{
			Address:   raffleAddress,
			Round:     round,
			Winner:    "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			Prize:     "100",
			RequestID: "1",
			PickedAt:  picked.Add(time.Duration(round) * time.Minute),
		}))
	}
	require.NoError(t, store.PutWinner(ctx, model.WinnerRecord{Address: raffleAddress, Round: 3, Winner: "dup", PickedAt: picked}))

	winners, err := store.ListWinners(ctx, raffleAddress, 2)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.Equal(t, uint64(3), winners[0].Round)
	assert.Equal(t, uint64(2), winners[1].Round)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", winners[0].Winner)
	assert.True(t, picked.Add(3*time.Minute).Equal(winners[0].PickedAt))

	none, err := store.ListWinners(ctx, "0x0000000000000000000000000000000000000001", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
