package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreai-dashboard/pkg/allocation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var seed = []allocation.Category{
	{ID: "ai", Name: "AI & DeFi", Allocation: 60},
	{ID: "meme", Name: "Meme & NFT", Allocation: 40},
}

func TestSeedCategories_KeepsExistingAllocation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SeedCategories(seed))

	require.NoError(t, s.SetPending([]allocation.Category{{ID: "ai", Allocation: 70}, {ID: "meme", Allocation: 30}}))
	require.NoError(t, s.CommitPending("manual"))

	// reseeding must not reset applied values
	require.NoError(t, s.SeedCategories(seed))
	cats, err := s.GetCategories()
	require.NoError(t, err)
	assert.Equal(t, []allocation.Category{
		{ID: "ai", Name: "AI & DeFi", Allocation: 70},
		{ID: "meme", Name: "Meme & NFT", Allocation: 30},
	}, cats)
}

func TestPendingLifecycle(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SeedCategories(seed))

	_, ok, err := s.GetPending()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPending([]allocation.Category{{ID: "ai", Allocation: 55}}))
	pending, ok, err := s.GetPending()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 55, pending[0].Allocation)
	assert.Equal(t, 40, pending[1].Allocation)

	require.NoError(t, s.ClearPending())
	_, ok, err = s.GetPending()
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.SetPending([]allocation.Category{{ID: "ghost", Allocation: 5}})
	assert.ErrorIs(t, err, allocation.ErrUnknownCategory)
}

func TestCommitPending_RecordsHistory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SeedCategories(seed))
	require.NoError(t, s.SetPending([]allocation.Category{{ID: "ai", Allocation: 50}, {ID: "meme", Allocation: 50}}))
	require.NoError(t, s.CommitPending("chat_action"))

	hist, err := s.GetAllocationHistory(10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "chat_action", hist[0].Source)
	assert.Equal(t, 100, allocation.Total(hist[0].Categories))

	_, ok, err := s.GetPending()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChatMessages(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.InsertChatMessage(ChatMessage{
			ID: id, Sender: "user", Content: "msg " + id, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	msgs, err := s.GetChatMessages(2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].ID)
	assert.Equal(t, "c", msgs[1].ID)

	m, err := s.GetChatMessage("a")
	require.NoError(t, err)
	assert.Equal(t, "msg a", m.Content)

	require.NoError(t, s.ClearChat())
	msgs, err = s.GetChatMessages(10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestWhaleTransactions(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	txs := []WhaleTransaction{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: "1000", ValueUSD: 5000, Timestamp: now.Add(-time.Hour), Type: "transfer", GasUsed: 21000},
		{Hash: "0x2", From: "0xc", To: "0xd", Value: "2000", ValueUSD: 2_000_000, Timestamp: now, Type: "transfer", Real: true},
		{Hash: "", ValueUSD: 1},
	}
	n, err := s.UpsertWhaleTransactions(txs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetWhaleTransactions(now.Add(-2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0x2", got[0].Hash)
	assert.True(t, got[0].Real)
	assert.Equal(t, uint64(21000), got[1].GasUsed)

	one, err := s.GetWhaleTransaction("0x1")
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, 5000.0, one.ValueUSD)

	missing, err := s.GetWhaleTransaction("0xdead")
	require.NoError(t, err)
	assert.Nil(t, missing)

	pruned, err := s.PruneWhaleTransactions(now.Add(-30 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["whale_transactions"])
	assert.Equal(t, int64(1), stats["mega_whales"])
}
