package whale

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreai-dashboard/pkg/db"
	"github.com/coreai-dashboard/pkg/metrics"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sample() []Transaction {
	return []Transaction{
		{Hash: "0xaaa", From: "0xAlice", To: "0xBob", ValueUSD: 3_000, Timestamp: now.Add(-time.Hour), Type: TypeTransfer, TokenSymbol: "CORE"},
		{Hash: "0xbbb", From: "0xCarol", To: "0xDave", ValueUSD: 60_000, Timestamp: now.Add(-2 * time.Hour), Type: TypeInternal, TokenSymbol: "CORE"},
		{Hash: "0xccc", From: "0xErin", To: "0xAlice", ValueUSD: 300_000, Timestamp: now.Add(-48 * time.Hour), Type: TypeContract, TokenSymbol: "WBTC"},
		{Hash: "0xddd", From: "0xFrank", To: "0xGrace", ValueUSD: 1_500_000, Timestamp: now.Add(-30 * time.Minute), Type: TypeTransfer, TokenSymbol: "CORE"},
		{Hash: "0xAAA", From: "dup", ValueUSD: 1, Timestamp: now},
		{Hash: "", ValueUSD: 9_999_999, Timestamp: now},
	}
}

// ── pipeline ──

func TestDedupe(t *testing.T) {
	out := Dedupe(sample())
	require.Len(t, out, 4)
	assert.Equal(t, "0xAlice", out[0].From)
}

func TestFilterSize(t *testing.T) {
	txs := Dedupe(sample())
	assert.Len(t, FilterSize(txs, SizeSmall), 1)
	assert.Len(t, FilterSize(txs, SizeMedium), 1)
	assert.Len(t, FilterSize(txs, SizeLarge), 1)
	assert.Len(t, FilterSize(txs, SizeMega), 1)
	assert.Len(t, FilterSize(txs, "all"), 4)
	assert.Empty(t, FilterSize(txs, "huge"))
}

func TestFilterSearchAndToken(t *testing.T) {
	txs := Dedupe(sample())
	assert.Len(t, FilterSearch(txs, "alice"), 2)
	assert.Len(t, FilterSearch(txs, "0XDD"), 1)
	assert.Len(t, FilterSearch(txs, "wbtc"), 1)
	assert.Len(t, FilterSearch(txs, "  "), 4)

	assert.Len(t, FilterToken(txs, "core"), 3)
	assert.Len(t, FilterToken(txs, "all"), 4)
}

func TestFilterTimeframeAndSort(t *testing.T) {
	txs := FilterTimeframe(Dedupe(sample()), 24*time.Hour, now)
	require.Len(t, txs, 3)
	SortNewest(txs)
	assert.Equal(t, []string{"0xddd", "0xaaa", "0xbbb"}, []string{txs[0].Hash, txs[1].Hash, txs[2].Hash})
}

func TestPaginate(t *testing.T) {
	txs := make([]Transaction, 25)
	page, pages := Paginate(txs, 3, 10)
	assert.Len(t, page, 5)
	assert.Equal(t, 3, pages)

	page, _ = Paginate(txs, 9, 10)
	assert.Empty(t, page)

	page, pages = Paginate(nil, 1, 10)
	assert.Empty(t, page)
	assert.Equal(t, 0, pages)
}

func TestFilterNormalize(t *testing.T) {
	f := Filter{}
	require.NoError(t, f.Normalize())
	assert.Equal(t, "24h", f.Timeframe)
	assert.Equal(t, 24*time.Hour, f.Window())
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 10, f.PageSize)

	for _, bad := range []Filter{
		{Timeframe: "1y"},
		{Size: "whopper"},
		{Search: "0xZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ"},
	} {
		assert.ErrorIs(t, bad.Normalize(), ErrInvalidFilter)
	}

	ok := Filter{Search: "0x742DfA5aa70a8212857966D491D67B09ce7D6ec7", PageSize: 500}
	require.NoError(t, ok.Normalize())
	assert.Equal(t, 100, ok.PageSize)
}

func TestFilterApply(t *testing.T) {
	f := Filter{Timeframe: "3d", Size: "all", PageSize: 2}
	require.NoError(t, f.Normalize())
	page, matched, pages := f.Apply(sample(), now)
	assert.Equal(t, 4, matched)
	assert.Equal(t, 2, pages)
	require.Len(t, page, 2)
	assert.Equal(t, "0xddd", page[0].Hash)
}

func TestSummarize(t *testing.T) {
	st := Summarize(Dedupe(sample()))
	assert.Equal(t, 4, st.Count)
	assert.InDelta(t, 1_863_000, st.TotalVolume, 0.001)
	assert.Equal(t, 1_500_000.0, st.Largest)
	assert.Equal(t, 2, st.ByType[TypeTransfer].Count)
	assert.InDelta(t, 1_503_000/1_863_000.0*100, st.ByType[TypeTransfer].Percentage, 0.0001)
	assert.Equal(t, 1, st.BySize[SizeMega])

	empty := Summarize(nil)
	assert.Zero(t, empty.TotalVolume)
	assert.Empty(t, empty.ByType)
}

// ── format ──

func TestClassifySize(t *testing.T) {
	assert.Equal(t, SizeSmall, ClassifySize(2_000))
	assert.Equal(t, SizeMedium, ClassifySize(50_000))
	assert.Equal(t, SizeLarge, ClassifySize(999_999))
	assert.Equal(t, SizeMega, ClassifySize(1_000_000))
}

func TestFormatCore(t *testing.T) {
	assert.Equal(t, "1.50M CORE", FormatCore("1500000000000000000000000"))
	assert.Equal(t, "800.00K CORE", FormatCore("800000000000000000000000"))
	assert.Equal(t, "12.5000 CORE", FormatCore("12500000000000000000"))
	assert.Equal(t, "0.0000 CORE", FormatCore("garbage"))
	assert.Equal(t, 1.5, CoreAmount("1500000000000000000").InexactFloat64())
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$1.80M", FormatUSD(1_800_000))
	assert.Equal(t, "$960.00K", FormatUSD(960_000))
	assert.Equal(t, "$999.50", FormatUSD(999.5))
}

func TestTimeAgo(t *testing.T) {
	assert.Equal(t, "30s ago", TimeAgo(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", TimeAgo(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", TimeAgo(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", TimeAgo(now.Add(-50*time.Hour), now))
	assert.Equal(t, "Recently", TimeAgo(time.Time{}, now))
}

func TestDescribe(t *testing.T) {
	d := Describe(Transaction{
		Hash: "0x1", Type: TypeTransfer, Value: "1500000000000000000000000", ValueUSD: 1_800_000,
		Timestamp: now.Add(-5 * time.Minute),
	}, now)
	assert.Equal(t, "CORE", d.TokenSymbol)
	assert.Equal(t, "1.50M", d.Amount)
	assert.Equal(t, "$1.80M", d.USDValue)
	assert.Equal(t, "5m ago", d.Age)
}

// ── sources and chain ──

type stubSource struct {
	name  string
	txs   []Transaction
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, q Query) ([]Transaction, error) {
	s.calls++
	return s.txs, s.err
}

func TestSimulatedSource(t *testing.T) {
	src := &SimulatedSource{Now: func() time.Time { return now }}
	txs, err := src.Fetch(context.Background(), Query{MinUSD: 700_000})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.False(t, txs[0].Real)
	assert.Equal(t, "simulated", txs[0].Source)
	assert.Equal(t, now.Add(-5*time.Minute), txs[0].Timestamp)

	txs, _ = src.Fetch(context.Background(), Query{Limit: 1})
	assert.Len(t, txs, 1)
}

func TestChain_FallsThrough(t *testing.T) {
	failing := &stubSource{name: "rpc", err: errors.New("connection refused")}
	empty := &stubSource{name: "backup"}
	sim := &SimulatedSource{Now: func() time.Time { return now }}

	c := NewChain(0, 1, metrics.New(), failing, empty, sim)
	res, err := c.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, "simulated", res.Source)
	assert.False(t, res.Real)
	assert.Len(t, res.Transactions, 3)
	assert.Len(t, res.Failures, 2)
	assert.Equal(t, []string{"rpc", "backup", "simulated"}, c.Names())
}

func TestChain_RealDataWins(t *testing.T) {
	live := &stubSource{name: "rpc", txs: []Transaction{{Hash: "0x1", Real: true}}}
	c := NewChain(0, 1, nil, live, &SimulatedSource{})
	res, err := c.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, "rpc", res.Source)
	assert.True(t, res.Real)
}

func TestChain_BreakerOpensAfterFailures(t *testing.T) {
	failing := &stubSource{name: "rpc", err: errors.New("boom")}
	c := NewChain(0, 1, nil, failing)

	for i := 0; i < 5; i++ {
		_, err := c.Fetch(context.Background(), Query{})
		assert.ErrorIs(t, err, ErrNoSource)
	}
	// the breaker trips after three consecutive failures and stops calling through
	assert.Equal(t, 3, failing.calls)

	status := c.Probe(context.Background(), Query{})
	require.Len(t, status, 1)
	assert.False(t, status[0].OK)
	assert.Equal(t, "open", status[0].Breaker)
}

func TestChain_ProbeAll(t *testing.T) {
	c := NewChain(0, 1, nil,
		&stubSource{name: "a", txs: []Transaction{{Hash: "1"}}},
		&stubSource{name: "b", err: errors.New("down")},
	)
	status := c.Probe(context.Background(), Query{})
	require.Len(t, status, 2)
	assert.True(t, status[0].OK)
	assert.Equal(t, 1, status[0].Count)
	assert.False(t, status[1].OK)
	assert.Equal(t, "down", status[1].Error)
}

// ── RPC source ──

type failingBlocks struct{ head uint64 }

func (f failingBlocks) BlockNumber(context.Context) (uint64, error) { return f.head, nil }
func (f failingBlocks) BlockByNumber(context.Context, *big.Int) (*types.Block, error) {
	return nil, errors.New("not found")
}

func TestRPCSource_Convert(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress("0x742DfA5aa70a8212857966D491D67B09ce7D6ec7")

	src := newRPCSource("core-rpc", nil, 1116, 10)
	signer := types.LatestSignerForChainID(big.NewInt(1116))

	tenK, _ := new(big.Int).SetString("10000000000000000000000", 10) // 10,000 CORE
	tx := types.MustSignNewTx(key, signer, &types.LegacyTx{
		Nonce: 1, To: &to, Value: tenK, Gas: 21000, GasPrice: big.NewInt(30_000_000_000),
	})

	w, ok := src.convert(tx, 42, now, Query{MinUSD: 2000, Price: 1.2})
	require.True(t, ok)
	assert.Equal(t, tx.Hash().Hex(), w.Hash)
	assert.Equal(t, strings.ToLower(sender.Hex()), w.From)
	assert.Equal(t, strings.ToLower(to.Hex()), w.To)
	assert.InDelta(t, 12_000, w.ValueUSD, 0.001)
	assert.Equal(t, TypeTransfer, w.Type)
	assert.Equal(t, int64(42), w.BlockNumber)
	assert.Equal(t, "30000000000", w.GasPrice)
	assert.True(t, w.Real)

	// below threshold
	_, ok = src.convert(tx, 42, now, Query{MinUSD: 50_000, Price: 1.2})
	assert.False(t, ok)

	// contract call
	call := types.MustSignNewTx(key, signer, &types.LegacyTx{
		Nonce: 2, To: &to, Value: tenK, Gas: 90000, GasPrice: big.NewInt(1), Data: []byte{0xa9, 0x05, 0x9c, 0xbb},
	})
	w, ok = src.convert(call, 43, now, Query{Price: 1.2})
	require.True(t, ok)
	assert.Equal(t, TypeContract, w.Type)

	// zero value
	zero := types.MustSignNewTx(key, signer, &types.LegacyTx{Nonce: 3, To: &to, Value: big.NewInt(0), Gas: 21000, GasPrice: big.NewInt(1)})
	_, ok = src.convert(zero, 44, now, Query{Price: 1.2})
	assert.False(t, ok)
}

func TestRPCSource_FetchSkipsMissingBlocks(t *testing.T) {
	src := newRPCSource("core-rpc", failingBlocks{head: 100}, 1116, 5)
	txs, err := src.Fetch(context.Background(), Query{Price: 1.2})
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = src.Fetch(context.Background(), Query{})
	assert.Error(t, err)
}

// ── tracker ──

func newTracker(t *testing.T, sources ...Source) (*Tracker, *db.Store) {
	t.Helper()
	store, err := db.NewStore(filepath.Join(t.TempDir(), "whale.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tr := NewTracker(NewChain(0, 1, nil, sources...), store, StaticPrice(1.2), 1.2, 2000)
	tr.now = func() time.Time { return now }
	return tr, store
}

func TestTracker_RefreshAndList(t *testing.T) {
	tr, _ := newTracker(t, &stubSource{name: "rpc", err: errors.New("down")}, &SimulatedSource{Now: func() time.Time { return now }})

	info, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "simulated", info.Source)
	assert.Equal(t, 3, info.Count)
	assert.Equal(t, 1.2, info.Price)
	assert.Equal(t, info, tr.LastRefresh())

	page, err := tr.List(context.Background(), Filter{Size: SizeMega})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", page.Transactions[0].Hash)

	page, err = tr.List(context.Background(), Filter{Search: "0x742dfa"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Matched)

	_, err = tr.List(context.Background(), Filter{Timeframe: "never"})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	st, err := tr.Stats(context.Background(), "24h")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Count)
	assert.InDelta(t, 3_360_000, st.TotalVolume, 0.001)

	got, err := tr.Get(context.Background(), "0xabcdef1234567890abcdef1234567890abcdef12")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, TypeTransfer, got.Type)
}

func TestTracker_RefreshFailure(t *testing.T) {
	tr, _ := newTracker(t, &stubSource{name: "rpc", err: errors.New("down")})
	info, err := tr.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
	assert.NotEmpty(t, info.Error)
}
