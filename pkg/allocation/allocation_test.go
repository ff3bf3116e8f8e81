package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_MultiEntryBatch(t *testing.T) {
	changes := []Change{
		{Category: "ai", Name: "AI & DeFi", From: 15, To: 20},
		{Category: "meme", Name: "Meme & NFT", From: 10, To: 5},
	}
	live := map[string]int{"ai": 18, "meme": 22}

	got := Reconcile(changes, live)

	assert.Equal(t, []Change{
		{Category: "ai", Name: "AI & DeFi", From: 18, To: 23},
		{Category: "meme", Name: "Meme & NFT", From: 22, To: 17},
	}, got)
	// input untouched
	assert.Equal(t, 15, changes[0].From)
	assert.Equal(t, 20, changes[0].To)
}

func TestReconcile_ClampUpper(t *testing.T) {
	got := Reconcile([]Change{{Category: "ai", From: 15, To: 25}}, map[string]int{"ai": 95})
	require.Len(t, got, 1)
	assert.Equal(t, 95, got[0].From)
	assert.Equal(t, 100, got[0].To)
}

func TestReconcile_ClampLower(t *testing.T) {
	got := Reconcile([]Change{{Category: "meme", From: 15, To: 5}}, map[string]int{"meme": 3})
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].From)
	assert.Equal(t, 0, got[0].To)
}

func TestReconcile_MissingLiveFallsBackToOriginalFrom(t *testing.T) {
	in := []Change{{Category: "rwa", Name: "RWA", From: 15, To: 18}}
	got := Reconcile(in, map[string]int{"ai": 40})
	assert.Equal(t, in, got)

	got = Reconcile(in, nil)
	assert.Equal(t, in, got)
}

func TestReconcile_ZeroLiveValueIsUsed(t *testing.T) {
	got := Reconcile([]Change{{Category: "stablecoin", From: 5, To: 10}}, map[string]int{"stablecoin": 0})
	assert.Equal(t, 0, got[0].From)
	assert.Equal(t, 5, got[0].To)
}

func TestReconcile_NoDriftIsIdentity(t *testing.T) {
	in := []Change{
		{Category: "defi", Name: "DeFi", From: 15, To: 18},
		{Category: "l1", Name: "Layer 1", From: 15, To: 12},
		{Category: "bigcap", Name: "Big Cap", From: 25, To: 25},
	}
	got := Reconcile(in, map[string]int{"defi": 15, "l1": 15, "bigcap": 25})
	assert.Equal(t, in, got)
}

func TestReconcile_Empty(t *testing.T) {
	got := Reconcile(nil, map[string]int{"ai": 10})
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got = Reconcile([]Change{}, nil)
	assert.Empty(t, got)
}

func TestReconcile_Properties(t *testing.T) {
	cats := []string{"ai", "bigcap", "meme", "defi", "l1", "rwa", "stablecoin"}
	for live := 0; live <= 100; live += 7 {
		for from := 0; from <= 100; from += 11 {
			for to := 0; to <= 100; to += 13 {
				var in []Change
				liveMap := map[string]int{}
				for i, c := range cats {
					in = append(in, Change{Category: c, Name: c, From: from, To: to})
					if i%2 == 0 {
						liveMap[c] = live
					}
				}

				out := Reconcile(in, liveMap)
				require.Len(t, out, len(in))
				for i := range out {
					assert.Equal(t, in[i].Category, out[i].Category)
					assert.Equal(t, in[i].Name, out[i].Name)
					assert.GreaterOrEqual(t, out[i].To, 0)
					assert.LessOrEqual(t, out[i].To, 100)
					if v, ok := liveMap[in[i].Category]; ok {
						assert.Equal(t, v, out[i].From)
					} else {
						assert.Equal(t, in[i].From, out[i].From)
					}
					if raw := out[i].From + in[i].Delta(); raw >= 0 && raw <= 100 {
						assert.Equal(t, raw, out[i].To)
						assert.False(t, Clamped(in[i], out[i]))
					}
				}
			}
		}
	}
}

func TestClamped(t *testing.T) {
	orig := Change{Category: "ai", From: 15, To: 25}
	assert.True(t, Clamped(orig, Change{Category: "ai", From: 95, To: 100}))
	assert.False(t, Clamped(orig, Change{Category: "ai", From: 20, To: 30}))
}

func TestApplyAndTotal(t *testing.T) {
	cats := []Category{
		{ID: "ai", Name: "AI", Allocation: 50},
		{ID: "meme", Name: "Meme", Allocation: 50},
	}
	out := Apply(cats, []Change{
		{Category: "ai", From: 50, To: 60},
		{Category: "meme", From: 50, To: 40},
		{Category: "ghost", From: 0, To: 10},
	})
	assert.Equal(t, 60, out[0].Allocation)
	assert.Equal(t, 40, out[1].Allocation)
	assert.Equal(t, 100, Total(out))
	assert.Equal(t, 50, cats[0].Allocation)
	assert.Equal(t, map[string]int{"ai": 60, "meme": 40}, Live(out))
}
