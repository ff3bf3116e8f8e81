package allocation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return NewRegistry([]Category{
		{ID: "ai", Name: "AI & DeFi", Allocation: 50},
		{ID: "meme", Name: "Meme & NFT", Allocation: 50},
	})
}

func raw(cat, from, to string) RawChange {
	return RawChange{Category: cat, From: json.RawMessage(from), To: json.RawMessage(to)}
}

func TestParseChange(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name    string
		in      RawChange
		want    Change
		wantErr error
	}{
		{"numbers", raw("ai", "15", "20"), Change{Category: "ai", Name: "AI & DeFi", From: 15, To: 20}, nil},
		{"numeric strings", raw("AI", `"15"`, `"20%"`), Change{Category: "ai", Name: "AI & DeFi", From: 15, To: 20}, nil},
		{"integral float", raw("meme", "10.0", "5"), Change{Category: "meme", Name: "Meme & NFT", From: 10, To: 5}, nil},
		{"fraction", raw("ai", "15.5", "20"), Change{}, ErrInvalidChange},
		{"nan string", raw("ai", `"NaN"`, "20"), Change{}, ErrInvalidChange},
		{"inf string", raw("ai", "15", `"Inf"`), Change{}, ErrInvalidChange},
		{"garbage", raw("ai", `"abc"`, "20"), Change{}, ErrInvalidChange},
		{"missing", raw("ai", "", "20"), Change{}, ErrInvalidChange},
		{"null", raw("ai", "15", "null"), Change{}, ErrInvalidChange},
		{"above range", raw("ai", "15", "120"), Change{}, ErrOutOfRange},
		{"negative", raw("ai", "-1", "20"), Change{}, ErrOutOfRange},
		{"unknown category", raw("nft", "15", "20"), Change{}, ErrUnknownCategory},
		{"empty category", raw(" ", "15", "20"), Change{}, ErrInvalidChange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChange(3, tt.in, reg)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, ErrInvalidChange))

			var ice *InvalidChangeError
			require.True(t, errors.As(err, &ice))
			assert.Equal(t, 3, ice.Index)
			assert.Equal(t, tt.in.Category, ice.Raw.Category)
		})
	}
}

func TestParseChange_NilRegistryAcceptsAnyCategory(t *testing.T) {
	c, err := ParseChange(0, RawChange{Category: "whatever", Name: "W", From: json.RawMessage("1"), To: json.RawMessage("2")}, nil)
	require.NoError(t, err)
	assert.Equal(t, Change{Category: "whatever", Name: "W", From: 1, To: 2}, c)
}

func TestParseChanges_Policies(t *testing.T) {
	reg := testRegistry()
	raws := []RawChange{
		raw("ai", "15", "20"),
		raw("ai", `"x"`, "20"),
		raw("meme", "10", "5"),
	}

	valid, dropped, err := ParseChanges(raws, reg, RejectBatch)
	require.Error(t, err)
	assert.Nil(t, valid)
	assert.Nil(t, dropped)
	var ice *InvalidChangeError
	require.True(t, errors.As(err, &ice))
	assert.Equal(t, 1, ice.Index)

	valid, dropped, err = ParseChanges(raws, reg, DropInvalid)
	require.NoError(t, err)
	assert.Len(t, valid, 2)
	require.Len(t, dropped, 1)
	assert.Equal(t, 1, dropped[0].Index)
}

func TestParseChanges_JSONRoundTrip(t *testing.T) {
	var raws []RawChange
	require.NoError(t, json.Unmarshal([]byte(`[{"category":"ai","name":"AI","from":15,"to":"20"}]`), &raws))
	valid, dropped, err := ParseChanges(raws, nil, RejectBatch)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Equal(t, []Change{{Category: "ai", Name: "AI", From: 15, To: 20}}, valid)
}

func TestValidateSet(t *testing.T) {
	reg := testRegistry()

	assert.NoError(t, ValidateSet([]Category{{ID: "ai", Allocation: 60}, {ID: "meme", Allocation: 40}}, reg))

	err := ValidateSet([]Category{{ID: "ai", Allocation: 60}, {ID: "meme", Allocation: 30}}, reg)
	assert.ErrorIs(t, err, ErrTotalNot100)

	err = ValidateSet([]Category{{ID: "ai", Allocation: 100}, {ID: "ghost", Allocation: 0}}, reg)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	err = ValidateSet([]Category{{ID: "ai", Allocation: 110}, {ID: "meme", Allocation: -10}}, reg)
	assert.ErrorIs(t, err, ErrOutOfRange)

	err = ValidateSet([]Category{{ID: "ai", Allocation: 50}, {ID: "ai", Allocation: 50}}, reg)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry([]Category{{ID: "AI", Name: "AI"}, {ID: "ai", Name: "dup"}, {ID: "meme", Name: "Meme"}})
	assert.Equal(t, []string{"ai", "meme"}, reg.IDs())
	assert.True(t, reg.Has("Ai"))
	c, ok := reg.Get("ai")
	require.True(t, ok)
	assert.Equal(t, "AI", c.Name)
	_, ok = reg.Get("nope")
	assert.False(t, ok)
}
