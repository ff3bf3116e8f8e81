package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreai-dashboard/pkg/allocation"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a developer .env out of the way
	for _, k := range []string{"DB_PATH", "DASHBOARD_PORT", "AI_PROVIDER", "WHALE_MIN_USD", "CORE_PRICE_FALLBACK", "PORTFOLIO_CATEGORIES"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "coreai.db", cfg.DBPath)
	assert.Equal(t, 8080, cfg.DashboardPort)
	assert.Equal(t, 2000.0, cfg.WhaleMinUSD)
	assert.Equal(t, 1.20, cfg.CorePriceFallback)
	assert.Equal(t, 100, allocation.Total(cfg.Categories))
	assert.True(t, cfg.Registry().Has("stablecoin"))
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DASHBOARD_PORT", "9090")
	t.Setenv("AI_PROVIDER", "Gemini")
	t.Setenv("WHALE_MIN_USD", "50000")
	t.Setenv("PORTFOLIO_CATEGORIES", "ai:AI:60, meme:Meme:40")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.DashboardPort)
	assert.Equal(t, "gemini", cfg.AIProvider)
	assert.Equal(t, 50000.0, cfg.WhaleMinUSD)
	assert.Equal(t, []allocation.Category{
		{ID: "ai", Name: "AI", Allocation: 60},
		{ID: "meme", Name: "Meme", Allocation: 40},
	}, cfg.Categories)
}

func TestLoad_InvalidInputs(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("PORTFOLIO_CATEGORIES", "ai:AI:60,meme:Meme:30")
	_, err := Load()
	assert.ErrorIs(t, err, allocation.ErrTotalNot100)

	t.Setenv("PORTFOLIO_CATEGORIES", "ai:AI")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("PORTFOLIO_CATEGORIES", "")
	t.Setenv("AI_PROVIDER", "skynet")
	_, err = Load()
	assert.Error(t, err)
}

func TestExplorerURLs(t *testing.T) {
	cfg := &Config{CoreExplorerURL: "https://scan.coredao.org/"}
	assert.Equal(t, "https://scan.coredao.org/tx/0xabc", cfg.TxExplorerURL("0xabc"))
	assert.Equal(t, "https://scan.coredao.org/address/0xdef", cfg.AddressExplorerURL("0xdef"))
}
