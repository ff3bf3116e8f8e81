package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/coreai-dashboard/pkg/allocation"
)

type Config struct {
	// Storage
	DBPath string

	// Dashboard
	DashboardPort int
	LogLevel      string

	// AI / LLM
	// AI_PROVIDER: "anthropic" | "openai" | "ollama" | "gemini" (explicit selection)
	// If not set, auto-detects from available API keys
	AIProvider      string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string
	OllamaURL       string // e.g. http://localhost:11434
	AIModel         string
	AIMaxTokens     int
	AITimeout       time.Duration

	// Core chain
	CoreRPCURL         string
	CoreRPCFallbackURL string // optional second node tried before simulated data
	CoreChainID        int64
	CorePriceFallback  float64
	CoreExplorerURL    string

	// Whale tracker
	WhaleMinUSD       float64
	WhaleBlocksToScan int
	SourceRPS         float64
	SourceBurst       int

	// Schedules (robfig/cron spec strings)
	WhaleRefreshCron string
	InsightCron      string

	// Assistant
	InsightsFile     string
	ChatHistoryLimit int

	// Portfolio categories, seed allocations must total 100
	Categories []allocation.Category
}

// DefaultCategories is the seed portfolio the dashboard starts from.
func DefaultCategories() []allocation.Category {
	return []allocation.Category{
		{ID: "ai", Name: "AI & DeFi", Allocation: 15},
		{ID: "bigcap", Name: "Big Cap", Allocation: 25},
		{ID: "meme", Name: "Meme & NFT", Allocation: 10},
		{ID: "defi", Name: "DeFi", Allocation: 15},
		{ID: "l1", Name: "Layer 1", Allocation: 15},
		{ID: "rwa", Name: "RWA", Allocation: 15},
		{ID: "stablecoin", Name: "Stablecoins", Allocation: 5},
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:        envOr("DB_PATH", "coreai.db"),
		DashboardPort: envInt("DASHBOARD_PORT", 8080),
		LogLevel:      envOr("LOG_LEVEL", "info"),

		AIProvider:      strings.ToLower(os.Getenv("AI_PROVIDER")),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OllamaURL:       envOr("OLLAMA_URL", ""),
		AIModel:         envOr("AI_MODEL", ""), // auto-resolved in AI engine
		AIMaxTokens:     envInt("AI_MAX_TOKENS", 1024),
		AITimeout:       time.Duration(envInt("AI_TIMEOUT_SECONDS", 60)) * time.Second,

		CoreRPCURL:         envOr("CORE_RPC_URL", "https://rpc.coredao.org"),
		CoreRPCFallbackURL: os.Getenv("CORE_RPC_FALLBACK_URL"),
		CoreChainID:        int64(envInt("CORE_CHAIN_ID", 1116)),
		CorePriceFallback:  envFloat("CORE_PRICE_FALLBACK", 1.20),
		CoreExplorerURL:    envOr("CORE_EXPLORER_URL", "https://scan.coredao.org"),

		WhaleMinUSD:       envFloat("WHALE_MIN_USD", 2000),
		WhaleBlocksToScan: envInt("WHALE_BLOCKS_TO_SCAN", 200),
		SourceRPS:         envFloat("SOURCE_RPS", 5),
		SourceBurst:       envInt("SOURCE_BURST", 10),

		WhaleRefreshCron: envOr("WHALE_REFRESH_CRON", "@every 10m"),
		InsightCron:      envOr("INSIGHT_CRON", "@every 1h"),

		InsightsFile:     os.Getenv("INSIGHTS_FILE"),
		ChatHistoryLimit: envInt("CHAT_HISTORY_LIMIT", 200),

		Categories: DefaultCategories(),
	}

	// Category overrides: "id:name:allocation,id:name:allocation"
	if v := os.Getenv("PORTFOLIO_CATEGORIES"); v != "" {
		cats, err := parseCategories(v)
		if err != nil {
			return nil, err
		}
		cfg.Categories = cats
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.AIProvider {
	case "", "anthropic", "openai", "ollama", "gemini":
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}
	if c.DashboardPort <= 0 || c.DashboardPort > 65535 {
		return fmt.Errorf("invalid DASHBOARD_PORT %d", c.DashboardPort)
	}
	if c.WhaleMinUSD < 0 {
		return fmt.Errorf("WHALE_MIN_USD must not be negative")
	}
	if err := allocation.ValidateSet(c.Categories, nil); err != nil {
		return fmt.Errorf("portfolio categories: %w", err)
	}
	return nil
}

// Registry returns the known category set.
func (c *Config) Registry() *allocation.Registry {
	return allocation.NewRegistry(c.Categories)
}

func (c *Config) TxExplorerURL(hash string) string {
	return strings.TrimRight(c.CoreExplorerURL, "/") + "/tx/" + hash
}

func (c *Config) AddressExplorerURL(addr string) string {
	return strings.TrimRight(c.CoreExplorerURL, "/") + "/address/" + addr
}

func parseCategories(s string) ([]allocation.Category, error) {
	var cats []allocation.Category
	for _, part := range splitTrim(s) {
		fields := strings.SplitN(part, ":", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("bad category entry %q, want id:name:allocation", part)
		}
		pct, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("bad allocation in %q: %w", part, err)
		}
		cats = append(cats, allocation.Category{
			ID:         strings.ToLower(strings.TrimSpace(fields[0])),
			Name:       strings.TrimSpace(fields[1]),
			Allocation: pct,
		})
	}
	return cats, nil
}

// helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
