package db

import (
	"time"

	"github.com/coreai-dashboard/pkg/allocation"
)

// ---- Portfolio ----

type AllocationSnapshot struct {
	ID         int64                 `json:"id"`
	Categories []allocation.Category `json:"categories"`
	Source     string                `json:"source"` // "manual","chat_action","api"
	AppliedAt  time.Time             `json:"applied_at"`
}

// ---- Chat ----

type ChatMessage struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"` // "user","ai"
	Content    string    `json:"content"`
	Source     string    `json:"source"`      // "welcome","ai","rules","insight","token_insight"
	ActionJSON string    `json:"action_json"` // JSON, empty when no action
	CreatedAt  time.Time `json:"created_at"`
}

// ---- Whale tracker ----

type WhaleTransaction struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       string    `json:"value"` // wei, base-10 string
	ValueUSD    float64   `json:"value_usd"`
	Timestamp   time.Time `json:"timestamp"`
	BlockNumber int64     `json:"block_number"`
	Type        string    `json:"type"` // "transfer","internal","contract"
	TokenSymbol string    `json:"token_symbol"`
	TokenName   string    `json:"token_name"`
	GasUsed     uint64    `json:"gas_used"`
	GasPrice    string    `json:"gas_price"` // wei
	Source      string    `json:"source"`    // which feed produced it
	Real        bool      `json:"is_real_data"`
}
