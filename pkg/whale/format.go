package whale

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coreai-dashboard/pkg/ai"
)

// Size buckets by USD value.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
	SizeMega   = "mega"
)

var weiPerCore = decimal.New(1, 18)

// CoreAmount converts a base-10 wei string to CORE. Malformed input is zero.
func CoreAmount(wei string) decimal.Decimal {
	v, err := decimal.NewFromString(wei)
	if err != nil {
		return decimal.Zero
	}
	return v.Div(weiPerCore)
}

// ClassifySize buckets a USD value: mega >= 1M, large >= 250k, medium >= 50k, else small.
func ClassifySize(usd float64) string {
	switch {
	case usd >= 1_000_000:
		return SizeMega
	case usd >= 250_000:
		return SizeLarge
	case usd >= 50_000:
		return SizeMedium
	default:
		return SizeSmall
	}
}

// FormatCore renders a wei amount as "1.50M CORE", "800.00K CORE" or "12.3456 CORE".
func FormatCore(wei string) string {
	v := CoreAmount(wei)
	million := decimal.NewFromInt(1_000_000)
	thousand := decimal.NewFromInt(1_000)
	switch {
	case v.GreaterThanOrEqual(million):
		return v.Div(million).StringFixed(2) + "M CORE"
	case v.GreaterThanOrEqual(thousand):
		return v.Div(thousand).StringFixed(2) + "K CORE"
	default:
		return v.StringFixed(4) + " CORE"
	}
}

func FormatUSD(usd float64) string {
	switch {
	case usd >= 1_000_000:
		return fmt.Sprintf("$%.2fM", usd/1_000_000)
	case usd >= 1_000:
		return fmt.Sprintf("$%.2fK", usd/1_000)
	default:
		return fmt.Sprintf("$%.2f", usd)
	}
}

// TimeAgo renders the age of t relative to now in the largest whole unit.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "Recently"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Describe prepares a transaction for the analysis prompt.
func Describe(tx Transaction, now time.Time) ai.WhaleTx {
	symbol := tx.TokenSymbol
	if symbol == "" {
		symbol = "CORE"
	}
	return ai.WhaleTx{
		Hash:        tx.Hash,
		Type:        tx.Type,
		TokenSymbol: symbol,
		TokenName:   tx.TokenName,
		Amount:      strings.TrimSuffix(FormatCore(tx.Value), " CORE"),
		USDValue:    FormatUSD(tx.ValueUSD),
		From:        tx.From,
		To:          tx.To,
		Age:         TimeAgo(tx.Timestamp, now),
	}
}
