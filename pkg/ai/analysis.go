package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// historyTurns is how much of the transcript goes into a chat prompt.
const historyTurns = 5

type Turn struct {
	Sender  string `json:"sender"` // "user" | "ai"
	Content string `json:"content"`
}

// WhaleTx is a whale transaction already formatted for display.
type WhaleTx struct {
	Hash        string
	Type        string
	TokenSymbol string
	TokenName   string
	Amount      string // "1.2M"
	USDValue    string // "$1.44M"
	From        string
	To          string
	Age         string // "3h ago"
}

// ── chat ──

// ChatResponse asks the model for a reply given the latest message and the
// recent transcript. The caller extracts allocation changes from the text.
func (e *Engine) ChatResponse(ctx context.Context, message string, history []Turn) (string, error) {
	if !e.IsEnabled() {
		return "", ErrAIDisabled
	}
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}

	var sb strings.Builder
	for _, t := range history {
		who := "Assistant"
		if t.Sender == "user" {
			who = "User"
		}
		fmt.Fprintf(&sb, "%s: %s\n\n", who, truncate(t.Content, 800))
	}

	prompt := fmt.Sprintf(`You are CoreAI, an assistant for cryptocurrency portfolio management on Core blockchain.
Portfolio categories: AI, Meme, RWA (Real World Assets), Big Cap, DeFi, Layer 1 and Stablecoins.
When suggesting portfolio changes, state them as "increase <category> from X%% to Y%%" or "decrease <category> from X%% to Y%%".

Previous conversation:
%s
User's latest message: %s

Respond concisely.`, sb.String(), message)

	return e.callLLM(ctx, prompt)
}

// ── token insights ──

// TokenInsights returns a short market note for symbol. When the provider call
// fails a generic template is returned together with ErrAIUnavailable.
func (e *Engine) TokenInsights(ctx context.Context, symbol, marketContext string) (string, error) {
	if !e.IsEnabled() {
		return "", ErrAIDisabled
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	prompt := fmt.Sprintf(`Provide a brief market analysis for the cryptocurrency %s.
%s
Cover recent price action, on-chain metrics if relevant, sentiment and catalysts.
Max 150 words, bullet points. Context: a portfolio app for Core blockchain ecosystem tokens.`, symbol, marketContext)

	text, err := e.callLLM(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("⚠️ Token insight call failed, using template")
		return tokenInsightFallback(symbol, marketContext), fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	}
	return text, nil
}

func tokenInsightFallback(symbol, marketContext string) string {
	kind := "Protocol or application token"
	if len(symbol) <= 4 {
		kind = "Likely native or major ecosystem token"
	}
	ctxLine := "• Current market data temporarily unavailable"
	if marketContext != "" {
		ctxLine = "• Market Context: " + marketContext
	}

	return fmt.Sprintf(`# %[1]s Token Analysis

## Market Overview
The %[1]s token is part of the Core blockchain ecosystem, which focuses on Bitcoin-secured smart contracts and decentralized finance.

## Technical Profile
• **Blockchain**: Core (Bitcoin-secured)
• **Type**: %[2]s
• **Liquidity**: Monitor trading volume and market depth

## Trading Considerations
• **Volatility**: Cryptocurrency markets are highly volatile
• **Risk Management**: Use appropriate position sizing and stop losses

## Core Ecosystem Context
%[3]s

*Note: general analysis, live AI insights are currently unavailable.*`, symbol, kind, ctxLine)
}

// ── whale analysis ──

// WhaleAnalysis explains a single whale transaction. Like TokenInsights it
// falls back to a template when the provider call fails.
func (e *Engine) WhaleAnalysis(ctx context.Context, tx WhaleTx) (string, error) {
	if !e.IsEnabled() {
		return WhaleFallback(tx), ErrAIDisabled
	}

	prompt := fmt.Sprintf(`You are a blockchain analyst covering whale activity on Core blockchain.
Analyze this transaction:
- Type: %s
- Token: %s (%s)
- Amount: %s tokens
- USD Value: %s
- From: %s
- To: %s
- Time: %s
- Hash: %s

Cover significance, the wallets involved, likely market impact and what to watch.
Use Markdown headings. Flag speculative conclusions.`,
		tx.Type, tx.TokenSymbol, tx.TokenName, tx.Amount, tx.USDValue, tx.From, tx.To, tx.Age, tx.Hash)

	text, err := e.callLLM(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Str("hash", abbrev(tx.Hash)).Msg("⚠️ Whale analysis call failed, using template")
		return WhaleFallback(tx), fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	}
	return text, nil
}

// WhaleFallback is the deterministic analysis used without a model.
func WhaleFallback(tx WhaleTx) string {
	sender, recipient, impact, pattern, watch := "exchange wallet", "likely a custodial wallet",
		"indicate OTC trading activity", "possible token redistribution", "increased volatility"
	switch tx.Type {
	case "sell":
		sender, impact, pattern, watch = "long-term holder", "create selling pressure", "distribution phase", "downward pressure"
	case "buy":
		recipient, impact, pattern, watch = "accumulating this token", "signal strong buying interest", "accumulation by large investors", "upward movement"
	}

	return fmt.Sprintf(`# Whale Transaction Analysis

## Transaction Overview
A significant **%s** of **%s %s** (worth approximately %s) occurred %s.

## Wallet Analysis
- **Sender**: %s appears to be a %s based on transaction history.
- **Recipient**: %s is %s.

## Market Impact
Transactions of this size can %s for %s.

## Related On-Chain Activity
Similar-sized transactions recently would suggest %s.

## Recommendation
Monitor %s price action over the next 24-48 hours for potential %s.

*Note: template analysis generated while the AI service is unavailable.*`,
		tx.Type, tx.Amount, tx.TokenSymbol, tx.USDValue, tx.Age,
		abbrev(tx.From), sender,
		abbrev(tx.To), recipient,
		impact, tx.TokenSymbol,
		pattern,
		tx.TokenSymbol, watch)
}
