package whale

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidFilter = errors.New("invalid whale filter")

// Timeframes accepted by the tracker.
var timeframes = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// Filter selects cached transactions for display. Zero values mean "all".
type Filter struct {
	Timeframe string `json:"timeframe"` // 24h | 3d | 7d, default 24h
	Size      string `json:"size"`      // small | medium | large | mega | all
	Token     string `json:"token"`
	Search    string `json:"q"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
}

// Normalize fills defaults and rejects unknown values.
func (f *Filter) Normalize() error {
	f.Timeframe = strings.ToLower(strings.TrimSpace(f.Timeframe))
	if f.Timeframe == "" {
		f.Timeframe = "24h"
	}
	if _, ok := timeframes[f.Timeframe]; !ok {
		return fmt.Errorf("%w: timeframe %q", ErrInvalidFilter, f.Timeframe)
	}

	f.Size = strings.ToLower(strings.TrimSpace(f.Size))
	switch f.Size {
	case "", "all":
		f.Size = ""
	case SizeSmall, SizeMedium, SizeLarge, SizeMega:
	default:
		return fmt.Errorf("%w: size %q", ErrInvalidFilter, f.Size)
	}

	f.Search = strings.TrimSpace(f.Search)
	// a full-length 0x query is an address lookup and must be well formed
	if strings.HasPrefix(f.Search, "0x") && len(f.Search) == 42 && !common.IsHexAddress(f.Search) {
		return fmt.Errorf("%w: bad address %q", ErrInvalidFilter, f.Search)
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	return nil
}

// Window returns the timeframe as a duration. Call Normalize first.
func (f Filter) Window() time.Duration {
	return timeframes[f.Timeframe]
}

// Dedupe keeps the first occurrence of each hash and drops hashless entries.
func Dedupe(txs []Transaction) []Transaction {
	seen := make(map[string]bool, len(txs))
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		key := strings.ToLower(tx.Hash)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tx)
	}
	return out
}

func FilterSize(txs []Transaction, size string) []Transaction {
	if size == "" || size == "all" {
		return txs
	}
	var lo, hi float64
	switch size {
	case SizeSmall:
		lo, hi = 2_000, 50_000
	case SizeMedium:
		lo, hi = 50_000, 250_000
	case SizeLarge:
		lo, hi = 250_000, 1_000_000
	case SizeMega:
		lo, hi = 1_000_000, 0
	default:
		return nil
	}
	return keep(txs, func(tx Transaction) bool {
		return tx.ValueUSD >= lo && (hi == 0 || tx.ValueUSD < hi)
	})
}

// FilterSearch matches q case-insensitively against hash, sender, recipient and symbol.
func FilterSearch(txs []Transaction, q string) []Transaction {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return txs
	}
	return keep(txs, func(tx Transaction) bool {
		return strings.Contains(strings.ToLower(tx.Hash), q) ||
			strings.Contains(strings.ToLower(tx.From), q) ||
			strings.Contains(strings.ToLower(tx.To), q) ||
			strings.Contains(strings.ToLower(tx.TokenSymbol), q)
	})
}

func FilterToken(txs []Transaction, symbol string) []Transaction {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || strings.EqualFold(symbol, "all") {
		return txs
	}
	return keep(txs, func(tx Transaction) bool {
		return strings.EqualFold(tx.TokenSymbol, symbol)
	})
}

func FilterTimeframe(txs []Transaction, window time.Duration, now time.Time) []Transaction {
	if window <= 0 {
		return txs
	}
	cutoff := now.Add(-window)
	return keep(txs, func(tx Transaction) bool {
		return !tx.Timestamp.Before(cutoff)
	})
}

// SortNewest orders by timestamp descending, then by USD value.
func SortNewest(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.After(txs[j].Timestamp)
		}
		return txs[i].ValueUSD > txs[j].ValueUSD
	})
}

// Paginate returns the 1-based page and the total number of pages.
func Paginate(txs []Transaction, page, size int) ([]Transaction, int) {
	if size < 1 {
		size = 10
	}
	pages := (len(txs) + size - 1) / size
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(txs) {
		return []Transaction{}, pages
	}
	end := min(start+size, len(txs))
	return txs[start:end], pages
}

// Apply runs the full display pipeline on an already normalized filter.
func (f Filter) Apply(txs []Transaction, now time.Time) (page []Transaction, matched, pages int) {
	out := Dedupe(txs)
	out = FilterTimeframe(out, f.Window(), now)
	out = FilterToken(out, f.Token)
	out = FilterSize(out, f.Size)
	out = FilterSearch(out, f.Search)
	SortNewest(out)
	page, pages = Paginate(out, f.Page, f.PageSize)
	return page, len(out), pages
}

func keep(txs []Transaction, fn func(Transaction) bool) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if fn(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// ── stats ──

type TypeStats struct {
	Volume     float64 `json:"volume"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

type Stats struct {
	Count       int                  `json:"count"`
	TotalVolume float64              `json:"total_volume"`
	Largest     float64              `json:"largest"`
	ByType      map[string]TypeStats `json:"by_type"`
	BySize      map[string]int       `json:"by_size"`
}

// Summarize computes volume totals, per-type shares and size buckets.
func Summarize(txs []Transaction) Stats {
	st := Stats{
		Count:  len(txs),
		ByType: map[string]TypeStats{},
		BySize: map[string]int{},
	}
	for _, tx := range txs {
		st.TotalVolume += tx.ValueUSD
		if tx.ValueUSD > st.Largest {
			st.Largest = tx.ValueUSD
		}
		ts := st.ByType[tx.Type]
		ts.Volume += tx.ValueUSD
		ts.Count++
		st.ByType[tx.Type] = ts
		st.BySize[ClassifySize(tx.ValueUSD)]++
	}
	for k, ts := range st.ByType {
		if st.TotalVolume > 0 {
			ts.Percentage = ts.Volume / st.TotalVolume * 100
		}
		st.ByType[k] = ts
	}
	return st
}
