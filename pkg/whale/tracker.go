package whale

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreai-dashboard/pkg/db"
)

// retention is how long cached transactions are kept; it covers the widest timeframe.
const retention = 7 * 24 * time.Hour

// cacheScan caps how many cached rows a listing considers.
const cacheScan = 2000

// Tracker refreshes whale transactions from the source chain into the store
// and serves filtered views of the cache.
type Tracker struct {
	chain         *Chain
	store         *db.Store
	price         PriceFeed
	fallbackPrice float64
	minUSD        float64
	limit         int
	now           func() time.Time

	mu   sync.RWMutex
	last RefreshInfo
}

// RefreshInfo describes the most recent refresh.
type RefreshInfo struct {
	At       time.Time `json:"at"`
	Source   string    `json:"source"`
	Real     bool      `json:"is_real_data"`
	Count    int       `json:"count"`
	Price    float64   `json:"core_price"`
	Failures []string  `json:"failures,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type Page struct {
	Transactions []Transaction `json:"transactions"`
	Matched      int           `json:"matched"`
	Page         int           `json:"page"`
	Pages        int           `json:"pages"`
	Filter       Filter        `json:"filter"`
	LastRefresh  RefreshInfo   `json:"last_refresh"`
}

func NewTracker(chain *Chain, store *db.Store, price PriceFeed, fallbackPrice, minUSD float64) *Tracker {
	return &Tracker{
		chain:         chain,
		store:         store,
		price:         price,
		fallbackPrice: fallbackPrice,
		minUSD:        minUSD,
		limit:         50,
		now:           time.Now,
	}
}

func (t *Tracker) corePrice(ctx context.Context) float64 {
	if t.price != nil {
		if p, err := t.price.Price(ctx); err == nil && p > 0 {
			return p
		} else if err != nil {
			log.Warn().Err(err).Float64("fallback", t.fallbackPrice).Msg("⚠️ CORE price unavailable, using fallback")
		}
	}
	return t.fallbackPrice
}

// Refresh fetches through the source chain and caches the result.
func (t *Tracker) Refresh(ctx context.Context) (RefreshInfo, error) {
	price := t.corePrice(ctx)
	info := RefreshInfo{At: t.now().UTC(), Price: price}

	res, err := t.chain.Fetch(ctx, Query{MinUSD: t.minUSD, Limit: t.limit, Price: price})
	if err != nil {
		info.Error = err.Error()
		t.setLast(info)
		return info, err
	}

	txs := Dedupe(res.Transactions)
	n, err := t.store.UpsertWhaleTransactions(txs)
	if err != nil {
		info.Error = err.Error()
		t.setLast(info)
		return info, fmt.Errorf("cache whale transactions: %w", err)
	}
	if pruned, err := t.store.PruneWhaleTransactions(t.now().Add(-retention)); err == nil && pruned > 0 {
		log.Debug().Int64("pruned", pruned).Msg("old whale transactions pruned")
	}

	info.Source, info.Real, info.Count, info.Failures = res.Source, res.Real, n, res.Failures
	t.setLast(info)

	log.Info().Str("source", res.Source).Bool("real", res.Real).Int("count", n).Float64("price", price).Msg("🐋 Whale transactions refreshed")
	return info, nil
}

func (t *Tracker) setLast(info RefreshInfo) {
	t.mu.Lock()
	t.last = info
	t.mu.Unlock()
}

func (t *Tracker) LastRefresh() RefreshInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func (t *Tracker) cached(ctx context.Context, window time.Duration) ([]Transaction, error) {
	return t.store.GetWhaleTransactions(t.now().Add(-window), cacheScan)
}

// List reads the cache through the display pipeline.
func (t *Tracker) List(ctx context.Context, f Filter) (*Page, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	txs, err := t.cached(ctx, f.Window())
	if err != nil {
		return nil, err
	}
	page, matched, pages := f.Apply(txs, t.now())
	return &Page{
		Transactions: page,
		Matched:      matched,
		Page:         f.Page,
		Pages:        pages,
		Filter:       f,
		LastRefresh:  t.LastRefresh(),
	}, nil
}

// Stats summarizes every cached transaction in the timeframe.
func (t *Tracker) Stats(ctx context.Context, timeframe string) (Stats, error) {
	f := Filter{Timeframe: timeframe}
	if err := f.Normalize(); err != nil {
		return Stats{}, err
	}
	txs, err := t.cached(ctx, f.Window())
	if err != nil {
		return Stats{}, err
	}
	return Summarize(FilterTimeframe(Dedupe(txs), f.Window(), t.now())), nil
}

// Get returns a cached transaction by hash, or nil.
func (t *Tracker) Get(ctx context.Context, hash string) (*Transaction, error) {
	return t.store.GetWhaleTransaction(hash)
}

func (t *Tracker) Probe(ctx context.Context) []SourceStatus {
	return t.chain.Probe(ctx, Query{MinUSD: t.minUSD, Limit: 1, Price: t.corePrice(ctx)})
}
