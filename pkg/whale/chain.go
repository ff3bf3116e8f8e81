package whale

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/coreai-dashboard/pkg/metrics"
)

type guardedSource struct {
	src     Source
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// Chain tries its sources in order and returns the first non-empty result.
// Each source sits behind its own circuit breaker and rate limiter so a dead
// explorer or node is skipped quickly instead of stalling every refresh.
type Chain struct {
	sources []guardedSource
	metrics *metrics.Registry
}

// Result reports which source served a fetch.
type Result struct {
	Transactions []Transaction `json:"transactions"`
	Source       string        `json:"source"`
	Real         bool          `json:"is_real_data"`
	Failures     []string      `json:"failures,omitempty"`
}

// SourceStatus is one line of a Probe report.
type SourceStatus struct {
	Name    string `json:"name"`
	Breaker string `json:"breaker"`
	OK      bool   `json:"ok"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

func NewChain(rps float64, burst int, m *metrics.Registry, sources ...Source) *Chain {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	c := &Chain{metrics: m}
	for _, src := range sources {
		st := gobreaker.Settings{
			Name:     src.Name(),
			Interval: 60 * time.Second,
			Timeout:  60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).Msg("🔌 Whale source breaker")
			},
		}
		c.sources = append(c.sources, guardedSource{
			src:     src,
			breaker: gobreaker.NewCircuitBreaker(st),
			limiter: rate.NewLimiter(limit, burst),
		})
	}
	return c
}

func (c *Chain) call(ctx context.Context, g guardedSource, q Query) ([]Transaction, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.src.Fetch(ctx, q)
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.metrics.ObserveWhaleFetch(g.src.Name(), "error", elapsed)
		return nil, err
	}
	txs, _ := res.([]Transaction)
	result := "ok"
	if len(txs) == 0 {
		result = "empty"
	}
	c.metrics.ObserveWhaleFetch(g.src.Name(), result, elapsed)
	return txs, nil
}

// Fetch walks the chain. Empty results fall through to the next source.
func (c *Chain) Fetch(ctx context.Context, q Query) (*Result, error) {
	var failures []string
	for _, g := range c.sources {
		txs, err := c.call(ctx, g, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug().Err(err).Str("source", g.src.Name()).Msg("whale source failed, trying next")
			failures = append(failures, fmt.Sprintf("%s: %v", g.src.Name(), err))
			continue
		}
		if len(txs) == 0 {
			failures = append(failures, g.src.Name()+": no transactions")
			continue
		}

		isReal := false
		for _, tx := range txs {
			if tx.Real {
				isReal = true
				break
			}
		}
		return &Result{Transactions: txs, Source: g.src.Name(), Real: isReal, Failures: failures}, nil
	}
	return nil, fmt.Errorf("%w (%d tried)", ErrNoSource, len(c.sources))
}

// Probe queries every source concurrently and reports its health.
func (c *Chain) Probe(ctx context.Context, q Query) []SourceStatus {
	out := make([]SourceStatus, len(c.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, gs := range c.sources {
		g.Go(func() error {
			start := time.Now()
			txs, err := c.call(gctx, gs, q)
			st := SourceStatus{
				Name:    gs.src.Name(),
				Breaker: gs.breaker.State().String(),
				OK:      err == nil,
				Count:   len(txs),
				Latency: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				st.Error = err.Error()
			}
			out[i] = st
			return nil
		})
	}
	g.Wait()
	return out
}

func (c *Chain) Names() []string {
	names := make([]string, len(c.sources))
	for i, g := range c.sources {
		names[i] = g.src.Name()
	}
	return names
}
