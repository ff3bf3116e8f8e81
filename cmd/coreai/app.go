package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/coreai-dashboard/pkg/advisor"
	"github.com/coreai-dashboard/pkg/ai"
	"github.com/coreai-dashboard/pkg/chat"
	"github.com/coreai-dashboard/pkg/config"
	"github.com/coreai-dashboard/pkg/db"
	"github.com/coreai-dashboard/pkg/metrics"
	"github.com/coreai-dashboard/pkg/portfolio"
	"github.com/coreai-dashboard/pkg/whale"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg       *config.Config
	store     *db.Store
	metrics   *metrics.Registry
	portfolio *portfolio.Service
	engine    *ai.Engine
	chat      *chat.Service
	chain     *whale.Chain
	tracker   *whale.Tracker
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := db.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("database init: %w", err)
	}

	m := metrics.New()
	pf := portfolio.New(store, cfg.Registry(), m)
	if err := pf.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("seed portfolio: %w", err)
	}

	catalog, err := advisor.LoadCatalog(cfg.InsightsFile)
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Info().Int("insights", catalog.Len()).Msg("📚 Insight catalog loaded")

	engine := ai.NewEngine(cfg)
	a := &app{
		cfg:       cfg,
		store:     store,
		metrics:   m,
		portfolio: pf,
		engine:    engine,
		chat:      chat.New(store, pf, engine, catalog, m, cfg.ChatHistoryLimit),
	}
	a.chain = whale.NewChain(cfg.SourceRPS, cfg.SourceBurst, m, a.whaleSources(ctx)...)
	a.tracker = whale.NewTracker(
		a.chain,
		store,
		whale.StaticPrice(cfg.CorePriceFallback),
		cfg.CorePriceFallback,
		cfg.WhaleMinUSD,
	)
	return a, nil
}

// whaleSources builds the fallback chain: primary node, optional second
// node, then simulated data.
func (a *app) whaleSources(ctx context.Context) []whale.Source {
	var sources []whale.Source
	for i, url := range []string{a.cfg.CoreRPCURL, a.cfg.CoreRPCFallbackURL} {
		if strings.TrimSpace(url) == "" {
			continue
		}
		name := "core-rpc"
		if i > 0 {
			name = "core-rpc-fallback"
		}
		src, err := whale.DialRPC(ctx, name, url, a.cfg.CoreChainID, a.cfg.WhaleBlocksToScan)
		if err != nil {
			log.Warn().Err(err).Str("source", name).Msg("⚠️ RPC source unavailable")
			continue
		}
		sources = append(sources, src)
	}
	return append(sources, &whale.SimulatedSource{})
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close store")
	}
}
