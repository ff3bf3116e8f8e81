package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coreai-dashboard/pkg/allocation"
	"github.com/coreai-dashboard/pkg/dashboard"
	"github.com/coreai-dashboard/pkg/report"
	"github.com/coreai-dashboard/pkg/scheduler"
	"github.com/coreai-dashboard/pkg/tui"
	"github.com/coreai-dashboard/pkg/whale"
)

// ---- serve ----

func serveCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API with scheduled whale refreshes and market insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()

			sched := scheduler.New()
			if err := sched.Add("whale-refresh", a.cfg.WhaleRefreshCron, func(ctx context.Context) error {
				_, err := a.tracker.Refresh(ctx)
				return err
			}); err != nil {
				return err
			}
			if err := sched.Add("market-insight", a.cfg.InsightCron, func(ctx context.Context) error {
				_, err := a.chat.PushInsight(ctx)
				return err
			}); err != nil {
				return err
			}

			dash := dashboard.New(dashboard.Deps{
				Store:       a.store,
				Portfolio:   a.portfolio,
				Chat:        a.chat,
				Whales:      a.tracker,
				Analyst:     a.engine,
				Metrics:     a.metrics,
				ExplorerURL: a.cfg.TxExplorerURL,
				AddressURL:  a.cfg.AddressExplorerURL,
			}, a.cfg.DashboardPort)

			printSummary(a)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return dash.Run(gctx) })
			g.Go(func() error { return sched.Run(gctx) })
			g.Go(func() error {
				// fill the cache once so the dashboard has data before the first tick
				if err := sched.Trigger(gctx, "whale-refresh"); err != nil {
					log.Warn().Err(err).Msg("initial whale refresh failed")
				}
				return nil
			})

			err := g.Wait()
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			log.Info().Msg("goodbye 👋")
			return err
		},
	}
}

func printSummary(a *app) {
	bold := color.New(color.Bold).SprintFunc()
	line := strings.Repeat("═", 60)
	fmt.Println("\n" + line)
	fmt.Println("  " + bold("🧠 COREAI DASHBOARD - RUNNING"))
	fmt.Println(line)
	fmt.Printf("  Dashboard: http://localhost:%d\n", a.cfg.DashboardPort)
	fmt.Printf("  Core RPC:  %s (chain %d)\n", a.cfg.CoreRPCURL, a.cfg.CoreChainID)
	fmt.Printf("  Whales:    min $%.0f, refresh %s\n", a.cfg.WhaleMinUSD, a.cfg.WhaleRefreshCron)
	fmt.Printf("  Sources:   %s\n", strings.Join(a.chain.Names(), " → "))
	fmt.Printf("  Portfolio: %s\n", strings.Join(a.portfolio.Registry().IDs(), ", "))
	aiStatus := color.RedString("❌ Disabled (rule-based replies only)")
	if a.engine.IsEnabled() {
		aiStatus = color.GreenString("✅ " + a.engine.Provider())
	}
	fmt.Printf("  AI Engine: %s\n", aiStatus)
	if stats, err := a.store.GetStats(); err == nil {
		fmt.Printf("  DB: %d chat messages, %d cached whale txs, %d applied allocations\n",
			stats["chat_messages"], stats["whale_transactions"], stats["allocation_history"])
	}
	fmt.Println(line + "\n")
}

// ---- reconcile ----

func reconcileCmd(appFn func() *app) *cobra.Command {
	var drop, apply bool
	cmd := &cobra.Command{
		Use:   "reconcile [file.json]",
		Short: "Rebase suggested changes onto the live allocation (reads stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raws, err := readRawChanges(in)
			if err != nil {
				return err
			}

			policy, label := allocation.RejectBatch, "reject"
			if drop {
				policy, label = allocation.DropInvalid, "drop"
			}
			changes, dropped, err := allocation.ParseChanges(raws, a.portfolio.Registry(), policy)
			if err != nil {
				return err
			}
			a.metrics.ObserveInvalid(label, len(dropped))
			out := cmd.OutOrStdout()
			report.Dropped(out, dropped)

			if !apply {
				p, err := a.portfolio.Propose(ctx, changes)
				if err != nil {
					return err
				}
				report.Proposal(out, p)
				return nil
			}
			p, err := a.portfolio.ApplyChanges(ctx, changes, "cli")
			if p != nil {
				report.Proposal(out, p)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, color.GreenString("applied"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "skip malformed changes instead of rejecting the batch")
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the result when it totals 100%")
	return cmd
}

// readRawChanges accepts a bare array or an object with a "changes" field.
func readRawChanges(r io.Reader) ([]allocation.RawChange, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, fmt.Errorf("no changes given")
	}

	var raws []allocation.RawChange
	if data[0] == '[' {
		err = json.Unmarshal(data, &raws)
	} else {
		var wrapped struct {
			Changes []allocation.RawChange `json:"changes"`
		}
		err = json.Unmarshal(data, &wrapped)
		raws = wrapped.Changes
	}
	if err != nil {
		return nil, fmt.Errorf("parse changes: %w", err)
	}
	return raws, nil
}

// ---- whales ----

func whalesCmd(appFn func() *app) *cobra.Command {
	var (
		f       whale.Filter
		refresh bool
		probe   bool
	)
	cmd := &cobra.Command{
		Use:   "whales",
		Short: "Fetch and list large CORE transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if probe {
				report.Sources(out, a.tracker.Probe(ctx))
				return nil
			}
			if refresh {
				info, err := a.tracker.Refresh(ctx)
				if err != nil {
					return err
				}
				report.Refresh(out, info)
			}

			page, err := a.tracker.List(ctx, f)
			if err != nil {
				return err
			}
			report.Whales(out, page.Transactions, time.Now())
			fmt.Fprintf(out, "page %d/%d, %d matching\n\n", page.Page, max(page.Pages, 1), page.Matched)

			st, err := a.tracker.Stats(ctx, page.Filter.Timeframe)
			if err != nil {
				return err
			}
			report.Stats(out, st)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Timeframe, "timeframe", "24h", "24h, 3d or 7d")
	cmd.Flags().StringVar(&f.Size, "size", "", "small, medium, large or mega")
	cmd.Flags().StringVar(&f.Token, "token", "", "token symbol")
	cmd.Flags().StringVarP(&f.Search, "query", "q", "", "search hash, address or symbol")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.PageSize, "page-size", 10, "rows per page")
	cmd.Flags().BoolVar(&refresh, "refresh", true, "fetch from the sources before listing")
	cmd.Flags().BoolVar(&probe, "probe", false, "check every source and exit")
	return cmd
}

// ---- adjust ----

func adjustCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "adjust",
		Short: "Edit the allocation interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()

			cats, err := a.portfolio.Snapshot(ctx)
			if err != nil {
				return err
			}
			model := tui.New(cats, func(edited []allocation.Category) error {
				if err := a.portfolio.SetPending(ctx, edited); err != nil {
					return err
				}
				return a.portfolio.Apply(ctx, "tui")
			})

			final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
			if err != nil {
				return err
			}
			if m, ok := final.(tui.Model); ok && m.Applied {
				report.Allocations(cmd.OutOrStdout(), m.Categories())
			}
			return nil
		},
	}
}

// ---- chat ----

func chatCmd(appFn func() *app) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the assistant a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			reply, err := a.chat.Send(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, reply.Content)
			if reply.Action == nil {
				return nil
			}

			fmt.Fprintln(out)
			preview, err := a.chat.PrepareAction(ctx, reply.Action)
			if err != nil {
				return err
			}
			if preview.Proposal == nil {
				fmt.Fprintln(out, preview.Note)
				if preview.Insight != nil {
					fmt.Fprintln(out, "\n"+preview.Insight.Content)
				}
				return nil
			}
			fmt.Fprintln(out, color.CyanString("Suggested: %s", reply.Action.Description))
			report.Proposal(out, preview.Proposal)

			if apply {
				if _, err := a.chat.ApplyAction(ctx, reply.Action); err != nil {
					return err
				}
				fmt.Fprintln(out, color.GreenString("applied"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the suggested action")
	return cmd
}
