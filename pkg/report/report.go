package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/coreai-dashboard/pkg/allocation"
	"github.com/coreai-dashboard/pkg/portfolio"
	"github.com/coreai-dashboard/pkg/whale"
)

var (
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	t.SetColumnSeparator(" ")
	t.SetHeaderLine(true)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func totalLine(total int) string {
	s := fmt.Sprintf("Total: %d%%", total)
	if total == allocation.MaxPercent {
		return green(s)
	}
	return red(s + " (must be 100%)")
}

// Allocations prints a category list with its total.
func Allocations(w io.Writer, cats []allocation.Category) {
	t := newTable(w, "Category", "Name", "Allocation")
	for _, c := range cats {
		t.Append([]string{c.ID, c.Name, fmt.Sprintf("%d%%", c.Allocation)})
	}
	t.Render()
	fmt.Fprintln(w, totalLine(allocation.Total(cats)))
}

// Proposal prints reconciled changes and the resulting allocation. Changes
// that hit the 0/100 bound are flagged.
func Proposal(w io.Writer, p *portfolio.Proposal) {
	clamped := map[string]bool{}
	for _, id := range p.Clamped {
		clamped[id] = true
	}

	t := newTable(w, "Category", "From", "To", "Delta", "Note")
	for _, c := range p.Changes {
		note := ""
		if clamped[c.Category] {
			note = yellow("clamped")
		}
		t.Append([]string{
			c.Category,
			fmt.Sprintf("%d%%", c.From),
			fmt.Sprintf("%d%%", c.To),
			fmt.Sprintf("%+d", c.Delta()),
			note,
		})
	}
	t.Render()
	fmt.Fprintln(w)
	Allocations(w, p.Categories)
}

// Dropped lists changes rejected during validation.
func Dropped(w io.Writer, dropped []*allocation.InvalidChangeError) {
	if len(dropped) == 0 {
		return
	}
	fmt.Fprintln(w, red(fmt.Sprintf("%d change(s) dropped:", len(dropped))))
	for _, d := range dropped {
		fmt.Fprintf(w, "  #%d %s: %s\n", d.Index, d.Raw.Category, d.Reason)
	}
}

// Whales prints a page of whale transactions.
func Whales(w io.Writer, txs []whale.Transaction, now time.Time) {
	t := newTable(w, "Hash", "Type", "Amount", "USD", "Size", "Age")
	for _, tx := range txs {
		size := whale.ClassifySize(tx.ValueUSD)
		if size == whale.SizeMega {
			size = yellow(size)
		}
		t.Append([]string{
			shortHash(tx.Hash),
			tx.Type,
			whale.FormatCore(tx.Value),
			whale.FormatUSD(tx.ValueUSD),
			size,
			whale.TimeAgo(tx.Timestamp, now),
		})
	}
	t.Render()
}

// Refresh prints the outcome of a whale refresh.
func Refresh(w io.Writer, info whale.RefreshInfo) {
	label := red("simulated")
	if info.Real {
		label = green("live")
	}
	fmt.Fprintf(w, "%d transactions from %s (%s) at CORE $%.2f\n", info.Count, info.Source, label, info.Price)
	for _, f := range info.Failures {
		fmt.Fprintln(w, dim("  skipped "+f))
	}
}

// Stats prints a whale volume summary.
func Stats(w io.Writer, st whale.Stats) {
	fmt.Fprintf(w, "%d transactions, volume %s, largest %s\n", st.Count, whale.FormatUSD(st.TotalVolume), whale.FormatUSD(st.Largest))
	t := newTable(w, "Type", "Count", "Volume", "Share")
	for _, typ := range []string{whale.TypeTransfer, whale.TypeInternal, whale.TypeContract} {
		ts, ok := st.ByType[typ]
		if !ok {
			continue
		}
		t.Append([]string{typ, strconv.Itoa(ts.Count), whale.FormatUSD(ts.Volume), fmt.Sprintf("%.1f%%", ts.Percentage)})
	}
	t.Render()
}

// Sources prints a probe of the whale source chain.
func Sources(w io.Writer, statuses []whale.SourceStatus) {
	t := newTable(w, "Source", "Breaker", "Status", "Count", "Latency")
	for _, s := range statuses {
		status := green("ok")
		if !s.OK {
			status = red(s.Error)
		}
		t.Append([]string{s.Name, s.Breaker, status, strconv.Itoa(s.Count), s.Latency})
	}
	t.Render()
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "..." + h[len(h)-4:]
}
