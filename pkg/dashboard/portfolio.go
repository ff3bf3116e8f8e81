package dashboard

import (
	"net/http"

	"github.com/coreai-dashboard/pkg/allocation"
	"github.com/coreai-dashboard/pkg/portfolio"
)

type allocationsView struct {
	Current      []allocation.Category `json:"current"`
	Total        int                   `json:"total"`
	Pending      []allocation.Category `json:"pending,omitempty"`
	PendingTotal int                   `json:"pending_total,omitempty"`
	HasPending   bool                  `json:"has_pending"`
}

func (d *Dashboard) allocations(r *http.Request) (*allocationsView, error) {
	ctx := r.Context()
	cur, err := d.Portfolio.Current(ctx)
	if err != nil {
		return nil, err
	}
	pending, ok, err := d.Portfolio.Pending(ctx)
	if err != nil {
		return nil, err
	}
	v := &allocationsView{Current: cur, Total: allocation.Total(cur), HasPending: ok}
	if ok {
		v.Pending = pending
		v.PendingTotal = allocation.Total(pending)
	}
	return v, nil
}

func (d *Dashboard) writeAllocations(w http.ResponseWriter, r *http.Request) {
	v, err := d.allocations(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (d *Dashboard) handleAllocations(w http.ResponseWriter, r *http.Request) {
	d.writeAllocations(w, r)
}

func (d *Dashboard) handleSetPending(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Categories []allocation.Category `json:"categories"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	if err := d.Portfolio.SetPending(r.Context(), req.Categories); err != nil {
		writeError(w, err, nil)
		return
	}
	d.writeAllocations(w, r)
}

func (d *Dashboard) handleApply(w http.ResponseWriter, r *http.Request) {
	if err := d.Portfolio.Apply(r.Context(), "api"); err != nil {
		writeError(w, err, nil)
		return
	}
	d.writeAllocations(w, r)
}

func (d *Dashboard) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := d.Portfolio.Reset(r.Context()); err != nil {
		writeError(w, err, nil)
		return
	}
	d.writeAllocations(w, r)
}

func (d *Dashboard) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := d.Portfolio.History(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type droppedChange struct {
	Index    int    `json:"index"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// handleReconcile validates raw changes and previews them against the live
// allocation. policy "drop" skips malformed entries, anything else rejects
// the batch.
func (d *Dashboard) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Changes []allocation.RawChange `json:"changes"`
		Policy  string                 `json:"policy"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}

	policy, label := allocation.RejectBatch, "reject"
	if req.Policy == "drop" {
		policy, label = allocation.DropInvalid, "drop"
	}

	changes, dropped, err := allocation.ParseChanges(req.Changes, d.Portfolio.Registry(), policy)
	if err != nil {
		d.Metrics.ObserveInvalid(label, 1)
		writeError(w, err, nil)
		return
	}
	d.Metrics.ObserveInvalid(label, len(dropped))

	p, err := d.Portfolio.Propose(r.Context(), changes)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	out := struct {
		*portfolio.Proposal
		Dropped []droppedChange `json:"dropped,omitempty"`
	}{Proposal: p}
	for _, e := range dropped {
		out.Dropped = append(out.Dropped, droppedChange{Index: e.Index, Category: e.Raw.Category, Reason: e.Reason})
	}
	writeJSON(w, http.StatusOK, out)
}
