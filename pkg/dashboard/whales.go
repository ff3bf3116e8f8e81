package dashboard

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/coreai-dashboard/pkg/ai"
	"github.com/coreai-dashboard/pkg/whale"
)

func (d *Dashboard) handleWhales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := whale.Filter{
		Timeframe: q.Get("timeframe"),
		Size:      q.Get("size"),
		Token:     q.Get("token"),
		Search:    q.Get("q"),
		Page:      queryInt(r, "page", 1),
		PageSize:  queryInt(r, "page_size", 10),
	}
	page, err := d.Whales.List(r.Context(), f)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (d *Dashboard) handleWhaleStats(w http.ResponseWriter, r *http.Request) {
	st, err := d.Whales.Stats(r.Context(), r.URL.Query().Get("timeframe"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (d *Dashboard) handleWhaleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Whales.Probe(r.Context()))
}

func (d *Dashboard) handleWhaleRefresh(w http.ResponseWriter, r *http.Request) {
	info, err := d.Whales.Refresh(r.Context())
	if err != nil {
		writeError(w, err, map[string]interface{}{"refresh": info})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type whaleView struct {
	whale.Transaction
	Size     string `json:"size"`
	Amount   string `json:"amount"`
	USD      string `json:"usd"`
	Age      string `json:"age"`
	Explorer string `json:"explorer_url,omitempty"`
	FromURL  string `json:"from_url,omitempty"`
	ToURL    string `json:"to_url,omitempty"`
}

func (d *Dashboard) lookupWhale(r *http.Request) (*whale.Transaction, error) {
	hash := mux.Vars(r)["hash"]
	tx, err := d.Whales.Get(r.Context(), hash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction %s", errNotFound, hash)
	}
	return tx, nil
}

func (d *Dashboard) handleWhale(w http.ResponseWriter, r *http.Request) {
	tx, err := d.lookupWhale(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	desc := whale.Describe(*tx, d.now())
	v := whaleView{
		Transaction: *tx,
		Size:        whale.ClassifySize(tx.ValueUSD),
		Amount:      whale.FormatCore(tx.Value),
		USD:         desc.USDValue,
		Age:         desc.Age,
	}
	if d.ExplorerURL != nil {
		v.Explorer = d.ExplorerURL(tx.Hash)
	}
	if d.AddressURL != nil {
		v.FromURL = d.AddressURL(tx.From)
		if tx.To != "" {
			v.ToURL = d.AddressURL(tx.To)
		}
	}
	writeJSON(w, http.StatusOK, v)
}

// handleWhaleAnalysis answers with the model's analysis, or the template
// analysis when no provider is configured or the call failed.
func (d *Dashboard) handleWhaleAnalysis(w http.ResponseWriter, r *http.Request) {
	tx, err := d.lookupWhale(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	desc := whale.Describe(*tx, d.now())

	var text string
	generated := false
	if d.Analyst != nil {
		text, err = d.Analyst.WhaleAnalysis(r.Context(), desc)
		switch {
		case err == nil:
			generated = true
		case errors.Is(err, ai.ErrAIDisabled), errors.Is(err, ai.ErrAIUnavailable):
			log.Debug().Err(err).Str("hash", tx.Hash).Msg("whale analysis from template")
		default:
			writeError(w, err, nil)
			return
		}
	}
	if text == "" {
		text = ai.WhaleFallback(desc)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hash":         tx.Hash,
		"analysis":     text,
		"ai_generated": generated,
		"is_real_data": tx.Real,
	})
}
