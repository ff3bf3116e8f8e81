package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/coreai-dashboard/pkg/ai"
	"github.com/coreai-dashboard/pkg/allocation"
	"github.com/coreai-dashboard/pkg/chat"
	"github.com/coreai-dashboard/pkg/db"
	"github.com/coreai-dashboard/pkg/metrics"
	"github.com/coreai-dashboard/pkg/portfolio"
	"github.com/coreai-dashboard/pkg/whale"
)

// WhaleAnalyst explains single whale transactions. *ai.Engine implements it.
type WhaleAnalyst interface {
	IsEnabled() bool
	WhaleAnalysis(ctx context.Context, tx ai.WhaleTx) (string, error)
}

type Deps struct {
	Store     *db.Store
	Portfolio *portfolio.Service
	Chat      *chat.Service
	Whales    *whale.Tracker
	Analyst   WhaleAnalyst
	Metrics   *metrics.Registry

	// ExplorerURL builds a block explorer link for a transaction hash. Optional.
	ExplorerURL func(hash string) string
	AddressURL  func(addr string) string
}

type Dashboard struct {
	Deps
	port int
	now  func() time.Time
}

func New(deps Deps, port int) *Dashboard {
	return &Dashboard{Deps: deps, port: port, now: time.Now}
}

// Router builds the API handler.
func (d *Dashboard) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	// portfolio
	api.HandleFunc("/allocations", d.handleAllocations).Methods(http.MethodGet)
	api.HandleFunc("/allocations/pending", d.handleSetPending).Methods(http.MethodPut)
	api.HandleFunc("/allocations/apply", d.handleApply).Methods(http.MethodPost)
	api.HandleFunc("/allocations/reset", d.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/allocations/history", d.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/reconcile", d.handleReconcile).Methods(http.MethodPost)

	// assistant
	api.HandleFunc("/chat", d.handleChatHistory).Methods(http.MethodGet)
	api.HandleFunc("/chat", d.handleChatSend).Methods(http.MethodPost)
	api.HandleFunc("/chat", d.handleChatClear).Methods(http.MethodDelete)
	api.HandleFunc("/chat/insight", d.handleChatInsight).Methods(http.MethodPost)
	api.HandleFunc("/chat/action/preview", d.handleActionPreview).Methods(http.MethodPost)
	api.HandleFunc("/chat/action/apply", d.handleActionApply).Methods(http.MethodPost)

	// whales
	api.HandleFunc("/whales", d.handleWhales).Methods(http.MethodGet)
	api.HandleFunc("/whales/stats", d.handleWhaleStats).Methods(http.MethodGet)
	api.HandleFunc("/whales/sources", d.handleWhaleSources).Methods(http.MethodGet)
	api.HandleFunc("/whales/refresh", d.handleWhaleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/whales/{hash}", d.handleWhale).Methods(http.MethodGet)
	api.HandleFunc("/whales/{hash}/analysis", d.handleWhaleAnalysis).Methods(http.MethodPost)

	api.HandleFunc("/stats", d.handleStats).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}

	return cors(r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (d *Dashboard) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", d.port),
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("🌐 Dashboard started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("Dashboard stopped")
		return nil
	}
}

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// writeError maps domain errors to status codes: bad input is 400, missing
// records 404, no live data 503, everything else 500.
func writeError(w http.ResponseWriter, err error, extra map[string]interface{}) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	body := map[string]interface{}{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, allocation.ErrInvalidChange),
		errors.Is(err, allocation.ErrUnknownCategory),
		errors.Is(err, allocation.ErrOutOfRange),
		errors.Is(err, allocation.ErrTotalNot100),
		errors.Is(err, portfolio.ErrNothingPending),
		errors.Is(err, whale.ErrInvalidFilter),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrNoChanges),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrMessageNotFound), errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, whale.ErrNoSource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// ---- stats ----

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.Store.GetStats()
	if err != nil {
		writeError(w, err, nil)
		return
	}
	out := map[string]interface{}{"counts": stats}
	if d.Whales != nil {
		out["whale_refresh"] = d.Whales.LastRefresh()
	}
	if d.Analyst != nil {
		out["ai_enabled"] = d.Analyst.IsEnabled()
	}
	writeJSON(w, http.StatusOK, out)
}
