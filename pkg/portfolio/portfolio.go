package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coreai-dashboard/pkg/allocation"
	"github.com/coreai-dashboard/pkg/db"
	"github.com/coreai-dashboard/pkg/metrics"
)

var ErrNothingPending = errors.New("no pending allocation")

// Proposal is the preview shown before a set of changes is applied.
type Proposal struct {
	Categories []allocation.Category `json:"categories"`
	Changes    []allocation.Change   `json:"changes"`
	Clamped    []string              `json:"clamped,omitempty"`
	Total      int                   `json:"total"`
	Balanced   bool                  `json:"balanced"`
}

// Service owns the persisted portfolio: the current allocation and an
// optional pending edit that becomes current on Apply.
type Service struct {
	store   *db.Store
	reg     *allocation.Registry
	metrics *metrics.Registry
	mu      sync.Mutex
}

func New(store *db.Store, reg *allocation.Registry, m *metrics.Registry) *Service {
	return &Service{store: store, reg: reg, metrics: m}
}

// Init seeds the registry's categories into the store. Applied values survive restarts.
func (s *Service) Init(ctx context.Context) error {
	if err := s.store.SeedCategories(s.reg.Categories()); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	return nil
}

func (s *Service) Registry() *allocation.Registry {
	return s.reg
}

func (s *Service) Current(ctx context.Context) ([]allocation.Category, error) {
	return s.store.GetCategories()
}

// Pending returns the pending edit merged over current values.
func (s *Service) Pending(ctx context.Context) ([]allocation.Category, bool, error) {
	return s.store.GetPending()
}

// Snapshot is the allocation a newly clicked action should be rebased onto:
// the pending edit when there is one, otherwise the applied allocation.
func (s *Service) Snapshot(ctx context.Context) ([]allocation.Category, error) {
	pending, ok, err := s.store.GetPending()
	if err != nil {
		return nil, err
	}
	if ok {
		return pending, nil
	}
	return s.store.GetCategories()
}

func (s *Service) Live(ctx context.Context) (map[string]int, error) {
	cats, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return allocation.Live(cats), nil
}

// SetPending replaces the pending edit. Categories left out keep their current value.
// The total is not checked here; that happens on Apply.
func (s *Service) SetPending(ctx context.Context, cats []allocation.Category) error {
	seen := map[string]bool{}
	for _, c := range cats {
		if !s.reg.Has(c.ID) {
			return fmt.Errorf("%w: %s", allocation.ErrUnknownCategory, c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate category %s", c.ID)
		}
		seen[c.ID] = true
		if c.Allocation < allocation.MinPercent || c.Allocation > allocation.MaxPercent {
			return fmt.Errorf("%w: %s=%d", allocation.ErrOutOfRange, c.ID, c.Allocation)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SetPending(cats)
}

// Apply promotes the pending edit. It refuses unless the pending total is exactly 100.
func (s *Service) Apply(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(source)
}

func (s *Service) applyLocked(source string) error {
	pending, ok, err := s.store.GetPending()
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.ObserveApply("nothing_pending")
		return ErrNothingPending
	}
	if err := allocation.ValidateSet(pending, s.reg); err != nil {
		s.metrics.ObserveApply("rejected")
		return err
	}
	if err := s.store.CommitPending(source); err != nil {
		s.metrics.ObserveApply("error")
		return fmt.Errorf("commit allocation: %w", err)
	}
	s.metrics.ObserveApply("ok")
	log.Info().Str("source", source).Int("categories", len(pending)).Msg("✅ Allocation applied")
	return nil
}

// Reset drops the pending edit.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ClearPending()
}

func (s *Service) History(ctx context.Context, limit int) ([]db.AllocationSnapshot, error) {
	return s.store.GetAllocationHistory(limit)
}

// Propose reconciles changes against the live snapshot and overlays the
// result onto it, without persisting anything.
func (s *Service) Propose(ctx context.Context, changes []allocation.Change) (*Proposal, error) {
	base, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.propose(base, changes), nil
}

func (s *Service) propose(base []allocation.Category, changes []allocation.Change) *Proposal {
	reconciled := allocation.Reconcile(changes, allocation.Live(base))

	var clamped []string
	for i := range changes {
		if allocation.Clamped(changes[i], reconciled[i]) {
			clamped = append(clamped, reconciled[i].Category)
		}
	}
	s.metrics.ObserveReconcile(len(reconciled), len(clamped))

	cats := allocation.Apply(base, reconciled)
	total := allocation.Total(cats)
	return &Proposal{
		Categories: cats,
		Changes:    reconciled,
		Clamped:    clamped,
		Total:      total,
		Balanced:   total == allocation.MaxPercent,
	}
}

// ApplyChanges stores the proposal as pending and applies it. When the
// proposal does not total 100 the pending edit is kept for manual balancing
// and ErrTotalNot100 is returned along with the proposal.
func (s *Service) ApplyChanges(ctx context.Context, changes []allocation.Change, source string) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p := s.propose(base, changes)
	if err := s.store.SetPending(p.Categories); err != nil {
		return nil, err
	}
	if !p.Balanced {
		s.metrics.ObserveApply("rejected")
		return p, fmt.Errorf("%w (got %d)", allocation.ErrTotalNot100, p.Total)
	}
	return p, s.applyLocked(source)
}
