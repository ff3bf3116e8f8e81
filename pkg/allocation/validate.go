package allocation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidChange   = errors.New("invalid allocation change")
	ErrUnknownCategory = errors.New("unknown category")
	ErrOutOfRange      = errors.New("allocation out of range")
	ErrTotalNot100     = errors.New("allocations must total 100")
)

// RawChange is a change as it arrives from JSON or parsed AI text, before any
// numeric validation. From and To may be numbers or numeric strings.
type RawChange struct {
	Category string          `json:"category"`
	Name     string          `json:"name"`
	From     json.RawMessage `json:"from"`
	To       json.RawMessage `json:"to"`
}

// InvalidChangeError carries the offending entry. It matches ErrInvalidChange
// and, when set, the more specific Err.
type InvalidChangeError struct {
	Index  int
	Raw    RawChange
	Reason string
	Err    error
}

func (e *InvalidChangeError) Error() string {
	return fmt.Sprintf("change %d (category %q): %s", e.Index, e.Raw.Category, e.Reason)
}

func (e *InvalidChangeError) Is(target error) bool {
	if target == ErrInvalidChange {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

func (e *InvalidChangeError) Unwrap() error {
	return e.Err
}

type Policy int

const (
	// RejectBatch fails the whole batch on the first malformed entry.
	RejectBatch Policy = iota
	// DropInvalid skips malformed entries and reports them.
	DropInvalid
)

// ParseChange validates a single raw change. reg may be nil, in which case
// category membership is not checked.
func ParseChange(index int, raw RawChange, reg *Registry) (Change, error) {
	fail := func(reason string, err error) (Change, error) {
		return Change{}, &InvalidChangeError{Index: index, Raw: raw, Reason: reason, Err: err}
	}

	cat := strings.ToLower(strings.TrimSpace(raw.Category))
	if cat == "" {
		return fail("missing category", nil)
	}
	name := raw.Name
	if reg != nil {
		known, ok := reg.Get(cat)
		if !ok {
			return fail("unknown category", ErrUnknownCategory)
		}
		if name == "" {
			name = known.Name
		}
	}

	from, err := parsePercent(raw.From)
	if err != nil {
		return fail("from: "+err.Error(), err)
	}
	to, err := parsePercent(raw.To)
	if err != nil {
		return fail("to: "+err.Error(), err)
	}
	return Change{Category: cat, Name: name, From: from, To: to}, nil
}

// ParseChanges validates a batch. With RejectBatch the first failure is
// returned as err and valid is nil. With DropInvalid err is always nil and
// the dropped entries are reported separately.
func ParseChanges(raws []RawChange, reg *Registry, policy Policy) (valid []Change, dropped []*InvalidChangeError, err error) {
	valid = make([]Change, 0, len(raws))
	for i, raw := range raws {
		c, perr := ParseChange(i, raw, reg)
		if perr == nil {
			valid = append(valid, c)
			continue
		}
		var ice *InvalidChangeError
		errors.As(perr, &ice)
		if policy == RejectBatch {
			return nil, nil, ice
		}
		dropped = append(dropped, ice)
	}
	return valid, dropped, nil
}

func parsePercent(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("missing value")
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("bad string: %w", err)
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %q", s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if f < MinPercent || f > MaxPercent {
		return 0, ErrOutOfRange
	}
	return int(f), nil
}

// ValidateSet checks a full replacement allocation list: known, unique ids,
// each value within [0,100] and a total of exactly 100.
func ValidateSet(cats []Category, reg *Registry) error {
	seen := make(map[string]bool, len(cats))
	for _, c := range cats {
		if reg != nil && !reg.Has(c.ID) {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate category %s", c.ID)
		}
		seen[c.ID] = true
		if c.Allocation < MinPercent || c.Allocation > MaxPercent {
			return fmt.Errorf("%w: %s=%d", ErrOutOfRange, c.ID, c.Allocation)
		}
	}
	if t := Total(cats); t != MaxPercent {
		return fmt.Errorf("%w (got %d)", ErrTotalNot100, t)
	}
	return nil
}
