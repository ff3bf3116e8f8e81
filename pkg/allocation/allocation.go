package allocation

const (
	MinPercent = 0
	MaxPercent = 100
)

// Category is one allocation bucket of the portfolio ("ai", "defi", "meme", ...).
type Category struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Allocation int    `json:"allocation" yaml:"allocation"`
}

// Change is a proposed adjustment for one category. Only To-From is meaningful
// once the live portfolio has drifted; From and To themselves are advisory.
type Change struct {
	Category string `json:"category" yaml:"category"`
	Name     string `json:"name" yaml:"name"`
	From     int    `json:"from" yaml:"from"`
	To       int    `json:"to" yaml:"to"`
}

func (c Change) Delta() int {
	return c.To - c.From
}

// Reconcile rebases every change onto the live allocation of its category,
// keeping the intended delta and clamping the target to [0,100].
// A category missing from live keeps its original From.
// The input slice is never modified; the result always has len(changes) entries.
func Reconcile(changes []Change, live map[string]int) []Change {
	out := make([]Change, len(changes))
	for i, c := range changes {
		from := c.From
		if v, ok := live[c.Category]; ok {
			from = v
		}
		out[i] = Change{
			Category: c.Category,
			Name:     c.Name,
			From:     from,
			To:       Clamp(from + c.Delta()),
		}
	}
	return out
}

// Clamp restricts v to [MinPercent, MaxPercent].
func Clamp(v int) int {
	if v < MinPercent {
		return MinPercent
	}
	if v > MaxPercent {
		return MaxPercent
	}
	return v
}

// Clamped reports whether reconciling original against the live value truncated its delta.
func Clamped(original, reconciled Change) bool {
	return reconciled.Delta() != original.Delta()
}

// Live builds the category -> allocation snapshot used by Reconcile.
func Live(cats []Category) map[string]int {
	m := make(map[string]int, len(cats))
	for _, c := range cats {
		m[c.ID] = c.Allocation
	}
	return m
}

func Total(cats []Category) int {
	t := 0
	for _, c := range cats {
		t += c.Allocation
	}
	return t
}

// Apply overlays reconciled changes onto a copy of cats. Changes for
// categories not in cats are ignored.
func Apply(cats []Category, changes []Change) []Category {
	out := make([]Category, len(cats))
	copy(out, cats)
	idx := make(map[string]int, len(out))
	for i, c := range out {
		idx[c.ID] = i
	}
	for _, ch := range changes {
		if i, ok := idx[ch.Category]; ok {
			out[i].Allocation = Clamp(ch.To)
		}
	}
	return out
}
