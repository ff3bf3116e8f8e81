package allocation

import "strings"

// Registry is the known set of categories, in display order.
type Registry struct {
	order []Category
	byID  map[string]int
}

func NewRegistry(cats []Category) *Registry {
	r := &Registry{byID: make(map[string]int, len(cats))}
	for _, c := range cats {
		id := strings.ToLower(c.ID)
		if _, dup := r.byID[id]; dup {
			continue
		}
		c.ID = id
		r.byID[id] = len(r.order)
		r.order = append(r.order, c)
	}
	return r
}

func (r *Registry) Has(id string) bool {
	_, ok := r.byID[strings.ToLower(id)]
	return ok
}

func (r *Registry) Get(id string) (Category, bool) {
	i, ok := r.byID[strings.ToLower(id)]
	if !ok {
		return Category{}, false
	}
	return r.order[i], true
}

// Categories returns a copy of the registered categories with their seed allocations.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	for i, c := range r.order {
		ids[i] = c.ID
	}
	return ids
}
