package upload

// Set holds accepted candidates in selection order, bounded by
// Limits.MaxPending. It is owned by a single caller and is not safe for
// concurrent use.
type Set struct {
	limits Limits
	items  []Candidate
}

// NewSet creates an empty set.
func NewSet(limits Limits) *Set {
	limits = limits.normalize()
	return &Set{limits: limits, items: make([]Candidate, 0, limits.MaxPending)}
}

// Add validates each candidate against the current count and appends the
// valid ones. The returned slice holds one error per rejected candidate; a
// rejection never prevents later candidates from being accepted.
func (s *Set) Add(candidates ...Candidate) []error {
	var errs []error
	for _, c := range candidates {
		if err := Validate(c, len(s.items), s.limits); err != nil {
			errs = append(errs, err)
			continue
		}
		s.items = append(s.items, c)
	}
	return errs
}

// Items returns a copy of the accepted candidates.
func (s *Set) Items() []Candidate {
	return append([]Candidate(nil), s.items...)
}

// Len returns the number of accepted candidates.
func (s *Set) Len() int {
	return len(s.items)
}

// Remove drops the candidate at index i. Out of range indexes are ignored.
func (s *Set) Remove(i int) {
	if i < 0 || i >= len(s.items) {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
}

// Reset empties the set.
func (s *Set) Reset() {
	s.items = s.items[:0]
}
