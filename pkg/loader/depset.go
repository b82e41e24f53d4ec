package loader

import "slices"

// DependencySet is an insertion-ordered set of absolute module paths shared
// by every recursive step of one load request. It is not safe for
// concurrent use.
type DependencySet struct {
	paths []string
	index map[string]struct{}
}

// NewDependencySet creates an empty set.
func NewDependencySet() *DependencySet {
	return &DependencySet{index: make(map[string]struct{})}
}

// Add inserts path if absent and reports whether it was inserted.
func (s *DependencySet) Add(path string) bool {
	if _, ok := s.index[path]; ok {
		return false
	}

	s.index[path] = struct{}{}
	s.paths = append(s.paths, path)

	return true
}

// Has reports whether path is in the set.
func (s *DependencySet) Has(path string) bool {
	_, ok := s.index[path]

	return ok
}

// Len returns the number of paths.
func (s *DependencySet) Len() int {
	return len(s.paths)
}

// Paths returns a copy of the paths in insertion order.
func (s *DependencySet) Paths() []string {
	return slices.Clone(s.paths)
}
