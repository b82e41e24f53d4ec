package transform

import (
	"slices"
	"sync"
)

// Tracker is told which files an entry's output was built from, so a host
// can rebuild the entry when any of them changes.
type Tracker interface {
	TrackFiles(entry string, files []string)
}

// Graph is an in-memory Tracker mapping entries to the files they read and
// files back to the entries that read them.
type Graph struct {
	mu          sync.RWMutex
	entryFiles  map[string][]string
	fileEntries map[string]map[string]struct{}
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		entryFiles:  make(map[string][]string),
		fileEntries: make(map[string]map[string]struct{}),
	}
}

// TrackFiles replaces the recorded inputs of entry. The entry itself is
// always one of its inputs.
func (g *Graph) TrackFiles(entry string, files []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.untrackLocked(entry)

	inputs := make([]string, 0, len(files)+1)
	inputs = append(inputs, entry)

	for _, file := range files {
		if !slices.Contains(inputs, file) {
			inputs = append(inputs, file)
		}
	}

	g.entryFiles[entry] = inputs

	for _, file := range inputs {
		entries, ok := g.fileEntries[file]
		if !ok {
			entries = make(map[string]struct{})
			g.fileEntries[file] = entries
		}

		entries[entry] = struct{}{}
	}
}

// Untrack forgets entry.
func (g *Graph) Untrack(entry string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.untrackLocked(entry)
}

func (g *Graph) untrackLocked(entry string) {
	for _, file := range g.entryFiles[entry] {
		entries := g.fileEntries[file]
		delete(entries, entry)

		if len(entries) == 0 {
			delete(g.fileEntries, file)
		}
	}

	delete(g.entryFiles, entry)
}

// Affected returns the entries built from file, sorted.
func (g *Graph) Affected(file string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.fileEntries[file]))
	for entry := range g.fileEntries[file] {
		out = append(out, entry)
	}

	slices.Sort(out)

	return out
}

// Inputs returns the recorded inputs of entry, entry first.
func (g *Graph) Inputs(entry string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return slices.Clone(g.entryFiles[entry])
}

// Files returns every tracked file, sorted.
func (g *Graph) Files() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.fileEntries))
	for file := range g.fileEntries {
		out = append(out, file)
	}

	slices.Sort(out)

	return out
}
